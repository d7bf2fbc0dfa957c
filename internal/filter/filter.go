// Package filter provides the swappable signal-conditioning stage applied to
// the rolling raw sample window.
//
// Strategies register themselves by name and are constructed fresh on every
// load, so all numeric state (FIR delay lines, Kalman estimates, smoothing
// history) lives on the strategy instance and is deliberately discarded when
// the active strategy is swapped or reloaded.
package filter

import (
	"fmt"
	"sort"
	"sync"
)

// Module is an installed conditioning strategy. A module advertises which
// channels it conditions by additionally implementing the capability
// interfaces below; any channel without a capability passes the latest raw
// value through untouched.
type Module interface {
	Name() string
}

// WeightFilter conditions the weight channel. It receives the full weight
// series plus the parallel Z-acceleration series so strategies can
// compensate for vertical acceleration.
type WeightFilter interface {
	FilterWeight(weights, accelZ []float64) (float64, error)
}

// TemperatureFilter conditions the temperature channel.
type TemperatureFilter interface {
	FilterTemperature(temps []float64) (float64, error)
}

// AccelFilter conditions all three acceleration axes jointly.
type AccelFilter interface {
	FilterAccel(xs, ys, zs []float64) (x, y, z float64, err error)
}

// AccelAxisFilter conditions the acceleration axes independently. Consulted
// only when the module does not implement AccelFilter.
type AccelAxisFilter interface {
	FilterAccelX(xs []float64) (float64, error)
	FilterAccelY(ys []float64) (float64, error)
	FilterAccelZ(zs []float64) (float64, error)
}

// Constructor builds a fresh strategy instance with zeroed private state.
type Constructor func() Module

// LoadError reports a failed strategy load. The previously active strategy
// stays installed.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load filter %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var (
	registryMu sync.Mutex
	registry   = make(map[string]Constructor)
)

// Register adds a strategy constructor to the global registry. Built-in
// strategies register themselves from init; additional strategies may be
// registered before the pipeline is first loaded.
func Register(name string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("filter: duplicate strategy %q", name))
	}
	registry[name] = fn
}

// Strategies returns the sorted names of all registered strategies.
func Strategies() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Constructor, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	fn, ok := registry[name]
	return fn, ok
}
