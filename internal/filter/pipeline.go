package filter

import (
	"fmt"
	"log"

	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

// Pipeline holds the active conditioning strategy and applies it to raw
// sample windows. A pipeline with no module, or with conditioning disabled,
// copies raw values through unchanged.
//
// The pipeline is not safe for concurrent use; like the sample buffer it is
// owned by the frame-processing goroutine.
type Pipeline struct {
	logf    func(format string, args ...any)
	active  Module
	enabled bool
}

// NewPipeline creates an empty pipeline. Fallback and load diagnostics go to
// logf; a nil logf uses the standard logger.
func NewPipeline(logf func(format string, args ...any)) *Pipeline {
	if logf == nil {
		logf = log.Printf
	}
	return &Pipeline{logf: logf}
}

// Load swaps the active strategy for a fresh instance of the named one. On
// an unknown name the previous strategy stays installed and a *LoadError is
// returned. Loading an already-active name is the explicit reload path: the
// prior instance is discarded entirely along with its private state.
func (p *Pipeline) Load(name string) error {
	fn, ok := lookup(name)
	if !ok {
		return &LoadError{Name: name, Err: fmt.Errorf("unknown strategy")}
	}
	p.active = fn()
	return nil
}

// Active returns the name of the installed strategy, or "" if none.
func (p *Pipeline) Active() string {
	if p.active == nil {
		return ""
	}
	return p.active.Name()
}

// Enabled reports whether conditioning is applied.
func (p *Pipeline) Enabled() bool { return p.enabled }

// SetEnabled toggles conditioning. Enabling with no module installed is
// refused so the caller can surface a warning instead of silently passing
// raw data through an "enabled" pipeline.
func (p *Pipeline) SetEnabled(enabled bool) error {
	if enabled && p.active == nil {
		return fmt.Errorf("no filter strategy loaded")
	}
	p.enabled = enabled
	return nil
}

// Apply conditions the newest point of the raw window. Each channel is
// handled independently: a missing capability or a strategy error on a
// channel falls back to that channel's latest raw value for this call only.
// Fallbacks are logged, never fatal. The window must be non-empty.
func (p *Pipeline) Apply(window []telemetry.DataPoint) telemetry.FilteredPoint {
	latest := window[len(window)-1]
	fp := latest.Values()
	if !p.enabled || p.active == nil {
		return fp
	}

	weights := make([]float64, len(window))
	temps := make([]float64, len(window))
	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	zs := make([]float64, len(window))
	for i, dp := range window {
		weights[i] = dp.Weight
		temps[i] = dp.Temperature
		xs[i] = dp.AccelX
		ys[i] = dp.AccelY
		zs[i] = dp.AccelZ
	}

	if f, ok := p.active.(WeightFilter); ok {
		if w, err := f.FilterWeight(weights, zs); err != nil {
			p.logf("filter %s: weight channel failed, using raw value: %v", p.active.Name(), err)
		} else {
			fp.Weight = w
		}
	}

	if f, ok := p.active.(TemperatureFilter); ok {
		if tv, err := f.FilterTemperature(temps); err != nil {
			p.logf("filter %s: temperature channel failed, using raw value: %v", p.active.Name(), err)
		} else {
			fp.Temperature = tv
		}
	}

	switch f := p.active.(type) {
	case AccelFilter:
		if x, y, z, err := f.FilterAccel(xs, ys, zs); err != nil {
			p.logf("filter %s: accel channel failed, using raw values: %v", p.active.Name(), err)
		} else {
			fp.AccelX, fp.AccelY, fp.AccelZ = x, y, z
		}
	case AccelAxisFilter:
		if x, err := f.FilterAccelX(xs); err != nil {
			p.logf("filter %s: accel X failed, using raw value: %v", p.active.Name(), err)
		} else {
			fp.AccelX = x
		}
		if y, err := f.FilterAccelY(ys); err != nil {
			p.logf("filter %s: accel Y failed, using raw value: %v", p.active.Name(), err)
		} else {
			fp.AccelY = y
		}
		if z, err := f.FilterAccelZ(zs); err != nil {
			p.logf("filter %s: accel Z failed, using raw value: %v", p.active.Name(), err)
		} else {
			fp.AccelZ = z
		}
	}

	return fp
}
