package filter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

func window(weights ...float64) []telemetry.DataPoint {
	pts := make([]telemetry.DataPoint, len(weights))
	for i, w := range weights {
		pts[i] = telemetry.DataPoint{
			Timestamp:   float64(i),
			Weight:      w,
			Temperature: 20 + float64(i),
			AccelX:      0.1,
			AccelY:      0.2,
			AccelZ:      0.3,
		}
	}
	return pts
}

// weightOnly conditions the weight channel and nothing else.
type weightOnly struct{}

func (weightOnly) Name() string { return "weight-only" }
func (weightOnly) FilterWeight(weights, accelZ []float64) (float64, error) {
	return weights[len(weights)-1] * 2, nil
}

// failing errors out on every channel it claims.
type failing struct{}

func (failing) Name() string { return "failing" }
func (failing) FilterWeight(weights, accelZ []float64) (float64, error) {
	return 0, fmt.Errorf("numeric blowup")
}
func (failing) FilterTemperature(temps []float64) (float64, error) {
	return 0, fmt.Errorf("numeric blowup")
}

func TestPipeline_DisabledCopiesRaw(t *testing.T) {
	p := NewPipeline(t.Logf)
	require.NoError(t, p.Load("movingavg"))

	fp := p.Apply(window(10, 20, 30))
	assert.Equal(t, 30.0, fp.Weight, "disabled pipeline must pass raw through")
}

func TestPipeline_MissingCapabilityFallsThrough(t *testing.T) {
	Register("weight-only", func() Module { return weightOnly{} })

	p := NewPipeline(t.Logf)
	require.NoError(t, p.Load("weight-only"))
	require.NoError(t, p.SetEnabled(true))

	fp := p.Apply(window(10, 20, 30))
	assert.Equal(t, 60.0, fp.Weight)
	// No temperature capability: latest raw temperature passes through.
	assert.Equal(t, 22.0, fp.Temperature)
	assert.Equal(t, 0.1, fp.AccelX)
}

func TestPipeline_ExecutionFailureFallsBackPerChannel(t *testing.T) {
	Register("failing", func() Module { return failing{} })

	p := NewPipeline(t.Logf)
	require.NoError(t, p.Load("failing"))
	require.NoError(t, p.SetEnabled(true))

	fp := p.Apply(window(10, 20, 30))
	assert.Equal(t, 30.0, fp.Weight, "failed channel falls back to latest raw")
	assert.Equal(t, 22.0, fp.Temperature)
}

func TestPipeline_LoadUnknownKeepsPrevious(t *testing.T) {
	p := NewPipeline(t.Logf)
	require.NoError(t, p.Load("kalman"))

	err := p.Load("no-such-strategy")
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "no-such-strategy", lerr.Name)
	assert.Equal(t, "kalman", p.Active(), "previous strategy must stay installed")
}

func TestPipeline_ReloadDiscardsState(t *testing.T) {
	p := NewPipeline(t.Logf)
	require.NoError(t, p.Load("kalman"))
	require.NoError(t, p.SetEnabled(true))

	// Prime the Kalman estimate away from zero.
	for i := 0; i < 20; i++ {
		p.Apply(window(100))
	}
	primed := p.Apply(window(100))
	assert.InDelta(t, 100.0, primed.Weight, 1.0)

	// Reload: fresh instance, first measurement seeds the estimate.
	require.NoError(t, p.Load("kalman"))
	fresh := p.Apply(window(50))
	assert.Equal(t, 50.0, fresh.Weight)
}

func TestPipeline_EnableWithoutModuleRefused(t *testing.T) {
	p := NewPipeline(t.Logf)
	assert.Error(t, p.SetEnabled(true))
	assert.False(t, p.Enabled())
}

func TestStrategies_BuiltinsRegistered(t *testing.T) {
	names := Strategies()
	for _, want := range []string{"gatedema", "kalman", "movingavg", "passthrough", "sinckalman"} {
		assert.Contains(t, names, want)
	}
}
