package filter

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// sincTaps are the vendor-supplied windowed-sinc FIR coefficients for the
// load cell's sampling rate.
var sincTaps = []float64{
	0.0, 0.006233, 0.02485484, 0.05332939, 0.0863577, 0.11709037,
	0.13881189, 0.14664562, 0.13881189, 0.11709037, 0.0863577,
	0.05332939, 0.02485484, 0.006233, 0.0,
}

const (
	standardGravity = 9.81

	// Measurements jumping more than spikeThreshold from the current
	// estimate are treated as impulse noise and de-weighted.
	spikeThreshold = 5.0
	spikeNoise     = 10.0
)

func init() {
	Register("sinckalman", func() Module {
		return &sincKalman{
			delay:  make([]float64, len(sincTaps)),
			kalman: newKalman1D(0.01, 0.1),
		}
	})
}

// sincKalman conditions the weight channel with a windowed-sinc FIR stage
// cascaded into an acceleration-compensated Kalman stage: the FIR output is
// divided by (g + accel_z) to recover mass under vertical acceleration, then
// smoothed by a single-state Kalman filter with threshold-gated measurement
// noise inflation.
//
// The FIR delay line and Kalman state persist across calls, so only the
// newest sample of each window is folded in per call.
type sincKalman struct {
	delay  []float64
	kalman *kalman1D
}

func (*sincKalman) Name() string { return "sinckalman" }

func (f *sincKalman) FilterWeight(weights, accelZ []float64) (float64, error) {
	w := weights[len(weights)-1]
	az := accelZ[len(accelZ)-1]

	// Shift the newest sample into the delay line.
	copy(f.delay[1:], f.delay[:len(f.delay)-1])
	f.delay[0] = w
	sincOut := floats.Dot(f.delay, sincTaps)

	mass := 0.0
	if g := standardGravity + az; g != 0 {
		mass = sincOut / g
	}

	r := f.kalman.r
	if math.Abs(mass-f.kalman.x) > spikeThreshold {
		r = spikeNoise
	}
	return f.kalman.updateWithNoise(mass, r), nil
}
