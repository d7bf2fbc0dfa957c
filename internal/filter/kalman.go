package filter

func init() {
	Register("kalman", func() Module {
		return &kalman{
			weight: newKalman1D(0.01, 0.1),
			temp:   newKalman1D(0.001, 0.05),
		}
	})
}

// kalman1D is a single-state scalar Kalman filter: constant-value process
// model with tunable process noise q and measurement noise r. The estimate
// and covariance persist for the lifetime of the owning strategy instance.
type kalman1D struct {
	q, r   float64
	x, p   float64
	primed bool
}

func newKalman1D(q, r float64) *kalman1D {
	return &kalman1D{q: q, r: r, p: 1.0}
}

// update folds one measurement into the estimate and returns it.
func (k *kalman1D) update(z float64) float64 {
	return k.updateWithNoise(z, k.r)
}

// updateWithNoise folds one measurement using an explicit measurement noise,
// letting callers de-weight suspect measurements.
func (k *kalman1D) updateWithNoise(z, r float64) float64 {
	if !k.primed {
		k.x = z
		k.primed = true
		return k.x
	}
	pPred := k.p + k.q
	gain := pPred / (pPred + r)
	k.x += gain * (z - k.x)
	k.p = (1.0 - gain) * pPred
	return k.x
}

// kalman conditions the weight and temperature channels with independent
// single-state filters. Acceleration passes through raw.
type kalman struct {
	weight *kalman1D
	temp   *kalman1D
}

func (*kalman) Name() string { return "kalman" }

func (f *kalman) FilterWeight(weights, accelZ []float64) (float64, error) {
	return f.weight.update(weights[len(weights)-1]), nil
}

func (f *kalman) FilterTemperature(temps []float64) (float64, error) {
	return f.temp.update(temps[len(temps)-1]), nil
}
