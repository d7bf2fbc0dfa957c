package filter

import "math"

func init() {
	Register("gatedema", func() Module {
		return &gatedEMA{
			weight: &gatedSmoother{alpha: 0.3, threshold: 0.5},
			temp:   &gatedSmoother{alpha: 0.1, threshold: 0.2},
			x:      &gatedSmoother{alpha: 0.2, threshold: 0.05},
			y:      &gatedSmoother{alpha: 0.2, threshold: 0.05},
			z:      &gatedSmoother{alpha: 0.2, threshold: 0.05},
		}
	})
}

// gatedSmoother is a threshold-gated exponential smoother: the smoothed
// value only moves when the measurement differs from it by more than the
// threshold, otherwise the previous smoothed value is held. Suppresses
// small-amplitude jitter without lagging genuine steps.
type gatedSmoother struct {
	alpha     float64
	threshold float64
	value     float64
	primed    bool
}

func (s *gatedSmoother) update(v float64) float64 {
	if !s.primed {
		s.value = v
		s.primed = true
		return v
	}
	if math.Abs(v-s.value) > s.threshold {
		s.value += s.alpha * (v - s.value)
	}
	return s.value
}

// gatedEMA applies an independent gated smoother per channel, with per-axis
// acceleration conditioning.
type gatedEMA struct {
	weight  *gatedSmoother
	temp    *gatedSmoother
	x, y, z *gatedSmoother
}

func (*gatedEMA) Name() string { return "gatedema" }

func (f *gatedEMA) FilterWeight(weights, accelZ []float64) (float64, error) {
	return f.weight.update(weights[len(weights)-1]), nil
}

func (f *gatedEMA) FilterTemperature(temps []float64) (float64, error) {
	return f.temp.update(temps[len(temps)-1]), nil
}

func (f *gatedEMA) FilterAccelX(xs []float64) (float64, error) {
	return f.x.update(xs[len(xs)-1]), nil
}

func (f *gatedEMA) FilterAccelY(ys []float64) (float64, error) {
	return f.y.update(ys[len(ys)-1]), nil
}

func (f *gatedEMA) FilterAccelZ(zs []float64) (float64, error) {
	return f.z.update(zs[len(zs)-1]), nil
}
