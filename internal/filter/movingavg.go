package filter

import (
	"gonum.org/v1/gonum/stat"
)

// movingAvgWindow is the fixed tail length averaged per call.
const movingAvgWindow = 10

func init() {
	Register("movingavg", func() Module { return movingAverage{} })
}

// movingAverage conditions every channel with a fixed-window mean over the
// most recent samples. Stateless: the window itself is the only history.
type movingAverage struct{}

func (movingAverage) Name() string { return "movingavg" }

func tail(series []float64) []float64 {
	if len(series) > movingAvgWindow {
		return series[len(series)-movingAvgWindow:]
	}
	return series
}

func (movingAverage) FilterWeight(weights, accelZ []float64) (float64, error) {
	return stat.Mean(tail(weights), nil), nil
}

func (movingAverage) FilterTemperature(temps []float64) (float64, error) {
	return stat.Mean(tail(temps), nil), nil
}

func (movingAverage) FilterAccel(xs, ys, zs []float64) (float64, float64, float64, error) {
	return stat.Mean(tail(xs), nil), stat.Mean(tail(ys), nil), stat.Mean(tail(zs), nil), nil
}
