package telemetry

// DefaultMaxPoints bounds the rolling window when no explicit size is given.
const DefaultMaxPoints = 100

// DataPoint is a decoded sample stamped with a capture-relative timestamp in
// seconds.
type DataPoint struct {
	Timestamp   float64
	Weight      float64
	Temperature float64
	AccelX      float64
	AccelY      float64
	AccelZ      float64
}

// FilteredPoint carries the conditioned values paired with a DataPoint.
type FilteredPoint struct {
	Weight      float64
	Temperature float64
	AccelX      float64
	AccelY      float64
	AccelZ      float64
}

// NewDataPoint converts a decoded sample into a timestamped point.
func NewDataPoint(s Sample, timestamp float64) DataPoint {
	return DataPoint{
		Timestamp:   timestamp,
		Weight:      float64(s.Weight),
		Temperature: float64(s.Temperature),
		AccelX:      float64(s.AccelX),
		AccelY:      float64(s.AccelY),
		AccelZ:      float64(s.AccelZ),
	}
}

// Values returns the raw measurement as a FilteredPoint, used wherever a
// channel passes through unconditioned.
func (dp DataPoint) Values() FilteredPoint {
	return FilteredPoint{
		Weight:      dp.Weight,
		Temperature: dp.Temperature,
		AccelX:      dp.AccelX,
		AccelY:      dp.AccelY,
		AccelZ:      dp.AccelZ,
	}
}

// ApplyFunc produces the conditioned values for the newest point of a raw
// window (oldest first, newest last).
type ApplyFunc func(raw []DataPoint) FilteredPoint

// SampleBuffer is the bounded dual window backing both persistence and
// rendering. The raw and filtered slices always have equal length after any
// exported call; eviction removes the oldest entry from both sides together.
//
// The buffer is not safe for concurrent use. It is owned by the single
// goroutine that processes frames and lifecycle transitions.
type SampleBuffer struct {
	maxPoints int
	raw       []DataPoint
	filtered  []FilteredPoint
}

// NewSampleBuffer creates a buffer bounded to maxPoints entries. A
// non-positive maxPoints selects DefaultMaxPoints.
func NewSampleBuffer(maxPoints int) *SampleBuffer {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &SampleBuffer{maxPoints: maxPoints}
}

// Append pushes a raw point, derives its conditioned pair by running apply
// over the full raw window including the new point, and evicts the oldest
// pair if the buffer exceeds its bound. A nil apply copies the raw values.
// The conditioned point is returned for rendering.
func (b *SampleBuffer) Append(dp DataPoint, apply ApplyFunc) FilteredPoint {
	b.raw = append(b.raw, dp)

	var fp FilteredPoint
	if apply != nil {
		fp = apply(b.raw)
	} else {
		fp = dp.Values()
	}
	b.filtered = append(b.filtered, fp)

	if len(b.raw) > b.maxPoints {
		b.raw = b.raw[1:]
		b.filtered = b.filtered[1:]
	}
	return fp
}

// Len reports the number of buffered pairs.
func (b *SampleBuffer) Len() int { return len(b.raw) }

// Window returns copies of the raw and filtered windows, oldest first. The
// two slices are guaranteed equal length.
func (b *SampleBuffer) Window() ([]DataPoint, []FilteredPoint) {
	raw := make([]DataPoint, len(b.raw))
	copy(raw, b.raw)
	filtered := make([]FilteredPoint, len(b.filtered))
	copy(filtered, b.filtered)
	return raw, filtered
}

// Resync rebuilds the filtered window to match the raw window. With a nil
// apply the filtered history becomes a copy of the raw values; otherwise
// apply is re-run over every prefix of the raw window so strategy state is
// rebuilt from history. Called whenever conditioning is reconfigured
// mid-stream so the filtered history never starts shorter than the raw one.
func (b *SampleBuffer) Resync(apply ApplyFunc) {
	b.filtered = b.filtered[:0]
	for i := range b.raw {
		if apply != nil {
			b.filtered = append(b.filtered, apply(b.raw[:i+1]))
		} else {
			b.filtered = append(b.filtered, b.raw[i].Values())
		}
	}
}

// Clear empties both windows. Used on reset and on capture (re)start.
func (b *SampleBuffer) Clear() {
	b.raw = b.raw[:0]
	b.filtered = b.filtered[:0]
}
