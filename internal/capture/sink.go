package capture

import "github.com/loadcell-data/loadcell.report/internal/telemetry"

// Sink receives the events the GUI consumes. Implementations must not
// block: sink calls happen inside the frame-processing turn.
type Sink interface {
	// OnLog receives a human-readable status line.
	OnLog(message string)
	// OnSampleRendered receives each conditioned sample as it is accepted.
	OnSampleRendered(fp telemetry.FilteredPoint, timestamp float64)
	// OnStateChanged receives every lifecycle transition.
	OnStateChanged(state State, capturing bool)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnLog(string) {}

func (NopSink) OnSampleRendered(telemetry.FilteredPoint, float64) {}

func (NopSink) OnStateChanged(State, bool) {}
