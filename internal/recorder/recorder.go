// Package recorder persists accepted samples to an append-only CSV log and
// tracks per-session progress toward a fixed sample count.
package recorder

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

// Layout selects the CSV column set. Both forms are configuration of the
// same recorder, never separate code paths.
type Layout int

const (
	// LayoutFull writes session id, reference weight and session state
	// alongside each sample.
	LayoutFull Layout = iota
	// LayoutReduced writes only the measurement columns plus a free-text
	// label.
	LayoutReduced
)

// ParseLayout maps a configuration string to a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "full":
		return LayoutFull, nil
	case "reduced":
		return LayoutReduced, nil
	}
	return LayoutFull, fmt.Errorf("unknown csv layout %q: expected full or reduced", s)
}

func (l Layout) header() []string {
	if l == LayoutReduced {
		return []string{"Timestamp", "Weight", "Temperature", "Accel_X", "Accel_Y", "Accel_Z", "Label"}
	}
	return []string{"Timestamp", "Session", "Weight", "Temperature", "Accel_X", "Accel_Y", "Accel_Z", "True_Weight", "State"}
}

// Outcome reports what RecordIfAccepted did with a sample.
type Outcome int

const (
	// Skipped: saving disabled or session already complete; nothing
	// written, nothing counted.
	Skipped Outcome = iota
	// Written: the sample was counted and a row appended.
	Written
	// SessionComplete: this sample brought the session to its required
	// count. The caller is expected to stop capture; the recorder itself
	// only signals.
	SessionComplete
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case SessionComplete:
		return "session complete"
	}
	return "skipped"
}

// Session is one bounded capture run.
type Session struct {
	ID              int64
	RequiredSamples uint32
	SampleCount     uint32
	Label           string
	TrueWeight      string
	StartedAt       time.Time
}

// Complete reports whether the session has reached its required count.
func (s *Session) Complete() bool {
	return s.SampleCount >= s.RequiredSamples
}

// Recorder appends accepted samples to a CSV log.
type Recorder struct {
	path   string
	layout Layout
	saving bool
	logf   func(format string, args ...any)
}

// New creates a recorder targeting the given CSV path. Saving starts
// enabled. A nil logf uses the standard logger.
func New(path string, layout Layout, logf func(format string, args ...any)) *Recorder {
	if logf == nil {
		logf = log.Printf
	}
	return &Recorder{path: path, layout: layout, saving: true, logf: logf}
}

// Path returns the target CSV path.
func (r *Recorder) Path() string { return r.path }

// Saving reports whether rows are being written.
func (r *Recorder) Saving() bool { return r.saving }

// SetSaving toggles row writing. Disabled saving skips samples entirely:
// they are neither written nor counted toward session completion.
func (r *Recorder) SetSaving(saving bool) { r.saving = saving }

// BeginSession opens a new session and makes sure the log exists with its
// header. requiredSamples must be positive; the caller validates this
// before any state mutation.
func (r *Recorder) BeginSession(id int64, label, trueWeight string, requiredSamples uint32) (*Session, error) {
	if requiredSamples == 0 {
		return nil, fmt.Errorf("required samples must be positive")
	}
	if err := r.ensureHeader(); err != nil {
		return nil, err
	}
	return &Session{
		ID:              id,
		RequiredSamples: requiredSamples,
		Label:           label,
		TrueWeight:      trueWeight,
		StartedAt:       time.Now(),
	}, nil
}

// ensureHeader creates the log with its header row if it does not exist.
func (r *Recorder) ensureHeader() error {
	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(r.layout.header()); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	w.Flush()
	return w.Error()
}

// RecordIfAccepted appends one row for the sample if saving is enabled and
// the session is not yet complete. The sample is counted as an attempt even
// if the write fails: I/O errors are logged, not fatal, and capture
// continues unless the caller decides otherwise. Returns SessionComplete
// exactly when the count reaches the required total; the completing sample
// itself is written.
func (r *Recorder) RecordIfAccepted(dp telemetry.DataPoint, session *Session) Outcome {
	if session == nil || !r.saving || session.Complete() {
		return Skipped
	}

	session.SampleCount++
	if err := r.appendRow(dp, session); err != nil {
		r.logf("error writing to log: %v", err)
	}

	if session.Complete() {
		return SessionComplete
	}
	return Written
}

func (r *Recorder) appendRow(dp telemetry.DataPoint, session *Session) error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	ts := time.Now().Format("2006-01-02 15:04:05")
	var row []string
	switch r.layout {
	case LayoutReduced:
		row = []string{
			ts,
			formatFloat(dp.Weight),
			formatFloat(dp.Temperature),
			formatFloat(dp.AccelX),
			formatFloat(dp.AccelY),
			formatFloat(dp.AccelZ),
			session.Label,
		}
	default:
		row = []string{
			ts,
			strconv.FormatInt(session.ID, 10),
			formatFloat(dp.Weight),
			formatFloat(dp.Temperature),
			formatFloat(dp.AccelX),
			formatFloat(dp.AccelY),
			formatFloat(dp.AccelZ),
			session.TrueWeight,
			sessionState(session),
		}
	}

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// sessionState labels a row with the session's progress at write time. The
// count is incremented before the row is written, so the completing sample
// carries "complete".
func sessionState(s *Session) string {
	if s.Complete() {
		return "complete"
	}
	return "capturing"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
