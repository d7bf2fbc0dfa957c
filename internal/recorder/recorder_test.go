package recorder

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

func testPoint(weight float64) telemetry.DataPoint {
	return telemetry.DataPoint{Weight: weight, Temperature: 22.5, AccelX: 0.1, AccelY: 0.2, AccelZ: 1.0}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	return rows
}

func TestBeginSession_CreatesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")
	r := New(path, LayoutFull, t.Logf)

	if _, err := r.BeginSession(1, "static", "500", 10); err != nil {
		t.Fatalf("begin session failed: %v", err)
	}
	if _, err := r.BeginSession(2, "static", "500", 10); err != nil {
		t.Fatalf("second begin session failed: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 1 {
		t.Fatalf("log has %d rows, want just the header", len(rows))
	}
	want := []string{"Timestamp", "Session", "Weight", "Temperature", "Accel_X", "Accel_Y", "Accel_Z", "True_Weight", "State"}
	for i, col := range want {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
}

func TestBeginSession_ZeroRequiredSamplesRejected(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "x.csv"), LayoutFull, t.Logf)
	if _, err := r.BeginSession(1, "", "", 0); err == nil {
		t.Fatal("expected error for zero required samples")
	}
}

func TestRecordIfAccepted_WritesUntilComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")
	r := New(path, LayoutFull, t.Logf)
	session, err := r.BeginSession(7, "ramp", "250", 3)
	if err != nil {
		t.Fatalf("begin session failed: %v", err)
	}

	if got := r.RecordIfAccepted(testPoint(100), session); got != Written {
		t.Errorf("sample 1: outcome = %v, want written", got)
	}
	if got := r.RecordIfAccepted(testPoint(101), session); got != Written {
		t.Errorf("sample 2: outcome = %v, want written", got)
	}
	if got := r.RecordIfAccepted(testPoint(102), session); got != SessionComplete {
		t.Errorf("sample 3: outcome = %v, want session complete", got)
	}
	// Once complete, further samples are skipped and not counted.
	if got := r.RecordIfAccepted(testPoint(103), session); got != Skipped {
		t.Errorf("sample 4: outcome = %v, want skipped", got)
	}
	if session.SampleCount != 3 {
		t.Errorf("sample count = %d, want 3", session.SampleCount)
	}

	rows := readRows(t, path)
	if len(rows) != 4 { // header + 3 samples, the completing one included
		t.Fatalf("log has %d rows, want 4", len(rows))
	}
	if rows[3][2] != "102" {
		t.Errorf("completing sample weight = %q, want 102", rows[3][2])
	}
	if rows[1][1] != "7" {
		t.Errorf("session column = %q, want 7", rows[1][1])
	}
	if rows[1][7] != "250" || rows[1][8] != "capturing" {
		t.Errorf("true weight/state = %q/%q, want 250/capturing", rows[1][7], rows[1][8])
	}
	if rows[3][8] != "complete" {
		t.Errorf("completing row state = %q, want complete", rows[3][8])
	}
}

func TestRecordIfAccepted_SavingDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")
	r := New(path, LayoutFull, t.Logf)
	session, _ := r.BeginSession(1, "", "", 2)

	r.SetSaving(false)
	if got := r.RecordIfAccepted(testPoint(1), session); got != Skipped {
		t.Errorf("outcome = %v, want skipped while saving disabled", got)
	}
	if session.SampleCount != 0 {
		t.Errorf("sample count = %d, want 0", session.SampleCount)
	}
}

func TestRecordIfAccepted_ReducedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")
	r := New(path, LayoutReduced, t.Logf)
	session, err := r.BeginSession(1, "empty-platform", "", 1)
	if err != nil {
		t.Fatalf("begin session failed: %v", err)
	}

	r.RecordIfAccepted(testPoint(55), session)

	rows := readRows(t, path)
	if len(rows[0]) != 7 {
		t.Fatalf("reduced header has %d columns, want 7", len(rows[0]))
	}
	if rows[0][6] != "Label" {
		t.Errorf("last column = %q, want Label", rows[0][6])
	}
	if rows[1][6] != "empty-platform" {
		t.Errorf("label cell = %q, want empty-platform", rows[1][6])
	}
}

func TestRecordIfAccepted_WriteFailureStillCounted(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "missing", "sensor_data.csv"), LayoutFull, t.Logf)

	// Bypass BeginSession so the header (and its directory) never exists;
	// every append will fail.
	session := &Session{ID: 1, RequiredSamples: 2}

	if got := r.RecordIfAccepted(testPoint(1), session); got != Written {
		t.Errorf("outcome = %v, want written despite I/O failure", got)
	}
	if got := r.RecordIfAccepted(testPoint(2), session); got != SessionComplete {
		t.Errorf("outcome = %v, want session complete despite I/O failure", got)
	}
}

func TestParseLayout(t *testing.T) {
	if l, err := ParseLayout("full"); err != nil || l != LayoutFull {
		t.Errorf("ParseLayout(full) = %v, %v", l, err)
	}
	if l, err := ParseLayout("reduced"); err != nil || l != LayoutReduced {
		t.Errorf("ParseLayout(reduced) = %v, %v", l, err)
	}
	if _, err := ParseLayout("tsv"); err == nil {
		t.Error("expected error for unknown layout")
	}
}
