// Package capture owns the connection and capture lifecycle. A single
// Controller serializes every lifecycle operation and every incoming frame
// behind one mutex, so decode, filter, buffer and record always run in
// frame-arrival order with no interleaving from HTTP handlers.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/loadcell-data/loadcell.report/internal/db"
	"github.com/loadcell-data/loadcell.report/internal/filter"
	"github.com/loadcell-data/loadcell.report/internal/recorder"
	"github.com/loadcell-data/loadcell.report/internal/telemetry"
	"github.com/loadcell-data/loadcell.report/internal/transport"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connected
	Capturing
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Capturing:
		return "capturing"
	}
	return "disconnected"
}

// InvalidParameterError reports a rejected operation parameter. The
// operation fails before any state is touched.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

const (
	// DefaultTeardownTimeout bounds Unsubscribe and Disconnect during stop
	// and reset. Expiry forces the local state transition.
	DefaultTeardownTimeout = 5 * time.Second
	// DefaultScanTimeout bounds device discovery.
	DefaultScanTimeout = 5 * time.Second
)

// Config carries the controller's tunables.
type Config struct {
	TeardownTimeout time.Duration
	ScanTimeout     time.Duration
	Now             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = DefaultTeardownTimeout
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Controller drives the sensor lifecycle: scan, connect, discover, capture,
// stop, reset. All exported methods are safe for concurrent use.
type Controller struct {
	cfg       Config
	transport transport.Transport
	sink      Sink
	logf      func(format string, args ...any)

	mu        sync.Mutex
	state     State
	conn      transport.Conn
	devices   []transport.Device
	chars     []transport.Characteristic
	scanning  bool
	connectIn bool

	pipeline *filter.Pipeline
	buffer   *telemetry.SampleBuffer
	recorder *recorder.Recorder
	store    *db.DB

	session       *recorder.Session
	activeChar    string
	captureEpoch  time.Time
	completed     int
	nextSessionID int64
}

// NewController wires the capture layer together. store may be nil, in which
// case session ids are allocated locally and nothing is persisted to sqlite.
func NewController(t transport.Transport, p *filter.Pipeline, b *telemetry.SampleBuffer, r *recorder.Recorder, store *db.DB, sink Sink, cfg Config) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	return &Controller{
		cfg:       cfg.withDefaults(),
		transport: t,
		sink:      sink,
		logf:      log.Printf,
		pipeline:  p,
		buffer:    b,
		recorder:  r,
		store:     store,
	}
}

// SetLogf redirects controller logging, primarily for tests.
func (c *Controller) SetLogf(logf func(format string, args ...any)) {
	c.logf = logf
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capturing reports whether a capture is in progress.
func (c *Controller) Capturing() bool {
	return c.State() == Capturing
}

// Devices returns the result of the most recent scan.
func (c *Controller) Devices() []transport.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Characteristics returns the result of the most recent discovery.
func (c *Controller) Characteristics() []transport.Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Characteristic, len(c.chars))
	copy(out, c.chars)
	return out
}

// CompletedSessions reports how many captures have finished since startup.
func (c *Controller) CompletedSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Session returns a snapshot of the active session, or nil.
func (c *Controller) Session() *recorder.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	snap := *c.session
	return &snap
}

// Window returns copies of the raw and conditioned sample windows.
func (c *Controller) Window() ([]telemetry.DataPoint, []telemetry.FilteredPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Window()
}

// Scan discovers nearby devices. Only one scan runs at a time; a scan
// requested while one is in flight is refused.
func (c *Controller) Scan(ctx context.Context) ([]transport.Device, error) {
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return nil, fmt.Errorf("scan already in progress")
	}
	c.scanning = true
	c.mu.Unlock()

	c.sink.OnLog("scanning for devices...")
	devices, err := c.transport.Scan(ctx, c.cfg.ScanTimeout)

	c.mu.Lock()
	c.scanning = false
	if err == nil {
		c.devices = devices
	}
	c.mu.Unlock()

	if err != nil {
		c.logf("error scanning for devices: %v", err)
		c.sink.OnLog(fmt.Sprintf("scan failed: %v", err))
		return nil, err
	}
	c.sink.OnLog(fmt.Sprintf("found %d device(s)", len(devices)))
	return devices, nil
}

// Connect establishes a connection to a previously scanned device. On
// failure the controller stays Disconnected.
func (c *Controller) Connect(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	if c.connectIn {
		c.mu.Unlock()
		return fmt.Errorf("connect already in progress")
	}
	var dev transport.Device
	found := false
	for _, d := range c.devices {
		if d.ID == deviceID {
			dev = d
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return &InvalidParameterError{Param: "device", Reason: fmt.Sprintf("unknown device %q, scan first", deviceID)}
	}
	c.connectIn = true
	c.mu.Unlock()

	c.sink.OnLog(fmt.Sprintf("connecting to %s...", dev.Name))
	conn, err := c.transport.Connect(ctx, dev)

	c.mu.Lock()
	c.connectIn = false
	if err != nil {
		c.mu.Unlock()
		c.logf("error connecting to device: %v", err)
		c.sink.OnLog(fmt.Sprintf("connection failed: %v", err))
		return err
	}
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()

	debugf("connected to device %s (%s)", dev.ID, dev.Address)
	c.sink.OnLog(fmt.Sprintf("connected to %s", dev.Name))
	c.sink.OnStateChanged(Connected, false)
	return nil
}

// Discover enumerates notifiable characteristics on the connected device.
// A discovery failure leaves the connection state unchanged.
func (c *Controller) Discover(ctx context.Context) ([]transport.Characteristic, error) {
	c.mu.Lock()
	if c.state != Connected || c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	conn := c.conn
	c.mu.Unlock()

	chars, err := conn.Characteristics(ctx)
	if err != nil {
		c.logf("error discovering characteristics: %v", err)
		c.sink.OnLog(fmt.Sprintf("characteristic discovery failed: %v", err))
		return nil, err
	}

	c.mu.Lock()
	c.chars = chars
	c.mu.Unlock()

	c.sink.OnLog(fmt.Sprintf("discovered %d characteristic(s)", len(chars)))
	return chars, nil
}

// StartCapture validates its parameters, registers a session and subscribes
// to frame notifications. Parameter validation happens before any state
// mutation, so a rejected start leaves no trace.
func (c *Controller) StartCapture(ctx context.Context, characteristicID string, requiredSamples uint32, label, trueWeight string) error {
	c.mu.Lock()
	if c.state == Capturing {
		c.mu.Unlock()
		return fmt.Errorf("capture already in progress")
	}
	if c.state != Connected {
		c.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	if requiredSamples == 0 {
		c.mu.Unlock()
		return &InvalidParameterError{Param: "required_samples", Reason: "must be positive"}
	}
	if characteristicID == "" {
		c.mu.Unlock()
		return &InvalidParameterError{Param: "characteristic", Reason: "must not be empty"}
	}
	if len(c.chars) > 0 && !c.hasCharacteristic(characteristicID) {
		c.mu.Unlock()
		return &InvalidParameterError{Param: "characteristic", Reason: fmt.Sprintf("unknown characteristic %q", characteristicID)}
	}
	conn := c.conn
	c.mu.Unlock()

	var sessionID int64
	if c.store != nil {
		id, err := c.store.InsertSession(label, trueWeight, requiredSamples, c.recorder.Path())
		if err != nil {
			c.logf("error registering session: %v", err)
			return fmt.Errorf("failed to register session: %w", err)
		}
		sessionID = id
	} else {
		c.mu.Lock()
		c.nextSessionID++
		sessionID = c.nextSessionID
		c.mu.Unlock()
	}

	session, err := c.recorder.BeginSession(sessionID, label, trueWeight, requiredSamples)
	if err != nil {
		c.logf("error opening capture log: %v", err)
		return err
	}

	if err := conn.Subscribe(ctx, characteristicID, c.onFrame); err != nil {
		c.logf("error starting notifications: %v", err)
		c.sink.OnLog(fmt.Sprintf("failed to start capture: %v", err))
		return err
	}

	c.mu.Lock()
	c.buffer.Clear()
	c.session = session
	c.activeChar = characteristicID
	c.captureEpoch = c.cfg.Now()
	c.state = Capturing
	c.mu.Unlock()

	debugf("capture started: session=%d characteristic=%s required=%d", sessionID, characteristicID, requiredSamples)
	c.sink.OnLog(fmt.Sprintf("capture started (session %d, %d samples)", sessionID, requiredSamples))
	c.sink.OnStateChanged(Capturing, true)
	return nil
}

func (c *Controller) hasCharacteristic(id string) bool {
	for _, ch := range c.chars {
		if ch.ID == id {
			return true
		}
	}
	return false
}

// StopCapture ends the active capture. Stopping when no capture is active
// logs a warning and does nothing else. Unsubscribe is bounded by the
// teardown timeout; on expiry or failure the local transition to Connected
// happens anyway.
func (c *Controller) StopCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCaptureLocked(ctx)
}

func (c *Controller) stopCaptureLocked(ctx context.Context) error {
	if c.state != Capturing {
		c.sink.OnLog("no active capture to stop")
		return nil
	}

	tctx, cancel := context.WithTimeout(ctx, c.cfg.TeardownTimeout)
	defer cancel()
	err := c.conn.Unsubscribe(tctx, c.activeChar)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		c.logf("warning: timed out stopping notifications after %s, forcing local stop", c.cfg.TeardownTimeout)
		c.sink.OnLog("warning: device did not acknowledge stop, capture stopped locally")
	default:
		c.logf("warning: error stopping notifications: %v, forcing local stop", err)
		c.sink.OnLog(fmt.Sprintf("warning: stop failed (%v), capture stopped locally", err))
	}

	c.state = Connected
	c.activeChar = ""
	c.completed++

	if c.session != nil {
		if c.store != nil {
			if dberr := c.store.CompleteSession(c.session.ID, c.session.SampleCount); dberr != nil {
				c.logf("error completing session record: %v", dberr)
			}
		}
		c.sink.OnLog(fmt.Sprintf("capture stopped: %d sample(s) collected", c.session.SampleCount))
		c.session = nil
	} else {
		c.sink.OnLog("capture stopped")
	}

	c.sink.OnStateChanged(Connected, false)
	return nil
}

// Reset returns the controller to its initial state: stop any capture,
// disconnect, clear the sample windows and discovery results, and disable
// conditioning. Each teardown step is individually bounded by the teardown
// timeout. Reset from any state, including Disconnected, is safe and
// idempotent.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sink.OnLog("resetting...")
	if c.state == Capturing {
		c.stopCaptureLocked(ctx)
	}
	if c.conn != nil {
		tctx, cancel := context.WithTimeout(ctx, c.cfg.TeardownTimeout)
		err := c.conn.Disconnect(tctx)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			c.logf("warning: timed out disconnecting after %s, forcing local disconnect", c.cfg.TeardownTimeout)
		default:
			c.logf("warning: error disconnecting: %v, forcing local disconnect", err)
		}
		c.conn = nil
	}

	c.state = Disconnected
	c.buffer.Clear()
	c.pipeline.SetEnabled(false)
	c.devices = nil
	c.chars = nil
	c.session = nil
	c.activeChar = ""

	c.sink.OnLog("reset to initial state")
	c.sink.OnStateChanged(Disconnected, false)
}

// onFrame is the single entry point for incoming frames. Frames arriving
// outside an active capture are dropped without logging: teardown races are
// expected, not errors.
func (c *Controller) onFrame(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Capturing {
		debugf("dropping frame outside capture (state=%s)", c.state)
		return
	}

	sample, err := telemetry.DecodeFrame(frame)
	if err != nil {
		c.logf("error decoding frame: %v", err)
		return
	}

	ts := c.cfg.Now().Sub(c.captureEpoch).Seconds()
	dp := telemetry.NewDataPoint(sample, ts)
	fp := c.buffer.Append(dp, c.pipeline.Apply)
	outcome := c.recorder.RecordIfAccepted(dp, c.session)
	c.sink.OnSampleRendered(fp, ts)

	if outcome == recorder.SessionComplete {
		c.sink.OnLog(fmt.Sprintf("session %d complete: %d sample(s) collected", c.session.ID, c.session.SampleCount))
		c.stopCaptureLocked(context.Background())
	}
}

// SetFilterEnabled toggles conditioning mid-stream. The conditioned history
// is re-synced to the raw window so both windows keep equal length: enabling
// re-runs the strategy over every prefix of the raw history, rebuilding its
// state from what the window already holds; disabling copies the raw values
// through. Enabling with no strategy loaded is refused with a warning.
func (c *Controller) SetFilterEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pipeline.SetEnabled(enabled); err != nil {
		c.logf("warning: cannot enable conditioning: %v", err)
		c.sink.OnLog("warning: no filter strategy loaded, raw data will be used")
		return err
	}
	if enabled {
		c.buffer.Resync(c.pipeline.Apply)
		c.sink.OnLog("filters will be applied to sensor data")
	} else {
		c.buffer.Resync(nil)
		c.sink.OnLog("filters disabled, using raw data")
	}
	return nil
}

// SetSaving toggles CSV persistence. Disabled saving skips samples entirely:
// nothing is written and nothing counts toward session completion, while
// rendering and buffering continue untouched.
func (c *Controller) SetSaving(saving bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder.SetSaving(saving)
	if saving {
		c.sink.OnLog("saving samples to csv")
	} else {
		c.sink.OnLog("csv saving disabled")
	}
}

// Saving reports whether samples are persisted to csv.
func (c *Controller) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recorder.Saving()
}

// FilterEnabled reports whether conditioning is applied.
func (c *Controller) FilterEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeline.Enabled()
}

// LoadFilter installs a fresh instance of the named strategy. Loading the
// active name is the explicit reload path and discards all strategy state.
// An unknown name leaves the previous strategy installed.
func (c *Controller) LoadFilter(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pipeline.Load(name); err != nil {
		c.logf("error loading filter strategy: %v", err)
		c.sink.OnLog(fmt.Sprintf("failed to load filter %q", name))
		return err
	}
	c.sink.OnLog(fmt.Sprintf("loaded filter strategy %q", name))
	return nil
}

// ActiveFilter returns the name of the installed strategy, or "".
func (c *Controller) ActiveFilter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeline.Active()
}
