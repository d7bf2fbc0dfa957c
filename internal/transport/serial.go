package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

// SerialCharacteristicID is the single characteristic a serial-attached
// sensor head exposes.
const SerialCharacteristicID = "serial-telemetry"

// Frame preamble emitted by the sensor head before every 20-byte payload.
var framePreamble = [2]byte{0xAA, 0x55}

// Porter is the minimal interface needed for a serial port. The abstraction
// enables unit testing without real serial hardware.
type Porter interface {
	io.ReadWriteCloser
}

// SerialTransport delivers telemetry frames from a sensor head attached over
// UART. Scan enumerates system serial ports as devices.
type SerialTransport struct {
	opts PortOptions
	open func(path string) (Porter, error)
}

// NewSerialTransport creates a transport that opens ports with the given
// options.
func NewSerialTransport(opts PortOptions) (*SerialTransport, error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	t := &SerialTransport{opts: norm}
	t.open = func(path string) (Porter, error) {
		mode, err := norm.SerialMode()
		if err != nil {
			return nil, err
		}
		return serial.Open(path, mode)
	}
	return t, nil
}

// newSerialTransportWithOpener injects a port opener for tests.
func newSerialTransportWithOpener(opts PortOptions, open func(path string) (Porter, error)) *SerialTransport {
	return &SerialTransport{opts: opts, open: open}
}

// Scan lists the system's serial ports as candidate devices.
func (t *SerialTransport) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, wrap(ScanFailure, err)
	}
	devices := make([]Device, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, Device{ID: p, Name: "serial sensor", Address: p})
	}
	return devices, nil
}

// Connect opens the device's serial port.
func (t *SerialTransport) Connect(ctx context.Context, dev Device) (Conn, error) {
	port, err := t.open(dev.ID)
	if err != nil {
		return nil, wrap(ConnectFailure, err)
	}
	return newSerialConn(port), nil
}

// serialConn reads preamble-framed telemetry payloads from an open port.
// One reader goroutine drains the port for the lifetime of the connection;
// Subscribe and Unsubscribe install and remove the frame callback.
type serialConn struct {
	port Porter

	mu      sync.Mutex
	fn      FrameFunc
	started bool
	closed  bool
	done    chan struct{}
}

func newSerialConn(port Porter) *serialConn {
	return &serialConn{port: port, done: make(chan struct{})}
}

func (c *serialConn) Characteristics(ctx context.Context) ([]Characteristic, error) {
	return []Characteristic{{ID: SerialCharacteristicID, Description: "load cell telemetry stream"}}, nil
}

func (c *serialConn) Subscribe(ctx context.Context, characteristicID string, fn FrameFunc) error {
	if characteristicID != SerialCharacteristicID {
		return wrap(SubscribeFailure, fmt.Errorf("unknown characteristic %q", characteristicID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return wrap(SubscribeFailure, fmt.Errorf("connection closed"))
	}
	if c.fn != nil {
		return wrap(SubscribeFailure, fmt.Errorf("already subscribed"))
	}
	c.fn = fn
	if !c.started {
		c.started = true
		go c.readLoop()
	}
	return nil
}

// readLoop scans the port for preamble-framed payloads and hands them to the
// installed callback in arrival order. It exits when the port is closed or
// errors out.
func (c *serialConn) readLoop() {
	defer close(c.done)
	r := bufio.NewReader(c.port)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b != framePreamble[0] {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return
		}
		if b != framePreamble[1] {
			continue
		}

		frame := make([]byte, telemetry.FrameLength)
		if _, err := io.ReadFull(r, frame); err != nil {
			return
		}

		c.mu.Lock()
		fn := c.fn
		c.mu.Unlock()
		if fn != nil {
			fn(frame)
		}
	}
}

// Unsubscribe removes the frame callback. The reader keeps draining the port
// so a later Subscribe resumes mid-stream without re-syncing.
func (c *serialConn) Unsubscribe(ctx context.Context, characteristicID string) error {
	if characteristicID != SerialCharacteristicID {
		return wrap(UnsubscribeFailure, fmt.Errorf("unknown characteristic %q", characteristicID))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fn == nil {
		return wrap(UnsubscribeFailure, fmt.Errorf("not subscribed"))
	}
	c.fn = nil
	return nil
}

// Disconnect closes the port and waits for the reader to drain.
func (c *serialConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.fn = nil
	started := c.started
	c.mu.Unlock()

	if err := c.port.Close(); err != nil {
		return wrap(DisconnectFailure, err)
	}
	if started {
		select {
		case <-c.done:
		case <-ctx.Done():
			return wrap(DisconnectFailure, ctx.Err())
		}
	}
	return nil
}
