package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockTransport implements Transport with fully scriptable behaviour. It
// backs dev mode (self-generating frames on a ticker) and gives tests
// fine-grained control over failures, latency and blocking teardown calls.
type MockTransport struct {
	mu sync.Mutex

	// Devices returned by Scan. NewMockTransport seeds one simulated
	// sensor.
	Devices []Device

	// Chars returned by Conn.Characteristics.
	Chars []Characteristic

	// Error injection per operation. A nil error means success.
	ScanErr        error
	ConnectErr     error
	DiscoverErr    error
	SubscribeErr   error
	UnsubscribeErr error
	DisconnectErr  error

	// Blocking injection: the operation waits for ctx expiry and returns
	// ctx.Err(). Used to exercise the bounded teardown timeouts and the
	// busy-scan guard.
	BlockScan        bool
	BlockUnsubscribe bool
	BlockDisconnect  bool

	// FrameInterval enables self-generated frames while subscribed: every
	// interval, FrameFactory is invoked and its payload delivered. Zero
	// disables generation (tests deliver frames explicitly).
	FrameInterval time.Duration
	FrameFactory  func() []byte

	conn *MockConn
}

// NewMockTransport creates a mock seeded with one simulated device and one
// notifiable characteristic.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Devices: []Device{{
			ID:      uuid.NewString(),
			Name:    "LoadCell-Sim",
			Address: "00:00:00:00:00:01",
		}},
		Chars: []Characteristic{{
			ID:          uuid.NewString(),
			Description: "simulated load cell telemetry",
		}},
	}
}

func (t *MockTransport) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	t.mu.Lock()
	block := t.BlockScan
	scanErr := t.ScanErr
	devices := make([]Device, len(t.Devices))
	copy(devices, t.Devices)
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, wrap(ScanFailure, ctx.Err())
	}
	if scanErr != nil {
		return nil, wrap(ScanFailure, scanErr)
	}
	return devices, nil
}

func (t *MockTransport) Connect(ctx context.Context, dev Device) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return nil, wrap(ConnectFailure, t.ConnectErr)
	}
	t.conn = &MockConn{transport: t}
	return t.conn, nil
}

// Conn returns the connection handed out by the last Connect, for tests
// that deliver frames directly.
func (t *MockTransport) Conn() *MockConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// MockConn is the connection half of MockTransport.
type MockConn struct {
	transport *MockTransport

	mu           sync.Mutex
	fn           FrameFunc
	subscribedTo string
	stopGen      chan struct{}
	disconnected bool
}

func (c *MockConn) Characteristics(ctx context.Context) ([]Characteristic, error) {
	t := c.transport
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.DiscoverErr != nil {
		return nil, wrap(DiscoveryFailure, t.DiscoverErr)
	}
	chars := make([]Characteristic, len(t.Chars))
	copy(chars, t.Chars)
	return chars, nil
}

func (c *MockConn) Subscribe(ctx context.Context, characteristicID string, fn FrameFunc) error {
	t := c.transport
	t.mu.Lock()
	subErr := t.SubscribeErr
	interval := t.FrameInterval
	factory := t.FrameFactory
	t.mu.Unlock()

	if subErr != nil {
		return wrap(SubscribeFailure, subErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fn != nil {
		return wrap(SubscribeFailure, fmt.Errorf("already subscribed to %s", c.subscribedTo))
	}
	c.fn = fn
	c.subscribedTo = characteristicID

	if interval > 0 && factory != nil {
		c.stopGen = make(chan struct{})
		go c.generate(interval, factory, c.stopGen)
	}
	return nil
}

// generate feeds self-produced frames to the subscriber until stopped. A
// single goroutine delivers, preserving arrival order.
func (c *MockConn) generate(interval time.Duration, factory func() []byte, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Deliver(factory())
		}
	}
}

// Deliver invokes the subscriber callback synchronously with one frame.
// Frames delivered while unsubscribed are dropped.
func (c *MockConn) Deliver(frame []byte) {
	c.mu.Lock()
	fn := c.fn
	c.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

func (c *MockConn) Unsubscribe(ctx context.Context, characteristicID string) error {
	t := c.transport
	t.mu.Lock()
	block := t.BlockUnsubscribe
	unsubErr := t.UnsubscribeErr
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return wrap(UnsubscribeFailure, ctx.Err())
	}
	if unsubErr != nil {
		return wrap(UnsubscribeFailure, unsubErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = nil
	c.subscribedTo = ""
	if c.stopGen != nil {
		close(c.stopGen)
		c.stopGen = nil
	}
	return nil
}

func (c *MockConn) Disconnect(ctx context.Context) error {
	t := c.transport
	t.mu.Lock()
	block := t.BlockDisconnect
	discErr := t.DisconnectErr
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return wrap(DisconnectFailure, ctx.Err())
	}
	if discErr != nil {
		return wrap(DisconnectFailure, discErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.fn = nil
	if c.stopGen != nil {
		close(c.stopGen)
		c.stopGen = nil
	}
	return nil
}

// Disconnected reports whether Disconnect completed.
func (c *MockConn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
