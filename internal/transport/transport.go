// Package transport abstracts the wireless link to the sensor head.
//
// The capture layer consumes the link as an opaque capability: scan for
// devices, connect, enumerate notifiable characteristics, subscribe to frame
// notifications. Two implementations exist: a serial-backed transport for
// bench setups where the sensor streams over UART, and a fully scriptable
// mock used by dev mode and the test suite.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Device identifies a discoverable sensor peripheral.
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Characteristic identifies a notifiable characteristic on a connected
// device.
type Characteristic struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// FrameFunc receives one raw notification payload. Implementations must not
// block: decode, filter, buffer and record all complete within the
// callback's turn to preserve frame ordering.
type FrameFunc func(frame []byte)

// Transport discovers and connects to sensor peripherals.
type Transport interface {
	// Scan discovers nearby devices, blocking up to timeout.
	Scan(ctx context.Context, timeout time.Duration) ([]Device, error)
	// Connect establishes a connection to the given device.
	Connect(ctx context.Context, dev Device) (Conn, error)
}

// Conn is an established connection to one peripheral. All methods honour
// ctx cancellation; teardown calls (Unsubscribe, Disconnect) are wrapped in
// bounded-timeout contexts by the capture layer.
type Conn interface {
	// Characteristics enumerates the notifiable characteristics.
	Characteristics(ctx context.Context) ([]Characteristic, error)
	// Subscribe enables notifications on the characteristic, delivering
	// each frame to fn in arrival order.
	Subscribe(ctx context.Context, characteristicID string, fn FrameFunc) error
	// Unsubscribe disables notifications on the characteristic.
	Unsubscribe(ctx context.Context, characteristicID string) error
	// Disconnect tears the connection down.
	Disconnect(ctx context.Context) error
}

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	ConnectFailure ErrorKind = iota
	SubscribeFailure
	UnsubscribeFailure
	DisconnectFailure
	ScanFailure
	DiscoveryFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectFailure:
		return "connect"
	case SubscribeFailure:
		return "subscribe"
	case UnsubscribeFailure:
		return "unsubscribe"
	case DisconnectFailure:
		return "disconnect"
	case ScanFailure:
		return "scan"
	case DiscoveryFailure:
		return "discovery"
	}
	return "unknown"
}

// Error wraps a failed transport operation with its classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap classifies err, passing nil through.
func wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}
