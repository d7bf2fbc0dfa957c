package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

// pipePort adapts an io.Pipe to the Porter interface so the frame reader can
// be driven without hardware.
type pipePort struct {
	io.Reader
	io.WriteCloser
}

func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }

func newPipeConn(t *testing.T) (*serialConn, *io.PipeWriter) {
	t.Helper()
	r, w := io.Pipe()
	conn := newSerialConn(&pipePort{Reader: r, WriteCloser: w})
	t.Cleanup(func() { w.Close() })
	return conn, w
}

func framed(s telemetry.Sample) []byte {
	return append([]byte{framePreamble[0], framePreamble[1]}, telemetry.EncodeFrame(s)...)
}

func TestSerialConn_DeliversFramedPayloads(t *testing.T) {
	conn, w := newPipeConn(t)

	frames := make(chan []byte, 4)
	if err := conn.Subscribe(context.Background(), SerialCharacteristicID, func(frame []byte) {
		frames <- frame
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	want := telemetry.Sample{Weight: 500, Temperature: 21.5, AccelZ: 1.0}
	go func() {
		// Leading garbage must be skipped by the preamble scan.
		w.Write([]byte{0x00, 0xAA, 0x00})
		w.Write(framed(want))
	}()

	select {
	case frame := <-frames:
		got, err := telemetry.DecodeFrame(frame)
		if err != nil {
			t.Fatalf("delivered frame failed to decode: %v", err)
		}
		if got != want {
			t.Errorf("decoded = %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame delivery")
	}
}

func TestSerialConn_UnsubscribeStopsDelivery(t *testing.T) {
	conn, w := newPipeConn(t)

	frames := make(chan []byte, 4)
	ctx := context.Background()
	if err := conn.Subscribe(ctx, SerialCharacteristicID, func(frame []byte) {
		frames <- frame
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := conn.Unsubscribe(ctx, SerialCharacteristicID); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	go w.Write(framed(telemetry.Sample{Weight: 1, Temperature: 20}))

	select {
	case <-frames:
		t.Fatal("frame delivered after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSerialConn_SubscribeUnknownCharacteristic(t *testing.T) {
	conn, _ := newPipeConn(t)
	err := conn.Subscribe(context.Background(), "bogus", func([]byte) {})
	if err == nil {
		t.Fatal("expected error for unknown characteristic")
	}
}

func TestSerialConn_Characteristics(t *testing.T) {
	conn, _ := newPipeConn(t)
	chars, err := conn.Characteristics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chars) != 1 || chars[0].ID != SerialCharacteristicID {
		t.Errorf("characteristics = %+v, want single %q entry", chars, SerialCharacteristicID)
	}
}

func TestSerialTransport_ConnectFailure(t *testing.T) {
	tr := newSerialTransportWithOpener(PortOptions{}, func(path string) (Porter, error) {
		return nil, io.ErrClosedPipe
	})
	_, err := tr.Connect(context.Background(), Device{ID: "/dev/ttyUSB9"})
	if err == nil {
		t.Fatal("expected connect failure")
	}
}

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("defaults = %+v", opts)
	}

	if _, err := (PortOptions{DataBits: 3}).Normalize(); err == nil {
		t.Error("expected error for invalid data bits")
	}
	if _, err := (PortOptions{Parity: "X"}).Normalize(); err == nil {
		t.Error("expected error for invalid parity")
	}
}
