package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMockTransport_ScanConnectDiscover(t *testing.T) {
	tr := NewMockTransport()
	ctx := context.Background()

	devices, err := tr.Scan(ctx, time.Second)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("scan returned %d devices, want 1", len(devices))
	}

	conn, err := tr.Connect(ctx, devices[0])
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	chars, err := conn.Characteristics(ctx)
	if err != nil {
		t.Fatalf("characteristics failed: %v", err)
	}
	if len(chars) != 1 {
		t.Fatalf("got %d characteristics, want 1", len(chars))
	}
}

func TestMockTransport_ConnectErrInjection(t *testing.T) {
	tr := NewMockTransport()
	tr.ConnectErr = fmt.Errorf("radio off")

	_, err := tr.Connect(context.Background(), tr.Devices[0])
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want transport.Error", err)
	}
	if terr.Kind != ConnectFailure {
		t.Errorf("kind = %v, want ConnectFailure", terr.Kind)
	}
}

func TestMockConn_DeliverReachesSubscriber(t *testing.T) {
	tr := NewMockTransport()
	ctx := context.Background()
	conn, _ := tr.Connect(ctx, tr.Devices[0])

	var got [][]byte
	if err := conn.Subscribe(ctx, tr.Chars[0].ID, func(frame []byte) {
		got = append(got, frame)
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	mc := tr.Conn()
	mc.Deliver([]byte{1})
	mc.Deliver([]byte{2})

	if len(got) != 2 {
		t.Fatalf("delivered %d frames, want 2", len(got))
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Error("frames delivered out of order")
	}
}

func TestMockConn_DropsFramesAfterUnsubscribe(t *testing.T) {
	tr := NewMockTransport()
	ctx := context.Background()
	conn, _ := tr.Connect(ctx, tr.Devices[0])

	count := 0
	conn.Subscribe(ctx, tr.Chars[0].ID, func([]byte) { count++ })
	conn.Unsubscribe(ctx, tr.Chars[0].ID)

	tr.Conn().Deliver([]byte{1})
	if count != 0 {
		t.Errorf("frame delivered after unsubscribe (count=%d)", count)
	}
}

func TestMockConn_BlockUnsubscribeHonoursContext(t *testing.T) {
	tr := NewMockTransport()
	tr.BlockUnsubscribe = true
	ctx := context.Background()
	conn, _ := tr.Connect(ctx, tr.Devices[0])
	conn.Subscribe(ctx, tr.Chars[0].ID, func([]byte) {})

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := conn.Unsubscribe(tctx, tr.Chars[0].ID)
	if err == nil {
		t.Fatal("expected timeout error from blocked unsubscribe")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("unsubscribe did not return promptly after ctx expiry")
	}
}
