package tcplink

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kstaniek/sensor-streamer/internal/logging"
	"github.com/kstaniek/sensor-streamer/internal/metrics"
	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

func startLink(t *testing.T) (*Link, context.CancelFunc, <-chan error) {
	t.Helper()
	l := New(WithListenAddr("127.0.0.1:0"), WithReadTimeout(5*time.Millisecond), WithLogger(logging.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx) }()
	select {
	case <-l.Ready():
	case <-time.After(time.Second):
		t.Fatal("link not ready")
	}
	t.Cleanup(cancel)
	return l, cancel, errCh
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func receiveAll(t *testing.T, l *Link, want int) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 32)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		n, err := l.Receive(buf)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	return got
}

func TestSendWithoutPeer(t *testing.T) {
	l := New(WithLogger(logging.Discard()))
	if err := l.Send([]byte("OK\r\n")); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("expected ErrNoPeer, got %v", err)
	}
}

func TestReceiveWithoutPeerReturnsEmpty(t *testing.T) {
	l, _, _ := startLink(t)
	n, err := l.Receive(make([]byte, 8))
	if n != 0 || err != nil {
		t.Fatalf("expected 0, nil; got %d, %v", n, err)
	}
}

func TestRoundTripAndConnectHook(t *testing.T) {
	l, _, _ := startLink(t)
	var connects atomic.Int32
	l.OnConnect(func() { connects.Add(1) })

	c := dial(t, l.Addr())
	waitFor(t, l.Connected)
	if err := l.Send([]byte("early")); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("send before connect hook: %v", err)
	}
	if _, err := c.Write([]byte("config?\r\n")); err != nil {
		t.Fatal(err)
	}
	if got := receiveAll(t, l, 9); string(got) != "config?\r\n" {
		t.Fatalf("received %q", got)
	}
	if connects.Load() != 1 {
		t.Fatalf("connect hook ran %d times", connects.Load())
	}
	if err := l.Send([]byte("OK\r\n")); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 4)
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(c, out); err != nil || string(out) != "OK\r\n" {
		t.Fatalf("host read %q (%v)", out, err)
	}
}

func TestSecondPeerRejected(t *testing.T) {
	l, _, _ := startLink(t)
	before := metrics.Snap().PeerRejects
	first := dial(t, l.Addr())
	waitFor(t, l.Connected)

	second := dial(t, l.Addr())
	_ = second.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := second.Read(make([]byte, 1)); err == nil {
		t.Fatal("second peer should have been closed")
	}
	waitFor(t, func() bool { return metrics.Snap().PeerRejects > before })

	// first peer still attached
	if _, err := first.Write([]byte("\r\n")); err != nil {
		t.Fatal(err)
	}
	if got := receiveAll(t, l, 2); string(got) != "\r\n" {
		t.Fatalf("received %q", got)
	}
}

func TestPeerHangupFreesSlot(t *testing.T) {
	l, _, _ := startLink(t)
	var drops atomic.Int32
	l.OnDisconnect(func() { drops.Add(1) })
	c := dial(t, l.Addr())
	waitFor(t, l.Connected)
	_ = c.Close()

	waitFor(t, func() bool {
		if _, err := l.Receive(make([]byte, 8)); err != nil {
			t.Fatalf("receive after hangup: %v", err)
		}
		return !l.Connected()
	})
	if drops.Load() != 1 {
		t.Fatalf("disconnect hook ran %d times", drops.Load())
	}
	if err := l.Send([]byte("x")); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("expected ErrNoPeer, got %v", err)
	}

	dial(t, l.Addr())
	waitFor(t, l.Connected)
}

func TestServeStopsOnCancel(t *testing.T) {
	l, cancel, errCh := startLink(t)
	dial(t, l.Addr())
	waitFor(t, l.Connected)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("serve did not return")
	}
	if l.Connected() {
		t.Fatal("peer still attached after shutdown")
	}
	for i := 0; i < 50; i++ {
		if _, err := l.Receive(make([]byte, 1)); !errors.Is(err, protocol.ErrTransportClosed) {
			t.Fatalf("receive %d: expected ErrTransportClosed, got %v", i, err)
		}
	}
}

func TestClosedWinsOverPendingConnectNotice(t *testing.T) {
	l, cancel, errCh := startLink(t)
	// Attach and drop a host without reading, leaving a connect notice queued.
	dial(t, l.Addr())
	waitFor(t, l.Connected)
	cancel()
	<-errCh
	if len(l.notify) == 0 {
		t.Skip("connect notice already consumed")
	}
	for i := 0; i < 50; i++ {
		if _, err := l.Receive(make([]byte, 1)); !errors.Is(err, protocol.ErrTransportClosed) {
			t.Fatalf("receive %d: expected ErrTransportClosed, got %v", i, err)
		}
	}
}

func TestSlowConnectHookRunsBeforeFirstRead(t *testing.T) {
	l, _, _ := startLink(t)
	var mu sync.Mutex
	var events []string
	record := func(e string) { mu.Lock(); events = append(events, e); mu.Unlock() }
	l.OnConnect(func() {
		record("hook_start")
		time.Sleep(30 * time.Millisecond)
		record("hook_end")
	})

	c := dial(t, l.Addr())
	if _, err := c.Write([]byte("subscribe,1,16000\r\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 32)
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 19 && time.Now().Before(deadline) {
		n, err := l.Receive(buf)
		if err != nil {
			t.Fatal(err)
		}
		if n > 0 {
			record("data")
			got = append(got, buf[:n]...)
		}
	}
	if string(got) != "subscribe,1,16000\r\n" {
		t.Fatalf("received %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) < 3 || events[0] != "hook_start" || events[1] != "hook_end" {
		t.Fatalf("hook did not complete before first read: %v", events)
	}
}

func TestListenError(t *testing.T) {
	l, _, _ := startLink(t)
	dup := New(WithListenAddr(l.Addr()), WithLogger(logging.Discard()))
	if err := dup.Serve(context.Background()); !errors.Is(err, ErrListen) {
		t.Fatalf("expected ErrListen, got %v", err)
	}
}
