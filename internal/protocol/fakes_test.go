package protocol

import (
	"bytes"
	"sync"
	"testing"

	"github.com/kstaniek/sensor-streamer/internal/logging"
)

// fakeTransport hands out queued input chunks and records every Send.
type fakeTransport struct {
	mu      sync.Mutex
	in      [][]byte
	sent    [][]byte
	readErr error
	sendErr error
	maxRead int // if >0, cap each Receive to this many bytes
}

func (f *fakeTransport) Receive(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.in) == 0 {
		return 0, f.readErr
	}
	if f.maxRead > 0 && len(p) > f.maxRead {
		p = p[:f.maxRead]
	}
	c := f.in[0]
	n := copy(p, c)
	if n < len(c) {
		f.in[0] = c[n:]
	} else {
		f.in = f.in[1:]
	}
	return n, nil
}

func (f *fakeTransport) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) push(s string) {
	f.mu.Lock()
	f.in = append(f.in, []byte(s))
	f.mu.Unlock()
}

func (f *fakeTransport) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in)
}

func (f *fakeTransport) sends() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) output() string {
	var b bytes.Buffer
	for _, s := range f.sends() {
		b.Write(s)
	}
	return b.String()
}

func (f *fakeTransport) clearSent() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

type manualClock struct {
	mu sync.Mutex
	ms int64
}

func (c *manualClock) NowMs() int64 { c.mu.Lock(); defer c.mu.Unlock(); return c.ms }
func (c *manualClock) Set(ms int64) { c.mu.Lock(); c.ms = ms; c.mu.Unlock() }

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *fakeTransport, *manualClock) {
	t.Helper()
	ft := &fakeTransport{}
	clk := &manualClock{}
	all := append([]SessionOption{WithClock(clk), WithLogger(logging.Discard())}, opts...)
	s, err := NewSession(ft, all...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, ft, clk
}

// feed queues input and polls until the transport has nothing left.
func feed(t *testing.T, s *Session, ft *fakeTransport, in string) {
	t.Helper()
	ft.push(in)
	for i := 0; ft.pending() > 0; i++ {
		if i > 10000 {
			t.Fatalf("input not drained")
		}
		if err := s.Poll(); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
}
