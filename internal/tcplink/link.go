// Package tcplink carries the device byte stream over TCP to a single host.
package tcplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/sensor-streamer/internal/logging"
	"github.com/kstaniek/sensor-streamer/internal/metrics"
	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

var (
	ErrListen = errors.New("listen")
	ErrAccept = errors.New("accept")
	// ErrNoPeer is returned by Send while no host is connected.
	ErrNoPeer = errors.New("no peer connected")
)

const (
	defaultReadTimeout  = 10 * time.Millisecond
	defaultWriteTimeout = 2 * time.Second
)

// Link listens for hosts and serves exactly one at a time; connections
// arriving while a host is attached are closed immediately.
//
// The connect and disconnect hooks run on the goroutine calling Receive,
// and a new host's bytes are not read (nor written to) until its connect
// hook has returned.
type Link struct {
	mu        sync.Mutex
	addr      string
	listener  net.Listener
	conn      net.Conn
	greeted   bool // connect hook has run for conn
	connLog   *slog.Logger
	onConnect func()
	onDrop    func()

	readTimeout  time.Duration
	writeTimeout time.Duration

	logger     *slog.Logger
	readyOnce  sync.Once
	readyCh    chan struct{}
	notify     chan struct{}
	done       chan struct{}
	doneOnce   sync.Once
	nextConnID atomic.Uint64
}

var _ protocol.Transport = (*Link)(nil)

type Option func(*Link)

func WithListenAddr(a string) Option { return func(l *Link) { l.addr = a } }

func WithReadTimeout(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.readTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Link) {
		if lg != nil {
			l.logger = lg
		}
	}
}

func New(opts ...Option) *Link {
	l := &Link{
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		logger:       logging.L(),
		readyCh:      make(chan struct{}),
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// OnConnect registers fn to run before the first read from a new host.
func (l *Link) OnConnect(fn func()) { l.mu.Lock(); l.onConnect = fn; l.mu.Unlock() }

// OnDisconnect registers fn to run after the attached host goes away.
func (l *Link) OnDisconnect(fn func()) { l.mu.Lock(); l.onDrop = fn; l.mu.Unlock() }

func (l *Link) Addr() string           { l.mu.Lock(); defer l.mu.Unlock(); return l.addr }
func (l *Link) Ready() <-chan struct{} { return l.readyCh }

// Connected reports whether a host is attached.
func (l *Link) Connected() bool { l.mu.Lock(); defer l.mu.Unlock(); return l.conn != nil }

// Serve listens and accepts hosts until ctx is cancelled.
func (l *Link) Serve(ctx context.Context) error {
	defer l.doneOnce.Do(func() { close(l.done) })
	addr := l.Addr()
	if addr == "" {
		addr = ":0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(metrics.ErrAccept)
		return wrap
	}
	l.mu.Lock()
	l.listener = ln
	l.addr = ln.Addr().String()
	l.mu.Unlock()
	l.readyOnce.Do(func() { close(l.readyCh) })
	l.logger.Info("tcp_listen", "addr", ln.Addr().String())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	defer l.dropPeer(nil, "shutdown")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			metrics.IncError(metrics.ErrAccept)
			return fmt.Errorf("%w: %v", ErrAccept, err)
		}
		l.attach(conn)
	}
}

func (l *Link) attach(conn net.Conn) {
	id := l.nextConnID.Add(1)
	lg := l.logger.With("conn_id", id, "remote", conn.RemoteAddr().String())
	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		metrics.IncPeerReject()
		lg.Warn("client_reject_busy")
		_ = conn.Close()
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	l.conn = conn
	l.greeted = false
	l.connLog = lg
	l.mu.Unlock()
	lg.Info("client_connected")
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// dropPeer closes conn if it is still the attached host. A nil conn drops
// whatever is attached.
func (l *Link) dropPeer(conn net.Conn, reason string) {
	l.mu.Lock()
	cur := l.conn
	if cur == nil || (conn != nil && conn != cur) {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	lg := l.connLog
	var hook func()
	if l.greeted {
		hook = l.onDrop
	}
	l.greeted = false
	l.mu.Unlock()
	_ = cur.Close()
	lg.Info("client_disconnected", "reason", reason)
	if hook != nil {
		hook()
	}
}

// current returns the attached host once its connect hook has run.
func (l *Link) current() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.greeted {
		return nil
	}
	return l.conn
}

// greet runs the connect hook for a newly attached host. It reports false
// when there is no host waiting for it.
func (l *Link) greet() bool {
	l.mu.Lock()
	conn, hook := l.conn, l.onConnect
	if conn == nil || l.greeted {
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	l.mu.Lock()
	if l.conn == conn {
		l.greeted = true
	}
	l.mu.Unlock()
	return true
}

// Receive reads from the attached host, waiting at most the read timeout.
// Without a host it waits for one to connect for the same bounded time.
// A host hanging up is not an error; the link just goes back to waiting.
func (l *Link) Receive(p []byte) (int, error) {
	select {
	case <-l.done:
		return 0, protocol.ErrTransportClosed
	default:
	}
	if l.greet() {
		return 0, nil
	}
	conn := l.current()
	if conn == nil {
		t := time.NewTimer(l.readTimeout)
		defer t.Stop()
		select {
		case <-l.notify:
		case <-t.C:
		case <-l.done:
			return 0, protocol.ErrTransportClosed
		}
		return 0, nil
	}
	_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))
	n, err := conn.Read(p)
	if err == nil {
		return n, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	reason := "read_error"
	if errors.Is(err, io.EOF) {
		reason = "eof"
	}
	l.dropPeer(conn, reason)
	return n, nil
}

// Send writes all of p to the attached host.
func (l *Link) Send(p []byte) error {
	conn := l.current()
	if conn == nil {
		return ErrNoPeer
	}
	_ = conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	if _, err := conn.Write(p); err != nil {
		l.dropPeer(conn, "write_error")
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}
