// Package protocol implements the device side of the sensor streaming
// protocol: a line-oriented command interpreter, per-channel subscriptions,
// a heartbeat liveness monitor and the binary frame encoder.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/sensor-streamer/internal/logging"
	"github.com/kstaniek/sensor-streamer/internal/metrics"
)

// Transport is the byte-oriented duplex link to the host.
type Transport interface {
	// Receive reads available bytes into p. It may wait a short, bounded
	// time and returns 0, nil when nothing arrived.
	Receive(p []byte) (int, error)
	// Send blocks until p has been fully written.
	Send(p []byte) error
}

// Fixed responses.
var (
	respOK           = []byte("OK\r\n")
	respTooLong      = []byte("ERROR:Too long command\r\n")
	respUnrecognized = []byte("ERROR:Unrecognized command\r\n")
)

// State of the protocol session.
type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

const (
	backoffMin = 20 * time.Millisecond
	backoffMax = 500 * time.Millisecond
	idleWait   = 100 * time.Microsecond
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// Session is one protocol engine bound to a transport. Poll and Run must be
// called from a single goroutine; Send, IsActive, State and Reset may be
// called from any goroutine.
type Session struct {
	t       Transport
	clock   Clock
	logger  *slog.Logger
	profile Profile
	bufSize int

	asm  *Assembler
	reg  *Registry
	disp *Dispatcher
	hb   *Monitor
	enc  *Encoder

	writeMu    sync.Mutex
	configBlob []byte
	rx         []byte

	lastState    State // poll goroutine only
	resetPending atomic.Bool
}

type SessionOption func(*Session)

func WithClock(c Clock) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithProfile(p Profile) SessionOption { return func(s *Session) { s.profile = p } }

func WithBufferSize(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithHeartbeatTimeout overrides the profile's heartbeat timeout.
func WithHeartbeatTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.profile.HeartbeatTimeout = d
		}
	}
}

// NewSession builds a session. Options are applied in order, so
// WithHeartbeatTimeout must follow WithProfile to take effect.
func NewSession(t Transport, opts ...SessionOption) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("nil transport")
	}
	s := &Session{
		t:       t,
		clock:   NewSystemClock(),
		logger:  logging.L(),
		profile: DefaultProfile(true),
		bufSize: DefaultBufferSize,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.profile.Validate(); err != nil {
		return nil, err
	}
	blob, err := s.profile.ConfigBlob()
	if err != nil {
		return nil, err
	}
	s.configBlob = blob
	ids := make([]Channel, 0, len(s.profile.Channels))
	for _, c := range s.profile.Channels {
		ids = append(ids, c.ID)
	}
	s.reg = NewRegistry(ids...)
	s.asm = NewAssembler(s.bufSize)
	s.rx = make([]byte, s.asm.Cap())
	s.disp = NewDispatcher(s.reg, s.profile.Channels)
	s.hb = NewMonitor(s.reg, s.profile.HeartbeatTimeout)
	s.enc = NewEncoder(s.reg, t, &s.writeMu)
	metrics.SetActiveChannels(0)
	return s, nil
}

func (s *Session) Profile() Profile    { return s.profile }
func (s *Session) Registry() *Registry { return s.reg }

// IsActive reports whether ch is currently subscribed.
func (s *Session) IsActive(ch Channel) bool { return s.reg.IsActive(ch) }

// State is Streaming while at least one channel is subscribed.
func (s *Session) State() State {
	if s.reg.AnyActive() {
		return Streaming
	}
	return Idle
}

// Send is the frame encoder entry point for sensor producers.
func (s *Session) Send(ch Channel, payload []byte) error {
	if err := s.enc.Send(ch, payload); err != nil {
		metrics.IncError(mapErrToMetric(err))
		return err
	}
	return nil
}

// Reset drops all subscriptions now and discards any partial command line
// at the start of the next poll cycle.
func (s *Session) Reset() {
	s.reg.ClearAll()
	s.resetPending.Store(true)
}

// Poll runs one cycle: heartbeat check, receive, assemble, dispatch and respond.
func (s *Session) Poll() error {
	_, err := s.poll()
	return err
}

func (s *Session) poll() (int, error) {
	if s.resetPending.Swap(false) {
		s.asm.Reset()
		s.observe("reset")
	}
	now := s.clock.NowMs()
	if s.hb.CheckTimeout(now) {
		metrics.IncHeartbeatExpired()
		s.logger.Info("heartbeat_expired", "silence_ms", now-s.hb.LastReceiveMs())
		s.observe("heartbeat_timeout")
	}

	// Never read more than the pending line can still hold.
	n, rerr := s.t.Receive(s.rx[:s.asm.Free()])
	var werr error
	if n > 0 {
		s.hb.OnBytesReceived(s.clock.NowMs())
		metrics.AddRxBytes(n)
		s.asm.Feed(s.rx[:n], func(ev Event) {
			if err := s.handle(ev); err != nil && werr == nil {
				werr = err
			}
		})
	}
	if rerr != nil {
		return n, fmt.Errorf("%w: %w", ErrTransportRead, rerr)
	}
	return n, werr
}

func (s *Session) handle(ev Event) error {
	switch ev.Kind {
	case Overflow:
		metrics.IncOverflow()
		s.logger.Warn("command_overflow", "error", fmt.Errorf("%w: no terminator within %d bytes", ErrCommandOverflow, s.asm.Cap()))
		return s.respond(respTooLong)
	case CommandReady:
		res := s.disp.Dispatch(ev.Line)
		metrics.IncCommand(res.Command)
		var err error
		switch res.Response {
		case RespOK:
			err = s.respond(respOK)
		case RespConfig:
			err = s.respond(s.configBlob)
		case RespUnrecognized:
			s.logger.Debug("command_unrecognized", "error", res.Err)
			err = s.respond(respUnrecognized)
		}
		if res.Command != metrics.CmdHeartbeat {
			s.logger.Debug("command", "kind", res.Command, "channel", int(res.Channel), "response", res.Response.String())
		}
		s.observe(res.Command)
		return err
	}
	return nil
}

func (s *Session) respond(b []byte) error {
	s.writeMu.Lock()
	err := s.t.Send(b)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportWrite, err)
	}
	metrics.AddTxBytes(len(b))
	return nil
}

// observe publishes the active channel count and logs Idle/Streaming transitions.
func (s *Session) observe(reason string) {
	active := s.reg.Active()
	metrics.SetActiveChannels(len(active))
	st := Idle
	if len(active) > 0 {
		st = Streaming
	}
	if st == s.lastState {
		return
	}
	s.lastState = st
	chans := make([]int, len(active))
	for i, c := range active {
		chans[i] = int(c)
	}
	if st == Streaming {
		s.logger.Info("session_streaming", "reason", reason, "channels", chans)
	} else {
		s.logger.Info("session_idle", "reason", reason)
	}
}

// Run polls until ctx is cancelled or the transport fails for good.
// Transient transport errors are logged and retried with exponential backoff.
func (s *Session) Run(ctx context.Context) error {
	chans := s.reg.Channels()
	ids := make([]int, len(chans))
	for i, c := range chans {
		ids[i] = int(c)
	}
	s.logger.Info("session_start", "device", s.profile.DeviceName, "channels", ids, "commands", s.disp.Commands(), "buffer", s.asm.Cap(), "heartbeat_timeout", s.profile.HeartbeatTimeout)
	defer s.logger.Info("session_end")
	backoff := backoffMin
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := s.poll()
		if err == nil {
			backoff = backoffMin
			if n == 0 {
				time.Sleep(idleWait)
			}
			continue
		}
		if ctx.Err() != nil { // shutting down
			return nil
		}
		if isFatal(err) {
			s.logger.Error("transport_lost", "error", err)
			return err
		}
		metrics.IncError(mapErrToMetric(err))
		s.logger.Warn("poll_error", "error", err, "backoff", backoff)
		sleepFn(backoff)
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}
