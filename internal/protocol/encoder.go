package protocol

import (
	"fmt"
	"sync"

	"github.com/kstaniek/sensor-streamer/internal/metrics"
)

// frameMarker opens every binary data frame.
const frameMarker = 'B'

// Encoder writes binary data frames: 'B', '0'+channel, payload, CR LF.
// There is no length prefix; the host derives the payload size from the
// channel's advertised shape and datatype.
type Encoder struct {
	reg *Registry
	t   Transport
	mu  *sync.Mutex // shared with the session's response writer
}

func NewEncoder(reg *Registry, t Transport, mu *sync.Mutex) *Encoder {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Encoder{reg: reg, t: t, mu: mu}
}

// Header returns the two frame header bytes for ch.
func Header(ch Channel) [2]byte { return [2]byte{frameMarker, '0' + byte(ch)} }

// Send emits one frame when ch is subscribed and is a no-op otherwise.
// The three writes happen under the write lock so no response can land in
// the middle of a frame.
func (e *Encoder) Send(ch Channel, payload []byte) error {
	// Checked outside the lock: a frame racing an unsubscribe may still go
	// out after its OK. Reads of the flag never block the poll loop.
	if !e.reg.IsActive(ch) {
		return nil
	}
	hdr := Header(ch)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.t.Send(hdr[:]); err != nil {
		return fmt.Errorf("%w: frame header: %w", ErrTransportWrite, err)
	}
	if len(payload) > 0 {
		if err := e.t.Send(payload); err != nil {
			return fmt.Errorf("%w: frame payload: %w", ErrTransportWrite, err)
		}
	}
	if err := e.t.Send(crlf[:]); err != nil {
		return fmt.Errorf("%w: frame terminator: %w", ErrTransportWrite, err)
	}
	metrics.AddTxBytes(len(hdr) + len(payload) + len(crlf))
	metrics.IncFrameSent(uint8(ch))
	return nil
}
