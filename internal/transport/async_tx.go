package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Packet is one sensor payload destined for a protocol channel.
type Packet struct {
	Channel uint8
	Payload []byte
}

// AsyncTx funnels packets through a single worker goroutine so sensor
// producers never block behind a slow host link. Enqueue is non-blocking:
// when the buffer is full, Enqueue invokes the OnDrop hook and returns its
// error.
//
// Life-cycle:
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.Enqueue(pkt)
//	a.Close()
//
// Enqueue after Close returns ErrAsyncTxClosed.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan Packet
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(Packet) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error.
	OnError func(Packet, error)
	// OnAfter is called only after a successful send.
	OnAfter func(Packet)
	// OnDrop is called when the buffer is full; its returned error is
	// returned from Enqueue. If nil, the drop is silent.
	OnDrop func(Packet) error
}

var ErrAsyncTxClosed = errors.New("async tx closed")

// NewAsyncTx starts the worker with a buffered queue of size buf.
func NewAsyncTx(parent context.Context, buf int, send func(Packet) error, hooks Hooks) *AsyncTx {
	if buf <= 0 {
		buf = 1
	}
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan Packet, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case p, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(p); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(p, err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter(p)
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Enqueue queues p or returns the drop error if the buffer is full.
func (a *AsyncTx) Enqueue(p Packet) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- p:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop(p)
		}
		return nil
	}
}

// Len reports queued packets not yet picked up by the worker.
func (a *AsyncTx) Len() int { return len(a.ch) }

// Close stops the worker and waits for it to exit. Queued packets are discarded.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
