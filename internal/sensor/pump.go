package sensor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/sensor-streamer/internal/logging"
	"github.com/kstaniek/sensor-streamer/internal/metrics"
	"github.com/kstaniek/sensor-streamer/internal/protocol"
	"github.com/kstaniek/sensor-streamer/internal/transport"
)

var ErrQueueFull = errors.New("sensor queue full")

// Sink is the frame encoder side of a protocol session.
type Sink interface {
	IsActive(protocol.Channel) bool
	Send(protocol.Channel, []byte) error
}

const defaultQueueSize = 16

// Pump samples every source on its own ticker while its channel is
// subscribed and hands payloads to the sink through a single writer.
type Pump struct {
	sink    Sink
	sources []Source
	queue   int
	logger  *slog.Logger
}

type PumpOption func(*Pump)

func WithQueueSize(n int) PumpOption {
	return func(p *Pump) {
		if n > 0 {
			p.queue = n
		}
	}
}

func WithLogger(l *slog.Logger) PumpOption {
	return func(p *Pump) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPump(sink Sink, sources []Source, opts ...PumpOption) *Pump {
	p := &Pump{sink: sink, sources: sources, queue: defaultQueueSize, logger: logging.L()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run blocks until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	tx := transport.NewAsyncTx(ctx, p.queue, func(pk transport.Packet) error {
		return p.sink.Send(protocol.Channel(pk.Channel), pk.Payload)
	}, transport.Hooks{
		OnError: func(pk transport.Packet, err error) {
			metrics.IncError(metrics.ErrSensorSend)
			p.logger.Debug("sensor_send_error", "channel", pk.Channel, "error", err)
		},
		OnDrop: func(pk transport.Packet) error {
			metrics.IncSensorDrop()
			metrics.IncError(metrics.ErrSensorOverflow)
			return ErrQueueFull
		},
	})
	defer tx.Close()

	var wg sync.WaitGroup
	for _, src := range p.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			p.sample(ctx, src, tx)
		}(src)
	}
	p.logger.Info("sensors_started", "sources", len(p.sources), "queue", p.queue)
	wg.Wait()
	p.logger.Info("sensors_stopped")
}

func (p *Pump) sample(ctx context.Context, src Source, tx transport.PacketSink) {
	t := time.NewTicker(src.Interval())
	defer t.Stop()
	ch := src.Channel()
	for {
		select {
		case <-t.C:
			if !p.sink.IsActive(ch) {
				continue
			}
			// Copy: the source reuses its buffer for the next frame.
			payload := append([]byte(nil), src.Next()...)
			if err := tx.Enqueue(transport.Packet{Channel: uint8(ch), Payload: payload}); errors.Is(err, ErrQueueFull) {
				p.logger.Debug("sensor_drop", "channel", int(ch))
			}
		case <-ctx.Done():
			return
		}
	}
}
