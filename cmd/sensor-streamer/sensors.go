package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
	"github.com/kstaniek/sensor-streamer/internal/sensor"
)

// buildSources creates a simulated source for every profile channel it can.
func buildSources(p protocol.Profile, l *slog.Logger) []sensor.Source {
	var out []sensor.Source
	for _, c := range p.Channels {
		src, err := sensor.FromSpec(c)
		if err != nil {
			if errors.Is(err, sensor.ErrUnsupported) {
				l.Warn("sensor_unsupported", "channel", int(c.ID), "type", c.Type, "datatype", c.Datatype)
				continue
			}
			l.Warn("sensor_init_failed", "channel", int(c.ID), "error", err)
			continue
		}
		l.Info("sensor_ready", "channel", int(c.ID), "type", c.Type, "interval", src.Interval(), "payload", c.PayloadSize())
		out = append(out, src)
	}
	return out
}

func startSensors(ctx context.Context, cfg *appConfig, s *protocol.Session, l *slog.Logger, wg *sync.WaitGroup) {
	if !cfg.simulate {
		return
	}
	srcs := buildSources(s.Profile(), l)
	if len(srcs) == 0 {
		return
	}
	p := sensor.NewPump(s, srcs, sensor.WithQueueSize(cfg.sensorQueue), sensor.WithLogger(l))
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()
}
