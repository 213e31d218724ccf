package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/sensor-streamer/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"rx_bytes", snap.RxBytes,
					"tx_bytes", snap.TxBytes,
					"commands", snap.Commands,
					"overflows", snap.Overflows,
					"unrecognized", snap.Unrecognized,
					"heartbeat_expired", snap.HeartbeatExp,
					"frames", snap.FramesSent,
					"active_channels", snap.ActiveChannels,
					"sensor_drops", snap.SensorDrops,
					"peer_rejects", snap.PeerRejects,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
