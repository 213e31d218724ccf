package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kstaniek/sensor-streamer/internal/tcplink"
)

// initTCPBackend starts the listener in the background. onFatal is called
// if the listener fails; the session keeps polling an empty link until then.
func initTCPBackend(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup, onFatal func(error)) (*backend, error) {
	link := tcplink.New(
		tcplink.WithListenAddr(cfg.listenAddr),
		tcplink.WithReadTimeout(tcpReadTimeout),
		tcplink.WithWriteTimeout(tcpWriteTimeout),
		tcplink.WithLogger(l),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Serve(ctx); err != nil {
			l.Error("tcp_listen_error", "error", err)
			if onFatal != nil {
				onFatal(err)
			}
		}
	}()
	return &backend{
		name: "tcp",
		t:    link,
		link: link,
		ready: func() bool {
			select {
			case <-link.Ready():
				return true
			default:
				return false
			}
		},
		cleanup: func() {},
	}, nil
}
