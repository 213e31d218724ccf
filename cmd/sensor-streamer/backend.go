package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
	"github.com/kstaniek/sensor-streamer/internal/tcplink"
)

// backend is the opened host transport plus what main needs to manage it.
type backend struct {
	name    string
	t       protocol.Transport
	link    *tcplink.Link // tcp only
	ready   func() bool
	cleanup func()
}

// initBackend opens the selected transport. It returns an error instead of
// exiting the process so the caller can shut down gracefully.
func initBackend(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup, onFatal func(error)) (*backend, error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(cfg, l)
	case "pty":
		return initPTYBackend(cfg, l)
	case "tcp":
		return initTCPBackend(ctx, cfg, l, wg, onFatal)
	default:
		return nil, fmt.Errorf("unknown backend %q (use serial|pty|tcp)", cfg.backend)
	}
}

// attachSession lets a transport clear session state when its host changes.
func (b *backend) attachSession(s *protocol.Session) {
	if b.link == nil {
		return
	}
	b.link.OnConnect(s.Reset)
	b.link.OnDisconnect(s.Reset)
}
