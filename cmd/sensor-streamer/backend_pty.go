package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/sensor-streamer/internal/pty"
)

var openPTY = pty.Open

func initPTYBackend(cfg *appConfig, l *slog.Logger) (*backend, error) {
	d, err := openPTY(cfg.ptyLink, cfg.serialReadTO)
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	l.Info("pty_open", "slave", d.SlavePath(), "link", d.Link())
	return &backend{
		name:  "pty",
		t:     d,
		ready: func() bool { return true },
		cleanup: func() {
			_ = d.Close()
			l.Info("pty_closed", "slave", d.SlavePath())
		},
	}, nil
}
