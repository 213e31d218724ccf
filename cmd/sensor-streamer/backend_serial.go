package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/sensor-streamer/internal/serial"
)

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

func initSerialBackend(cfg *appConfig, l *slog.Logger) (*backend, error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return nil, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud, "read_timeout", cfg.serialReadTO)
	t := serial.NewTransport(sp)
	return &backend{
		name:  "serial",
		t:     t,
		ready: func() bool { return true },
		cleanup: func() {
			_ = t.Close()
			l.Info("serial_closed", "device", cfg.serialDev)
		},
	}, nil
}
