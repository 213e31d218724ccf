package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/sensor-streamer/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "sensor-streamer")
	logging.Set(l)
	return l
}
