package protocol

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/kstaniek/sensor-streamer/internal/logging"
)

func TestSessionLogsWrappedCommandErrors(t *testing.T) {
	var buf bytes.Buffer
	s, ft, _ := newTestSession(t, WithLogger(logging.New("text", slog.LevelDebug, &buf)))
	feed(t, s, ft, strings.Repeat("x", DefaultBufferSize))
	feed(t, s, ft, "blah\r\n")
	out := buf.String()
	if !strings.Contains(out, "command_overflow") || !strings.Contains(out, ErrCommandOverflow.Error()) {
		t.Fatalf("overflow log missing error: %s", out)
	}
	if !strings.Contains(out, "command_unrecognized") || !strings.Contains(out, ErrUnrecognizedCommand.Error()) {
		t.Fatalf("unrecognized log missing error: %s", out)
	}
}

func TestSessionStartLogsGrammar(t *testing.T) {
	var buf bytes.Buffer
	s, ft, _ := newTestSession(t, WithLogger(logging.New("text", slog.LevelInfo, &buf)))
	ft.readErr = &os.PathError{Op: "read", Path: "/dev/ttyACM0", Err: os.ErrNotExist}
	_ = s.Run(context.Background())
	out := buf.String()
	// config?, unsubscribe, empty, heartbeat, plus subscribe/unsubscribe for channels 1 and 2
	if !strings.Contains(out, "session_start") || !strings.Contains(out, "commands=8") || !strings.Contains(out, "channels=\"[1 2]\"") {
		t.Fatalf("session_start log: %s", out)
	}
}
