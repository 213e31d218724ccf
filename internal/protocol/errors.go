package protocol

import (
	"errors"
	"net"
	"os"

	"github.com/kstaniek/sensor-streamer/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrBufferFull          = errors.New("line buffer full")
	ErrCommandOverflow     = errors.New("too long command")
	ErrUnrecognizedCommand = errors.New("unrecognized command")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrInvalidProfile      = errors.New("invalid profile")
	ErrTransportRead       = errors.New("transport_read")
	ErrTransportWrite      = errors.New("transport_write")
	// ErrTransportClosed is wrapped by transports whose link is gone for good.
	ErrTransportClosed = errors.New("transport closed")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrTransportRead):
		return metrics.ErrTransportRead
	case errors.Is(err, ErrTransportWrite):
		return metrics.ErrTransportWrite
	default:
		return "other"
	}
}

// isFatal reports whether a poll error means the transport cannot recover.
func isFatal(err error) bool {
	var perr *os.PathError
	switch {
	case errors.As(err, &perr):
		return true // device removed
	case errors.Is(err, ErrTransportClosed), errors.Is(err, net.ErrClosed):
		return true
	default:
		return false
	}
}
