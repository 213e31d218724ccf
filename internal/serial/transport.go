package serial

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

// Transport adapts a Port to protocol.Transport.
type Transport struct {
	port Port
}

var _ protocol.Transport = (*Transport)(nil)

func NewTransport(p Port) *Transport { return &Transport{port: p} }

// Receive reads whatever arrives within the port's read timeout. A timed
// out read (reported by the OS layer as io.EOF with 0 bytes) is not an error.
func (t *Transport) Receive(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := t.port.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// Send writes p completely, retrying short writes.
func (t *Transport) Send(p []byte) error {
	for len(p) > 0 {
		n, err := t.port.Write(p)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

func (t *Transport) Close() error { return t.port.Close() }
