package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens name as an 8N1 port. readTimeout bounds how long a Read waits
// for the first byte; a Read that times out returns 0 bytes.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	return serial.OpenPort(cfg)
}
