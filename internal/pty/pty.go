// Package pty exposes the device over a pseudo-terminal so host tools can
// open it like a USB-CDC serial port.
package pty

import "errors"

// ErrUnsupported is returned on platforms without a pty implementation.
var ErrUnsupported = errors.New("pty: unsupported platform")

const defaultReadTimeout = 10 // ms
