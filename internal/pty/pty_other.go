//go:build !linux

package pty

import "time"

// Device is unavailable on this platform.
type Device struct{}

func Open(link string, readTimeout time.Duration) (*Device, error) { return nil, ErrUnsupported }

func (d *Device) SlavePath() string            { return "" }
func (d *Device) Link() string                 { return "" }
func (d *Device) Receive(p []byte) (int, error) { return 0, ErrUnsupported }
func (d *Device) Send(p []byte) error           { return ErrUnsupported }
func (d *Device) Close() error                  { return nil }
