//go:build linux

package pty

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

// Device is the master side of a pty pair. The slave stays open for the
// lifetime of the device so a host closing and reopening the port does not
// turn master reads into EIO.
type Device struct {
	master    int
	slave     int
	slavePath string
	link      string
	timeoutMs int
	closed    atomic.Bool
}

var _ protocol.Transport = (*Device)(nil)

// Open allocates a pty pair in raw mode. When link is non-empty a symlink to
// the slave path is created there, replacing an existing symlink.
func Open(link string, readTimeout time.Duration) (*Device, error) {
	m, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	if err := unix.IoctlSetPointerInt(m, unix.TIOCSPTLCK, 0); err != nil {
		_ = unix.Close(m)
		return nil, fmt.Errorf("unlock pty: %w", err)
	}
	n, err := unix.IoctlGetInt(m, unix.TIOCGPTN)
	if err != nil {
		_ = unix.Close(m)
		return nil, fmt.Errorf("pty number: %w", err)
	}
	path := fmt.Sprintf("/dev/pts/%d", n)
	s, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(m)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := makeRaw(s); err != nil {
		_ = unix.Close(s)
		_ = unix.Close(m)
		return nil, fmt.Errorf("raw mode %s: %w", path, err)
	}
	d := &Device{master: m, slave: s, slavePath: path, timeoutMs: defaultReadTimeout}
	if readTimeout > 0 {
		d.timeoutMs = int(readTimeout / time.Millisecond)
		if d.timeoutMs == 0 {
			d.timeoutMs = 1
		}
	}
	if link != "" {
		if err := replaceSymlink(path, link); err != nil {
			_ = d.Close()
			return nil, err
		}
		d.link = link
	}
	return d, nil
}

// makeRaw applies cfmakeraw(3) settings.
func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func replaceSymlink(target, link string) error {
	if fi, err := os.Lstat(link); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("pty link %s exists and is not a symlink", link)
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("pty link: %w", err)
		}
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("pty link: %w", err)
	}
	return nil
}

// SlavePath is the /dev/pts node host tools should open.
func (d *Device) SlavePath() string { return d.slavePath }

// Link returns the symlink path, or "" when none was requested.
func (d *Device) Link() string { return d.link }

// Receive waits up to the read timeout for input.
func (d *Device) Receive(p []byte) (int, error) {
	if d.closed.Load() {
		return 0, protocol.ErrTransportClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	fds := []unix.PollFd{{Fd: int32(d.master), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, d.timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("pty poll: %w", err)
	}
	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return 0, nil
	}
	r, err := unix.Read(d.master, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		if d.closed.Load() {
			return 0, protocol.ErrTransportClosed
		}
		return 0, fmt.Errorf("pty read: %w", err)
	}
	return r, nil
}

// Send writes all of p to the master.
func (d *Device) Send(p []byte) error {
	for len(p) > 0 {
		if d.closed.Load() {
			return protocol.ErrTransportClosed
		}
		n, err := unix.Write(d.master, p)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return fmt.Errorf("pty write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Close releases both ends and removes the symlink.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.link != "" {
		_ = os.Remove(d.link)
	}
	err := unix.Close(d.master)
	if serr := unix.Close(d.slave); err == nil {
		err = serr
	}
	return err
}
