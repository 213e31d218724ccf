package protocol

import "time"

// Monitor drops every subscription when the host has been silent for longer
// than the timeout. Any received byte counts as liveness, complete command
// or not. Owned by the poll loop.
type Monitor struct {
	reg       *Registry
	timeoutMs int64
	lastMs    int64
}

func NewMonitor(reg *Registry, timeout time.Duration) *Monitor {
	return &Monitor{reg: reg, timeoutMs: timeout.Milliseconds()}
}

// OnBytesReceived records host activity at nowMs.
func (m *Monitor) OnBytesReceived(nowMs int64) { m.lastMs = nowMs }

// LastReceiveMs is the timestamp of the most recent host activity.
func (m *Monitor) LastReceiveMs() int64 { return m.lastMs }

// CheckTimeout clears all subscriptions and returns true when something is
// subscribed and more than the timeout has passed since the last received
// byte. While idle it does nothing.
func (m *Monitor) CheckTimeout(nowMs int64) bool {
	if !m.reg.AnyActive() {
		return false
	}
	if nowMs-m.lastMs <= m.timeoutMs {
		return false
	}
	m.reg.ClearAll()
	return true
}
