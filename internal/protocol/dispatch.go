package protocol

import (
	"fmt"

	"github.com/kstaniek/sensor-streamer/internal/metrics"
)

// Response is what the dispatcher asks the session to send back.
type Response int

const (
	RespNone Response = iota
	RespOK
	RespUnrecognized
	RespConfig
)

func (r Response) String() string {
	switch r {
	case RespNone:
		return "none"
	case RespOK:
		return "ok"
	case RespUnrecognized:
		return "unrecognized"
	case RespConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Result of dispatching one line. Command is a stable metrics label.
type Result struct {
	Response Response
	Command  string
	Channel  Channel // set for per-channel subscribe/unsubscribe
	Err      error   // wraps ErrUnrecognizedCommand for unknown lines
}

type action struct {
	result Result
	apply  func(*Registry)
}

// Dispatcher matches complete lines against the command grammar. Matching is
// exact and case-sensitive; there is no tokenizing or prefix matching.
type Dispatcher struct {
	reg   *Registry
	table map[string]action
}

// NewDispatcher builds the grammar from the channel list: one subscribe
// command per declared rate and one unsubscribe command per channel, plus
// the fixed commands.
func NewDispatcher(reg *Registry, channels []ChannelSpec) *Dispatcher {
	d := &Dispatcher{reg: reg, table: make(map[string]action)}
	clearAll := func(r *Registry) { r.ClearAll() }
	d.table["config?"] = action{Result{Response: RespConfig, Command: metrics.CmdConfig}, clearAll}
	d.table["unsubscribe"] = action{Result{Response: RespOK, Command: metrics.CmdUnsubscribeAll}, clearAll}
	d.table[""] = action{result: Result{Response: RespNone, Command: metrics.CmdHeartbeat}}
	d.table["heartbeat"] = action{result: Result{Response: RespNone, Command: metrics.CmdHeartbeat}}
	for _, c := range channels {
		id := c.ID
		for _, rate := range c.Rates {
			d.table[fmt.Sprintf("subscribe,%d,%d", id, rate)] = action{
				result: Result{Response: RespNone, Command: metrics.CmdSubscribe, Channel: id},
				apply:  func(r *Registry) { _ = r.SetActive(id, true) },
			}
		}
		d.table[fmt.Sprintf("unsubscribe,%d", id)] = action{
			result: Result{Response: RespOK, Command: metrics.CmdUnsubscribe, Channel: id},
			apply:  func(r *Registry) { _ = r.SetActive(id, false) },
		}
	}
	return d
}

// Dispatch applies the effect of line to the registry and returns the
// response to emit. Unknown lines change nothing.
func (d *Dispatcher) Dispatch(line string) Result {
	a, ok := d.table[line]
	if !ok {
		return Result{
			Response: RespUnrecognized,
			Command:  metrics.CmdUnrecognized,
			Err:      fmt.Errorf("%w: %q", ErrUnrecognizedCommand, line),
		}
	}
	if a.apply != nil {
		a.apply(d.reg)
	}
	return a.result
}

// Commands returns the number of grammar entries.
func (d *Dispatcher) Commands() int { return len(d.table) }
