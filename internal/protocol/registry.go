package protocol

import "sync/atomic"

// Registry holds the subscribed flag of every configured channel.
//
// The poll loop is the only writer; sensor goroutines read concurrently.
// Each flag is a single atomic word and writers always store the whole
// flag, so readers never observe a torn value. The channel set is fixed at
// construction, which keeps the map itself read-only and lock-free.
type Registry struct {
	order []Channel
	flags map[Channel]*atomic.Bool
}

// NewRegistry creates a registry for ids with every channel inactive.
// Duplicate ids are collapsed.
func NewRegistry(ids ...Channel) *Registry {
	r := &Registry{flags: make(map[Channel]*atomic.Bool, len(ids))}
	for _, id := range ids {
		if _, ok := r.flags[id]; ok {
			continue
		}
		r.flags[id] = new(atomic.Bool)
		r.order = append(r.order, id)
	}
	return r
}

// SetActive stores the subscribed flag for ch. Unknown channels return
// ErrUnknownChannel.
func (r *Registry) SetActive(ch Channel, active bool) error {
	f, ok := r.flags[ch]
	if !ok {
		return ErrUnknownChannel
	}
	f.Store(active)
	return nil
}

// IsActive reports whether ch is subscribed. Unknown channels are never active.
func (r *Registry) IsActive(ch Channel) bool {
	f, ok := r.flags[ch]
	return ok && f.Load()
}

// ClearAll unsubscribes every channel.
func (r *Registry) ClearAll() {
	for _, id := range r.order {
		r.flags[id].Store(false)
	}
}

func (r *Registry) AnyActive() bool {
	for _, id := range r.order {
		if r.flags[id].Load() {
			return true
		}
	}
	return false
}

// Active lists subscribed channels in configuration order.
func (r *Registry) Active() []Channel {
	var out []Channel
	for _, id := range r.order {
		if r.flags[id].Load() {
			out = append(out, id)
		}
	}
	return out
}

// Channels lists every configured channel in configuration order.
func (r *Registry) Channels() []Channel { return append([]Channel(nil), r.order...) }
