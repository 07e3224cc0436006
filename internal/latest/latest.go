// Package latest implements a latest-wins guard for asynchronous handlers
// that mutate shared state.
//
// Each handler calls Begin before doing any slow work and checks IsLatest
// before committing its result. A result is committed only if no newer
// handler has begun in the meantime, regardless of which one finished first:
//
//	ticket := c.Begin()
//	profile, err := slowFetch(ctx)
//	if !c.IsLatest(ticket) {
//	    return // a newer update owns the state now
//	}
//	commit(profile)
package latest

import "sync/atomic"

// Ticket identifies one Begin call.
type Ticket uint64

// Coordinator hands out monotonically increasing tickets. The zero value is
// ready to use.
type Coordinator struct {
	seq atomic.Uint64
}

// Begin starts a new update and invalidates every earlier ticket.
func (c *Coordinator) Begin() Ticket {
	return Ticket(c.seq.Add(1))
}

// IsLatest reports whether t is still the most recent ticket.
func (c *Coordinator) IsLatest(t Ticket) bool {
	return uint64(t) == c.seq.Load()
}
