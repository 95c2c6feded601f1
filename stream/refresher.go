// Package stream turns real-time ticket events into board reloads.
package stream

import (
	"context"
	"time"
)

// Refresher coalesces reload requests. Any number of Notify calls made while
// a reload is pending or running result in a single further reload.
type Refresher struct {
	ch chan struct{}
	// Settle delays each reload so a burst of events costs one fetch.
	Settle time.Duration
}

func NewRefresher(settle time.Duration) *Refresher {
	return &Refresher{ch: make(chan struct{}, 1), Settle: settle}
}

// Notify requests a reload. It never blocks.
func (r *Refresher) Notify() {
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

// Run calls reload once per coalesced request until ctx is done.
func (r *Refresher) Run(ctx context.Context, reload func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ch:
		}
		if r.Settle > 0 {
			t := time.NewTimer(r.Settle)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		reload(ctx)
	}
}
