package chromelens

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/emulation"
)

// Clock is a per-context virtual time control, backed by
// Emulation.setVirtualTimePolicy. It lets tests make deterministic
// timeout-based assertions without sleeping wall-clock time.
type Clock struct{}

// Clock returns the virtual time control handle for c. The handle is
// stateless; every call issues a fresh Emulation.setVirtualTimePolicy
// command against whatever target is current on the context passed to its
// methods.
func (c *Context) Clock() *Clock {
	if c.clock == nil {
		c.clock = &Clock{}
	}
	return c.clock
}

// Pause freezes virtual time: timers stop firing until Resume or Advance is
// called.
func (cl *Clock) Pause(ctx context.Context) error {
	_, err := emulation.SetVirtualTimePolicy(emulation.VirtualTimePolicyPause).Do(ctx)
	return err
}

// Resume lets virtual time advance freely again, firing any timers as it
// goes.
func (cl *Clock) Resume(ctx context.Context) error {
	_, err := emulation.SetVirtualTimePolicy(emulation.VirtualTimePolicyAdvance).Do(ctx)
	return err
}

// Advance moves virtual time forward by d, firing any timers scheduled to
// run during that window, then returns to a paused state.
func (cl *Clock) Advance(ctx context.Context, d time.Duration) error {
	budget := float64(d.Milliseconds())
	_, err := emulation.SetVirtualTimePolicy(emulation.VirtualTimePolicyPauseIfNetworkFetchesPending).
		WithBudget(budget).
		Do(ctx)
	return err
}
