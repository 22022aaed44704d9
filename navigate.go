package chromelens

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
)

// WaitUntil names the lifecycle point Navigate waits for before returning.
type WaitUntil int

// WaitUntil values, in the order a navigation reaches them.
const (
	WaitUntilCommit WaitUntil = iota
	WaitUntilDOMContentLoaded
	WaitUntilLoad
	WaitUntilNetworkIdle
)

// networkIdleWindow is how long zero in-flight requests must be observed
// after load before a networkidle wait is satisfied. The spec leaves this
// threshold to the implementer; 500ms matches Playwright's.
const networkIdleWindow = 500 * time.Millisecond

// NavigationResult summarizes a completed Navigate call.
type NavigationResult struct {
	URL     string
	FrameID cdp.FrameID
	Status  int64
	Headers map[string]interface{}
}

// NavigateOptions configures Navigate.
type NavigateOptions struct {
	WaitUntil WaitUntil
	Timeout   time.Duration
	Referer   string
}

// DefaultNavigateTimeout is applied when NavigateOptions.Timeout is zero.
const DefaultNavigateTimeout = 30 * time.Second

// Navigate drives the navigation waiter described in the action engine:
// it subscribes to the target's event stream before sending Page.navigate,
// so a fast navigation's commit event can never be missed, then runs a
// small per-frame state machine (AwaitCommit -> Committed -> satisfied)
// that advances on frameNavigated and the lifecycle event named by
// opts.WaitUntil.
func Navigate(url string, opts NavigateOptions) Action {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNavigateTimeout
	}
	return ActionFunc(func(ctx context.Context) error {
		t, _ := cdp.ExecutorFromContext(ctx).(*Target)
		if t == nil {
			return ErrInvalidTarget
		}

		ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		sub := t.Subscribe(ctx, 256)
		defer sub.Close()

		nav := page.Navigate(url)
		if opts.Referer != "" {
			nav = nav.WithReferrer(opts.Referer)
		}
		frameID, _, errText, err := nav.Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return &NetworkError{Text: errText}
		}

		res := &NavigationResult{FrameID: frameID, Headers: map[string]interface{}{}}

		const (
			stateAwaitCommit = iota
			stateCommitted
			stateDone
		)
		state := stateAwaitCommit
		var networkIdleSince time.Time
		var inFlight = map[network.RequestID]struct{}{}
		loadSeen := false

		satisfied := func() bool {
			switch opts.WaitUntil {
			case WaitUntilCommit:
				return state >= stateCommitted
			case WaitUntilNetworkIdle:
				if !loadSeen || len(inFlight) != 0 {
					return false
				}
				return !networkIdleSince.IsZero() && time.Since(networkIdleSince) >= networkIdleWindow
			default:
				return state == stateDone
			}
		}

		var idleTimer <-chan time.Time
		for {
			if satisfied() {
				return nil
			}
			if idleTimer == nil && opts.WaitUntil == WaitUntilNetworkIdle && loadSeen && len(inFlight) == 0 {
				if networkIdleSince.IsZero() {
					networkIdleSince = time.Now()
				}
				idleTimer = time.After(networkIdleWindow)
			}

			select {
			case <-ctx.Done():
				return &TimeoutError{Op: "navigate", Timeout: opts.Timeout}

			case <-idleTimer:
				if satisfied() {
					return nil
				}
				idleTimer = nil

			case d := <-sub.C():
				switch ev := d.Event.(type) {
				case *page.EventFrameNavigated:
					if ev.Frame.ID == frameID && state == stateAwaitCommit {
						state = stateCommitted
						res.URL = ev.Frame.URL
					}

				case *page.EventLifecycleEvent:
					if ev.FrameID != frameID {
						continue
					}
					switch ev.Name {
					case "DOMContentLoaded":
						if opts.WaitUntil == WaitUntilDOMContentLoaded && state >= stateCommitted {
							state = stateDone
						}
					case "load":
						loadSeen = true
						if opts.WaitUntil == WaitUntilLoad && state >= stateCommitted {
							state = stateDone
						}
					}

				case *network.EventRequestWillBeSent:
					if ev.LoaderID == page.LoaderID(frameID) || ev.FrameID == frameID {
						inFlight[ev.RequestID] = struct{}{}
						networkIdleSince = time.Time{}
						idleTimer = nil
					}

				case *network.EventResponseReceived:
					if ev.FrameID == frameID && ev.LoaderID == page.LoaderID(frameID) {
						res.Status = ev.Response.Status
					}
					delete(inFlight, ev.RequestID)
					if len(inFlight) == 0 {
						networkIdleSince = time.Time{}
						idleTimer = nil
					}

				case *network.EventLoadingFinished:
					delete(inFlight, ev.RequestID)

				case *network.EventLoadingFailed:
					delete(inFlight, ev.RequestID)
				}
			}
		}
	})
}
