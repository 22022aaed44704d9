package chromelens

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
)

// Delivery is the envelope a Subscription receives on every event. Lagged
// counts how many earlier events were dropped to make room for this one,
// because the subscriber's channel buffer was full and the dispatcher
// never blocks waiting on a slow reader. A well-behaved subscriber that
// drains promptly will never see Lagged > 0.
type Delivery struct {
	Method cdproto.MethodType
	Event  interface{}
	Lagged int
}

// Subscription is a bounded, drop-oldest view of a Target's event stream.
type Subscription struct {
	ch     chan Delivery
	cancel context.CancelFunc
}

// C returns the channel to receive deliveries on.
func (s *Subscription) C() <-chan Delivery {
	return s.ch
}

// Close stops the subscription and releases it from the Target's fan-out
// list. It is safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

// subscription is the dispatcher-side bookkeeping for one Subscription.
type subscription struct {
	mu     sync.Mutex
	ch     chan Delivery
	lagged int
}

func (s *subscription) deliver(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Lagged = s.lagged
	select {
	case s.ch <- d:
		s.lagged = 0
		return
	default:
	}

	// Buffer full: drop the oldest queued delivery to make room, and
	// remember that we lost one so the next successful delivery reports it.
	select {
	case <-s.ch:
	default:
	}
	s.lagged++
	d.Lagged = s.lagged
	select {
	case s.ch <- d:
		s.lagged = 0
	default:
		// Another goroutine raced us and refilled the buffer; count this
		// event as lost too and let the next deliver call report it.
	}
}

// Subscribe registers a new bounded subscription to every event seen by
// this Target (across all CDP domains). buf is the channel's capacity;
// pass a small number (a handful of events) for handlers that must never
// see stale data, or a larger one for passive consumers that can tolerate
// brief bursts.
func (t *Target) Subscribe(ctx context.Context, buf int) *Subscription {
	if buf < 1 {
		buf = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{ch: make(chan Delivery, buf)}

	t.subsMu.Lock()
	t.subs = append(t.subs, sub)
	t.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		t.subsMu.Lock()
		for i, s := range t.subs {
			if s == sub {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
		t.subsMu.Unlock()
	}()

	return &Subscription{ch: sub.ch, cancel: cancel}
}

// broadcast fans ev out to every live subscription. Called from the
// Target's single event-dispatch goroutine, so subs itself only needs
// protection from concurrent Subscribe/Close calls, not from broadcast
// re-entrancy.
func (t *Target) broadcast(method cdproto.MethodType, ev interface{}) {
	t.subsMu.Lock()
	subs := make([]*subscription, len(t.subs))
	copy(subs, t.subs)
	t.subsMu.Unlock()

	d := Delivery{Method: method, Event: ev}
	for _, s := range subs {
		s.deliver(d)
	}
}
