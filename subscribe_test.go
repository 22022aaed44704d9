package chromelens

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
)

func TestSubscriptionDeliverDropsOldestOnOverflow(t *testing.T) {
	s := &subscription{ch: make(chan Delivery, 2)}

	s.deliver(Delivery{Method: cdproto.MethodType("A")})
	s.deliver(Delivery{Method: cdproto.MethodType("B")})
	// buffer is full; this delivery must drop the oldest ("A") rather than
	// block, and record the loss on the next delivery the consumer drains.
	s.deliver(Delivery{Method: cdproto.MethodType("C")})

	first := <-s.ch
	if first.Method != "B" {
		t.Fatalf("expected the oldest delivery (A) to have been dropped, got first=%q", first.Method)
	}
	if first.Lagged != 0 {
		t.Fatalf("delivery preceding the loss should not itself report Lagged, got %d", first.Lagged)
	}

	second := <-s.ch
	if second.Method != "C" {
		t.Fatalf("expected C as the second surviving delivery, got %q", second.Method)
	}
	if second.Lagged != 1 {
		t.Fatalf("expected Lagged=1 on the delivery following a single drop, got %d", second.Lagged)
	}
}

func TestSubscriptionDeliverResetsLaggedAfterSuccess(t *testing.T) {
	s := &subscription{ch: make(chan Delivery, 1)}

	s.deliver(Delivery{Method: cdproto.MethodType("A")})
	s.deliver(Delivery{Method: cdproto.MethodType("B")}) // drops A, lagged=1

	got := <-s.ch
	if got.Lagged != 1 {
		t.Fatalf("expected Lagged=1, got %d", got.Lagged)
	}

	s.deliver(Delivery{Method: cdproto.MethodType("C")})
	got = <-s.ch
	if got.Lagged != 0 {
		t.Fatalf("expected Lagged to reset to 0 once the buffer drains cleanly, got %d", got.Lagged)
	}
}

func TestSubscribeCloseRemovesFromFanout(t *testing.T) {
	tgt := &Target{}
	ctx := context.Background()

	sub := tgt.Subscribe(ctx, 4)
	tgt.broadcast(cdproto.MethodType("X"), nil)
	if d := <-sub.C(); d.Method != "X" {
		t.Fatalf("expected to observe the broadcast event, got %q", d.Method)
	}

	sub.Close()

	deadline := time.Now().Add(time.Second)
	for {
		tgt.subsMu.Lock()
		n := len(tgt.subs)
		tgt.subsMu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscription was not removed from the fan-out list after Close")
		}
		time.Sleep(time.Millisecond)
	}

	// broadcasting after Close must not panic nor deliver to the closed sub.
	tgt.broadcast(cdproto.MethodType("Y"), nil)
}
