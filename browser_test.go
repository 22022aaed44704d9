package chromelens

import (
	"testing"

	"github.com/chromedp/cdproto"
)

func TestFailPendingOnExitResolvesOutstandingWaiters(t *testing.T) {
	b := &Browser{pending: make(map[int64]chan *cdproto.Message)}

	ch1 := make(chan *cdproto.Message, 1)
	ch2 := make(chan *cdproto.Message, 1)
	b.pending[1] = ch1
	b.pending[2] = ch2

	b.failPendingOnExit()

	for id, ch := range map[int64]chan *cdproto.Message{1: ch1, 2: ch2} {
		msg, ok := <-ch
		if ok || msg != nil {
			t.Fatalf("expected waiter %d's channel to be closed with no value, got msg=%v ok=%v", id, msg, ok)
		}
	}
	if len(b.pending) != 0 {
		t.Fatalf("expected the pending table to be emptied, got %d entries", len(b.pending))
	}
}

type nopTransport struct{}

func (nopTransport) Read(*cdproto.Message) error  { return nil }
func (nopTransport) Write(*cdproto.Message) error { return nil }
func (nopTransport) Close() error                 { return nil }

func TestBrowserStatsReportsFalseForANonConnTransport(t *testing.T) {
	b := &Browser{conn: nopTransport{}}
	if _, _, ok := b.Stats(); ok {
		t.Fatal("expected Stats to report ok=false for a non-*Conn Transport")
	}
}

func TestBrowserStatsPassesThroughAConn(t *testing.T) {
	c := &Conn{}
	c.messagesRead = 3
	c.bytesRead = 42
	b := &Browser{conn: c}

	messages, byteCount, ok := b.Stats()
	if !ok {
		t.Fatal("expected Stats to report ok=true for a *Conn Transport")
	}
	if messages != 3 || byteCount != 42 {
		t.Fatalf("Stats() = (%d, %d), want (3, 42)", messages, byteCount)
	}
}

func TestEnqueueOrDropOldestFillsAnEmptyQueueWithoutDropping(t *testing.T) {
	ch := make(chan *cdproto.Message, 2)
	m1 := &cdproto.Message{ID: 1}
	m2 := &cdproto.Message{ID: 2}

	if !enqueueOrDropOldest(ch, m1) {
		t.Fatal("expected the first enqueue into an empty queue to report no drop")
	}
	if !enqueueOrDropOldest(ch, m2) {
		t.Fatal("expected the second enqueue to still fit without a drop")
	}
	if got := <-ch; got != m1 {
		t.Fatalf("expected to read m1 first, got %v", got)
	}
	if got := <-ch; got != m2 {
		t.Fatalf("expected to read m2 second, got %v", got)
	}
}

func TestEnqueueOrDropOldestDropsOldestWhenFull(t *testing.T) {
	ch := make(chan *cdproto.Message, 1)
	oldest := &cdproto.Message{ID: 1}
	newest := &cdproto.Message{ID: 2}

	if !enqueueOrDropOldest(ch, oldest) {
		t.Fatal("expected the first enqueue to report no drop")
	}
	if enqueueOrDropOldest(ch, newest) {
		t.Fatal("expected the second enqueue to report a drop, the queue was full")
	}

	got := <-ch
	if got != newest {
		t.Fatalf("expected the oldest message to have been evicted in favor of the newest, got %v", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected the queue to be drained after one read, got extra message %v", extra)
	default:
	}
}
