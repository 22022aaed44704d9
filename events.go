package chromelens

import (
	"context"

	"github.com/chromedp/cdproto"
)

// CDPEvent is a raw CDP event captured verbatim, for collaborators that
// want the unparsed wire message. Nothing in this package constructs one.
type CDPEvent struct {
	id  string
	msg *cdproto.Message
}

// ID returns the target ID of the event.
func (e *CDPEvent) ID() string {
	return e.id
}

// Message returns the message associated with the event.
func (e *CDPEvent) Message() *cdproto.Message {
	return e.msg
}

// cancelableListener is a one-shot or long-lived callback registered
// against a Target's event stream. It is dropped the next time the
// dispatch loop sees its context done, so registering with a short-lived
// context is how callers implement "notify me once".
type cancelableListener struct {
	ctx context.Context
	fn  func(ev interface{})
}
