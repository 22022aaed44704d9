package chromelens

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

var emptyObj = easyjson.RawMessage(`{}`)

// Browser is the high-level Chrome DevTools Protocol browser manager,
// handling the single WebSocket connection to a browser, the command/
// response correlation table, and the set of attached Targets.
type Browser struct {
	pagesMu sync.RWMutex
	pages   map[target.SessionID]*Target

	conn Transport

	// next is the next message id, shared by the browser itself and
	// every attached Target so that a single correlation table can key
	// purely off of the message id.
	next int64

	pendingMu sync.Mutex
	pending   map[int64]chan *cdproto.Message

	// cmdQueue serializes writes to conn; a single writer goroutine
	// drains it, since the websocket connection is not safe for
	// concurrent writers.
	cmdQueue chan *cdproto.Message

	// qres carries incoming command responses (events are dispatched
	// directly to the owning Target instead).
	qres chan *cdproto.Message

	// LostConnection is closed when the underlying websocket connection
	// is lost, so that an owning Allocator can react (e.g. kill the
	// child process it spawned).
	LostConnection chan struct{}

	// closingGracefully is closed by Shutdown just before it sends
	// Browser.close, so that a lost-connection watcher can tell a requested close
	// apart from an unexpected disconnect.
	closingGracefully chan struct{}

	// process and userDataDir are populated by ExecAllocator.Allocate
	// for browsers it spawned locally.
	process     *os.Process
	userDataDir string

	// logging funcs
	logf func(string, ...interface{})
	errf func(string, ...interface{})
}

// NewBrowser creates a new browser, dialing urlstr (a CDP websocket debugger
// URL) and starting the dispatch loop.
func NewBrowser(ctx context.Context, urlstr string, opts ...BrowserOption) (*Browser, error) {
	conn, err := DialContext(ctx, urlstr)
	if err != nil {
		return nil, err
	}

	b := &Browser{
		conn:              conn,
		pages:             make(map[target.SessionID]*Target, 1024),
		pending:           make(map[int64]chan *cdproto.Message),
		cmdQueue:          make(chan *cdproto.Message),
		qres:              make(chan *cdproto.Message),
		logf:              Logger.Printf,
		LostConnection:    make(chan struct{}),
		closingGracefully: make(chan struct{}),
	}

	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, err
		}
	}

	if b.errf == nil {
		b.errf = func(s string, v ...interface{}) { b.logf("ERROR: "+s, v...) }
	}

	go b.run(ctx)

	return b, nil
}

// Shutdown asks the browser to close gracefully via Browser.close.
func (b *Browser) Shutdown() error {
	if b.conn != nil {
		close(b.closingGracefully)
		if err := b.send(cdproto.CommandBrowserClose, nil); err != nil {
			b.errf("could not close browser: %v", err)
		}
		return b.conn.Close()
	}
	return nil
}

// Stats reports how many messages and raw bytes the underlying transport has
// read so far. It returns false if the transport isn't a *Conn (for example,
// a custom Transport wired in for testing).
func (b *Browser) Stats() (messages, byteCount uint64, ok bool) {
	c, ok := b.conn.(*Conn)
	if !ok {
		return 0, 0, false
	}
	messages, byteCount = c.Stats()
	return messages, byteCount, true
}

// send writes the supplied message and params without waiting for a reply.
func (b *Browser) send(method cdproto.MethodType, params easyjson.RawMessage) error {
	msg := &cdproto.Message{
		ID:     atomic.AddInt64(&b.next, 1),
		Method: method,
		Params: params,
	}
	return b.conn.Write(msg)
}

// executorForTarget returns (creating if necessary) the Target tracking
// sessionID, starting its event dispatch goroutine on first use.
func (b *Browser) executorForTarget(ctx context.Context, sessionID target.SessionID) *Target {
	if sessionID == "" {
		panic("empty session ID")
	}
	b.pagesMu.Lock()
	defer b.pagesMu.Unlock()
	if t, ok := b.pages[sessionID]; ok {
		return t
	}
	t := &Target{
		browser:   b,
		SessionID: sessionID,

		messageQueue: make(chan *cdproto.Message, 1024),
		frames:       make(map[cdp.FrameID]*frameNode),
		execContexts: make(map[cdp.FrameID]runtime.ExecutionContextID),

		logf: b.logf,
		errf: b.errf,
	}
	go t.run(ctx)
	b.pages[sessionID] = t
	return t
}

// sendAwait enqueues cmd for writing and blocks until its matching response
// arrives, keyed purely by message id (the id space is shared by the
// browser and every attached Target via the atomic next counter). It is
// the single low-level correlation path used by both Browser.Execute and
// Target.Execute.
func (b *Browser) sendAwait(ctx context.Context, cmd *cdproto.Message) (*cdproto.Message, error) {
	ch := make(chan *cdproto.Message, 1)
	b.pendingMu.Lock()
	b.pending[cmd.ID] = ch
	b.pendingMu.Unlock()

	select {
	case b.cmdQueue <- cmd:
	case <-ctx.Done():
		b.pendingMu.Lock()
		delete(b.pending, cmd.ID)
		b.pendingMu.Unlock()
		return nil, ctx.Err()
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execute satisfies the cdp.Executor interface against the browser itself
// (as opposed to a specific target session), used for Target.* commands.
func (b *Browser) Execute(ctx context.Context, method string, params json.Marshaler, res json.Unmarshaler) error {
	paramsMsg := emptyObj
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return err
		}
		paramsMsg = easyjson.RawMessage(buf)
	}
	cmd := &cdproto.Message{
		ID:     atomic.AddInt64(&b.next, 1),
		Method: cdproto.MethodType(method),
		Params: paramsMsg,
	}

	msg, err := b.sendAwait(ctx, cmd)
	if err != nil {
		return err
	}
	switch {
	case msg == nil:
		return ErrChannelClosed
	case msg.Error != nil:
		return &ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
	case res != nil:
		return json.Unmarshal(msg.Result, res)
	}
	return nil
}

// run is the browser's single reader/dispatcher goroutine: it demultiplexes
// the one websocket connection into per-session Target event queues and a
// shared command/response correlation table, and owns the sole writer to
// the connection.
func (b *Browser) run(ctx context.Context) {
	defer b.conn.Close()
	defer close(b.LostConnection)
	defer b.failPendingOnExit()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// single writer
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.cmdQueue:
				if err := b.conn.Write(msg); err != nil {
					b.errf("%s", err)
				}
			}
		}
	}()

	// single reader, demuxing by session
	go func() {
		defer cancel()
		for {
			msg := new(cdproto.Message)
			if err := b.conn.Read(msg); err != nil {
				return
			}
			// Every attached session uses Target.attachToTarget(flatten=true),
			// so sessionId rides directly on the top-level message; the
			// wrapped Target.sendMessageToTarget/receivedMessageFromTarget
			// envelope is only handled for a session attached elsewhere
			// without flatten (e.g. another tool sharing the browser).
			sessionID := msg.SessionID
			if msg.Method == cdproto.EventTargetReceivedMessageFromTarget {
				recv := new(target.EventReceivedMessageFromTarget)
				if err := json.Unmarshal(msg.Params, recv); err != nil {
					b.errf("%s", err)
					continue
				}
				sessionID = recv.SessionID
				msg = new(cdproto.Message)
				if err := json.Unmarshal([]byte(recv.Message), msg); err != nil {
					b.errf("%s", err)
					continue
				}
			}

			switch {
			case msg.Method != "":
				if sessionID == "" {
					continue
				}
				b.pagesMu.RLock()
				page, ok := b.pages[sessionID]
				b.pagesMu.RUnlock()
				if !ok {
					b.errf("unknown session ID %q", sessionID)
					continue
				}
				// A wedged target (one whose dispatch goroutine stopped
				// draining messageQueue) must never block this shared
				// reader: every other session rides the same websocket
				// connection. So push with the same drop-oldest policy
				// subscribe.go uses for slow Subscribers, rather than
				// blocking indefinitely.
				if !enqueueOrDropOldest(page.messageQueue, msg) {
					b.errf("session %s: event queue full, dropped oldest pending event", sessionID)
				}

			case msg.ID != 0:
				select {
				case b.qres <- msg:
				case <-ctx.Done():
					return
				}

			default:
				b.errf("ignoring malformed incoming message (missing id or method): %#v", msg)
			}
		}
	}()

	for {
		select {
		case res := <-b.qres:
			b.pendingMu.Lock()
			ch, ok := b.pending[res.ID]
			delete(b.pending, res.ID)
			b.pendingMu.Unlock()
			if !ok {
				b.errf("id %d not present in response map", res.ID)
				continue
			}
			ch <- res
			close(ch)

		case <-ctx.Done():
			return
		}
	}
}

// enqueueOrDropOldest pushes msg onto ch, and if ch is already full, drops
// the oldest queued message to make room rather than blocking the caller.
// It mirrors subscription.deliver's drop-oldest policy (see subscribe.go),
// applied here to the per-target raw message queue so that one stalled
// Target's dispatch goroutine cannot wedge the browser's single shared
// reader. Returns false when a message had to be dropped to make room.
func enqueueOrDropOldest(ch chan *cdproto.Message, msg *cdproto.Message) bool {
	select {
	case ch <- msg:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
		// Another goroutine refilled the buffer between our drain and our
		// send; the message is lost, same as subscription.deliver's race.
	}
	return false
}

// failPendingOnExit resolves every still-outstanding sendAwait waiter once
// the dispatch loop exits (connection lost or closed), per spec.md §4.1:
// "On read-task exit ... all waiters are resolved with ConnectionLost."
// Closing each channel without sending makes sendAwait return a nil
// message, which Browser.Execute and Target.Execute surface as
// ErrChannelClosed, rather than leaving callers blocked on a ctx
// that was never itself cancelled.
func (b *Browser) failPendingOnExit() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

// BrowserOption is a browser option.
type BrowserOption func(*Browser) error

// WithLogf is a browser option to specify a func to receive general logging.
func WithLogf(f func(string, ...interface{})) BrowserOption {
	return func(b *Browser) error {
		b.logf = f
		return nil
	}
}

// WithErrorf is a browser option to specify a func to receive error logging.
func WithErrorf(f func(string, ...interface{})) BrowserOption {
	return func(b *Browser) error {
		b.errf = f
		return nil
	}
}
