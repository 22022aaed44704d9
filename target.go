package chromelens

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mailru/easyjson"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
)

// Target manages the event stream and command correlation for a single
// attached Chrome DevTools Protocol session (one frame tree, one set of
// execution contexts).
//
// Unlike a DOM-mirroring handler, Target does not keep a live copy of the
// page's DOM tree: the locator engine re-evaluates selectors against the
// browser on every query, so Target only tracks the structural metadata
// (frame tree shape, execution context ids) needed to pick the right
// JavaScript world to evaluate in.
type Target struct {
	browser   *Browser
	SessionID target.SessionID
	TargetID  target.ID

	listenersMu sync.Mutex
	listeners   []cancelableListener

	messageQueue chan *cdproto.Message

	// frameMu protects frames, execContexts, and cur.
	frameMu      sync.RWMutex
	frames       map[cdp.FrameID]*frameNode
	execContexts map[cdp.FrameID]runtime.ExecutionContextID
	// cur is the current top level frame.
	cur cdp.FrameID

	// subs is the set of bounded broadcast subscribers fed by the event
	// dispatch goroutine; see subscribe.go.
	subsMu sync.Mutex
	subs   []*subscription

	// logging funcs
	logf, errf func(string, ...interface{})

	// Indicates if the target is a worker target.
	isWorker bool

	// bindingFuncs backs ExposeFunc: the runtime.Binding name -> handler
	// table for this target's exposed functions, and the one-time setup
	// of the dispatching subscription.
	bindingFuncListenOnce sync.Once
	bindingFuncMu         sync.RWMutex
	bindingFuncs          map[string]BindingFunc

	// refMu protects refs and refSeq, the page-local ref table an ARIA
	// snapshot populates (see aria.go): ref strings only ever resolve
	// within the Target that minted them, and only when minted by a
	// page-scope (not frame-scope) snapshot.
	refMu  sync.Mutex
	refs   map[string]cdp.BackendNodeID
	refSeq int
}

// frameNode is the structural record kept per frame: just enough to resolve
// an enclosing execution context and to answer frame lifecycle questions.
// It deliberately carries no DOM node cache.
type frameNode struct {
	ID       cdp.FrameID
	ParentID cdp.FrameID
	state    uint32 // bit flags, see frameOp in util.go
}

// mainWorldContext returns the default execution context id for frameID,
// the synchronous, round-trip-free lookup that the action and locator
// engines use on every evaluation.
func (t *Target) mainWorldContext(frameID cdp.FrameID) (runtime.ExecutionContextID, bool) {
	t.frameMu.RLock()
	defer t.frameMu.RUnlock()
	ec, ok := t.execContexts[frameID]
	return ec, ok
}

// ensureFrame returns the id of this target's top frame along with that
// frame's execution context id; it does not wait, and returns false as its
// last value if either is not known yet.
func (t *Target) ensureFrame() (cdp.FrameID, runtime.ExecutionContextID, bool) {
	t.frameMu.RLock()
	defer t.frameMu.RUnlock()
	cur := t.cur
	if cur == "" {
		return "", 0, false
	}
	ec, ok := t.execContexts[cur]
	if !ok || ec == 0 {
		return "", 0, false
	}
	return cur, ec, true
}

func (t *Target) run(ctx context.Context) {
	type eventValue struct {
		method cdproto.MethodType
		value  interface{}
	}
	syncEventQueue := make(chan eventValue, 4096)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case msg := <-t.messageQueue:
				if msg.ID != 0 {
					t.listenersMu.Lock()
					t.listeners = runListeners(t.listeners, msg)
					t.listenersMu.Unlock()
					continue
				}
				ev, err := cdproto.UnmarshalMessage(msg)
				if err != nil {
					if _, ok := err.(cdp.ErrUnknownCommandOrEvent); ok {
						continue
					}
					t.errf("could not unmarshal event: %v", err)
					continue
				}
				t.listenersMu.Lock()
				t.listeners = runListeners(t.listeners, ev)
				t.listenersMu.Unlock()

				t.broadcast(msg.Method, ev)

				switch msg.Method.Domain() {
				case "Runtime", "Page":
					select {
					case <-ctx.Done():
						return
					case syncEventQueue <- eventValue{msg.Method, ev}:
					}
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-syncEventQueue:
			switch ev.method.Domain() {
			case "Runtime":
				t.runtimeEvent(ev.value)
			case "Page":
				t.pageEvent(ev.value)
			}
		}
	}
}

// Execute satisfies the cdp.Executor interface for this target's session,
// tagging every outgoing command with the target's sessionID and
// correlating the response through the owning Browser's shared id space.
func (t *Target) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	if method == target.CommandCloseTarget {
		return errors.New("to close the target, cancel its context or shut down the owning browser")
	}

	var buf []byte
	if params != nil {
		var err error
		buf, err = easyjson.Marshal(params)
		if err != nil {
			return err
		}
	}
	cmd := &cdproto.Message{
		ID:        atomic.AddInt64(&t.browser.next, 1),
		SessionID: t.SessionID,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}

	msg, err := t.browser.sendAwait(ctx, cmd)
	if err != nil {
		return err
	}
	switch {
	case msg == nil:
		return ErrChannelClosed
	case msg.Error != nil:
		return &ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
	case res != nil:
		return easyjson.Unmarshal(msg.Result, res)
	}
	return nil
}

// runtimeEvent handles incoming runtime events.
func (t *Target) runtimeEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		var aux struct {
			FrameID cdp.FrameID
		}
		if len(ev.Context.AuxData) == 0 {
			break
		}
		if err := json.Unmarshal(ev.Context.AuxData, &aux); err != nil {
			t.errf("could not decode executionContextCreated auxData %q: %v", ev.Context.AuxData, err)
			break
		}
		if aux.FrameID != "" {
			t.frameMu.Lock()
			t.execContexts[aux.FrameID] = ev.Context.ID
			t.frameMu.Unlock()
		}
	case *runtime.EventExecutionContextDestroyed:
		t.frameMu.Lock()
		for frameID, ctxID := range t.execContexts {
			if ctxID == ev.ExecutionContextID {
				delete(t.execContexts, frameID)
			}
		}
		t.frameMu.Unlock()
	case *runtime.EventExecutionContextsCleared:
		t.frameMu.Lock()
		for frameID := range t.execContexts {
			delete(t.execContexts, frameID)
		}
		t.frameMu.Unlock()
	}
}

// pageEvent maintains the frame tree shape. This is the one remaining sliver
// of the teacher's original DOM-mirroring pageEvent: only the lifecycle
// bookkeeping survives, none of the node-tree mirroring.
func (t *Target) pageEvent(ev interface{}) {
	var id cdp.FrameID
	var op frameOp

	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		t.frameMu.Lock()
		f := t.frames[e.Frame.ID]
		if f == nil {
			f = &frameNode{ID: e.Frame.ID}
			t.frames[e.Frame.ID] = f
		}
		f.ParentID = e.Frame.ParentID
		if e.Frame.ParentID == "" {
			t.cur = e.Frame.ID
		}
		t.frameMu.Unlock()
		return

	case *page.EventFrameAttached:
		id, op = e.FrameID, frameAttached(e.ParentFrameID)

	case *page.EventFrameDetached:
		id, op = e.FrameID, frameDetached

	case *page.EventFrameStartedLoading:
		id, op = e.FrameID, frameStartedLoading

	case *page.EventFrameStoppedLoading:
		id, op = e.FrameID, frameStoppedLoading

	default:
		return
	}

	t.frameMu.Lock()
	f := t.frames[id]
	if f == nil {
		f = &frameNode{ID: id}
		t.frames[id] = f
	}
	op(f)
	t.frameMu.Unlock()
}
