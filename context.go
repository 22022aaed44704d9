package chromelens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
)

// Context holds the plumbing that ties a context.Context to a lazily
// allocated Browser and an attached target session, plus the optional
// per-context collaborators (request routing, downloads, file choosers,
// virtual time) layered on top by route.go, download.go, filechooser.go
// and clock.go.
type Context struct {
	Allocator Allocator

	browser *Browser

	sessionID target.SessionID
	targetID  target.ID

	// allocated is closed by the Allocator's Allocate method once it has
	// committed to a Browser, so that its own teardown goroutines can rely
	// on it without waiting on Run to return first.
	allocated chan struct{}
	cancel    context.CancelFunc
	cancelErr error

	// routes, downloadHandler, fileChooserHandler and clock hold the
	// per-context collaborators layered on top of the base session by
	// route.go, download.go, filechooser.go and clock.go.
	routes             *RouteRegistry
	downloadHandler    func(*Download)
	fileChooserHandler func(*FileChooserRequest) error
	clock              *Clock

	// viewport and device, when set, are applied to every page session
	// newSession creates (see emulate.go); device takes priority over a
	// bare viewport if both are set.
	viewport *viewportConfig
	device   Device

	// initScripts are replayed, in registration order, to every page
	// session newSession creates, and pushed to already-attached sessions
	// immediately when AddInitScript is called. sessionsMu guards both
	// initScripts and sessions, since AddInitScript can race newSession.
	sessionsMu  sync.Mutex
	initScripts []string
	sessions    []*Target
}

type viewportConfig struct {
	width, height int64
	opts          []EmulateViewportOption
}

// Wait can be called after cancelling the context containing Context, to
// block until all the underlying resources have been cleaned up.
func (c *Context) Wait() {
	if c.Allocator != nil {
		c.Allocator.Wait()
	}
}

// NewContext creates a chromelens context using the parent context. If the
// parent context already carries a Context (e.g. it was derived from
// another chromelens context), its Allocator is reused, and if the parent
// has already allocated its browser (it has been Run), the new context
// opens its page in that same browser process.
func NewContext(parent context.Context, opts ...ContextOption) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	c := &Context{allocated: make(chan struct{})}
	pc := FromContext(parent)
	if pc != nil {
		c.Allocator = pc.Allocator
	}

	for _, o := range opts {
		o(c)
	}
	if c.Allocator == nil {
		WithExecAllocator(DefaultExecAllocatorOptions[:]...)(&c.Allocator)
	}
	if pc != nil && pc.Allocator == c.Allocator {
		c.browser = pc.browser
	}

	c.cancel = cancel
	ctx = context.WithValue(ctx, contextKey{}, c)
	return ctx, cancel
}

// WithExecAllocator assigns *a a freshly built ExecAllocator configured
// with opts. It is not a ContextOption: NewContext calls it directly
// against c.Allocator when no allocator was otherwise provided, mirroring
// NewExecAllocator's setup without the extra context layer.
func WithExecAllocator(opts ...ExecAllocatorOption) func(a *Allocator) {
	return func(a *Allocator) {
		*a = setupExecAllocator(opts...)
	}
}

type contextKey struct{}

// FromContext returns the Context value attached to ctx, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}

// Run runs action against the Browser allocated for ctx, allocating a
// browser and a default target session the first time it is called.
func Run(ctx context.Context, action Action) error {
	c := FromContext(ctx)
	if c == nil || c.Allocator == nil {
		return ErrInvalidContext
	}
	if c.browser == nil {
		browser, err := c.Allocator.Allocate(ctx)
		if err != nil {
			return err
		}
		c.browser = browser
	}
	if c.sessionID == "" {
		if err := c.newSession(ctx); err != nil {
			return err
		}
	}
	t := c.browser.executorForTarget(ctx, c.sessionID)
	return action.Do(cdp.WithExecutor(ctx, t))
}

func (c *Context) newSession(ctx context.Context) error {
	targetID := c.targetID
	if targetID == "" {
		create := target.CreateTarget("about:blank")
		var err error
		targetID, err = create.Do(ctx, c.browser)
		if err != nil {
			return err
		}
	}

	attach := target.AttachToTarget(targetID).WithFlatten(true)
	sessionID, err := attach.Do(ctx, c.browser)
	if err != nil {
		return err
	}

	t := c.browser.executorForTarget(ctx, sessionID)
	sctx := cdp.WithExecutor(ctx, t)

	for _, enable := range []Action{
		ActionFunc(func(ctx context.Context) error { return log.Enable().Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return runtime.Enable().Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return network.Enable().Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return inspector.Enable().Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return page.Enable().Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return page.SetLifecycleEventsEnabled(true).Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return dom.Enable().Do(ctx) }),
		ActionFunc(func(ctx context.Context) error { return css.Enable().Do(ctx) }),
	} {
		if err := enable.Do(sctx); err != nil {
			return fmt.Errorf("unable to enable domain: %w", err)
		}
	}

	// Replay every script registered so far, in insertion order, so this
	// page sees them before any of its own document scripts run. A script
	// added later via AddInitScript is pushed to this same session (see
	// addInitScriptToSession) without needing a reload.
	c.sessionsMu.Lock()
	scripts := append([]string(nil), c.initScripts...)
	c.sessions = append(c.sessions, t)
	c.sessionsMu.Unlock()
	for _, script := range scripts {
		if err := addInitScriptToSession(sctx, script); err != nil {
			return fmt.Errorf("unable to add init script: %w", err)
		}
	}

	if c.device != nil {
		if err := Emulate(c.device).Do(sctx); err != nil {
			return fmt.Errorf("unable to emulate device: %w", err)
		}
	} else if c.viewport != nil {
		if err := EmulateViewport(c.viewport.width, c.viewport.height, c.viewport.opts...).Do(sctx); err != nil {
			return fmt.Errorf("unable to set viewport: %w", err)
		}
	}

	c.targetID = targetID
	c.sessionID = sessionID
	return nil
}

// addInitScriptToSession sends one script to a single already-attached
// session via Page.addScriptToEvaluateOnNewDocument.
func addInitScriptToSession(ctx context.Context, script string) error {
	_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
	return err
}

// AddInitScript registers a script to be evaluated in every page this
// Context creates, before any of the page's own scripts run, via
// Page.addScriptToEvaluateOnNewDocument. Scripts are replayed in the order
// they were registered. If pages are already attached when this is called,
// the script is also pushed to them immediately, without reloading them
// (so it will not have run on anything already loaded in that page).
func (c *Context) AddInitScript(script string) error {
	c.sessionsMu.Lock()
	c.initScripts = append(c.initScripts, script)
	sessions := append([]*Target(nil), c.sessions...)
	c.sessionsMu.Unlock()

	for _, t := range sessions {
		tctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := addInitScriptToSession(cdp.WithExecutor(tctx, t), script)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// WithViewport is a ContextOption that sets the viewport (and, via opts,
// device-emulation parameters such as scale or orientation) applied to
// every page session this Context creates. It has no effect if WithDevice
// is also given; WithDevice takes priority.
func WithViewport(width, height int64, opts ...EmulateViewportOption) ContextOption {
	return func(c *Context) {
		c.viewport = &viewportConfig{width: width, height: height, opts: opts}
	}
}

// WithDevice is a ContextOption that emulates device for every page session
// this Context creates.
func WithDevice(device Device) ContextOption {
	return func(c *Context) {
		c.device = device
	}
}

// Cancel cancels the browser context tied to ctx and, for an
// ExecAllocator-backed context, tears down the underlying browser process.
// It returns once the target's session has been closed.
func Cancel(ctx context.Context) error {
	c := FromContext(ctx)
	if c == nil {
		return ErrInvalidContext
	}
	if c.browser != nil && c.sessionID != "" {
		_ = target.CloseTarget(c.targetID).Do(ctx, c.browser)
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.cancelErr
}

// ContextOption is a chromelens context option.
type ContextOption func(*Context)

// WithTargetID attaches an existing target (by ID) instead of creating a
// new one, used to attach to an already-open page.
func WithTargetID(id target.ID) ContextOption {
	return func(c *Context) {
		c.targetID = id
	}
}
