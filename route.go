package chromelens

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
)

// RouteHandler decides the fate of one intercepted request. It must call
// exactly one of Route's Continue/Fulfill/Abort methods; calling a second
// one returns ErrRouteAlreadyHandled.
type RouteHandler func(ctx context.Context, route *Route) error

// routeEntry is one registered pattern/predicate + handler pair.
type routeEntry struct {
	pattern   string
	predicate func(url string) bool
	handler   RouteHandler
}

// RouteRegistry holds the route handlers registered at one scope (context
// or page). Context-scope routes are consulted before page-scope ones, and
// within a scope the most-recently-registered matching handler wins,
// mirroring Playwright's last-registered-wins override semantics.
type RouteRegistry struct {
	mu      sync.RWMutex
	entries []*routeEntry
}

// NewRouteRegistry returns an empty registry.
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{}
}

// Route registers handler against a glob pattern (supporting "*" for any
// run of characters except "/" and "**" for any run of characters).
func (r *RouteRegistry) Route(pattern string, handler RouteHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &routeEntry{pattern: pattern, handler: handler})
}

// RoutePredicate registers handler against an arbitrary URL predicate.
func (r *RouteRegistry) RoutePredicate(predicate func(url string) bool, handler RouteHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &routeEntry{predicate: predicate, handler: handler})
}

// Unroute removes handlers previously registered with the given pattern.
func (r *RouteRegistry) Unroute(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries[:0]
	for _, e := range r.entries {
		if e.pattern != pattern {
			out = append(out, e)
		}
	}
	r.entries = out
}

// UnrouteAll removes every registered handler.
func (r *RouteRegistry) UnrouteAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// match returns the most-recently-registered handler whose pattern or
// predicate matches url, or nil if none do.
func (r *RouteRegistry) match(url string) RouteHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.predicate != nil {
			if e.predicate(url) {
				return e.handler
			}
			continue
		}
		if globMatch(e.pattern, url) {
			return e.handler
		}
	}
	return nil
}

// matchAll returns every handler whose pattern or predicate matches url, in
// evaluation order (most-recently-registered first), the chain Route.Fallback
// walks when a handler declines to decide the request's fate itself.
func (r *RouteRegistry) matchAll(url string) []RouteHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RouteHandler
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.predicate != nil {
			if e.predicate(url) {
				out = append(out, e.handler)
			}
			continue
		}
		if globMatch(e.pattern, url) {
			out = append(out, e.handler)
		}
	}
	return out
}

// globMatch implements the "*"/"**" URL glob syntax: "*" matches any run of
// characters except "/", "**" matches any run of characters including "/".
func globMatch(pattern, s string) bool {
	return globMatchFrom(pattern, s)
}

func globMatchFrom(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	if strings.HasPrefix(pattern, "**") {
		rest := pattern[2:]
		for i := 0; i <= len(s); i++ {
			if globMatchFrom(rest, s[i:]) {
				return true
			}
		}
		return false
	}
	if strings.HasPrefix(pattern, "*") {
		rest := pattern[1:]
		for i := 0; i <= len(s); i++ {
			if s[:i] != "" && strings.ContainsRune(s[:i], '/') {
				break
			}
			if globMatchFrom(rest, s[i:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if pattern[0] != s[0] {
		return false
	}
	return globMatchFrom(pattern[1:], s[1:])
}

// routeState is the per-request state machine: Idle until Fetch.requestPaused
// arrives, Matched once a handler is dispatched, then one terminal state.
type routeState int32

const (
	routeIdle routeState = iota
	routeMatched
	routeContinued
	routeFulfilled
	routeAborted
)

// Route represents one intercepted request, handed to a RouteHandler.
type Route struct {
	ctx       context.Context
	requestID fetch.RequestID
	Request   *network.Request
	ResourceType network.ResourceType

	state atomic.Int32

	// chain holds the remaining handlers to try, most-recently-registered
	// first, for Fallback to dispatch to once the current handler declines.
	chain []RouteHandler
}

func (r *Route) transition(to routeState) bool {
	return r.state.CompareAndSwap(int32(routeMatched), int32(to))
}

// Fallback returns dispatch of this request to the next matching handler in
// registration-priority order (context-scope before page-scope, most
// recently registered first within each scope), or auto-continues the
// request if no further handler matches. Per spec.md §4.4.3, a handler must
// call exactly one of continue/fulfill/abort/fallback; Fallback is the one
// that does not itself terminate dispatch.
func (r *Route) Fallback() error {
	if routeState(r.state.Load()) != routeMatched {
		return ErrRouteAlreadyHandled
	}
	if len(r.chain) == 0 {
		return r.Continue(nil)
	}
	next := r.chain[0]
	r.chain = r.chain[1:]
	return next(r.ctx, r)
}

// Continue lets the request proceed, optionally with overridden url/method/
// headers/postData (any left nil/empty keeps the original value).
func (r *Route) Continue(overrides *ContinueOverrides) error {
	if !r.transition(routeContinued) {
		return ErrRouteAlreadyHandled
	}
	p := fetch.ContinueRequest(r.requestID)
	if overrides != nil {
		if overrides.URL != "" {
			p = p.WithURL(overrides.URL)
		}
		if overrides.Method != "" {
			p = p.WithMethod(overrides.Method)
		}
		if len(overrides.PostData) > 0 {
			p = p.WithPostData(base64.StdEncoding.EncodeToString(overrides.PostData))
		}
		if len(overrides.Headers) > 0 {
			p = p.WithHeaders(headerEntries(overrides.Headers))
		}
	}
	return p.Do(r.ctx)
}

// ContinueOverrides carries the optional field overrides for Route.Continue.
type ContinueOverrides struct {
	URL      string
	Method   string
	Headers  map[string]string
	PostData []byte
}

// FulfillResponse describes the synthetic response Route.Fulfill sends
// instead of letting the request reach the network.
type FulfillResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Fulfill answers the request with a synthetic response instead of letting
// it reach the network.
func (r *Route) Fulfill(resp FulfillResponse) error {
	if !r.transition(routeFulfilled) {
		return ErrRouteAlreadyHandled
	}
	status := int64(resp.Status)
	if status == 0 {
		status = 200
	}
	p := fetch.FulfillRequest(r.requestID, status).
		WithResponseHeaders(headerEntries(resp.Headers))
	if len(resp.Body) > 0 {
		p = p.WithBody(base64.StdEncoding.EncodeToString(resp.Body))
	}
	return p.Do(r.ctx)
}

// Abort fails the request with the given network error reason (defaults to
// "Failed" if reason is empty).
func (r *Route) Abort(reason string) error {
	if !r.transition(routeAborted) {
		return ErrRouteAlreadyHandled
	}
	if reason == "" {
		reason = "Failed"
	}
	return fetch.FailRequest(r.requestID, network.ErrorReason(reason)).Do(r.ctx)
}

func headerEntries(h map[string]string) []*fetch.HeaderEntry {
	if len(h) == 0 {
		return nil
	}
	out := make([]*fetch.HeaderEntry, 0, len(h))
	for k, v := range h {
		out = append(out, &fetch.HeaderEntry{Name: k, Value: v})
	}
	return out
}

// AuthCredentials answers an auth challenge raised by an intercepted
// request (e.g. HTTP Basic auth).
type AuthCredentials struct {
	Username string
	Password string
}

// EnableRouting turns on request interception for ctx's target and starts
// the dispatch loop that matches every paused request against the
// context-scope registry first, then the page-scope one, falling back to
// Continue when neither matches.
func EnableRouting(ctx context.Context, contextScope, pageScope *RouteRegistry, onAuth func(*network.Request) (AuthCredentials, bool)) error {
	t, err := targetFromContext(ctx)
	if err != nil {
		return err
	}
	if err := fetch.Enable().WithHandleAuthRequests(onAuth != nil).Do(ctx); err != nil {
		return err
	}

	sub := t.Subscribe(ctx, 256)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-sub.C():
				switch ev := d.Event.(type) {
				case *fetch.EventRequestPaused:
					go handleRequestPaused(ctx, contextScope, pageScope, ev)
				case *fetch.EventAuthRequired:
					go handleAuthRequired(ctx, onAuth, ev)
				}
			}
		}
	}()
	return nil
}

func handleRequestPaused(ctx context.Context, contextScope, pageScope *RouteRegistry, ev *fetch.EventRequestPaused) {
	url := ev.Request.URL
	var chain []RouteHandler
	if contextScope != nil {
		chain = append(chain, contextScope.matchAll(url)...)
	}
	if pageScope != nil {
		chain = append(chain, pageScope.matchAll(url)...)
	}

	route := &Route{ctx: ctx, requestID: ev.RequestID, Request: ev.Request, ResourceType: ev.ResourceType}
	route.state.Store(int32(routeMatched))

	if len(chain) == 0 {
		_ = route.Continue(nil)
		return
	}
	handler := chain[0]
	route.chain = chain[1:]
	if err := handler(ctx, route); err != nil {
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonFailed).Do(ctx)
	}
}

func handleAuthRequired(ctx context.Context, onAuth func(*network.Request) (AuthCredentials, bool), ev *fetch.EventAuthRequired) {
	if onAuth == nil {
		_ = fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseDefault,
		}).Do(ctx)
		return
	}
	creds, ok := onAuth(ev.Request)
	if !ok {
		_ = fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseCancelAuth,
		}).Do(ctx)
		return
	}
	_ = fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseProvideCredentials,
		Username: creds.Username,
		Password: creds.Password,
	}).Do(ctx)
}
