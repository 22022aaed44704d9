package chromelens

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

// DefaultActionTimeout is the actionability-loop and query timeout applied
// when a Locator is built without WithTimeout.
const DefaultActionTimeout = 30 * time.Second

// actionabilityPoll is how often the actionability loop and resolveOne
// re-check an element's state while waiting.
const actionabilityPoll = 50 * time.Millisecond

// actionabilityStableFor is how long an element's bounding rect must stay
// unchanged before the actionability loop considers it stable.
const actionabilityStableFor = 2 * actionabilityPoll

// Locator is a lazily, re-queryable description of one or more elements. It
// carries no handle to a live DOM node: every operation re-runs the
// compiled selector expression against the current document, so a Locator
// stays valid across navigations and re-renders the same way a CSS
// selector string would.
type Locator struct {
	sel     Selector
	timeout time.Duration
}

// NewLocator wraps sel as a Locator with the default timeout.
func NewLocator(sel Selector) Locator {
	return Locator{sel: sel, timeout: DefaultActionTimeout}
}

// WithTimeout returns a copy of l using timeout for its actionability loop
// and queries instead of DefaultActionTimeout.
func (l Locator) WithTimeout(timeout time.Duration) Locator {
	l.timeout = timeout
	return l
}

// Selector returns the underlying Selector, e.g. to compose it into a
// larger chain with Chained/FilterText/FilterHas by hand.
func (l Locator) Selector() Selector {
	return l.sel
}

// String returns the human-readable description of the underlying selector.
func (l Locator) String() string {
	return l.sel.String()
}

// Locator narrows the selection to descendants of l matching child,
// equivalent to Chained(l.sel, child).
func (l Locator) Locator(child Selector) Locator {
	return Locator{sel: Chained(l.sel, child), timeout: l.timeout}
}

// First narrows the selection to its first match.
func (l Locator) First() Locator {
	return Locator{sel: Nth(l.sel, 0), timeout: l.timeout}
}

// Last narrows the selection to its last match.
func (l Locator) Last() Locator {
	return Locator{sel: Nth(l.sel, -1), timeout: l.timeout}
}

// Nth narrows the selection to the match at index (0-based; negative counts
// from the end).
func (l Locator) Nth(index int) Locator {
	return Locator{sel: Nth(l.sel, index), timeout: l.timeout}
}

// FilterOption narrows a Filter call; see HasText, HasNotText, Has, HasNot.
type FilterOption func(base Selector) Selector

// HasText keeps elements whose text content contains text.
func HasText(text string) FilterOption {
	return func(base Selector) Selector { return FilterText(base, text, false, false) }
}

// HasNotText discards elements whose text content contains text.
func HasNotText(text string) FilterOption {
	return func(base Selector) Selector { return FilterText(base, text, false, true) }
}

// Has keeps elements that have a descendant matching child.
func Has(child Locator) FilterOption {
	return func(base Selector) Selector { return FilterHas(base, child.sel, false) }
}

// HasNot discards elements that have a descendant matching child.
func HasNot(child Locator) FilterOption {
	return func(base Selector) Selector { return FilterHas(base, child.sel, true) }
}

// Filter narrows the selection by one or more FilterOption predicates,
// applied in order.
func (l Locator) Filter(opts ...FilterOption) Locator {
	sel := l.sel
	for _, o := range opts {
		sel = o(sel)
	}
	return Locator{sel: sel, timeout: l.timeout}
}

func (l Locator) effectiveTimeout() time.Duration {
	if l.timeout <= 0 {
		return DefaultActionTimeout
	}
	return l.timeout
}

// resolveAll evaluates the Locator's selector against the main world of the
// current frame and returns one RemoteObject per match. Ref and
// BackendNodeID selectors bypass the compiled JS expression entirely and
// resolve through dom.ResolveNode instead, the bridge between the
// accessibility tree's backend node ids and Runtime's object handles.
func (l Locator) resolveAll(ctx context.Context) ([]*runtime.RemoteObject, error) {
	switch l.sel.Kind {
	case SelectorRef:
		t, err := targetFromContext(ctx)
		if err != nil {
			return nil, err
		}
		backend, ok := t.lookupRef(l.sel.Str)
		if !ok {
			return nil, nil
		}
		obj, err := dom.ResolveNode().WithBackendNodeID(backend).Do(ctx)
		if err != nil {
			return nil, err
		}
		return []*runtime.RemoteObject{obj}, nil

	case SelectorBackendNodeID:
		obj, err := dom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(l.sel.BackendNodeID)).Do(ctx)
		if err != nil {
			return nil, err
		}
		return []*runtime.RemoteObject{obj}, nil
	}

	var arr *runtime.RemoteObject
	fnDecl := fmt.Sprintf("function(){return (%s);}", l.sel.ToJS())
	if err := CallFunctionOn(fnDecl, &arr, nil).Do(ctx); err != nil {
		return nil, err
	}
	if arr == nil || arr.ObjectID == "" {
		return nil, nil
	}
	defer releaseObject(ctx, arr.ObjectID)
	return expandArrayHandle(ctx, arr.ObjectID)
}

// expandArrayHandle reads back the indexed own properties of a live array
// RemoteObject as individual element handles, the handle-preserving
// counterpart to CallFunctionOn's "return by value" path (which would
// JSON-flatten each DOM element down to "{}").
func expandArrayHandle(ctx context.Context, arrID runtime.RemoteObjectID) ([]*runtime.RemoteObject, error) {
	props, err := runtime.GetProperties(arrID).WithOwnProperties(true).Do(ctx)
	if err != nil {
		return nil, err
	}
	var lengthIdx = -1
	objs := make([]*runtime.RemoteObject, 0, len(props))
	for _, p := range props {
		if p.Name == "length" {
			lengthIdx = len(objs)
			continue
		}
		if p.Value == nil || p.Value.Subtype != "node" {
			continue
		}
		objs = append(objs, p.Value)
	}
	_ = lengthIdx
	return objs, nil
}

func releaseObject(ctx context.Context, id runtime.RemoteObjectID) {
	_ = runtime.ReleaseObject(id).Do(ctx)
}

// Count returns the number of elements currently matching l.
func (l Locator) Count(ctx context.Context) (int, error) {
	switch l.sel.Kind {
	case SelectorRef, SelectorBackendNodeID:
		objs, err := l.resolveAll(ctx)
		if err != nil {
			return 0, err
		}
		return len(objs), nil
	}
	var n int
	if err := Evaluate("("+l.sel.ToJS()+").length", &n).Do(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// resolveOne waits (up to l.timeout) for the selector to resolve to at
// least one element and returns the first match's RemoteObjectID, the
// shared entry point every single-element query uses.
func (l Locator) resolveOne(ctx context.Context) (runtime.RemoteObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.effectiveTimeout())
	defer cancel()

	for {
		objID, err := l.tryResolveFirst(ctx)
		if err != nil {
			return "", err
		}
		if objID != "" {
			return objID, nil
		}

		select {
		case <-ctx.Done():
			return "", &NotFoundError{Selector: l.sel.String()}
		case <-time.After(actionabilityPoll):
		}
	}
}

// tryResolveFirst evaluates the selector once and returns the first
// match's RemoteObjectID, or "" if there is no current match.
func (l Locator) tryResolveFirst(ctx context.Context) (runtime.RemoteObjectID, error) {
	switch l.sel.Kind {
	case SelectorRef, SelectorBackendNodeID:
		objs, err := l.resolveAll(ctx)
		if err != nil || len(objs) == 0 {
			return "", err
		}
		return objs[0].ObjectID, nil
	}

	var obj *runtime.RemoteObject
	fnDecl := fmt.Sprintf("function(){var __m=(%s);return __m.length>0?__m[0]:null;}", l.sel.ToJS())
	if err := CallFunctionOn(fnDecl, &obj, nil).Do(ctx); err != nil {
		return "", err
	}
	if obj == nil {
		return "", nil
	}
	return obj.ObjectID, nil
}

// TextContent returns the textContent of the first element matching l.
func (l Locator) TextContent(ctx context.Context) (string, error) {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return "", err
	}
	var s string
	err = CallFunctionOn(textContentJS, &s, onObject(objID)).Do(ctx)
	return s, err
}

// InnerText returns the rendered innerText of the first element matching
// l, empty if the element is not visible.
func (l Locator) InnerText(ctx context.Context) (string, error) {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return "", err
	}
	var s string
	err = CallFunctionOn(textJS, &s, onObject(objID)).Do(ctx)
	return s, err
}

// IsVisible reports whether the first element matching l is visible. It
// does not wait: a locator with zero matches reports false rather than
// erroring.
func (l Locator) IsVisible(ctx context.Context) (bool, error) {
	objID, err := l.tryResolveFirst(ctx)
	if err != nil || objID == "" {
		return false, err
	}
	return isObjectVisible(ctx, objID)
}

// IsChecked reports whether the first element matching l is a checked
// checkbox/radio input.
func (l Locator) IsChecked(ctx context.Context) (bool, error) {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return false, err
	}
	var checked bool
	err = CallFunctionOn(isCheckedJS, &checked, onObject(objID)).Do(ctx)
	return checked, err
}

// GetAttribute returns the attribute value of the first element matching l
// and false if the attribute is absent.
func (l Locator) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return "", false, err
	}
	var out *string
	if err := CallFunctionOn(getAttributeJS, &out, onObject(objID), name).Do(ctx); err != nil {
		return "", false, err
	}
	if out == nil {
		return "", false, nil
	}
	return *out, true, nil
}

// InputValue returns the .value of the first input/textarea/select element
// matching l.
func (l Locator) InputValue(ctx context.Context) (string, error) {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return "", err
	}
	var v string
	err = CallFunctionOn(attributeJS, &v, onObject(objID), "value").Do(ctx)
	return v, err
}

// AllTextContents returns the textContent of every element currently
// matching l.
func (l Locator) AllTextContents(ctx context.Context) ([]string, error) {
	objs, err := l.resolveAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(objs))
	for i, obj := range objs {
		if err := CallFunctionOn(textContentJS, &out[i], onObject(obj.ObjectID)).Do(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AllInnerTexts returns the rendered innerText of every element currently
// matching l.
func (l Locator) AllInnerTexts(ctx context.Context) ([]string, error) {
	objs, err := l.resolveAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(objs))
	for i, obj := range objs {
		if err := CallFunctionOn(textJS, &out[i], onObject(obj.ObjectID)).Do(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BoundingBox returns the first matching element's client rect, relative to
// its owner document.
func (l Locator) BoundingBox(ctx context.Context) (*page.Viewport, error) {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return nil, err
	}
	var v page.Viewport
	if err := CallFunctionOn(getClientRectJS, &v, onObject(objID)).Do(ctx); err != nil {
		return nil, err
	}
	return &v, nil
}

type actionRect struct {
	X, Y, Width, Height float64
}

// waitForActionable runs the actionability loop (existence, visibility,
// enabled, stability) against the first element matching l, returning its
// RemoteObjectID once all checks pass, or a *TimeoutError if l.timeout
// elapses first.
func (l Locator) waitForActionable(ctx context.Context) (runtime.RemoteObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.effectiveTimeout())
	defer cancel()

	var lastRect actionRect
	var stableSince time.Time

	for {
		objID, err := l.tryResolveFirst(ctx)
		if err == nil && objID != "" {
			if ok, rect := l.checkActionable(ctx, objID); ok {
				if rect == lastRect && !stableSince.IsZero() {
					if time.Since(stableSince) >= actionabilityStableFor {
						return objID, nil
					}
				} else {
					lastRect = rect
					stableSince = time.Now()
				}
			} else {
				stableSince = time.Time{}
			}
		} else {
			stableSince = time.Time{}
		}

		select {
		case <-ctx.Done():
			return "", &TimeoutError{Op: "actionability(" + l.sel.String() + ")", Timeout: l.effectiveTimeout()}
		case <-time.After(actionabilityPoll):
		}
	}
}

// checkActionable runs the visible/enabled/rect checks for one iteration of
// waitForActionable, swallowing evaluation errors as "not yet actionable"
// since a mid-navigation execution-context teardown is routine while
// waiting, not a terminal failure.
func (l Locator) checkActionable(ctx context.Context, objID runtime.RemoteObjectID) (bool, actionRect) {
	visible, err := isObjectVisible(ctx, objID)
	if err != nil || !visible {
		return false, actionRect{}
	}
	var enabled bool
	if err := CallFunctionOn(isEnabledJS, &enabled, onObject(objID)).Do(ctx); err != nil || !enabled {
		return false, actionRect{}
	}
	var rect actionRect
	if err := CallFunctionOn(getClientRectJS, &rect, onObject(objID)).Do(ctx); err != nil {
		return false, actionRect{}
	}
	return true, rect
}

// Click waits for actionability then clicks the first element matching l
// via a synthetic mouse event at its center.
func (l Locator) Click(ctx context.Context) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	return dispatchClick(ctx, objID, 1)
}

// DblClick waits for actionability then double-clicks the first element
// matching l.
func (l Locator) DblClick(ctx context.Context) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	return dispatchClick(ctx, objID, 2)
}

// Fill waits for actionability, then sets the value of the first element
// matching l and dispatches input/change events the way a user typing and
// then blurring the field would.
func (l Locator) Fill(ctx context.Context, value string) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	var out string
	return CallFunctionOn(setAttributeJS, &out, onObject(objID), "value", value).Do(ctx)
}

// Clear is Fill(ctx, "").
func (l Locator) Clear(ctx context.Context) error {
	return l.Fill(ctx, "")
}

// Check waits for actionability and checks the first checkbox/radio element
// matching l if it is not already checked.
func (l Locator) Check(ctx context.Context) error {
	return l.setChecked(ctx, true)
}

// Uncheck waits for actionability and unchecks the first checkbox element
// matching l if it is not already unchecked.
func (l Locator) Uncheck(ctx context.Context) error {
	return l.setChecked(ctx, false)
}

func (l Locator) setChecked(ctx context.Context, want bool) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	var have bool
	if err := CallFunctionOn(isCheckedJS, &have, onObject(objID)).Do(ctx); err != nil {
		return err
	}
	if have == want {
		return nil
	}
	return dispatchClick(ctx, objID, 1)
}

// SelectOption waits for actionability and sets the <select> element
// matching l to the option with the given value.
func (l Locator) SelectOption(ctx context.Context, value string) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	var ok bool
	return CallFunctionOn(selectOptionJS, &ok, onObject(objID), value).Do(ctx)
}

// Focus waits for actionability and focuses the first element matching l.
func (l Locator) Focus(ctx context.Context) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	var ok bool
	return CallFunctionOn(focusJS, &ok, onObject(objID)).Do(ctx)
}

// Blur waits for actionability and removes focus from the first element
// matching l, the inverse of Focus.
func (l Locator) Blur(ctx context.Context) error {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return err
	}
	var ok bool
	return CallFunctionOn(blurJS, &ok, onObject(objID)).Do(ctx)
}

// Submit submits the <form> that the first element matching l belongs to
// (or is itself), equivalent to calling HTMLFormElement.submit. It reports
// false if the element is not a form and has no enclosing form.
func (l Locator) Submit(ctx context.Context) (bool, error) {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := CallFunctionOn(submitJS, &ok, onObject(objID)).Do(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// Reset resets the <form> that the first element matching l belongs to (or
// is itself), equivalent to calling HTMLFormElement.reset. It reports false
// if the element is not a form and has no enclosing form.
func (l Locator) Reset(ctx context.Context) (bool, error) {
	objID, err := l.waitForActionable(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := CallFunctionOn(resetJS, &ok, onObject(objID)).Do(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// ScrollIntoViewIfNeeded scrolls the first element matching l into the
// viewport if it is not already visible within it.
func (l Locator) ScrollIntoViewIfNeeded(ctx context.Context) error {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return err
	}
	var ok bool
	return CallFunctionOn(scrollIntoViewJS, &ok, onObject(objID)).Do(ctx)
}

// Screenshot captures a screenshot of the first element matching l into buf.
func (l Locator) Screenshot(ctx context.Context, buf *[]byte) error {
	objID, err := l.resolveOne(ctx)
	if err != nil {
		return err
	}
	visible, err := isObjectVisible(ctx, objID)
	if err != nil {
		return err
	}
	if !visible {
		return ErrNotVisible
	}
	var clip page.Viewport
	if err := CallFunctionOn(getClientRectJS, &clip, onObject(objID)).Do(ctx); err != nil {
		return err
	}
	clip.Scale = 1
	shot, err := page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormatPng).
		WithCaptureBeyondViewport(true).
		WithClip(&clip).
		Do(ctx)
	if err != nil {
		return err
	}
	*buf = shot
	return nil
}

// dispatchClick resolves objID's center point and dispatches one
// mousePressed/mouseReleased pair at it via Input.dispatchMouseEvent, with
// both events carrying clickCount set to count.
func dispatchClick(ctx context.Context, objID runtime.RemoteObjectID, count int) error {
	var rect actionRect
	if err := CallFunctionOn(getClientRectJS, &rect, onObject(objID)).Do(ctx); err != nil {
		return err
	}
	if rect.Width == 0 && rect.Height == 0 {
		return ErrInvalidDimensions
	}
	x := rect.X + rect.Width/2
	y := rect.Y + rect.Height/2

	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(int64(count))
	if err := press.Do(ctx); err != nil {
		return err
	}
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(int64(count))
	return release.Do(ctx)
}

// targetFromContext extracts the *Target bound to ctx via cdp.WithExecutor,
// the same lookup poll.go and navigate.go use.
func targetFromContext(ctx context.Context) (*Target, error) {
	t, _ := cdp.ExecutorFromContext(ctx).(*Target)
	if t == nil {
		return nil, ErrInvalidTarget
	}
	return t, nil
}

const isCheckedJS = `function isChecked() { return !!this.checked; }`

const isEnabledJS = `function isEnabled() { return !this.disabled; }`

const getAttributeJS = `function getAttribute(n) {
	return this.hasAttribute(n) ? this.getAttribute(n) : null;
}`

const focusJS = `function focus() { this.focus(); return true; }`

const scrollIntoViewJS = `function scrollIntoViewIfNeeded() {
	var r = this.getBoundingClientRect();
	if (r.top >= 0 && r.left >= 0 && r.bottom <= window.innerHeight && r.right <= window.innerWidth) {
		return true;
	}
	this.scrollIntoView({block: 'center', inline: 'center'});
	return true;
}`

const selectOptionJS = `function selectOption(v) {
	this.value = v;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`
