package chromelens

import (
	"context"
	"errors"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
)

// isCouldNotComputeBoxModelError unwraps err as a *ProtocolError (the type
// Browser.Execute and Target.Execute return) or a *cdproto.Error and
// determines if it is a compute box model error.
func isCouldNotComputeBoxModelError(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == -32000 && pe.Message == "Could not compute box model."
	}
	e, ok := err.(*cdproto.Error)
	return ok && e.Code == -32000 && e.Message == "Could not compute box model."
}

// onObject is a CallOption that binds a CallFunctionOn invocation to a
// specific live object, rather than evaluating against the global object.
func onObject(id runtime.RemoteObjectID) CallOption {
	return func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(id)
	}
}

// isObjectVisible reports whether the element referenced by objectID has a
// non-empty box model and passes the offsetWidth/offsetHeight/
// getClientRects() visibility check. It operates entirely off the
// RemoteObjectID the locator engine resolved the element to; no DOM node
// cache is consulted.
func isObjectVisible(ctx context.Context, objectID runtime.RemoteObjectID) (bool, error) {
	_, err := dom.GetBoxModel().WithObjectID(objectID).Do(ctx)
	if err != nil {
		if isCouldNotComputeBoxModelError(err) {
			return false, nil
		}
		return false, err
	}

	var visible bool
	if err := CallFunctionOn(visibleJS, &visible, onObject(objectID)).Do(ctx); err != nil {
		return false, err
	}
	return visible, nil
}
