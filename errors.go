package chromelens

import (
	"fmt"
	"time"
)

// Error is a chromelens sentinel error value, compatible with errors.Is.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Sentinel error values covering the taxonomy of failures the engine can
// report: connection failures, malformed wire traffic, element and
// selector resolution failures, and the internal bookkeeping errors raised
// when a caller misuses the API (invalid target/context).
const (
	// ErrInvalidWebsocketMessage is returned when a non-text frame arrives
	// on the CDP websocket.
	ErrInvalidWebsocketMessage Error = "invalid websocket message"

	// ErrInvalidDimensions is the invalid dimensions error.
	ErrInvalidDimensions Error = "invalid dimensions"

	// ErrNoResults is returned by a locator operation that required at
	// least one match but found none.
	ErrNoResults Error = "no results"

	// ErrHasResults is returned by an operation that required zero matches
	// but found some.
	ErrHasResults Error = "has results"

	// ErrNotVisible indicates an element failed the visibility check of
	// the actionability loop.
	ErrNotVisible Error = "not visible"

	// ErrVisible is the visible error.
	ErrVisible Error = "visible"

	// ErrDisabled indicates an element failed the enabled check of the
	// actionability loop.
	ErrDisabled Error = "disabled"

	// ErrNotSelected is the not selected error.
	ErrNotSelected Error = "not selected"

	// ErrInvalidBoxModel is the invalid box model error.
	ErrInvalidBoxModel Error = "invalid box model"

	// ErrChannelClosed indicates the command correlation channel was
	// closed before a response arrived, generally because the owning
	// browser or target shut down mid-command.
	ErrChannelClosed Error = "channel closed"

	// ErrInvalidTarget is the invalid target error.
	ErrInvalidTarget Error = "invalid target"

	// ErrInvalidContext is returned when an action is run against a
	// context.Context with no chromelens Context value attached.
	ErrInvalidContext Error = "invalid context"

	// ErrPollingTimeout is the error that the timeout reached before the pageFunction returns a truthy value.
	ErrPollingTimeout Error = "waiting for function failed: timeout"

	// ErrEndpointDiscoveryFailed indicates the /json/version discovery
	// request did not return a usable webSocketDebuggerUrl.
	ErrEndpointDiscoveryFailed Error = "endpoint discovery failed: no websocket debugger url"

	// ErrInvalidEndpointURL indicates a malformed endpoint URL was passed
	// to a RemoteAllocator or discovery helper.
	ErrInvalidEndpointURL Error = "invalid endpoint url"

	// ErrFrameDetached indicates an operation targeted a frame which has
	// since been detached from the page.
	ErrFrameDetached Error = "frame detached"

	// ErrPageClosed indicates an operation targeted a page (target) which
	// has since closed.
	ErrPageClosed Error = "page closed"

	// ErrContextClosed indicates an operation targeted a browser context
	// which has since closed.
	ErrContextClosed Error = "browser context closed"

	// ErrExecutionContextDestroyed indicates a JavaScript evaluation
	// targeted an execution context that no longer exists, typically
	// because of a cross-document navigation.
	ErrExecutionContextDestroyed Error = "execution context destroyed"

	// ErrSessionNotFound indicates an incoming CDP message referenced a
	// sessionID chromelens has no Target record for.
	ErrSessionNotFound Error = "session not found"

	// ErrNavigationCancelled indicates a navigation wait was abandoned
	// because another navigation started, or the frame was detached.
	ErrNavigationCancelled Error = "navigation cancelled"

	// ErrRouteAlreadyHandled indicates a route handler called more than
	// one of Continue/Fulfill/Abort on the same intercepted request.
	ErrRouteAlreadyHandled Error = "route already handled"

	// ErrExposeNameExist indicates ExposeFunc was called twice with the
	// same function name on the same target.
	ErrExposeNameExist Error = "exposed function name already exists"
)

// ProtocolError wraps a raw CDP protocol-level error response, carrying the
// numeric code and message the browser returned.
type ProtocolError struct {
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%d): %s", e.Code, e.Message)
}

// TimeoutError is returned when a waiting operation (navigation,
// actionability loop, poll) exceeds its configured deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
}

// NotFoundError indicates a locator resolved to zero elements when at
// least one was required.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no element found for selector %q", e.Selector)
}

// EvaluationError wraps a JavaScript exception thrown while evaluating an
// expression or function in the page.
type EvaluationError struct {
	Text string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %s", e.Text)
}

// NetworkError wraps a CDP Network-domain failure reason (e.g. a failed
// request during route interception or navigation).
type NetworkError struct {
	Text string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.Text)
}
