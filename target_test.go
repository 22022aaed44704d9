package chromelens

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

func newTestTarget() *Target {
	return &Target{
		frames:       map[cdp.FrameID]*frameNode{},
		execContexts: map[cdp.FrameID]runtime.ExecutionContextID{},
		logf:         func(string, ...interface{}) {},
		errf:         func(string, ...interface{}) {},
	}
}

func TestExecutionContextCreatedRecordsFrameBinding(t *testing.T) {
	tgt := newTestTarget()
	const frameID cdp.FrameID = "frame-1"

	aux := []byte(`{"frameId":"frame-1"}`)
	tgt.runtimeEvent(&runtime.EventExecutionContextCreated{
		Context: &runtime.ExecutionContextDescription{ID: 7, AuxData: aux},
	})

	ec, ok := tgt.mainWorldContext(frameID)
	if !ok || ec != 7 {
		t.Fatalf("expected frame %q to map to execution context 7, got %v/%v", frameID, ec, ok)
	}
}

func TestExecutionContextDestroyedRemovesFrameBinding(t *testing.T) {
	tgt := newTestTarget()
	const frameID cdp.FrameID = "frame-1"
	tgt.execContexts[frameID] = 7

	tgt.runtimeEvent(&runtime.EventExecutionContextDestroyed{ExecutionContextID: 7})

	if _, ok := tgt.mainWorldContext(frameID); ok {
		t.Fatalf("expected execution context binding to be removed after executionContextDestroyed")
	}
}

func TestExecutionContextsClearedRemovesAllBindings(t *testing.T) {
	tgt := newTestTarget()
	tgt.execContexts["frame-1"] = 1
	tgt.execContexts["frame-2"] = 2

	tgt.runtimeEvent(&runtime.EventExecutionContextsCleared{})

	if len(tgt.execContexts) != 0 {
		t.Fatalf("expected all execution contexts to be cleared, got %v", tgt.execContexts)
	}
}

func TestEnsureFrameFalseUntilExecutionContextReady(t *testing.T) {
	tgt := newTestTarget()
	if _, _, ok := tgt.ensureFrame(); ok {
		t.Fatalf("expected ensureFrame to report not-ready before any frame is current")
	}

	tgt.cur = "frame-1"
	if _, _, ok := tgt.ensureFrame(); ok {
		t.Fatalf("expected ensureFrame to report not-ready before an execution context exists")
	}

	tgt.execContexts["frame-1"] = 9
	frameID, ec, ok := tgt.ensureFrame()
	if !ok || frameID != "frame-1" || ec != 9 {
		t.Fatalf("expected ensureFrame to report (frame-1, 9, true), got (%v, %v, %v)", frameID, ec, ok)
	}
}
