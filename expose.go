package chromelens

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

// BindingCalledPayload ...
type BindingCalledPayload struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Seq  int64  `json:"seq"`
	Args string `json:"args"`
}

// BindingFunc expose function type
type BindingFunc func(args string) (string, error)

// ExposeFunc adds a function called fnName on the page's window object.
// When called from the page, the function invokes fn in the Go process and
// resolves its returned Promise with fn's return value.
//
// Unlike puppeteer's exposeFunction, fn takes exactly one argument, which
// must be a string (callers that need structured data should JSON-encode it
// themselves).
func ExposeFunc(ctx context.Context, fnName string, fn BindingFunc) error {
	c := FromContext(ctx)
	if c == nil {
		return ErrInvalidContext
	}

	var t *Target
	err := Run(ctx, ActionFunc(func(ctx context.Context) error {
		t = c.browser.executorForTarget(ctx, c.sessionID)
		return nil
	}))
	if err != nil {
		return err
	}

	t.bindingFuncListenOnce.Do(func() {
		t.bindingFuncMu.Lock()
		t.bindingFuncs = make(map[string]BindingFunc)
		t.bindingFuncMu.Unlock()

		if err := Run(ctx, ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(exposedFunJS).Do(ctx)
			return err
		})); err != nil {
			return
		}

		sub := t.Subscribe(ctx, 64)
		go func() {
			for d := range sub.C() {
				ev, ok := d.Event.(*runtime.EventBindingCalled)
				if !ok {
					continue
				}
				var payload BindingCalledPayload
				if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
					continue
				}

				var expression string
				t.bindingFuncMu.RLock()
				handler, ok := t.bindingFuncs[payload.Name]
				t.bindingFuncMu.RUnlock()
				if ok {
					res, err := handler(payload.Args)
					if err != nil {
						expression = deliverError(payload.Name, payload.Seq, err.Error(), err.Error())
					} else {
						expression = deliverResult(payload.Name, payload.Seq, res)
					}
				} else {
					expression = deliverError(payload.Name, payload.Seq, "bindingCall name not exist", "")
				}

				go Run(ctx, Evaluate(expression, new([]byte), func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
					return p.WithContextID(ev.ExecutionContextID)
				}))
			}
		}()
	})

	t.bindingFuncMu.Lock()
	if _, ok := t.bindingFuncs[fnName]; ok {
		t.bindingFuncMu.Unlock()
		return ErrExposeNameExist
	}
	t.bindingFuncs[fnName] = fn
	t.bindingFuncMu.Unlock()

	if err := Run(ctx, runtime.AddBinding(fnName)); err != nil {
		return err
	}

	expression := addPageBinding("exposedFun", fnName)
	return Run(ctx, ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(expression).Do(ctx)
		return err
	}))
}

const exposedFunJS = `
function deliverError(name, seq, message, stack) {
	const error = new Error(message);
	error.stack = stack;
	window[name].callbacks.get(seq).reject(error);
	window[name].callbacks.delete(seq);
}

function deliverResult(name, seq, result) {
	window[name].callbacks.get(seq).resolve(result);
	window[name].callbacks.delete(seq);
}

function addPageBinding(type, name) {
	// This is the CDP binding.
	const callCDP = self[name];
	console.log("callCDP",callCDP)
	// We replace the CDP binding with a Puppeteer binding.
	Object.assign(self, {
		[name](args) {
			if(typeof args != "string"){
				return Promise.reject(new Error('function takes exactly one argument, this argument should be string'))
			}
			var _a, _b;
			// This is the Puppeteer binding.
			const callPuppeteer = self[name];
			(_a = callPuppeteer.callbacks) !== null && _a !== void 0 ? _a : (callPuppeteer.callbacks = new Map());
			const seq = ((_b = callPuppeteer.lastSeq) !== null && _b !== void 0 ? _b : 0) + 1;
			callPuppeteer.lastSeq = seq;
			callCDP(JSON.stringify({ type, name, seq, args }));
			return new Promise((resolve, reject) => {
				callPuppeteer.callbacks.set(seq, { resolve, reject });
			});
		},
	});
}
`

func deliverError(name string, seq int64, message, stack string) string {
	var cmd string = `deliverError("%s",%d,"%s","%s");`
	return fmt.Sprintf(cmd, name, seq, message, stack)
}

func deliverResult(name string, seq int64, result string) string {
	var cmd string = `deliverResult("%s",%d,"%s");`
	return fmt.Sprintf(cmd, name, seq, result)
}

func addPageBinding(typeS, name string) string {
	var cmd string = `addPageBinding("%s","%s");`
	return fmt.Sprintf(cmd, typeS, name)
}
