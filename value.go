package chromelens

import (
	"encoding/json"

	"github.com/chromedp/cdproto/runtime"
)

// argAppender accumulates JSON-marshalled arguments for a
// runtime.CallFunctionOn invocation, short-circuiting on the first
// marshalling error.
//
// See https://blog.golang.org/errors-are-values for the pattern this
// follows: append becomes a no-op once err is set, so callers can chain a
// sequence of appends and check err exactly once at the end.
type argAppender struct {
	args []*runtime.CallArgument
	err  error
}

func newArgAppender(capacity int) *argAppender {
	return &argAppender{args: make([]*runtime.CallArgument, 0, capacity)}
}

func (a *argAppender) append(v interface{}) {
	if a.err != nil {
		return
	}
	var b []byte
	b, a.err = json.Marshal(v)
	a.args = append(a.args, &runtime.CallArgument{Value: b})
}

// unmarshalResult decodes a runtime.RemoteObject's value into res,
// honoring the two out-of-band escape hatches: a **runtime.RemoteObject
// destination receives the raw object (for callers that want to keep a
// handle alive), and a *[]byte destination receives the raw JSON bytes
// without decoding.
func unmarshalResult(v *runtime.RemoteObject, res interface{}) error {
	if res == nil {
		return nil
	}
	switch x := res.(type) {
	case **runtime.RemoteObject:
		*x = v
		return nil
	case *[]byte:
		*x = v.Value
		return nil
	default:
		return json.Unmarshal(v.Value, res)
	}
}
