package chromelens

import "context"

// Action is a single step that can be run against a browser context. It is
// the composition unit for every higher-level operation the library
// exposes: navigation, evaluation, locator actions, and user Tasks are all
// Actions.
type Action interface {
	// Do executes the action using the chromelens Context and Browser
	// available on ctx.
	Do(ctx context.Context) error
}

// ActionFunc is a func adapter satisfying Action, following the standard
// library's http.HandlerFunc pattern.
type ActionFunc func(ctx context.Context) error

// Do satisfies the Action interface.
func (f ActionFunc) Do(ctx context.Context) error {
	return f(ctx)
}

// Tasks is a sequence of Actions that can be used as a single Action.
type Tasks []Action

// Do satisfies the Action interface, running each task in order and
// stopping at the first error.
func (t Tasks) Do(ctx context.Context) error {
	for _, a := range t {
		if err := a.Do(ctx); err != nil {
			return err
		}
	}
	return nil
}
