package chromelens

import (
	"context"
	"testing"
)

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"https://example.com/api/*", "https://example.com/api/users", true},
		{"https://example.com/api/*", "https://example.com/api/users/1", false},
		{"https://example.com/api/**", "https://example.com/api/users/1", true},
		{"**/*.png", "https://cdn.example.com/img/logo.png", true},
		{"**/*.png", "https://cdn.example.com/img/logo.jpg", false},
		{"https://example.com/*", "https://example.com/", true},
		{"https://example.com/exact", "https://example.com/exact", true},
		{"https://example.com/exact", "https://example.com/exacter", false},
	}
	for _, tt := range tests {
		if got := globMatch(tt.pattern, tt.url); got != tt.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.url, got, tt.want)
		}
	}
}

func noopHandler(name string, seen *[]string) RouteHandler {
	return func(_ context.Context, _ *Route) error {
		*seen = append(*seen, name)
		return nil
	}
}

func TestRouteRegistryMatchPrefersMostRecentlyRegistered(t *testing.T) {
	r := NewRouteRegistry()
	var seen []string

	r.Route("https://example.com/*", noopHandler("first", &seen))
	r.Route("https://example.com/*", noopHandler("second", &seen))

	h := r.match("https://example.com/a")
	if h == nil {
		t.Fatalf("expected a match")
	}
	if err := h(context.Background(), nil); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(seen) != 1 || seen[0] != "second" {
		t.Fatalf("expected the most recently registered handler to win, got %v", seen)
	}
}

func TestRouteRegistryPredicateMatch(t *testing.T) {
	r := NewRouteRegistry()
	var seen []string
	r.RoutePredicate(func(url string) bool {
		return len(url) > 20
	}, noopHandler("long", &seen))

	if r.match("https://x.com") != nil {
		t.Fatalf("short url should not match the predicate")
	}
	if r.match("https://example.com/a/very/long/path") == nil {
		t.Fatalf("long url should match the predicate")
	}
}

func TestRouteRegistryUnroute(t *testing.T) {
	r := NewRouteRegistry()
	var seen []string
	r.Route("https://example.com/*", noopHandler("h", &seen))
	if h := r.match("https://example.com/a"); h == nil {
		t.Fatalf("expected a match before Unroute")
	}
	r.Unroute("https://example.com/*")
	if h := r.match("https://example.com/a"); h != nil {
		t.Fatalf("expected no match after Unroute")
	}
}

func TestRouteRegistryUnrouteAll(t *testing.T) {
	r := NewRouteRegistry()
	var seen []string
	r.Route("https://a.com/*", noopHandler("a", &seen))
	r.Route("https://b.com/*", noopHandler("b", &seen))
	r.UnrouteAll()
	if h := r.match("https://a.com/x"); h != nil {
		t.Fatalf("expected no handlers left after UnrouteAll")
	}
}

func TestRouteRegistryMatchAllOrdersMostRecentFirst(t *testing.T) {
	r := NewRouteRegistry()
	var seen []string
	r.Route("https://example.com/*", noopHandler("first", &seen))
	r.Route("https://example.com/*", noopHandler("second", &seen))
	r.Route("https://example.com/*", noopHandler("third", &seen))

	chain := r.matchAll("https://example.com/a")
	if len(chain) != 3 {
		t.Fatalf("expected 3 matching handlers, got %d", len(chain))
	}
	for _, h := range chain {
		_ = h(context.Background(), nil)
	}
	if want := []string{"third", "second", "first"}; len(seen) != 3 || seen[0] != want[0] || seen[1] != want[1] || seen[2] != want[2] {
		t.Fatalf("expected matchAll order %v, got %v", want, seen)
	}
}

func TestRouteFallbackAdvancesToNextHandlerInChain(t *testing.T) {
	var order []string
	r := &Route{}
	r.state.Store(int32(routeMatched))
	r.chain = []RouteHandler{
		// The second handler decides the request's fate itself (simulated;
		// a real handler would call Continue/Fulfill/Abort here) rather
		// than falling back again, so this test never reaches a real CDP
		// dispatch call.
		func(_ context.Context, _ *Route) error {
			order = append(order, "second")
			return nil
		},
	}

	first := func(_ context.Context, rt *Route) error {
		order = append(order, "first")
		return rt.Fallback()
	}

	if err := first(context.Background(), r); err != nil {
		t.Fatalf("unexpected error walking the fallback chain: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected Fallback to advance through the chain in order, got %v", order)
	}
	if len(r.chain) != 0 {
		t.Fatalf("expected the chain to be consumed after Fallback, got %d remaining", len(r.chain))
	}
}

func TestRouteFallbackAfterTerminalTransitionFails(t *testing.T) {
	r := &Route{}
	r.state.Store(int32(routeAborted))
	if err := r.Fallback(); err != ErrRouteAlreadyHandled {
		t.Fatalf("expected Fallback after a terminal transition to fail with ErrRouteAlreadyHandled, got %v", err)
	}
}
