package chromelens

import (
	"strings"
	"testing"
)

func TestSelectorString(t *testing.T) {
	name := "Submit"
	tests := []struct {
		sel  Selector
		want string
	}{
		{Css("div.card"), "div.card"},
		{Text("hello", false), `text="hello"`},
		{Role(AriaRole("button"), nil), "role=button"},
		{Role(AriaRole("button"), &name), `role=button[name="Submit"]`},
		{TestID("save-btn"), `testid="save-btn"`},
		{Label("Email"), `label="Email"`},
		{Ref("e3"), "ref=e3"},
		{BackendNodeID(42), "backendNodeId=42"},
		{Nth(Css("li"), -1), "li >> nth=-1"},
		{Chained(Css("table"), Css("tr")), "table >> tr"},
	}
	for _, tt := range tests {
		if got := tt.sel.String(); got != tt.want {
			t.Errorf("Selector.String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSelectorCompileCSS(t *testing.T) {
	s := Css(`div[data-x="y"]`)
	js := s.ToJS()
	if !strings.Contains(js, "document.querySelectorAll") {
		t.Fatalf("compiled CSS selector missing querySelectorAll: %s", js)
	}
	if !strings.Contains(js, `div[data-x=\"y\"]`) {
		t.Fatalf("compiled CSS selector did not escape the pattern: %s", js)
	}
}

func TestSelectorCompileChainedScopesChild(t *testing.T) {
	s := Chained(Css("table"), Css("tr"))
	js := s.ToJS()
	// the child's querySelectorAll call must be flatMapped over the base's
	// result set, not issued against the whole document again.
	if !strings.Contains(js, "flatMap") {
		t.Fatalf("chained selector did not scope the child query: %s", js)
	}
}

func TestSelectorCompileNthClampsOutOfRange(t *testing.T) {
	s := Nth(Css("li"), 5)
	js := s.ToJS()
	if !strings.Contains(js, "__i>=0&&__i<__n.length") {
		t.Fatalf("nth selector missing bounds check: %s", js)
	}
}

func TestSelectorCompileRoleUsesAccessibleNameHelpers(t *testing.T) {
	name := "OK"
	s := Role(AriaRole("button"), &name)
	js := s.ToJS()
	for _, want := range []string{"__chromelensRole", "__chromelensAccessibleName"} {
		if !strings.Contains(js, want) {
			t.Errorf("role selector missing helper call %q: %s", want, js)
		}
	}
}

func TestSelectorCompileFilterTextNegation(t *testing.T) {
	base := Css("li")
	s := FilterText(base, "archived", false, true)
	js := s.ToJS()
	if !strings.Contains(js, "!(") {
		t.Fatalf("negated filter-text selector missing negation: %s", js)
	}
}

func TestSelectorRefAndBackendNodeIDCompileToEmpty(t *testing.T) {
	for _, s := range []Selector{Ref("e1"), BackendNodeID(7)} {
		if got := s.compile(""); got != "[]" {
			t.Errorf("compile() for out-of-band selector kind %v = %q, want []", s.Kind, got)
		}
	}
}
