package chromelens

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SelectorKind discriminates the variants of Selector.
type SelectorKind int

// Selector variants. See Selector for field usage per kind.
const (
	SelectorCSS SelectorKind = iota
	SelectorText
	SelectorRole
	SelectorTestID
	SelectorTestIDCustom
	SelectorLabel
	SelectorPlaceholder
	SelectorAltText
	SelectorTitle
	SelectorChained
	SelectorNth
	SelectorFilterText
	SelectorFilterHas
	SelectorRef
	SelectorBackendNodeID
)

// AriaRole is an ARIA role name used by Selector{Kind: SelectorRole}. It is a
// plain string type rather than a closed enum: CDP's accessibility tree
// reports roles chromelens doesn't need to validate ahead of time.
type AriaRole string

// Selector is a discriminated union describing how to find elements in the
// page. It is the compilation unit of the locator engine: every Locator
// carries exactly one Selector value, and Locator methods that narrow or
// chain a selection build a new Selector wrapping the previous one rather
// than mutating it, so a Locator is a cheap, shareable, re-evaluatable
// value.
//
// Only the fields relevant to Kind are populated; see the Selector
// constructor functions (Css, Text, Role, ...) below for the supported
// combinations.
type Selector struct {
	Kind SelectorKind

	// CSS, TestID, Label, Placeholder, Ref hold a single string payload.
	Str string

	// Text, AltText, Title, FilterText carry text plus an exactness flag.
	Text  string
	Exact bool

	// Role and its optional accessible-name filter.
	Role AriaRole
	Name *string

	// TestIDCustom's attribute name.
	Attr string

	// Chained/Nth/FilterText/FilterHas wrap a base selector.
	Base *Selector

	// Chained's and FilterHas's child/descendant selector.
	Child *Selector

	// Nth's index; negative counts from the end (-1 = last).
	Index int

	// FilterText's/FilterHas's negation flag ("has not").
	Negate bool

	// BackendNodeID's payload.
	BackendNodeID int64
}

// Css builds a Selector matching a plain CSS selector string.
func Css(sel string) Selector { return Selector{Kind: SelectorCSS, Str: sel} }

// Text builds a Selector matching elements whose textContent contains text,
// ignoring case, or, if exact, equals it once trimmed of surrounding
// whitespace.
func Text(text string, exact bool) Selector {
	return Selector{Kind: SelectorText, Text: text, Exact: exact}
}

// Role builds a Selector matching elements with the given ARIA role,
// optionally narrowed by accessible name.
func Role(role AriaRole, name *string) Selector {
	return Selector{Kind: SelectorRole, Role: role, Name: name}
}

// TestID builds a Selector matching the default test-id attribute
// (data-testid).
func TestID(id string) Selector { return Selector{Kind: SelectorTestID, Str: id} }

// TestIDCustom builds a Selector matching a custom test-id attribute.
func TestIDCustom(id, attr string) Selector {
	return Selector{Kind: SelectorTestIDCustom, Str: id, Attr: attr}
}

// Label builds a Selector matching a form control by its associated label
// text.
func Label(text string) Selector { return Selector{Kind: SelectorLabel, Str: text} }

// Placeholder builds a Selector matching an input by placeholder text.
func Placeholder(text string) Selector { return Selector{Kind: SelectorPlaceholder, Str: text} }

// AltText builds a Selector matching an image by alt text.
func AltText(text string, exact bool) Selector {
	return Selector{Kind: SelectorAltText, Text: text, Exact: exact}
}

// Title builds a Selector matching an element by title attribute.
func Title(text string, exact bool) Selector {
	return Selector{Kind: SelectorTitle, Text: text, Exact: exact}
}

// Chained builds a Selector that evaluates child against the result nodes
// of base, rather than against the whole document.
func Chained(base, child Selector) Selector {
	return Selector{Kind: SelectorChained, Base: &base, Child: &child}
}

// Nth builds a Selector that picks a single element from base's results at
// index (0-based; negative counts from the end, -1 = last). An
// out-of-range index yields an empty result, not an error.
func Nth(base Selector, index int) Selector {
	return Selector{Kind: SelectorNth, Base: &base, Index: index}
}

// FilterText builds a Selector that keeps (or, if negate, discards)
// elements of base whose text content contains (or, if exact, equals)
// text.
func FilterText(base Selector, text string, exact, negate bool) Selector {
	return Selector{Kind: SelectorFilterText, Base: &base, Text: text, Exact: exact, Negate: negate}
}

// FilterHas builds a Selector that keeps (or, if negate, discards) elements
// of base that have a descendant matching child.
func FilterHas(base, child Selector, negate bool) Selector {
	return Selector{Kind: SelectorFilterHas, Base: &base, Child: &child, Negate: negate}
}

// Ref builds a Selector resolving a single element previously captured by
// an ARIA snapshot via its library-issued ref string.
func Ref(ref string) Selector { return Selector{Kind: SelectorRef, Str: ref} }

// BackendNodeID builds a Selector resolving a single element by its
// browser-internal backend node id.
func BackendNodeID(id int64) Selector {
	return Selector{Kind: SelectorBackendNodeID, BackendNodeID: id}
}

// String renders a human-readable description of the selector, used in
// error messages (NotFoundError, timeouts) so a log line is enough to
// diagnose a failed locator without reproducing the whole chain.
func (s Selector) String() string {
	switch s.Kind {
	case SelectorCSS:
		return s.Str
	case SelectorText:
		return fmt.Sprintf("text=%q", s.Text)
	case SelectorRole:
		if s.Name != nil {
			return fmt.Sprintf("role=%s[name=%q]", s.Role, *s.Name)
		}
		return fmt.Sprintf("role=%s", s.Role)
	case SelectorTestID:
		return fmt.Sprintf("testid=%q", s.Str)
	case SelectorTestIDCustom:
		return fmt.Sprintf("%s=%q", s.Attr, s.Str)
	case SelectorLabel:
		return fmt.Sprintf("label=%q", s.Str)
	case SelectorPlaceholder:
		return fmt.Sprintf("placeholder=%q", s.Str)
	case SelectorAltText:
		return fmt.Sprintf("alt=%q", s.Text)
	case SelectorTitle:
		return fmt.Sprintf("title=%q", s.Text)
	case SelectorChained:
		return s.Base.String() + " >> " + s.Child.String()
	case SelectorNth:
		return fmt.Sprintf("%s >> nth=%d", s.Base.String(), s.Index)
	case SelectorFilterText:
		verb := "has-text"
		if s.Negate {
			verb = "has-not-text"
		}
		return fmt.Sprintf("%s[%s=%q]", s.Base.String(), verb, s.Text)
	case SelectorFilterHas:
		verb := "has"
		if s.Negate {
			verb = "has-not"
		}
		return fmt.Sprintf("%s[%s=%s]", s.Base.String(), verb, s.Child.String())
	case SelectorRef:
		return fmt.Sprintf("ref=%s", s.Str)
	case SelectorBackendNodeID:
		return fmt.Sprintf("backendNodeId=%d", s.BackendNodeID)
	}
	return "<unknown selector>"
}

// jsString JSON-encodes s for safe embedding in a JS template, the same
// escaping discipline the value-marshalling trait in value.go applies to
// evaluate() arguments.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// compile returns a JS expression which evaluates (in the main world of the
// target frame) to an array of candidate DOM elements. scope, when
// non-empty, is a JS expression for the array of nodes to restrict the
// search to (used by Chained to implement scope restriction rather than a
// fresh document-wide query).
func (s Selector) compile(scope string) string {
	switch s.Kind {
	case SelectorCSS:
		if scope == "" {
			return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", jsString(s.Str))
		}
		return fmt.Sprintf(
			"(%s).flatMap(function(el){return Array.from(el.querySelectorAll(%s));})",
			scope, jsString(s.Str))

	case SelectorText:
		return textMatchExpr(scope, s.Text, s.Exact)

	case SelectorRole:
		return roleMatchExpr(scope, s.Role, s.Name)

	case SelectorTestID:
		return attrMatchExpr(scope, defaultTestIDAttribute, s.Str, true)

	case SelectorTestIDCustom:
		return attrMatchExpr(scope, s.Attr, s.Str, true)

	case SelectorLabel:
		return labelMatchExpr(scope, s.Str)

	case SelectorPlaceholder:
		return attrMatchExpr(scope, "placeholder", s.Str, false)

	case SelectorAltText:
		return attrMatchExprExact(scope, "alt", s.Text, s.Exact)

	case SelectorTitle:
		return attrMatchExprExact(scope, "title", s.Text, s.Exact)

	case SelectorChained:
		base := s.Base.compile(scope)
		return s.Child.compile(base)

	case SelectorNth:
		base := s.Base.compile(scope)
		return fmt.Sprintf("(function(){var __n=(%s);var __i=%d;if(__i<0){__i=__n.length+__i;}return (__i>=0&&__i<__n.length)?[__n[__i]]:[];})()", base, s.Index)

	case SelectorFilterText:
		base := s.Base.compile(scope)
		pred := textPredicate(s.Text, s.Exact)
		cond := fmt.Sprintf("(%s)(el)", pred)
		if s.Negate {
			cond = "!" + cond
		}
		return fmt.Sprintf("(%s).filter(function(el){return %s;})", base, cond)

	case SelectorFilterHas:
		base := s.Base.compile(scope)
		childExpr := s.Child.compile("[el]")
		cond := fmt.Sprintf("(%s).length>0", childExpr)
		if s.Negate {
			cond = "!(" + cond + ")"
		}
		return fmt.Sprintf("(%s).filter(function(el){return %s;})", base, cond)

	case SelectorRef, SelectorBackendNodeID:
		// Resolved out-of-band via DOM.resolveNode by Locator.resolveAll
		// and Locator.tryResolveFirst; compiled on their own they match
		// nothing.
		return "[]"
	}
	return "[]"
}

// defaultTestIDAttribute is the attribute TestID selectors match against.
const defaultTestIDAttribute = "data-testid"

func textPredicate(text string, exact bool) string {
	needle := jsString(text)
	if exact {
		return fmt.Sprintf("(function(t){return function(el){return (el.textContent||'').trim()===t;};})(%s)", needle)
	}
	return fmt.Sprintf("(function(t){return function(el){return (el.textContent||'').toLowerCase().indexOf(t.toLowerCase())!==-1;};})(%s)", needle)
}

func textMatchExpr(scope, text string, exact bool) string {
	src := "Array.from(document.querySelectorAll('*'))"
	if scope != "" {
		src = fmt.Sprintf("(%s)", scope)
	}
	pred := textPredicate(text, exact)
	return fmt.Sprintf("(%s).filter(%s)", src, pred)
}

func roleMatchExpr(scope string, role AriaRole, name *string) string {
	src := "Array.from(document.querySelectorAll('[role],a,button,input,select,textarea,h1,h2,h3,h4,h5,h6,img,nav,main,header,footer,ul,ol,li'))"
	if scope != "" {
		src = fmt.Sprintf("(%s)", scope)
	}
	nameArg := "null"
	if name != nil {
		nameArg = jsString(*name)
	}
	return fmt.Sprintf(
		"(%s).filter((function(role,name){return function(el){if(__chromelensRole(el)!==role)return false;if(name===null)return true;return (__chromelensAccessibleName(el)||'').trim()===name.trim();};})(%s,%s))",
		src, jsString(string(role)), nameArg)
}

func attrMatchExpr(scope, attr, value string, exact bool) string {
	src := fmt.Sprintf("Array.from(document.querySelectorAll('[%s]'))", attr)
	if scope != "" {
		src = fmt.Sprintf("(%s).filter(function(el){return el.hasAttribute(%s);})", scope, jsString(attr))
	}
	cmp := fmt.Sprintf("(el.getAttribute(%s)||'')===v", jsString(attr))
	if !exact {
		cmp = fmt.Sprintf("(el.getAttribute(%s)||'').indexOf(v)!==-1", jsString(attr))
	}
	return fmt.Sprintf("(%s).filter((function(v){return function(el){return %s;};})(%s))", src, cmp, jsString(value))
}

func attrMatchExprExact(scope, attr, value string, exact bool) string {
	return attrMatchExpr(scope, attr, value, exact)
}

func labelMatchExpr(scope, text string) string {
	src := "Array.from(document.querySelectorAll('input,select,textarea'))"
	if scope != "" {
		src = fmt.Sprintf("(%s)", scope)
	}
	return fmt.Sprintf(
		`(%s).filter((function(t){return function(el){
			var byFor=null;
			if(el.id){var lbl=document.querySelector('label[for='+JSON.stringify(el.id)+']');if(lbl)byFor=lbl;}
			var byWrap=el.closest('label');
			var text=((byFor&&byFor.textContent)||(byWrap&&byWrap.textContent)||'').trim().toLowerCase();
			return text.indexOf(t.toLowerCase())!==-1;
		};})(%s))`, src, jsString(text))
}

// ariaHelpersJS defines the small helper functions the role matcher above
// calls into; it is prepended once per evaluation via
// wrapWithHelpers so the generated expressions stay self-contained without
// repeating this logic inline at every Role() compile site.
const ariaHelpersJS = `
function __chromelensRole(el){
	var explicit=el.getAttribute&&el.getAttribute('role');
	if(explicit)return explicit;
	var tag=(el.tagName||'').toLowerCase();
	switch(tag){
		case 'a': return el.hasAttribute('href')?'link':'generic';
		case 'button': return 'button';
		case 'input':
			var t=(el.getAttribute('type')||'text').toLowerCase();
			if(t==='checkbox')return 'checkbox';
			if(t==='radio')return 'radio';
			if(t==='button'||t==='submit')return 'button';
			return 'textbox';
		case 'select': return 'combobox';
		case 'textarea': return 'textbox';
		case 'img': return 'img';
		case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
		case 'nav': return 'navigation';
		case 'main': return 'main';
		case 'header': return 'banner';
		case 'footer': return 'contentinfo';
		case 'ul': case 'ol': return 'list';
		case 'li': return 'listitem';
		default: return 'generic';
	}
}
function __chromelensAccessibleName(el){
	var labelledby=el.getAttribute&&el.getAttribute('aria-labelledby');
	if(labelledby){
		var parts=labelledby.split(/\s+/).map(function(id){var n=document.getElementById(id);return n?n.textContent:'';});
		var joined=parts.join(' ').trim();
		if(joined)return joined;
	}
	var label=el.getAttribute&&el.getAttribute('aria-label');
	if(label)return label;
	if(el.tagName==='IMG')return el.getAttribute('alt')||'';
	return (el.textContent||'').trim();
}
`

// wrapWithHelpers wraps a compiled selector expression so that it can call
// the aria helper functions defined in ariaHelpersJS, returning a single
// self-contained IIFE body suitable for Runtime.callFunctionOn /
// Runtime.evaluate.
func wrapWithHelpers(expr string) string {
	var b strings.Builder
	b.WriteString("(function(){")
	b.WriteString(ariaHelpersJS)
	b.WriteString("return (")
	b.WriteString(expr)
	b.WriteString(");})()")
	return b.String()
}

// ToJS returns the JavaScript expression (already wrapped with the aria
// helper functions it may depend on) that evaluates to the array of
// elements matching s.
func (s Selector) ToJS() string {
	return wrapWithHelpers(s.compile(""))
}
