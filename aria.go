package chromelens

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
)

// AriaCheckedState is the tri-state aria-checked value.
type AriaCheckedState int

// AriaCheckedState values.
const (
	AriaCheckedFalse AriaCheckedState = iota
	AriaCheckedTrue
	AriaCheckedMixed
)

// AriaNode is one node of an accessibility-tree snapshot: a role, an
// optional accessible name, a handful of state flags Playwright-style
// snapshots surface, and nested children in DOM order.
type AriaNode struct {
	Role      string
	Name      string
	HasName   bool
	Disabled  bool
	Checked   AriaCheckedState
	HasChecked bool
	Selected  bool
	Expanded  bool
	HasLevel  bool
	Level     int

	// IsFrame marks a node standing in for an <iframe>/frameOwner boundary;
	// FrameURL/FrameName are only meaningful on such a node.
	IsFrame   bool
	FrameURL  string
	FrameName string

	// Ref is the page-local identifier assigned when this node was
	// captured by a page-scope snapshot, empty for a frame-scope one.
	Ref string

	Children []*AriaNode
}

// refTablePrefix distinguishes chromelens-issued refs from anything a
// caller might otherwise type by hand.
const refTablePrefix = "e"

func (t *Target) nextRef() string {
	t.refMu.Lock()
	defer t.refMu.Unlock()
	t.refSeq++
	if t.refs == nil {
		t.refs = make(map[string]cdp.BackendNodeID)
	}
	return fmt.Sprintf("%s%d", refTablePrefix, t.refSeq)
}

func (t *Target) putRef(ref string, backend cdp.BackendNodeID) {
	t.refMu.Lock()
	defer t.refMu.Unlock()
	if t.refs == nil {
		t.refs = make(map[string]cdp.BackendNodeID)
	}
	t.refs[ref] = backend
}

// lookupRef resolves a ref string minted by a prior page-scope snapshot
// back to a backend node id.
func (t *Target) lookupRef(ref string) (cdp.BackendNodeID, bool) {
	t.refMu.Lock()
	defer t.refMu.Unlock()
	backend, ok := t.refs[ref]
	return backend, ok
}

// AriaSnapshotOptions configures Snapshot.
type AriaSnapshotOptions struct {
	// Interesting, when true, drops the nodes the browser marks as ignored
	// from the snapshot, splicing their children into the parent. The tree
	// is always fetched with Accessibility.getFullAXTree; when false (the
	// zero value) ignored nodes are kept.
	Interesting bool

	// PageScope, when true, assigns and records a resolvable ref on every
	// node that has a backend DOM node id, so the snapshot can be used as a
	// locator source afterward. A frame-scope snapshot (PageScope: false)
	// deliberately leaves Ref empty: its ref table would shadow the page's
	// own, and a frame's accessibility subtree is meant for comparison,
	// not resolution.
	PageScope bool
}

// Snapshot captures an accessibility-tree snapshot of the current document
// rooted in the target's top-level frame.
func Snapshot(opts AriaSnapshotOptions) Action {
	return ActionFunc(func(ctx context.Context) error {
		_, err := snapshot(ctx, opts)
		return err
	})
}

// CaptureSnapshot is Snapshot's non-Action form, returning the root node
// directly for callers composing it into other logic (diffing, GetByRef
// factories) without threading an out-parameter through an Action.
func CaptureSnapshot(ctx context.Context, opts AriaSnapshotOptions) (*AriaNode, error) {
	return snapshot(ctx, opts)
}

func snapshot(ctx context.Context, opts AriaSnapshotOptions) (*AriaNode, error) {
	t, err := targetFromContext(ctx)
	if err != nil {
		return nil, err
	}

	get := accessibility.GetFullAXTree()
	nodes, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoResults
	}

	byID := make(map[accessibility.NodeID]*accessibility.Node, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID] = n
	}

	var root *accessibility.Node
	for _, n := range nodes {
		if n.ParentID == "" {
			root = n
			break
		}
	}
	if root == nil {
		root = nodes[0]
	}

	var build func(n *accessibility.Node) *AriaNode
	build = func(n *accessibility.Node) *AriaNode {
		if opts.Interesting && n.Ignored {
			// Ignored nodes are skipped, but their children are spliced
			// into the parent's child list so the tree stays connected.
			var out []*AriaNode
			for _, cid := range n.ChildIds {
				if c, ok := byID[cid]; ok {
					if child := build(c); child != nil {
						out = append(out, child)
					}
				}
			}
			if len(out) == 1 {
				return out[0]
			}
			if len(out) == 0 {
				return nil
			}
			wrapper := &AriaNode{Role: "generic"}
			wrapper.Children = out
			return wrapper
		}

		node := axNodeToAria(n)
		if opts.PageScope && n.BackendDOMNodeID != 0 {
			ref := t.nextRef()
			node.Ref = ref
			t.putRef(ref, n.BackendDOMNodeID)
		}
		for _, cid := range n.ChildIds {
			if c, ok := byID[cid]; ok {
				if child := build(c); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node
	}

	return build(root), nil
}

func axNodeToAria(n *accessibility.Node) *AriaNode {
	node := &AriaNode{}
	if n.Role != nil {
		node.Role = axValueString(n.Role)
	}
	if n.Name != nil {
		s := axValueString(n.Name)
		node.Name = s
		node.HasName = s != ""
	}
	for _, p := range n.Properties {
		if p == nil {
			continue
		}
		switch string(p.Name) {
		case "disabled":
			node.Disabled = axValueBool(p.Value)
		case "checked":
			node.HasChecked = true
			switch axValueString(p.Value) {
			case "true":
				node.Checked = AriaCheckedTrue
			case "mixed":
				node.Checked = AriaCheckedMixed
			default:
				node.Checked = AriaCheckedFalse
			}
		case "selected":
			node.Selected = axValueBool(p.Value)
		case "expanded":
			node.Expanded = axValueBool(p.Value)
		case "level":
			if lv, err := strconv.Atoi(axValueString(p.Value)); err == nil {
				node.Level, node.HasLevel = lv, true
			}
		}
	}
	if node.Role == "Iframe" || node.Role == "iframe" {
		node.IsFrame = true
	}
	return node
}

func axValueString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err == nil {
		return s
	}
	return strings.Trim(string(v.Value), `"`)
}

func axValueBool(v *accessibility.Value) bool {
	return axValueString(v) == "true"
}

// ToYAML renders n in the Playwright-style indented YAML-like format used
// for snapshot assertions and diffs.
func (n *AriaNode) ToYAML() string {
	var b strings.Builder
	n.writeYAML(&b, 0)
	return b.String()
}

func (n *AriaNode) writeYAML(b *strings.Builder, indent int) {
	if n.Role == "" {
		for _, c := range n.Children {
			c.writeYAML(b, indent)
		}
		return
	}
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString("- ")
	b.WriteString(n.Role)
	if n.HasName {
		fmt.Fprintf(b, " %q", n.Name)
	}
	if n.Disabled {
		b.WriteString(" [disabled]")
	}
	if n.HasChecked {
		switch n.Checked {
		case AriaCheckedTrue:
			b.WriteString(" [checked]")
		case AriaCheckedMixed:
			b.WriteString(" [mixed]")
		}
	}
	if n.Selected {
		b.WriteString(" [selected]")
	}
	if n.Expanded {
		b.WriteString(" [expanded]")
	}
	if n.HasLevel {
		fmt.Fprintf(b, " [level=%d]", n.Level)
	}
	if n.IsFrame {
		b.WriteString(" [frame-boundary]")
		if n.FrameURL != "" {
			fmt.Fprintf(b, " [frame-url=%q]", n.FrameURL)
		}
		if n.FrameName != "" {
			fmt.Fprintf(b, " [frame-name=%q]", n.FrameName)
		}
	}
	if n.Ref != "" {
		fmt.Fprintf(b, " [ref=%s]", n.Ref)
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		c.writeYAML(b, indent+1)
	}
}

// ParseAriaYAML parses the format written by ToYAML, primarily so test
// expectations can be authored as literal YAML rather than built up with
// struct literals.
func ParseAriaYAML(yaml string) (*AriaNode, error) {
	type frame struct {
		indent int
		node   *AriaNode
	}
	// Role is deliberately "": writeYAML treats an empty-role node as a
	// transparent container and renders only its children, so this
	// synthetic wrapper never shows up in a re-serialised round trip.
	root := &AriaNode{}
	stack := []frame{{indent: -1, node: root}}

	for _, line := range strings.Split(yaml, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		leading := 0
		for leading < len(line) && line[leading] == ' ' {
			leading++
		}
		indent := leading / 2
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		content := strings.TrimSpace(trimmed[1:])

		node, err := parseAriaLine(content)
		if err != nil {
			return nil, err
		}

		for len(stack) > 1 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, node)
		stack = append(stack, frame{indent: indent, node: node})
	}

	return root, nil
}

func parseAriaLine(content string) (*AriaNode, error) {
	sp := strings.IndexByte(content, ' ')
	role := content
	rest := ""
	if sp >= 0 {
		role = content[:sp]
		rest = content[sp+1:]
	}
	if role == "" {
		return nil, &EvaluationError{Text: "empty role in aria snapshot line"}
	}
	node := &AriaNode{Role: role}

	if strings.HasPrefix(rest, `"`) {
		if name, remainder, err := strconv.QuotedPrefix(rest); err == nil {
			if unq, err := strconv.Unquote(name); err == nil {
				node.Name, node.HasName = unq, true
				rest = remainder
			}
		}
	}

	for _, part := range strings.Split(rest, "[") {
		end := strings.IndexByte(part, ']')
		if end < 0 {
			continue
		}
		attr := part[:end]
		switch {
		case attr == "disabled":
			node.Disabled = true
		case attr == "checked":
			node.HasChecked, node.Checked = true, AriaCheckedTrue
		case attr == "mixed":
			node.HasChecked, node.Checked = true, AriaCheckedMixed
		case attr == "selected":
			node.Selected = true
		case attr == "expanded":
			node.Expanded = true
		case attr == "frame-boundary":
			node.IsFrame = true
		case strings.HasPrefix(attr, "level="):
			if lv, err := strconv.Atoi(attr[len("level="):]); err == nil {
				node.Level, node.HasLevel = lv, true
			}
		case strings.HasPrefix(attr, "frame-url=\"") && strings.HasSuffix(attr, "\""):
			node.FrameURL = strings.ReplaceAll(attr[len(`frame-url="`):len(attr)-1], `\"`, `"`)
		case strings.HasPrefix(attr, "frame-name=\"") && strings.HasSuffix(attr, "\""):
			node.FrameName = strings.ReplaceAll(attr[len(`frame-name="`):len(attr)-1], `\"`, `"`)
		case strings.HasPrefix(attr, "ref="):
			node.Ref = attr[len("ref="):]
		}
	}

	return node, nil
}

// Matches reports whether n matches expected: expected's zero-valued
// fields are wildcards, its Name may carry a /pattern/flags regex, and
// Children are matched positionally as a prefix (expected may name fewer
// children than n has, not more).
func (n *AriaNode) Matches(expected *AriaNode) bool {
	if expected.Role != "" && n.Role != expected.Role {
		return false
	}
	if expected.HasName {
		if !n.HasName || !ariaNameMatches(expected.Name, n.Name) {
			return false
		}
	}
	if expected.Disabled && !n.Disabled {
		return false
	}
	if expected.HasChecked && (!n.HasChecked || n.Checked != expected.Checked) {
		return false
	}
	if expected.Selected && !n.Selected {
		return false
	}
	if expected.Expanded && !n.Expanded {
		return false
	}
	if expected.HasLevel && (!n.HasLevel || n.Level != expected.Level) {
		return false
	}
	if len(expected.Children) > len(n.Children) {
		return false
	}
	for i, ec := range expected.Children {
		if !n.Children[i].Matches(ec) {
			return false
		}
	}
	return true
}

// Diff returns a human-readable diff between n and expected, or "" if their
// YAML renderings are identical.
func (n *AriaNode) Diff(expected *AriaNode) string {
	actualYAML := n.ToYAML()
	expectedYAML := expected.ToYAML()
	if actualYAML == expectedYAML {
		return ""
	}
	var b strings.Builder
	b.WriteString("Expected:\n")
	for _, line := range strings.Split(expectedYAML, "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\nActual:\n")
	for _, line := range strings.Split(actualYAML, "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ariaNameMatches checks a name against a pattern that is either a literal
// string or a /regex/flags expression (currently only the "i" flag).
func ariaNameMatches(pattern, actual string) bool {
	if strings.HasPrefix(pattern, "/") {
		if end := strings.LastIndexByte(pattern, '/'); end > 0 {
			body, flags := pattern[1:end], pattern[end+1:]
			if strings.Contains(flags, "i") {
				body = "(?i)" + body
			}
			if re, err := regexp.Compile(body); err == nil {
				return re.MatchString(actual)
			}
		}
	}
	return pattern == actual
}
