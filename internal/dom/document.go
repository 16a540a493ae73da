// internal/dom/document.go
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document owns an HTML tree together with the browser-side state that the
// tree itself cannot hold: listeners, focus, observers and form values.
//
// A Document is not safe for concurrent use. Every call must happen on the
// event loop that owns it.
type Document struct {
	root *html.Node

	listeners map[*html.Node][]*listenerEntry
	active    *html.Node

	observers     []*MutationObserver
	intersections map[*html.Node][]*IntersectionObserver

	values   map[*html.Node]string
	checked  map[*html.Node]bool
	selected map[*html.Node]int
}

// NewDocument wraps an already parsed tree. The root should be a DocumentNode.
func NewDocument(root *html.Node) *Document {
	return &Document{
		root:          root,
		listeners:     make(map[*html.Node][]*listenerEntry),
		intersections: make(map[*html.Node][]*IntersectionObserver),
		values:        make(map[*html.Node]string),
		checked:       make(map[*html.Node]bool),
		selected:      make(map[*html.Node]int),
	}
}

// Parse reads a full HTML page.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return NewDocument(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node. Document-wide events are dispatched on it.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the body element, or the root when there is none.
func (d *Document) Body() *html.Node {
	if body := htmlquery.FindOne(d.root, "//body"); body != nil {
		return body
	}
	return d.root
}

// Render serializes the whole document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the whole document, ignoring errors.
func (d *Document) String() string {
	var sb strings.Builder
	_ = d.Render(&sb)
	return sb.String()
}

// --- Lookup ---

// GetElementByID returns the first connected element with the given id.
func (d *Document) GetElementByID(id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	Walk(d.root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && AttrOr(n, "id", "") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Query evaluates an XPath expression relative to ctx. Invalid expressions
// match nothing.
func (d *Document) Query(ctx *html.Node, expr string) []*html.Node {
	if ctx == nil {
		ctx = d.root
	}
	nodes, err := htmlquery.QueryAll(ctx, expr)
	if err != nil {
		return nil
	}
	return nodes
}

// QueryOne returns the first match of expr relative to ctx, or nil.
func (d *Document) QueryOne(ctx *html.Node, expr string) *html.Node {
	if ctx == nil {
		ctx = d.root
	}
	node, err := htmlquery.Query(ctx, expr)
	if err != nil {
		return nil
	}
	return node
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Closest walks from n up through its ancestors and returns the first
// element satisfying match.
func Closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}

// IsAncestor reports whether a is n or one of its ancestors.
func IsAncestor(a, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from
// visit skips the node's children.
func Walk(n *html.Node, visit func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, visit)
		c = next
	}
}

// Elements returns n and every element below it in document order.
func Elements(n *html.Node) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
		return true
	})
	return out
}

// --- Attributes ---

// Attr returns the value of the named attribute and whether it is present.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or def when it is absent.
func AttrOr(n *html.Node, name, def string) string {
	if v, ok := Attr(n, name); ok {
		return v
	}
	return def
}

// HasAttr reports whether the attribute is present.
func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// ID returns the element's id attribute.
func ID(n *html.Node) string { return AttrOr(n, "id", "") }

// SetAttr sets an attribute and notifies attribute observers.
func (d *Document) SetAttr(n *html.Node, name, value string) {
	old, had := Attr(n, name)
	if had && old == value {
		return
	}
	if had {
		for i := range n.Attr {
			if n.Attr[i].Namespace == "" && n.Attr[i].Key == name {
				n.Attr[i].Val = value
				break
			}
		}
	} else {
		n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
	}
	d.notify(MutationRecord{Type: MutationAttributes, Target: n, AttributeName: name, OldValue: old})
}

// RemoveAttr deletes an attribute and notifies attribute observers.
func (d *Document) RemoveAttr(n *html.Node, name string) {
	old, had := Attr(n, name)
	if !had {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
	d.notify(MutationRecord{Type: MutationAttributes, Target: n, AttributeName: name, OldValue: old})
}

// Classes returns the element's class tokens.
func Classes(n *html.Node) []string {
	return strings.Fields(AttrOr(n, "class", ""))
}

// HasClass reports whether the element carries the class token.
func HasClass(n *html.Node, class string) bool {
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass adds each non-empty token that is not already present.
func (d *Document) AddClass(n *html.Node, classes ...string) {
	current := Classes(n)
	changed := false
	for _, class := range classes {
		for _, token := range strings.Fields(class) {
			if !contains(current, token) {
				current = append(current, token)
				changed = true
			}
		}
	}
	if changed {
		d.SetAttr(n, "class", strings.Join(current, " "))
	}
}

// RemoveClass removes every listed token.
func (d *Document) RemoveClass(n *html.Node, classes ...string) {
	var drop []string
	for _, class := range classes {
		drop = append(drop, strings.Fields(class)...)
	}
	current := Classes(n)
	kept := current[:0]
	for _, c := range current {
		if !contains(drop, c) {
			kept = append(kept, c)
		}
	}
	if len(kept) != len(Classes(n)) {
		d.SetAttr(n, "class", strings.Join(kept, " "))
	}
}

// ToggleClass adds the class when force is true and removes it otherwise.
func (d *Document) ToggleClass(n *html.Node, class string, force bool) {
	if force {
		d.AddClass(n, class)
	} else {
		d.RemoveClass(n, class)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- Tree mutation ---

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// ParseFragment parses markup in the context of ctx.
func (d *Document) ParseFragment(ctx *html.Node, markup string) ([]*html.Node, error) {
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = d.Body()
		if ctx.Type != html.ElementNode {
			ctx = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
		}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	return nodes, nil
}

// AppendChild detaches child from wherever it is and appends it to parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child before ref, or at the end when ref is nil.
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	if child.Parent != nil {
		d.RemoveChild(child.Parent, child)
	}
	parent.InsertBefore(child, ref)
	d.notify(MutationRecord{Type: MutationChildList, Target: parent, Added: []*html.Node{child}})
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) {
	if child.Parent != parent {
		return
	}
	parent.RemoveChild(child)
	d.forget(child)
	d.notify(MutationRecord{Type: MutationChildList, Target: parent, Removed: []*html.Node{child}})
}

// Remove detaches n from its parent, if any.
func (d *Document) Remove(n *html.Node) {
	if n.Parent != nil {
		d.RemoveChild(n.Parent, n)
	}
}

// ReplaceWith puts nodes where n was and detaches n.
func (d *Document) ReplaceWith(n *html.Node, nodes ...*html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for _, c := range nodes {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
	d.forget(n)
	d.notify(MutationRecord{Type: MutationChildList, Target: parent, Added: nodes, Removed: []*html.Node{n}})
}

// ReplaceChildren swaps every child of parent for nodes as a single mutation.
func (d *Document) ReplaceChildren(parent *html.Node, nodes ...*html.Node) {
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, c := range nodes {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		parent.AppendChild(c)
	}
	for _, r := range removed {
		d.forget(r)
	}
	if len(removed) == 0 && len(nodes) == 0 {
		return
	}
	d.notify(MutationRecord{Type: MutationChildList, Target: parent, Added: nodes, Removed: removed})
}

// SetInnerHTML replaces the children of n with the parsed markup.
func (d *Document) SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := d.ParseFragment(n, markup)
	if err != nil {
		return err
	}
	d.ReplaceChildren(n, nodes...)
	return nil
}

// SetTextContent replaces the children of n with a single text node.
func (d *Document) SetTextContent(n *html.Node, text string) {
	if text == "" {
		d.ReplaceChildren(n)
		return
	}
	d.ReplaceChildren(n, &html.Node{Type: html.TextNode, Data: text})
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// OuterHTML serializes n itself.
func OuterHTML(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

// TextContent returns the concatenated text below n.
func TextContent(n *html.Node) string {
	return htmlquery.InnerText(n)
}

// CloneNode copies n, and its subtree when deep is set.
func CloneNode(n *html.Node, deep bool) *html.Node {
	if n == nil {
		return nil
	}
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(CloneNode(c, true))
		}
	}
	return clone
}

// forget drops per-node state for a detached subtree so removed elements do
// not keep focus or stale form values.
func (d *Document) forget(n *html.Node) {
	Walk(n, func(c *html.Node) bool {
		if c == d.active {
			d.active = nil
		}
		delete(d.values, c)
		delete(d.checked, c)
		delete(d.selected, c)
		return true
	})
}
