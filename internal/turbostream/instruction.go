// internal/turbostream/instruction.go
package turbostream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"golang.org/x/net/html"
)

// ContentType is the media type of a stream response.
const ContentType = "text/vnd.turbo-stream.html"

// Built-in actions.
const (
	ActionAppend  = "append"
	ActionPrepend = "prepend"
	ActionReplace = "replace"
	ActionUpdate  = "update"
	ActionRemove  = "remove"
	ActionBefore  = "before"
	ActionAfter   = "after"
)

// MethodMorph asks replace and update to patch in place.
const MethodMorph = "morph"

// Instruction is one <turbo-stream> element.
type Instruction struct {
	Action string
	// Target is an element id.
	Target string
	// Targets is a selector matching several elements. It is used when
	// Target is empty.
	Targets  string
	Method   string
	Template string
	// Attrs holds every attribute of the element, including the ones above.
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (i Instruction) Attr(name string) string {
	return i.Attrs[name]
}

// IsMorph reports whether the instruction asks for an in-place patch.
func (i Instruction) IsMorph() bool {
	return i.Method == MethodMorph
}

func (i Instruction) String() string {
	if i.Target != "" {
		return i.Action + "#" + i.Target
	}
	return i.Action + "[" + i.Targets + "]"
}

// Parse extracts the stream instructions from a response body. Elements
// nested in another instruction's template are left to that template.
func Parse(body string) ([]Instruction, error) {
	root, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stream body: %w", err)
	}
	nodes, err := htmlquery.QueryAll(root, "//turbo-stream[not(ancestor::turbo-stream)]")
	if err != nil {
		return nil, fmt.Errorf("stream query failed: %w", err)
	}
	out := make([]Instruction, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, fromNode(n))
	}
	return out, nil
}

func fromNode(n *html.Node) Instruction {
	inst := Instruction{Attrs: make(map[string]string, len(n.Attr))}
	for _, a := range n.Attr {
		inst.Attrs[a.Key] = a.Val
	}
	inst.Action = strings.ToLower(strings.TrimSpace(inst.Attrs["action"]))
	inst.Target = inst.Attrs["target"]
	inst.Targets = inst.Attrs["targets"]
	inst.Method = strings.ToLower(inst.Attrs["method"])
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "template" {
			inst.Template = dom.InnerHTML(c)
			break
		}
	}
	return inst
}

var simpleSelector = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?(#[\w-]+)?((?:\.[\w-]+)*)$`)

// selectorXPath turns a simple CSS selector (tag, #id, .class and their
// compounds, comma separated) into XPath. Anything starting with "/" or "."
// followed by "/" is taken as XPath already.
func selectorXPath(sel string) (string, error) {
	sel = strings.TrimSpace(sel)
	if strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "./") {
		return sel, nil
	}
	var parts []string
	for _, s := range strings.Split(sel, ",") {
		s = strings.TrimSpace(s)
		m := simpleSelector.FindStringSubmatch(s)
		if s == "" || m == nil {
			return "", fmt.Errorf("unsupported selector %q", s)
		}
		tag := m[1]
		if tag == "" {
			tag = "*"
		}
		var preds []string
		if m[2] != "" {
			preds = append(preds, fmt.Sprintf("@id=%q", m[2][1:]))
		}
		for _, class := range strings.Split(m[3], ".") {
			if class != "" {
				preds = append(preds, fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", class))
			}
		}
		xp := "//" + tag
		for _, p := range preds {
			xp += "[" + p + "]"
		}
		parts = append(parts, xp)
	}
	return strings.Join(parts, " | "), nil
}
