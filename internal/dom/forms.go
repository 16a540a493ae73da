// internal/dom/forms.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Form controls keep their live state in the document, on top of the markup
// defaults, the way a browser separates the value property from the value
// attribute.

func fieldType(n *html.Node) string {
	return strings.ToLower(AttrOr(n, "type", "text"))
}

// Value returns the current value of an input, textarea or select.
func (d *Document) Value(n *html.Node) string {
	if v, ok := d.values[n]; ok {
		return v
	}
	switch n.Data {
	case "textarea":
		return TextContent(n)
	case "select":
		opts := d.Options(n)
		idx := d.SelectedIndex(n)
		if idx >= 0 && idx < len(opts) {
			return AttrOr(opts[idx], "value", strings.TrimSpace(TextContent(opts[idx])))
		}
		return ""
	default:
		return AttrOr(n, "value", "")
	}
}

// SetValue sets the live value of a field.
func (d *Document) SetValue(n *html.Node, v string) {
	if n.Data == "select" {
		for i, opt := range d.Options(n) {
			if AttrOr(opt, "value", strings.TrimSpace(TextContent(opt))) == v {
				d.selected[n] = i
				delete(d.values, n)
				return
			}
		}
	}
	d.values[n] = v
}

// Checked returns the live checked state of a checkbox or radio.
func (d *Document) Checked(n *html.Node) bool {
	if c, ok := d.checked[n]; ok {
		return c
	}
	return HasAttr(n, "checked")
}

// SetChecked sets the live checked state.
func (d *Document) SetChecked(n *html.Node, checked bool) {
	d.checked[n] = checked
}

// Options returns the option elements of a select.
func (d *Document) Options(sel *html.Node) []*html.Node {
	return d.Query(sel, ".//option")
}

// SelectedIndex returns the selected option index, or -1 when the select has
// no options.
func (d *Document) SelectedIndex(sel *html.Node) int {
	if i, ok := d.selected[sel]; ok {
		return i
	}
	opts := d.Options(sel)
	if len(opts) == 0 {
		return -1
	}
	for i, opt := range opts {
		if HasAttr(opt, "selected") {
			return i
		}
	}
	return 0
}

// SetSelectedIndex selects the option at i.
func (d *Document) SetSelectedIndex(sel *html.Node, i int) {
	d.selected[sel] = i
	delete(d.values, sel)
}

// Fields returns every input, select and textarea below root.
func (d *Document) Fields(root *html.Node) []*html.Node {
	return d.Query(root, ".//*[self::input or self::select or self::textarea]")
}

// Forms returns every form below root.
func (d *Document) Forms(root *html.Node) []*html.Node {
	return d.Query(root, ".//form")
}

// ResetForm restores every field of form to its markup default and fires a
// reset event on the form.
func (d *Document) ResetForm(form *html.Node) {
	for _, f := range d.Fields(form) {
		delete(d.values, f)
		delete(d.checked, f)
		delete(d.selected, f)
	}
	d.Dispatch(form, &Event{Type: "reset", Bubbles: true, Cancelable: true})
}

// ClearFields empties every field below root, inside a form or not:
// checkboxes and radios are unchecked, buttons keep their value, selects go
// back to their first option.
func (d *Document) ClearFields(root *html.Node) {
	for _, f := range d.Fields(root) {
		switch f.Data {
		case "select":
			if len(d.Options(f)) > 0 {
				d.SetSelectedIndex(f, 0)
			}
		case "input":
			switch fieldType(f) {
			case "checkbox", "radio":
				d.SetChecked(f, false)
			case "submit", "button":
			default:
				d.SetValue(f, "")
			}
		default:
			d.SetValue(f, "")
		}
	}
}
