// internal/widget/reference.go
package widget

import (
	"fmt"

	"github.com/xkilldash9x/morphkit/internal/dom"
	"golang.org/x/net/html"
)

// The reference widgets reproduce the visible contract of the widget library
// (classes, aria attributes, backdrops, callbacks) against the in-process
// document. They carry no timers, so they never need the event loop.

type base struct {
	doc       *dom.Document
	target    *html.Node
	trigger   *html.Node
	id        string
	visible   bool
	destroyed bool
	removers  []func()
}

func newBase(doc *dom.Document, target, trigger *html.Node, inst InstanceOptions) base {
	id := inst.ID
	if id == "" {
		id = dom.ID(target)
	}
	return base{doc: doc, target: target, trigger: trigger, id: id}
}

func (b *base) listen(n *html.Node, eventType string, fn dom.Listener) {
	if n == nil {
		return
	}
	b.removers = append(b.removers, b.doc.AddEventListener(n, eventType, fn))
}

// ID is the instance id the widget was registered under.
func (b *base) ID() string { return b.id }

// IsVisible reports the widget's own notion of visibility.
func (b *base) IsVisible() bool { return b.visible }

// Destroyed reports whether Destroy has run.
func (b *base) Destroyed() bool { return b.destroyed }

// Destroy removes every listener the widget installed.
func (b *base) Destroy() {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	b.destroyed = true
}

func (b *base) escapeListener(hide func()) func() {
	return b.doc.AddEventListener(b.doc.Root(), "keydown", func(e *dom.Event) {
		if e.String("key") == "Escape" {
			hide()
		}
	})
}

func (b *base) addBackdrop(classes, marker string, onClick func()) (*html.Node, func()) {
	backdrop := b.doc.CreateElement("div")
	backdrop.Attr = append(backdrop.Attr, html.Attribute{Key: marker, Val: ""})
	b.doc.AppendChild(b.doc.Body(), backdrop)
	b.doc.AddClass(backdrop, classes)
	remove := func() {}
	if onClick != nil {
		remove = b.doc.AddEventListener(backdrop, "click", func(*dom.Event) { onClick() })
	}
	return backdrop, remove
}

// --- Modal ---

// Modal is a dialog shown over a backdrop.
type Modal struct {
	base
	opts           ModalOptions
	backdrop       *html.Node
	removeBackdrop func()
	removeEscape   func()
}

// NewModal builds a modal over target.
func NewModal(doc *dom.Document, target, trigger *html.Node, opts ModalOptions, inst InstanceOptions) Widget {
	m := &Modal{base: newBase(doc, target, trigger, inst), opts: opts}
	m.visible = !dom.HasClass(target, "hidden")
	return m
}

func (m *Modal) Show() {
	if m.destroyed || m.visible {
		return
	}
	m.doc.RemoveClass(m.target, "hidden")
	m.doc.AddClass(m.target, "flex")
	m.doc.SetAttr(m.target, "aria-modal", "true")
	m.doc.SetAttr(m.target, "role", "dialog")
	m.doc.RemoveAttr(m.target, "aria-hidden")

	var onBackdrop func()
	if m.opts.Backdrop != "static" && m.opts.Closable {
		onBackdrop = m.Hide
	}
	m.backdrop, m.removeBackdrop = m.addBackdrop(m.opts.BackdropClasses, "modal-backdrop", onBackdrop)
	if m.opts.Closable {
		m.removeEscape = m.escapeListener(m.Hide)
	}

	m.visible = true
	call(m.opts.OnShow)
}

func (m *Modal) Hide() {
	if m.destroyed || !m.visible {
		return
	}
	m.doc.AddClass(m.target, "hidden")
	m.doc.RemoveClass(m.target, "flex")
	m.doc.SetAttr(m.target, "aria-hidden", "true")
	m.doc.RemoveAttr(m.target, "aria-modal")
	m.doc.RemoveAttr(m.target, "role")
	m.teardownOverlay()

	m.visible = false
	call(m.opts.OnHide)
}

func (m *Modal) Toggle() {
	if m.visible {
		m.Hide()
	} else {
		m.Show()
	}
	call(m.opts.OnToggle)
}

func (m *Modal) teardownOverlay() {
	if m.removeBackdrop != nil {
		m.removeBackdrop()
		m.removeBackdrop = nil
	}
	if m.backdrop != nil {
		m.doc.Remove(m.backdrop)
		m.backdrop = nil
	}
	if m.removeEscape != nil {
		m.removeEscape()
		m.removeEscape = nil
	}
}

func (m *Modal) Destroy() {
	m.teardownOverlay()
	m.base.Destroy()
}

// --- Drawer ---

var drawerHidden = map[string]string{
	"left":   "-translate-x-full",
	"right":  "translate-x-full",
	"top":    "-translate-y-full",
	"bottom": "translate-y-full",
}

// Drawer is a panel sliding in from one edge.
type Drawer struct {
	base
	opts           DrawerOptions
	activeClass    string
	inactiveClass  string
	backdrop       *html.Node
	removeBackdrop func()
	removeEscape   func()
}

// NewDrawer builds a drawer over target and puts it in its hidden state.
func NewDrawer(doc *dom.Document, target, trigger *html.Node, opts DrawerOptions, inst InstanceOptions) Widget {
	d := &Drawer{base: newBase(doc, target, trigger, inst), opts: opts}
	switch {
	case opts.Edge:
		d.activeClass = "translate-y-0"
		d.inactiveClass = "translate-y-full " + opts.EdgeOffset
	default:
		d.activeClass = "transform-none"
		d.inactiveClass = drawerHidden[opts.Placement]
		if d.inactiveClass == "" {
			d.inactiveClass = drawerHidden["left"]
		}
	}
	doc.RemoveClass(target, d.activeClass)
	doc.AddClass(target, d.inactiveClass)
	doc.SetAttr(target, "aria-hidden", "true")
	return d
}

func (d *Drawer) Show() {
	if d.destroyed || d.visible {
		return
	}
	d.doc.RemoveClass(d.target, d.inactiveClass)
	d.doc.AddClass(d.target, d.activeClass)
	d.doc.SetAttr(d.target, "aria-modal", "true")
	d.doc.SetAttr(d.target, "role", "dialog")
	d.doc.RemoveAttr(d.target, "aria-hidden")
	if !d.opts.BodyScrolling {
		d.doc.AddClass(d.doc.Body(), "overflow-hidden")
	}
	if d.opts.Backdrop {
		d.backdrop, d.removeBackdrop = d.addBackdrop(d.opts.BackdropClasses, "drawer-backdrop", d.Hide)
	}
	d.removeEscape = d.escapeListener(d.Hide)

	d.visible = true
	call(d.opts.OnShow)
}

func (d *Drawer) Hide() {
	if d.destroyed || !d.visible {
		return
	}
	d.doc.RemoveClass(d.target, d.activeClass)
	d.doc.AddClass(d.target, d.inactiveClass)
	d.doc.SetAttr(d.target, "aria-hidden", "true")
	d.doc.RemoveAttr(d.target, "aria-modal")
	d.doc.RemoveAttr(d.target, "role")
	if !d.opts.BodyScrolling {
		d.doc.RemoveClass(d.doc.Body(), "overflow-hidden")
	}
	d.teardownOverlay()

	d.visible = false
	call(d.opts.OnHide)
}

func (d *Drawer) Toggle() {
	if d.visible {
		d.Hide()
	} else {
		d.Show()
	}
	call(d.opts.OnToggle)
}

func (d *Drawer) teardownOverlay() {
	if d.removeBackdrop != nil {
		d.removeBackdrop()
		d.removeBackdrop = nil
	}
	if d.backdrop != nil {
		d.doc.Remove(d.backdrop)
		d.backdrop = nil
	}
	if d.removeEscape != nil {
		d.removeEscape()
		d.removeEscape = nil
	}
}

func (d *Drawer) Destroy() {
	d.teardownOverlay()
	d.base.Destroy()
}

// --- Dropdown ---

// Dropdown is a menu anchored to its trigger.
type Dropdown struct {
	base
	opts DropdownOptions
}

// NewDropdown builds a dropdown and wires its trigger.
func NewDropdown(doc *dom.Document, target, trigger *html.Node, opts DropdownOptions, inst InstanceOptions) Widget {
	d := &Dropdown{base: newBase(doc, target, trigger, inst), opts: opts}
	d.visible = !dom.HasClass(target, "hidden")

	switch opts.TriggerType {
	case "hover":
		d.listen(trigger, "mouseenter", func(*dom.Event) { d.Show() })
		d.listen(target, "mouseenter", func(*dom.Event) { d.Show() })
		d.listen(trigger, "mouseleave", func(*dom.Event) { d.Hide() })
	case "none":
	default:
		d.listen(trigger, "click", func(*dom.Event) { d.Toggle() })
	}
	d.listen(doc.Root(), "click", d.clickOutside)
	return d
}

func (d *Dropdown) clickOutside(e *dom.Event) {
	if !d.visible || e.Target == nil {
		return
	}
	if dom.IsAncestor(d.target, e.Target) || (d.trigger != nil && dom.IsAncestor(d.trigger, e.Target)) {
		return
	}
	if cls := d.opts.IgnoreClickOutsideClass; cls != "" {
		if dom.Closest(e.Target, func(n *html.Node) bool { return dom.HasClass(n, cls) }) != nil {
			return
		}
	}
	d.Hide()
}

func (d *Dropdown) Show() {
	if d.destroyed || d.visible {
		return
	}
	d.doc.RemoveClass(d.target, "hidden")
	d.doc.AddClass(d.target, "block")
	if d.trigger != nil {
		d.doc.SetAttr(d.trigger, "aria-expanded", "true")
	}
	d.visible = true
	call(d.opts.OnShow)
}

func (d *Dropdown) Hide() {
	if d.destroyed || !d.visible {
		return
	}
	d.doc.RemoveClass(d.target, "block")
	d.doc.AddClass(d.target, "hidden")
	if d.trigger != nil {
		d.doc.SetAttr(d.trigger, "aria-expanded", "false")
	}
	d.visible = false
	call(d.opts.OnHide)
}

func (d *Dropdown) Toggle() {
	if d.visible {
		d.Hide()
	} else {
		d.Show()
	}
	call(d.opts.OnToggle)
}

// --- Tooltip ---

// Tooltip is a bubble shown next to its trigger.
type Tooltip struct {
	base
	opts TooltipOptions
}

// NewTooltip builds a tooltip and wires its trigger.
func NewTooltip(doc *dom.Document, target, trigger *html.Node, opts TooltipOptions, inst InstanceOptions) Widget {
	t := &Tooltip{base: newBase(doc, target, trigger, inst), opts: opts}
	switch opts.TriggerType {
	case "click":
		t.listen(trigger, "click", func(*dom.Event) { t.Toggle() })
	case "none":
	default:
		t.listen(trigger, "mouseenter", func(*dom.Event) { t.Show() })
		t.listen(trigger, "focus", func(*dom.Event) { t.Show() })
		t.listen(trigger, "mouseleave", func(*dom.Event) { t.Hide() })
		t.listen(trigger, "blur", func(*dom.Event) { t.Hide() })
	}
	return t
}

func (t *Tooltip) Show() {
	if t.destroyed || t.visible {
		return
	}
	t.doc.RemoveClass(t.target, "opacity-0", "invisible")
	t.doc.AddClass(t.target, "opacity-100", "visible")
	t.visible = true
	call(t.opts.OnShow)
}

func (t *Tooltip) Hide() {
	if t.destroyed || !t.visible {
		return
	}
	t.doc.RemoveClass(t.target, "opacity-100", "visible")
	t.doc.AddClass(t.target, "opacity-0", "invisible")
	t.visible = false
	call(t.opts.OnHide)
}

func (t *Tooltip) Toggle() {
	if t.visible {
		t.Hide()
	} else {
		t.Show()
	}
	call(t.opts.OnToggle)
}

// --- Dismiss ---

// Dismiss fades an element out of the page. The controller owns the trigger
// click, so the widget installs no listeners of its own.
type Dismiss struct {
	base
	opts DismissOptions
}

// NewDismiss builds a dismissible element.
func NewDismiss(doc *dom.Document, target, trigger *html.Node, opts DismissOptions, inst InstanceOptions) Widget {
	d := &Dismiss{base: newBase(doc, target, trigger, inst), opts: opts}
	d.visible = !dom.HasClass(target, "hidden")
	return d
}

func (d *Dismiss) Show() {
	if d.destroyed || d.visible {
		return
	}
	d.doc.RemoveClass(d.target, "hidden", "opacity-0")
	d.visible = true
	call(d.opts.OnShow)
}

func (d *Dismiss) Hide() {
	if d.destroyed || !d.visible {
		return
	}
	d.doc.AddClass(d.target, d.opts.Transition, fmt.Sprintf("duration-%d", d.opts.Duration), d.opts.Timing, "opacity-0", "hidden")
	d.visible = false
	call(d.opts.OnHide)
}

func (d *Dismiss) Toggle() {
	if d.visible {
		d.Hide()
	} else {
		d.Show()
	}
	call(d.opts.OnToggle)
}

// --- Collapse ---

// Collapse expands and collapses a region from its trigger.
type Collapse struct {
	base
	opts CollapseOptions
}

// NewCollapse builds a collapse. The initial state comes from the trigger's
// aria-expanded attribute.
func NewCollapse(doc *dom.Document, target, trigger *html.Node, opts CollapseOptions, inst InstanceOptions) Widget {
	c := &Collapse{base: newBase(doc, target, trigger, inst), opts: opts}
	c.visible = dom.AttrOr(trigger, "aria-expanded", "") == "true"
	c.listen(trigger, "click", func(*dom.Event) { c.Toggle() })
	return c
}

func (c *Collapse) Show() {
	if c.destroyed || c.visible {
		return
	}
	c.doc.RemoveClass(c.target, "hidden")
	if c.trigger != nil {
		c.doc.SetAttr(c.trigger, "aria-expanded", "true")
	}
	c.visible = true
	call(c.opts.OnExpand)
}

func (c *Collapse) Hide() {
	if c.destroyed || !c.visible {
		return
	}
	c.doc.AddClass(c.target, "hidden")
	if c.trigger != nil {
		c.doc.SetAttr(c.trigger, "aria-expanded", "false")
	}
	c.visible = false
	call(c.opts.OnCollapse)
}

func (c *Collapse) Toggle() {
	if c.visible {
		c.Hide()
	} else {
		c.Show()
	}
	call(c.opts.OnToggle)
}

// --- Clipboard ---

// ClipboardButton copies the content of its target when the trigger is
// clicked. It has no visible state of its own.
type ClipboardButton struct {
	base
	opts ClipboardOptions
	clip Clipboard
}

// NewClipboard builds a copy button.
func NewClipboard(doc *dom.Document, target, trigger *html.Node, opts ClipboardOptions, inst InstanceOptions, clip Clipboard) Widget {
	c := &ClipboardButton{base: newBase(doc, target, trigger, inst), opts: opts, clip: clip}
	c.listen(trigger, "click", func(*dom.Event) { c.Copy() })
	return c
}

// Value returns the text that Copy would write.
func (c *ClipboardButton) Value() string {
	var text string
	switch c.opts.ContentType {
	case "innerHTML":
		text = dom.InnerHTML(c.target)
	case "textContent":
		text = dom.TextContent(c.target)
	default:
		text = c.doc.Value(c.target)
	}
	if c.opts.HTMLEntities {
		text = html.UnescapeString(text)
	}
	return text
}

// Copy writes the target's content to the clipboard.
func (c *ClipboardButton) Copy() string {
	if c.destroyed {
		return ""
	}
	text := c.Value()
	if err := c.clip.WriteText(text); err != nil {
		return ""
	}
	call(c.opts.OnCopy)
	return text
}

func (c *ClipboardButton) Show()   {}
func (c *ClipboardButton) Hide()   {}
func (c *ClipboardButton) Toggle() {}
