// internal/dom/events.go
package dom

import (
	"golang.org/x/net/html"
)

// Event is a DOM event travelling from its target up through the ancestors.
type Event struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	Detail        map[string]any
	Bubbles       bool
	Cancelable    bool

	stopped          bool
	defaultPrevented bool
}

// NewCustomEvent builds a bubbling, cancelable event with the given detail.
func NewCustomEvent(name string, detail map[string]any) *Event {
	return &Event{Type: name, Detail: detail, Bubbles: true, Cancelable: true}
}

// StopPropagation prevents the event reaching further ancestors.
func (e *Event) StopPropagation() { e.stopped = true }

// PreventDefault marks a cancelable event as cancelled.
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// String returns Detail[key] as a string, or "".
func (e *Event) String(key string) string {
	if e.Detail == nil {
		return ""
	}
	s, _ := e.Detail[key].(string)
	return s
}

// Listener handles a dispatched event.
type Listener func(*Event)

type listenerEntry struct {
	eventType string
	fn        Listener
	removed   bool
}

// AddEventListener registers fn for events of eventType reaching target and
// returns a func that removes it. The remover is safe to call more than once.
func (d *Document) AddEventListener(target *html.Node, eventType string, fn Listener) func() {
	entry := &listenerEntry{eventType: eventType, fn: fn}
	d.listeners[target] = append(d.listeners[target], entry)
	return func() {
		if entry.removed {
			return
		}
		entry.removed = true
		list := d.listeners[target]
		for i, e := range list {
			if e == entry {
				d.listeners[target] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(d.listeners[target]) == 0 {
			delete(d.listeners, target)
		}
	}
}

// ListenerCount reports how many listeners of eventType are attached to
// target.
func (d *Document) ListenerCount(target *html.Node, eventType string) int {
	n := 0
	for _, e := range d.listeners[target] {
		if e.eventType == eventType && !e.removed {
			n++
		}
	}
	return n
}

// Dispatch delivers ev to target and, when it bubbles, to every ancestor. It
// returns false when a listener prevented the default action.
func (d *Document) Dispatch(target *html.Node, ev *Event) bool {
	ev.Target = target
	path := []*html.Node{target}
	if ev.Bubbles {
		for p := target.Parent; p != nil; p = p.Parent {
			path = append(path, p)
		}
	}
	for _, node := range path {
		ev.CurrentTarget = node
		// Snapshot so listeners added during dispatch wait for the next event.
		snapshot := append([]*listenerEntry(nil), d.listeners[node]...)
		for _, entry := range snapshot {
			if entry.removed || entry.eventType != ev.Type {
				continue
			}
			entry.fn(ev)
		}
		if ev.stopped {
			break
		}
	}
	return !ev.defaultPrevented
}

// DispatchDocument dispatches ev on the document node.
func (d *Document) DispatchDocument(ev *Event) bool {
	return d.Dispatch(d.root, ev)
}

// Click simulates a user click on n.
func (d *Document) Click(n *html.Node) bool {
	return d.Dispatch(n, &Event{Type: "click", Bubbles: true, Cancelable: true})
}

// KeyDown simulates a key press on n, or on the active element when n is nil.
func (d *Document) KeyDown(n *html.Node, key string) bool {
	if n == nil {
		n = d.ActiveElement()
	}
	return d.Dispatch(n, &Event{Type: "keydown", Bubbles: true, Cancelable: true, Detail: map[string]any{"key": key}})
}

// --- Focus ---

// ActiveElement returns the focused element, falling back to the body.
func (d *Document) ActiveElement() *html.Node {
	if d.active != nil && d.Contains(d.active) {
		return d.active
	}
	return d.Body()
}

// Focus moves focus to n. Detached nodes cannot take focus.
func (d *Document) Focus(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || !d.Contains(n) {
		return false
	}
	if d.active == n {
		return true
	}
	prev := d.active
	d.active = n
	if prev != nil && d.Contains(prev) {
		d.Dispatch(prev, &Event{Type: "blur"})
	}
	d.Dispatch(n, &Event{Type: "focus"})
	d.Dispatch(n, &Event{Type: "focusin", Bubbles: true})
	return true
}

// Blur clears focus.
func (d *Document) Blur() {
	prev := d.active
	d.active = nil
	if prev != nil && d.Contains(prev) {
		d.Dispatch(prev, &Event{Type: "blur"})
	}
}

const focusableXPath = `.//*[self::button or @href or self::input or self::select or self::textarea or (@tabindex and @tabindex!='-1')]`

// FirstAutofocus returns the first descendant marked autofocus.
func (d *Document) FirstAutofocus(root *html.Node) *html.Node {
	return d.QueryOne(root, ".//*[@autofocus]")
}

// FirstFocusable returns the first descendant that can take focus, in the
// order a user would tab through them.
func (d *Document) FirstFocusable(root *html.Node) *html.Node {
	return d.QueryOne(root, focusableXPath)
}
