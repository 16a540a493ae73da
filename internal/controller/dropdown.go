// internal/controller/dropdown.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"golang.org/x/net/html"
)

// DropdownTrigger wires a dropdown menu. Clicking an item closes the menu and
// Escape closes it while open.
type DropdownTrigger struct {
	*TriggerController

	itemRemovers []func()
	removeEscape func()
}

// NewDropdownTrigger is the dropdown-trigger controller factory.
func NewDropdownTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		d := &DropdownTrigger{TriggerController: newTrigger(ctx, deps, widget.KindDropdown)}
		d.self = d
		d.build = d.buildInstance
		d.created = func(widget.Widget) { d.setupItemListeners() }
		d.handover = d.handOver
		return d
	}
}

func (d *DropdownTrigger) buildInstance(target *html.Node) (widget.Widget, error) {
	c := d.ctx
	opts := widget.DropdownOptions{
		Callbacks: widget.Callbacks{
			OnShow:   d.handleShow,
			OnHide:   d.handleHide,
			OnToggle: func() { d.DispatchInstanceEvent("toggle") },
		},
		Placement:               c.StringValue("placement", "bottom"),
		TriggerType:             c.StringValue("trigger-type", "click"),
		OffsetSkidding:          c.IntValue("offset-skidding", 0),
		OffsetDistance:          c.IntValue("offset-distance", 10),
		Delay:                   c.IntValue("delay", 300),
		IgnoreClickOutsideClass: c.StringValue("ignore-click-outside-class", ""),
	}
	return d.deps.Catalog.Dropdown(c.Doc(), target, c.Element, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
}

func (d *DropdownTrigger) setupItemListeners() {
	d.removeItemListeners()
	doc := d.ctx.Doc()
	items := doc.Query(d.targetElement, ".//*[(self::a or self::button) and not(@data-dropdown-ignore-click)]")
	for _, item := range items {
		d.itemRemovers = append(d.itemRemovers, doc.AddEventListener(item, "click", d.itemClicked))
	}
}

func (d *DropdownTrigger) removeItemListeners() {
	for _, remove := range d.itemRemovers {
		remove()
	}
	d.itemRemovers = nil
}

func (d *DropdownTrigger) itemClicked(*dom.Event) {
	if inst := d.current(); inst != nil && inst.IsVisible() {
		inst.Hide()
	}
}

func (d *DropdownTrigger) handleShow() {
	if live, ok := liveAs[*DropdownTrigger](d.TriggerController); ok {
		live.listenForEscape()
	}
	d.DispatchInstanceEvent("show")
}

func (d *DropdownTrigger) handleHide() {
	if live, ok := liveAs[*DropdownTrigger](d.TriggerController); ok {
		live.removeEscapeListener()
	}
	d.DispatchInstanceEvent("hide")
}

func (d *DropdownTrigger) listenForEscape() {
	if d.removeEscape != nil {
		return
	}
	doc := d.ctx.Doc()
	d.removeEscape = doc.AddEventListener(doc.Root(), "keydown", func(e *dom.Event) {
		if e.String("key") != "Escape" {
			return
		}
		if inst := d.current(); inst != nil && inst.IsVisible() {
			inst.Hide()
		}
	})
}

func (d *DropdownTrigger) removeEscapeListener() {
	if d.removeEscape != nil {
		d.removeEscape()
		d.removeEscape = nil
	}
}

// handOver moves the item and Escape listeners to the trigger that still
// holds the menu, or drops them with the last reference.
func (d *DropdownTrigger) handOver(heir *TriggerController) {
	hadItems := d.itemRemovers != nil
	escaping := d.removeEscape != nil
	d.removeItemListeners()
	d.removeEscapeListener()
	if heir == nil {
		return
	}
	next, ok := heir.self.(*DropdownTrigger)
	if !ok {
		return
	}
	if hadItems {
		next.setupItemListeners()
	}
	if escaping {
		next.listenForEscape()
	}
}
