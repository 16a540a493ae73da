// internal/controller/dismiss.go
package controller

import (
	"time"

	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"golang.org/x/net/html"
)

// DismissTrigger hides a dismissible element on click or after a timeout,
// and hands focus back to wherever it was before the dismiss button took it.
type DismissTrigger struct {
	*TriggerController

	autoHide  eventloop.Timer
	lastFocus *html.Node
}

// NewDismissTrigger is the dismiss-trigger controller factory.
func NewDismissTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		d := &DismissTrigger{TriggerController: newTrigger(ctx, deps, widget.KindDismiss)}
		d.build = d.buildInstance
		return d
	}
}

func (d *DismissTrigger) buildInstance(target *html.Node) (widget.Widget, error) {
	c := d.ctx
	opts := widget.DismissOptions{
		Callbacks: widget.Callbacks{
			OnHide: d.handleHide,
		},
		Transition: c.StringValue("transition", "transition-opacity"),
		Duration:   c.IntValue("duration", 300),
		Timing:     c.StringValue("timing", "ease-out"),
	}
	return d.deps.Catalog.Dismiss(c.Doc(), target, c.Element, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
}

func (d *DismissTrigger) Connect() {
	d.TriggerController.Connect()
	d.listen(d.ctx.Element, "click", d.click)
	if poll := d.deps.Timing.DismissFocusPoll; poll > 0 {
		d.timers.every(poll, d.trackFocus)
	}
	if ms := d.ctx.IntValue("auto-hide-timeout", 0); ms > 0 {
		d.autoHide = d.timers.after(time.Duration(ms)*time.Millisecond, func() {
			d.autoHide = nil
			d.hide()
		})
	}
}

func (d *DismissTrigger) Disconnect() {
	d.TriggerController.Disconnect()
	d.autoHide = nil
	d.lastFocus = nil
}

func (d *DismissTrigger) click(*dom.Event) { d.hide() }

func (d *DismissTrigger) hide() {
	if inst := d.Instance(); inst != nil {
		inst.Hide()
	}
}

// trackFocus remembers the active element unless focus is on the trigger or
// inside the element being dismissed.
func (d *DismissTrigger) trackFocus() {
	active := d.ctx.Doc().ActiveElement()
	if active == nil || active == d.ctx.Element {
		return
	}
	if d.targetElement != nil && (active == d.targetElement || dom.IsAncestor(d.targetElement, active)) {
		return
	}
	d.lastFocus = active
}

func (d *DismissTrigger) handleHide() {
	if d.connected {
		if d.autoHide != nil {
			d.timers.stop(d.autoHide)
			d.autoHide = nil
		}
		if prev := d.lastFocus; prev != nil && d.ctx.Doc().Contains(prev) {
			d.ctx.Doc().Focus(prev)
		}
	}
	d.DispatchInstanceEvent("hide")
}
