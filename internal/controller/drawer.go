// internal/controller/drawer.go
package controller

import (
	"time"

	"github.com/xkilldash9x/morphkit/internal/bus"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const switchTransitionClass = "!transition-none"

// DrawerTrigger drives a drawer, keeps an optional icon in sync with its
// visibility and can switch between two drawers.
type DrawerTrigger struct {
	*TriggerController
}

// NewDrawerTrigger is the drawer-trigger controller factory.
func NewDrawerTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		d := &DrawerTrigger{TriggerController: newTrigger(ctx, deps, widget.KindDrawer)}
		d.self = d
		d.build = d.buildInstance
		return d
	}
}

func (d *DrawerTrigger) buildInstance(target *html.Node) (widget.Widget, error) {
	c := d.ctx
	opts := widget.DrawerOptions{
		Callbacks: widget.Callbacks{
			OnShow:   func() { d.handle("show") },
			OnHide:   func() { d.handle("hide") },
			OnToggle: func() { d.handle("toggle") },
		},
		Placement:       c.StringValue("placement", "left"),
		BodyScrolling:   c.BoolValue("body-scrolling", false),
		Backdrop:        c.BoolValue("backdrop", true),
		Edge:            c.BoolValue("edge", false),
		EdgeOffset:      c.StringValue("edge-offset", "bottom-[60px]"),
		BackdropClasses: c.StringValue("backdrop-classes", "bg-gray-900/50 dark:bg-gray-900/80 fixed inset-0 z-30"),
	}
	return d.deps.Catalog.Drawer(c.Doc(), target, nil, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
}

func (d *DrawerTrigger) Connect() {
	d.TriggerController.Connect()
	d.listen(d.ctx.Element, "click", d.click)
}

func (d *DrawerTrigger) click(e *dom.Event) {
	action := d.ctx.StringValue("action", "toggle")
	if action == "switch-drawer" {
		el := d.ctx.Element
		d.SwitchDrawers(dom.AttrOr(el, "data-switch-from-drawer-id", ""), dom.AttrOr(el, "data-switch-to-drawer-id", ""))
		return
	}
	inst := d.Instance()
	if inst == nil {
		d.ctx.Logger.Warn("Drawer trigger clicked without an instance.", zap.String("target", d.key.ID))
		return
	}
	switch action {
	case "show":
		inst.Show()
	case "hide":
		inst.Hide()
	case "toggle":
		inst.Toggle()
	default:
		d.ctx.Logger.Warn("Unknown drawer action.", zap.String("action", action))
	}
}

func (d *DrawerTrigger) handle(name string) {
	if live, ok := liveAs[*DrawerTrigger](d.TriggerController); ok {
		live.syncIcon()
	}
	d.DispatchInstanceEvent(name)
}

func (d *DrawerTrigger) syncIcon() {
	icon := d.ctx.Target("icon")
	inst := d.current()
	if icon == nil || inst == nil {
		return
	}
	visible := inst.IsVisible()
	doc := d.ctx.Doc()
	if open := d.ctx.StringValue("icon-class-open", ""); open != "" {
		doc.ToggleClass(icon, open, !visible)
	}
	if closed := d.ctx.StringValue("icon-class-close", ""); closed != "" {
		doc.ToggleClass(icon, closed, visible)
	}
}

// SwitchDrawers hides one drawer and shows another with transitions
// suppressed, restoring them after the configured delay.
func (d *DrawerTrigger) SwitchDrawers(fromID, toID string) {
	doc := d.ctx.Doc()
	from, to := doc.GetElementByID(fromID), doc.GetElementByID(toID)
	if from == nil || to == nil {
		d.ctx.Logger.Warn("Drawer switch references a missing element.", zap.String("from", fromID), zap.String("to", toID))
		return
	}
	app := d.ctx.App()
	fromCtrl, _ := app.ControllerFor(from, TargetIdentifier(widget.KindDrawer))
	toCtrl, _ := app.ControllerFor(to, TargetIdentifier(widget.KindDrawer))
	fromDrawer, _ := fromCtrl.(*DrawerTarget)
	toDrawer, _ := toCtrl.(*DrawerTarget)
	if toDrawer == nil || toDrawer.Instance() == nil {
		d.ctx.Logger.Warn("Drawer switch target has no instance.", zap.String("to", toID))
		return
	}

	doc.AddClass(from, switchTransitionClass)
	doc.AddClass(to, switchTransitionClass)
	if fromDrawer != nil {
		fromDrawer.Hide()
	}
	toDrawer.Show()
	d.timers.after(d.deps.Timing.DrawerSwitchDelay, func() {
		doc.RemoveClass(from, switchTransitionClass)
		doc.RemoveClass(to, switchTransitionClass)
	})
}

// DrawerTarget is the drawer-target controller. Besides publishing the
// instance it resets forms and focuses the first autofocus field.
type DrawerTarget struct {
	*TargetController
	deps Deps

	streamActiveUntil time.Time
	timers            *timerSet
	removers          []func()
}

// NewDrawerTarget is the drawer-target controller factory.
func NewDrawerTarget(deps Deps) Factory {
	return func(ctx *Context) Controller {
		d := &DrawerTarget{
			TargetController: NewTargetController(ctx, widget.KindDrawer, deps.Pairing),
			deps:             deps,
		}
		d.owner = d
		return d
	}
}

func (d *DrawerTarget) Connect() {
	d.timers = newTimerSet(d.ctx.Loop())
	d.TargetController.Connect()
	doc := d.ctx.Doc()
	d.removers = append(d.removers,
		doc.AddEventListener(doc.Root(), EventBeforeStreamRender, d.markStreamActive),
		doc.AddEventListener(d.ctx.Element, "turbo:submit-end", func(e *dom.Event) {
			if ok, _ := e.Detail["success"].(bool); ok {
				d.HandleSuccess()
			}
		}),
		d.deps.Bus.Subscribe(bus.Topic{Source: d.key.ID, Name: "drawer:show"}, func(bus.Message) {
			d.FocusFirstAutofocusField()
		}),
	)
}

func (d *DrawerTarget) Disconnect() {
	d.timers.stopAll()
	for _, remove := range d.removers {
		remove()
	}
	d.removers = nil
	d.TargetController.Disconnect()
}

func (d *DrawerTarget) markStreamActive(*dom.Event) {
	d.streamActiveUntil = d.ctx.Loop().Now().Add(d.deps.Timing.StreamActiveWindow)
}

func (d *DrawerTarget) streamActive() bool {
	return d.ctx.Loop().Now().Before(d.streamActiveUntil)
}

// Hide hides the drawer if an instance is published.
func (d *DrawerTarget) Hide() {
	if inst := d.Instance(); inst != nil {
		inst.Hide()
	}
}

// Show shows the drawer if an instance is published.
func (d *DrawerTarget) Show() {
	if inst := d.Instance(); inst != nil {
		inst.Show()
	}
}

// FocusFirstAutofocusField focuses the first [autofocus] descendant. Right
// after a stream render the focus waits one frame so the patched content is
// in place; otherwise it waits the client-side delay.
func (d *DrawerTarget) FocusFirstAutofocusField() {
	doc := d.ctx.Doc()
	field := doc.FirstAutofocus(d.ctx.Element)
	if field == nil {
		return
	}
	delay := d.deps.Timing.DrawerFocusDelay
	if d.streamActive() {
		delay = d.deps.Timing.FrameDelay
	}
	d.timers.after(delay, func() {
		if doc.Contains(field) {
			doc.Focus(field)
		}
	})
}

// ResetForms resets the form targets, or every form in the drawer when none
// are declared, then refocuses.
func (d *DrawerTarget) ResetForms() {
	doc := d.ctx.Doc()
	forms := d.ctx.Targets("form")
	if len(forms) == 0 {
		forms = doc.Forms(d.ctx.Element)
	}
	for _, f := range forms {
		doc.ResetForm(f)
	}
	d.FocusFirstAutofocusField()
}

// HandleSuccess runs after a successful form submission inside the drawer.
func (d *DrawerTarget) HandleSuccess() {
	d.ResetForms()
}
