// internal/controller/modal.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const defaultBackdropClasses = "bg-gray-900/50 dark:bg-gray-900/80 fixed inset-0 z-40"

// ModalTrigger opens, closes or toggles a modal and manages focus while it
// is open.
type ModalTrigger struct {
	*TriggerController

	previousFocus *html.Node
	focusWatch    *dom.MutationObserver
	focusTimer    eventloop.Timer
}

// NewModalTrigger is the modal-trigger controller factory.
func NewModalTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		m := &ModalTrigger{TriggerController: newTrigger(ctx, deps, widget.KindModal)}
		m.self = m
		m.build = m.buildInstance
		return m
	}
}

func (m *ModalTrigger) buildInstance(target *html.Node) (widget.Widget, error) {
	c := m.ctx
	opts := widget.ModalOptions{
		Callbacks: widget.Callbacks{
			OnShow:   m.handleShow,
			OnHide:   m.handleHide,
			OnToggle: func() { m.DispatchInstanceEvent("toggle") },
		},
		Backdrop:        c.StringValue("backdrop", "dynamic"),
		BackdropClasses: c.StringValue("backdrop-classes", defaultBackdropClasses),
		Closable:        c.BoolValue("closable", true),
		Placement:       c.StringValue("placement", "top-center"),
	}
	return m.deps.Catalog.Modal(c.Doc(), target, nil, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
}

func (m *ModalTrigger) Connect() {
	m.TriggerController.Connect()
	m.listen(m.ctx.Element, "click", m.click)
}

func (m *ModalTrigger) Disconnect() {
	m.stopFocusWatch()
	m.TriggerController.Disconnect()
	m.previousFocus = nil
}

func (m *ModalTrigger) click(e *dom.Event) {
	if m.ctx.BoolValue("close-parent", false) {
		m.closeParent()
	}
	inst := m.Instance()
	if inst == nil {
		m.ctx.Logger.Warn("Modal trigger clicked without an instance.", zap.String("target", m.key.ID))
		return
	}
	switch action := m.ctx.StringValue("action", "toggle"); action {
	case "show":
		inst.Show()
	case "hide":
		inst.Hide()
	case "toggle":
		inst.Toggle()
	default:
		m.ctx.Logger.Warn("Unknown modal action.", zap.String("action", action))
	}
}

// closeParent hides the modal this trigger sits in before acting on its own
// target.
func (m *ModalTrigger) closeParent() {
	doc := m.ctx.Doc()
	parent := dom.Closest(m.ctx.Element.Parent, func(n *html.Node) bool {
		return HasController(n, TargetIdentifier(widget.KindModal))
	})
	if parent == nil {
		return
	}
	inst, ok := m.deps.Registry.Lookup(registry.Key{ID: dom.ID(parent), Kind: widget.KindModal})
	if !ok {
		return
	}
	doc.Focus(m.ctx.Element)
	inst.Hide()
}

// handleShow and handleHide run on the instance, which may outlive the
// trigger that built it; focus is managed by whichever trigger is live.
func (m *ModalTrigger) handleShow() {
	if live, ok := liveAs[*ModalTrigger](m.TriggerController); ok {
		live.captureFocus()
	}
	m.DispatchInstanceEvent("show")
}

func (m *ModalTrigger) handleHide() {
	if live, ok := liveAs[*ModalTrigger](m.TriggerController); ok {
		live.restoreFocus()
	}
	m.DispatchInstanceEvent("hide")
}

func (m *ModalTrigger) captureFocus() {
	m.previousFocus = m.ctx.Doc().ActiveElement()
	m.stopFocusWatch()
	m.focusTimer = m.timers.after(m.deps.Timing.ModalFocusDelay, m.startFocusWatch)
}

func (m *ModalTrigger) restoreFocus() {
	m.stopFocusWatch()
	prev := m.previousFocus
	m.previousFocus = nil
	if prev == nil || !m.ctx.Doc().Contains(prev) {
		return
	}
	m.timers.after(m.deps.Timing.FocusRestoreDelay, func() {
		if m.ctx.Doc().Contains(prev) {
			m.ctx.Doc().Focus(prev)
		}
	})
}

func (m *ModalTrigger) startFocusWatch() {
	m.focusTimer = nil
	target := m.targetElement
	if target == nil {
		m.ctx.Logger.Warn("Modal target disappeared before focus could be set.")
		return
	}
	m.focusFirst(target)
	// Content may stream in after the modal opens; retry when it does.
	m.focusWatch = m.ctx.Doc().Observe(target, dom.MutationOptions{
		ChildList:       true,
		Subtree:         true,
		Attributes:      true,
		AttributeFilter: []string{"autofocus"},
	}, func(rec dom.MutationRecord) {
		if len(rec.Added) > 0 || rec.Type == dom.MutationAttributes {
			m.focusFirst(target)
		}
	})
	m.focusTimer = m.timers.after(m.deps.Timing.FocusWatchTimeout, m.stopFocusWatch)
}

func (m *ModalTrigger) focusFirst(target *html.Node) {
	doc := m.ctx.Doc()
	if el := doc.FirstAutofocus(target); el != nil {
		doc.Focus(el)
		return
	}
	if el := doc.FirstFocusable(target); el != nil {
		doc.Focus(el)
	}
}

func (m *ModalTrigger) stopFocusWatch() {
	if m.focusWatch != nil {
		m.focusWatch.Disconnect()
		m.focusWatch = nil
	}
	if m.focusTimer != nil {
		m.timers.stop(m.focusTimer)
		m.focusTimer = nil
	}
}
