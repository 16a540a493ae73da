// internal/controller/simple.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"golang.org/x/net/html"
)

// TooltipTrigger attaches a tooltip. The widget itself listens to the
// trigger element.
type TooltipTrigger struct {
	*TriggerController
}

// NewTooltipTrigger is the tooltip-trigger controller factory.
func NewTooltipTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		t := &TooltipTrigger{TriggerController: newTrigger(ctx, deps, widget.KindTooltip)}
		t.build = func(target *html.Node) (widget.Widget, error) {
			opts := widget.TooltipOptions{
				Callbacks:   t.eventCallbacks(),
				Placement:   ctx.StringValue("placement", "top"),
				TriggerType: ctx.StringValue("trigger-type", "hover"),
			}
			return deps.Catalog.Tooltip(ctx.Doc(), target, ctx.Element, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
		}
		return t
	}
}

// CollapseTrigger attaches an accordion-style collapse.
type CollapseTrigger struct {
	*TriggerController
}

// NewCollapseTrigger is the collapse-trigger controller factory.
func NewCollapseTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		c := &CollapseTrigger{TriggerController: newTrigger(ctx, deps, widget.KindCollapse)}
		c.build = func(target *html.Node) (widget.Widget, error) {
			opts := widget.CollapseOptions{
				Callbacks: widget.Callbacks{
					OnCollapse: func() { c.DispatchInstanceEvent("collapse") },
					OnExpand:   func() { c.DispatchInstanceEvent("expand") },
					OnToggle:   func() { c.DispatchInstanceEvent("toggle") },
				},
			}
			return deps.Catalog.Collapse(ctx.Doc(), target, ctx.Element, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
		}
		return c
	}
}

func (t *TriggerController) eventCallbacks() widget.Callbacks {
	return widget.Callbacks{
		OnShow:   func() { t.DispatchInstanceEvent("show") },
		OnHide:   func() { t.DispatchInstanceEvent("hide") },
		OnToggle: func() { t.DispatchInstanceEvent("toggle") },
	}
}
