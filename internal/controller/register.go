// internal/controller/register.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/widget"
)

// RegisterWidgets registers the trigger and target controller of every
// widget kind, plus the resource-modal row action.
func RegisterWidgets(app *Application, deps Deps) {
	triggers := map[widget.Kind]func(Deps) Factory{
		widget.KindModal:     NewModalTrigger,
		widget.KindDrawer:    NewDrawerTrigger,
		widget.KindDropdown:  NewDropdownTrigger,
		widget.KindTooltip:   NewTooltipTrigger,
		widget.KindDismiss:   NewDismissTrigger,
		widget.KindCollapse:  NewCollapseTrigger,
		widget.KindClipboard: NewClipboardTrigger,
	}
	for _, kind := range widget.AllKinds() {
		if build, ok := triggers[kind]; ok {
			app.Register(TriggerIdentifier(kind), build(deps))
		}
		if kind == widget.KindDrawer {
			app.Register(TargetIdentifier(kind), NewDrawerTarget(deps))
			continue
		}
		k := kind
		app.Register(TargetIdentifier(k), func(ctx *Context) Controller {
			return NewTargetController(ctx, k, deps.Pairing)
		})
	}
	app.Register(ResourceModalIdentifier, NewResourceModal())
}
