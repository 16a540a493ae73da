// internal/controller/resource.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
	"go.uber.org/zap"
)

// Lazy frame identifiers shared with the loader.
const (
	LazyFrameIdentifier     = "lazy-frame"
	EventLazyFrameReload    = "lazy-frame:request-reload"
	ResourceModalIdentifier = "resource-modal"
)

// ResourceModal is a row action that points the lazy frame inside a modal at
// a new path before the modal opens.
type ResourceModal struct {
	ctx    *Context
	remove func()
}

// NewResourceModal is the resource-modal controller factory.
func NewResourceModal() Factory {
	return func(ctx *Context) Controller {
		return &ResourceModal{ctx: ctx}
	}
}

func (r *ResourceModal) Connect() {
	r.remove = r.ctx.Doc().AddEventListener(r.ctx.Element, "click", func(*dom.Event) { r.Open() })
}

func (r *ResourceModal) Disconnect() {
	if r.remove != nil {
		r.remove()
		r.remove = nil
	}
}

// Open asks the lazy frame inside the outlet modal to reload from the path
// value.
func (r *ResourceModal) Open() {
	doc := r.ctx.Doc()
	id := r.ctx.Outlet()
	modal := doc.GetElementByID(id)
	if modal == nil {
		r.ctx.Logger.Error("Resource modal target not found.", zap.String("id", id))
		return
	}
	frame := doc.QueryOne(modal, ".//*[contains(concat(' ', normalize-space(@data-controller), ' '), ' "+LazyFrameIdentifier+" ')]")
	if frame == nil {
		r.ctx.Logger.Error("No lazy frame inside resource modal.", zap.String("id", id))
		return
	}
	doc.Dispatch(frame, dom.NewCustomEvent(EventLazyFrameReload, map[string]any{
		"url": r.ctx.StringValue("path", ""),
	}))
}
