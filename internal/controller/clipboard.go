// internal/controller/clipboard.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"golang.org/x/net/html"
)

// ClipboardTrigger copies its target's content and briefly swaps its icon
// and label to a success state.
type ClipboardTrigger struct {
	*TriggerController

	resetTimer eventloop.Timer
}

// NewClipboardTrigger is the clipboard-trigger controller factory.
func NewClipboardTrigger(deps Deps) Factory {
	return func(ctx *Context) Controller {
		c := &ClipboardTrigger{TriggerController: newTrigger(ctx, deps, widget.KindClipboard)}
		c.build = c.buildInstance
		return c
	}
}

func (c *ClipboardTrigger) buildInstance(target *html.Node) (widget.Widget, error) {
	ctx := c.ctx
	opts := widget.ClipboardOptions{
		Callbacks:    widget.Callbacks{OnCopy: c.handleCopy},
		ContentType:  ctx.StringValue("mode", "input"),
		HTMLEntities: ctx.BoolValue("html-entities", false),
	}
	return c.deps.Catalog.Clipboard(ctx.Doc(), target, ctx.Element, opts, widget.InstanceOptions{ID: dom.ID(target), Override: true}), nil
}

func (c *ClipboardTrigger) Disconnect() {
	c.TriggerController.Disconnect()
	c.resetTimer = nil
}

func (c *ClipboardTrigger) handleCopy() {
	if c.connected {
		c.showSuccess()
		if c.resetTimer != nil {
			c.timers.stop(c.resetTimer)
		}
		c.resetTimer = c.timers.after(c.deps.Timing.ClipboardResetDelay, func() {
			c.resetTimer = nil
			c.showDefault()
		})
	}
	c.DispatchInstanceEvent("copy")
}

func (c *ClipboardTrigger) showSuccess() {
	c.swap(c.ctx.StringValue("default-icon", ""), c.ctx.StringValue("success-icon", ""), c.ctx.StringValue("success-text", "Copied!"))
}

func (c *ClipboardTrigger) showDefault() {
	c.swap(c.ctx.StringValue("success-icon", ""), c.ctx.StringValue("default-icon", ""), c.ctx.StringValue("default-text", "Copy"))
}

func (c *ClipboardTrigger) swap(from, to, text string) {
	doc := c.ctx.Doc()
	if icon := c.ctx.Target("icon"); icon != nil {
		if from != "" {
			doc.RemoveClass(icon, from)
		}
		if to != "" {
			doc.AddClass(icon, to)
		}
	}
	if label := c.ctx.Target("label"); label != nil {
		doc.SetTextContent(label, text)
	}
}
