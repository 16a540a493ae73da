// internal/controller/morph.go
package controller

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
)

// Morph notifications emitted by the page patcher.
const (
	EventBeforeMorphElement   = "turbo:before-morph-element"
	EventBeforeMorphAttribute = "turbo:before-morph-attribute"
	EventMorph                = "turbo:morph"
	EventBeforeStreamRender   = "turbo:before-stream-render"
)

// MorphAware controllers are told when an element is about to be
// structurally patched and when the whole patch has finished.
type MorphAware interface {
	BeforeMorph(e *dom.Event)
	AfterMorph(e *dom.Event)
}

// ConnectMorphEvents subscribes c to the document's morph notifications and
// returns the function that removes both listeners.
func ConnectMorphEvents(doc *dom.Document, c MorphAware) func() {
	root := doc.Root()
	removeBefore := doc.AddEventListener(root, EventBeforeMorphElement, c.BeforeMorph)
	removeAfter := doc.AddEventListener(root, EventMorph, c.AfterMorph)
	return func() {
		removeBefore()
		removeAfter()
	}
}
