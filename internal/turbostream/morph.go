// internal/turbostream/morph.go
package turbostream

import (
	"github.com/xkilldash9x/morphkit/internal/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// The morph keeps node identity wherever the old and new trees line up.
// Attribute differences are patched in place. When the children of an
// element no longer line up (different count, node types, tags or ids) the
// element is announced with turbo:before-morph-element and its children are
// swapped wholesale. A single turbo:morph closes the transaction.

// Morph patches el to look like replacement.
func (r *Renderer) Morph(el, replacement *html.Node) {
	morphID := r.newID()
	result := el
	if !sameElement(el, replacement) {
		if r.beforeMorphElement(el, replacement, morphID) {
			r.doc.ReplaceWith(el, replacement)
			result = replacement
		}
	} else {
		r.morphElement(el, replacement, morphID)
	}
	r.finish(result, morphID)
}

// MorphChildren patches the children of el to match nodes.
func (r *Renderer) MorphChildren(el *html.Node, nodes []*html.Node) {
	morphID := r.newID()
	r.morphChildren(el, nodes, morphID)
	r.finish(el, morphID)
}

func (r *Renderer) finish(target *html.Node, morphID string) {
	r.logger.Debug("Morph complete.", zap.String("morph_id", morphID), zap.String("target", dom.ID(target)))
	r.doc.DispatchDocument(dom.NewCustomEvent(EventMorph, map[string]any{
		"morphId": morphID,
		"target":  target,
	}))
}

func (r *Renderer) morphElement(el, next *html.Node, morphID string) {
	r.morphAttributes(el, next)
	var nodes []*html.Node
	for c := next.FirstChild; c != nil; c = c.NextSibling {
		nodes = append(nodes, c)
	}
	r.morphChildren(el, nodes, morphID)
}

func (r *Renderer) morphAttributes(el, next *html.Node) {
	for _, a := range next.Attr {
		if a.Namespace != "" {
			continue
		}
		if old, ok := dom.Attr(el, a.Key); ok && old == a.Val {
			continue
		}
		if r.beforeMorphAttribute(el, a.Key, "update") {
			r.doc.SetAttr(el, a.Key, a.Val)
		}
	}
	var stale []string
	for _, a := range el.Attr {
		if a.Namespace == "" && !dom.HasAttr(next, a.Key) {
			stale = append(stale, a.Key)
		}
	}
	for _, name := range stale {
		if r.beforeMorphAttribute(el, name, "remove") {
			r.doc.RemoveAttr(el, name)
		}
	}
}

func (r *Renderer) morphChildren(el *html.Node, nodes []*html.Node, morphID string) {
	var old []*html.Node
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		old = append(old, c)
	}
	if !sameShape(old, nodes) {
		if r.beforeMorphElement(el, el, morphID) {
			r.doc.ReplaceChildren(el, nodes...)
		}
		return
	}
	for i, o := range old {
		n := nodes[i]
		switch o.Type {
		case html.ElementNode:
			r.morphElement(o, n, morphID)
		case html.TextNode, html.CommentNode:
			if o.Data != n.Data {
				o.Data = n.Data
			}
		}
	}
}

func (r *Renderer) beforeMorphElement(el, next *html.Node, morphID string) bool {
	return r.doc.Dispatch(el, dom.NewCustomEvent(EventBeforeMorphElement, map[string]any{
		"morphId":    morphID,
		"newElement": next,
	}))
}

func (r *Renderer) beforeMorphAttribute(el *html.Node, name, mutation string) bool {
	return r.doc.Dispatch(el, dom.NewCustomEvent(EventBeforeMorphAttribute, map[string]any{
		"attributeName": name,
		"mutationType":  mutation,
	}))
}

func sameElement(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type != html.ElementNode {
		return true
	}
	return a.Data == b.Data && dom.ID(a) == dom.ID(b)
}

func sameShape(old, next []*html.Node) bool {
	if len(old) != len(next) {
		return false
	}
	for i := range old {
		if !sameElement(old[i], next[i]) {
			return false
		}
	}
	return true
}
