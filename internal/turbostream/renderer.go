// internal/turbostream/renderer.go
package turbostream

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Notifications dispatched while rendering.
const (
	EventBeforeStreamRender   = "turbo:before-stream-render"
	EventBeforeMorphElement   = "turbo:before-morph-element"
	EventBeforeMorphAttribute = "turbo:before-morph-attribute"
	EventMorph                = "turbo:morph"
)

// ErrUnknownAction is returned for instructions no action is registered for.
var ErrUnknownAction = errors.New("unknown stream action")

// ErrNoTarget is returned when an instruction's target matches nothing.
var ErrNoTarget = errors.New("stream target not found")

// ActionFunc applies one instruction. targets holds the resolved elements,
// which may be empty for actions that look up their own.
type ActionFunc func(r *Renderer, inst Instruction, targets []*html.Node) error

// Renderer applies stream instructions to a document.
type Renderer struct {
	doc     *dom.Document
	logger  *zap.Logger
	actions map[string]ActionFunc
	newID   func() string
}

// NewRenderer returns a renderer with the built-in actions registered.
func NewRenderer(doc *dom.Document, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		doc:     doc,
		logger:  logger.Named("turbostream"),
		actions: make(map[string]ActionFunc),
		newID:   uuid.NewString,
	}
	r.actions[ActionAppend] = appendAction
	r.actions[ActionPrepend] = prependAction
	r.actions[ActionReplace] = replaceAction
	r.actions[ActionUpdate] = updateAction
	r.actions[ActionRemove] = removeAction
	r.actions[ActionBefore] = beforeAction
	r.actions[ActionAfter] = afterAction
	return r
}

// Document returns the document being patched.
func (r *Renderer) Document() *dom.Document { return r.doc }

// Logger returns the renderer's logger.
func (r *Renderer) Logger() *zap.Logger { return r.logger }

// RegisterAction adds or replaces the handler for a custom action.
func (r *Renderer) RegisterAction(name string, fn ActionFunc) {
	r.actions[name] = fn
}

// HasAction reports whether name is handled.
func (r *Renderer) HasAction(name string) bool {
	_, ok := r.actions[name]
	return ok
}

// Process parses body and renders every instruction in it.
func (r *Renderer) Process(body string) error {
	insts, err := Parse(body)
	if err != nil {
		return err
	}
	return r.Render(insts...)
}

// Render applies the instructions in order. A failing instruction is logged
// and does not stop the rest; all failures are returned joined.
func (r *Renderer) Render(insts ...Instruction) error {
	var errs []error
	for _, inst := range insts {
		if err := r.Apply(inst); err != nil {
			r.logger.Warn("Stream instruction failed.", zap.Stringer("instruction", inst), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply renders a single instruction. Listeners of
// turbo:before-stream-render may cancel it.
func (r *Renderer) Apply(inst Instruction) error {
	fn, ok := r.actions[inst.Action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, inst.Action)
	}
	ev := dom.NewCustomEvent(EventBeforeStreamRender, map[string]any{
		"action":  inst.Action,
		"target":  inst.Target,
		"targets": inst.Targets,
	})
	if !r.doc.DispatchDocument(ev) {
		r.logger.Debug("Stream render cancelled.", zap.Stringer("instruction", inst))
		return nil
	}
	targets, err := r.resolve(inst)
	if err != nil {
		return err
	}
	return fn(r, inst, targets)
}

func (r *Renderer) resolve(inst Instruction) ([]*html.Node, error) {
	if inst.Target != "" {
		if el := r.doc.GetElementByID(inst.Target); el != nil {
			return []*html.Node{el}, nil
		}
		return nil, nil
	}
	if inst.Targets == "" {
		return nil, nil
	}
	xp, err := selectorXPath(inst.Targets)
	if err != nil {
		return nil, err
	}
	return r.doc.Query(nil, xp), nil
}

// Fragment parses the instruction's template in the context of el.
func (r *Renderer) Fragment(el *html.Node, inst Instruction) ([]*html.Node, error) {
	return r.doc.ParseFragment(el, inst.Template)
}

func requireTargets(inst Instruction, targets []*html.Node) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNoTarget, inst)
	}
	return nil
}

func appendAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	if err := requireTargets(inst, targets); err != nil {
		return err
	}
	for _, t := range targets {
		nodes, err := r.Fragment(t, inst)
		if err != nil {
			return err
		}
		r.removeDuplicateChildren(t, nodes)
		for _, n := range nodes {
			r.doc.AppendChild(t, n)
		}
	}
	return nil
}

func prependAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	if err := requireTargets(inst, targets); err != nil {
		return err
	}
	for _, t := range targets {
		nodes, err := r.Fragment(t, inst)
		if err != nil {
			return err
		}
		r.removeDuplicateChildren(t, nodes)
		ref := t.FirstChild
		for _, n := range nodes {
			r.doc.InsertBefore(t, n, ref)
		}
	}
	return nil
}

// removeDuplicateChildren drops existing children whose id reappears in the
// incoming nodes, so appending a rendered record twice does not duplicate it.
func (r *Renderer) removeDuplicateChildren(parent *html.Node, incoming []*html.Node) {
	for _, n := range incoming {
		id := dom.ID(n)
		if id == "" {
			continue
		}
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && dom.ID(c) == id {
				r.doc.RemoveChild(parent, c)
				break
			}
		}
	}
}

func replaceAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	if err := requireTargets(inst, targets); err != nil {
		return err
	}
	for _, t := range targets {
		nodes, err := r.Fragment(t.Parent, inst)
		if err != nil {
			return err
		}
		if inst.IsMorph() {
			if replacement := firstElement(nodes); replacement != nil {
				r.Morph(t, replacement)
				continue
			}
		}
		r.doc.ReplaceWith(t, nodes...)
	}
	return nil
}

func updateAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	if err := requireTargets(inst, targets); err != nil {
		return err
	}
	for _, t := range targets {
		nodes, err := r.Fragment(t, inst)
		if err != nil {
			return err
		}
		if inst.IsMorph() {
			r.MorphChildren(t, nodes)
			continue
		}
		r.doc.ReplaceChildren(t, nodes...)
	}
	return nil
}

func removeAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	for _, t := range targets {
		r.doc.Remove(t)
	}
	return nil
}

func beforeAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	if err := requireTargets(inst, targets); err != nil {
		return err
	}
	for _, t := range targets {
		if t.Parent == nil {
			continue
		}
		nodes, err := r.Fragment(t.Parent, inst)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			r.doc.InsertBefore(t.Parent, n, t)
		}
	}
	return nil
}

func afterAction(r *Renderer, inst Instruction, targets []*html.Node) error {
	if err := requireTargets(inst, targets); err != nil {
		return err
	}
	for _, t := range targets {
		if t.Parent == nil {
			continue
		}
		nodes, err := r.Fragment(t.Parent, inst)
		if err != nil {
			return err
		}
		ref := t.NextSibling
		for _, n := range nodes {
			r.doc.InsertBefore(t.Parent, n, ref)
		}
	}
	return nil
}

func firstElement(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}
