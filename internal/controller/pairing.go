// internal/controller/pairing.go
package controller

import (
	"github.com/google/uuid"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// link is implemented by triggers waiting for a target.
type link interface {
	targetConnected(t *TargetController)
	targetDisconnected(t *TargetController)
}

type watch struct {
	link   link
	active bool
}

// PairingTable matches trigger controllers with the target controller for
// the same (element id, kind), in whichever order they connect.
type PairingTable struct {
	logger   *zap.Logger
	targets  map[registry.Key]*TargetController
	watchers map[registry.Key][]*watch
}

// NewPairingTable creates an empty table.
func NewPairingTable(logger *zap.Logger) *PairingTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairingTable{
		logger:   logger.Named("pairing"),
		targets:  make(map[registry.Key]*TargetController),
		watchers: make(map[registry.Key][]*watch),
	}
}

// RegisterTarget makes t available under its key and notifies watchers.
func (p *PairingTable) RegisterTarget(t *TargetController) {
	key := t.Key()
	if existing, ok := p.targets[key]; ok && existing != t {
		p.logger.Warn("Duplicate target id; the newest target wins.", zap.Stringer("key", key))
		p.notifyDisconnected(key, existing)
	}
	p.targets[key] = t
	for _, w := range p.snapshot(key) {
		if w.active {
			w.link.targetConnected(t)
		}
	}
}

// UnregisterTarget removes t and notifies watchers. A target that was
// superseded by a duplicate is ignored.
func (p *PairingTable) UnregisterTarget(t *TargetController) {
	key := t.Key()
	if p.targets[key] != t {
		return
	}
	delete(p.targets, key)
	p.notifyDisconnected(key, t)
}

func (p *PairingTable) notifyDisconnected(key registry.Key, t *TargetController) {
	for _, w := range p.snapshot(key) {
		if w.active {
			w.link.targetDisconnected(t)
		}
	}
}

func (p *PairingTable) snapshot(key registry.Key) []*watch {
	return append([]*watch(nil), p.watchers[key]...)
}

// Watch subscribes l to the target for key. If the target is already
// connected l is notified immediately. The returned func unsubscribes
// without notifying.
func (p *PairingTable) Watch(key registry.Key, l link) func() {
	w := &watch{link: l, active: true}
	p.watchers[key] = append(p.watchers[key], w)
	if t, ok := p.targets[key]; ok {
		l.targetConnected(t)
	}
	return func() {
		if !w.active {
			return
		}
		w.active = false
		list := p.watchers[key]
		for i, candidate := range list {
			if candidate == w {
				p.watchers[key] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(p.watchers[key]) == 0 {
			delete(p.watchers, key)
		}
	}
}

// Lookup returns the connected target for key.
func (p *PairingTable) Lookup(key registry.Key) (*TargetController, bool) {
	t, ok := p.targets[key]
	return t, ok
}

// Watchers returns the number of triggers watching key.
func (p *PairingTable) Watchers(key registry.Key) int {
	return len(p.watchers[key])
}

// TargetController marks the element a widget lives on. It exposes the
// instance published by the most recently attached trigger.
type TargetController struct {
	ctx     *Context
	kind    widget.Kind
	pairing *PairingTable
	key     registry.Key
	owner   Controller

	// attached triggers, oldest first; the last one owns the slots.
	attached []*TriggerController
}

// NewTargetController builds the plain target controller for kind.
func NewTargetController(ctx *Context, kind widget.Kind, pairing *PairingTable) *TargetController {
	t := &TargetController{ctx: ctx, kind: kind, pairing: pairing}
	t.owner = t
	return t
}

func (t *TargetController) Connect() {
	el := t.ctx.Element
	id := dom.ID(el)
	if id == "" {
		id = t.kind.String() + "-" + uuid.NewString()
		t.ctx.Doc().SetAttr(el, "id", id)
		t.ctx.Logger.Info("Assigned generated id to target element.", zap.String("id", id))
	}
	t.key = registry.Key{ID: id, Kind: t.kind}
	t.pairing.RegisterTarget(t)
}

func (t *TargetController) Disconnect() {
	t.pairing.UnregisterTarget(t)
	t.attached = nil
}

// Key returns the registry key of the target.
func (t *TargetController) Key() registry.Key { return t.key }

// Kind returns the widget kind this target hosts.
func (t *TargetController) Kind() widget.Kind { return t.kind }

// Element returns the target element.
func (t *TargetController) Element() *html.Node { return t.ctx.Element }

// Owner returns the controller that embeds this target, which is the target
// itself for plain targets.
func (t *TargetController) Owner() Controller { return t.owner }

// Instance returns the published widget instance, or nil.
func (t *TargetController) Instance() widget.Widget {
	if tr := t.Trigger(); tr != nil {
		return tr.Instance()
	}
	return nil
}

// Trigger returns the trigger that owns the instance slot, or nil.
func (t *TargetController) Trigger() *TriggerController {
	if n := len(t.attached); n > 0 {
		return t.attached[n-1]
	}
	return nil
}

func (t *TargetController) attach(tr *TriggerController) {
	t.detach(tr)
	t.attached = append(t.attached, tr)
}

func (t *TargetController) detach(tr *TriggerController) {
	for i, candidate := range t.attached {
		if candidate == tr {
			t.attached = append(t.attached[:i:i], t.attached[i+1:]...)
			return
		}
	}
}
