// internal/controller/trigger.go
package controller

import (
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/morphkit/internal/bus"
	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Deps are the shared services every widget controller needs.
type Deps struct {
	Registry *registry.Registry
	Bus      *bus.Bus
	Pairing  *PairingTable
	Catalog  widget.Catalog
	Timing   config.WidgetsConfig
}

// TriggerIdentifier is the controller identifier of the trigger for kind.
func TriggerIdentifier(k widget.Kind) string { return k.String() + "-trigger" }

// TargetIdentifier is the controller identifier of the target for kind.
func TargetIdentifier(k widget.Kind) string { return k.String() + "-target" }

// TriggerController is the lifecycle shared by every widget trigger. It
// pairs with the target for (outlet id, kind), holds one registry reference
// while paired, and rebuilds the instance when the target is morphed.
type TriggerController struct {
	ctx  *Context
	deps Deps
	kind widget.Kind

	// build constructs a fresh instance for the target element.
	build func(target *html.Node) (widget.Widget, error)
	// self is the per-kind controller embedding this trigger.
	self Controller
	// created runs after this trigger built a new instance.
	created func(w widget.Widget)
	// handover runs after this trigger dropped its reference. heir is the
	// attached trigger still holding the instance, or nil once it is gone.
	handover func(heir *TriggerController)

	key           registry.Key
	target        *TargetController
	targetElement *html.Node
	instance      widget.Widget
	acquired      bool
	connected     bool

	morphPending bool
	morphID      string

	unwatch   func()
	unmorph   func()
	listeners []func()
	timers    *timerSet
}

func newTrigger(ctx *Context, deps Deps, kind widget.Kind) *TriggerController {
	t := &TriggerController{ctx: ctx, deps: deps, kind: kind}
	t.self = t
	return t
}

func (t *TriggerController) Connect() {
	t.connected = true
	t.timers = newTimerSet(t.ctx.Loop())
	t.unmorph = ConnectMorphEvents(t.ctx.Doc(), t)

	id := t.ctx.Outlet()
	if id == "" {
		t.ctx.Logger.Warn("Trigger has no target outlet.", zap.String("kind", t.kind.String()))
		return
	}
	t.key = registry.Key{ID: id, Kind: t.kind}
	t.unwatch = t.deps.Pairing.Watch(t.key, t)
}

func (t *TriggerController) Disconnect() {
	if !t.connected {
		return
	}
	t.connected = false
	t.timers.stopAll()
	for _, remove := range t.listeners {
		remove()
	}
	t.listeners = nil
	if t.unwatch != nil {
		t.unwatch()
		t.unwatch = nil
	}
	if t.unmorph != nil {
		t.unmorph()
		t.unmorph = nil
	}
	t.detachTarget()
}

// Kind returns the widget kind this trigger drives.
func (t *TriggerController) Kind() widget.Kind { return t.kind }

// Key returns the registry key of the paired target.
func (t *TriggerController) Key() registry.Key { return t.key }

// Instance returns the instance this trigger holds a reference to.
func (t *TriggerController) Instance() widget.Widget { return t.instance }

// Target returns the paired target controller, or nil.
func (t *TriggerController) Target() *TargetController { return t.target }

// TargetElement returns the paired target element, or nil.
func (t *TriggerController) TargetElement() *html.Node { return t.targetElement }

// Element returns the trigger element.
func (t *TriggerController) Element() *html.Node { return t.ctx.Element }

func (t *TriggerController) listen(n *html.Node, eventType string, fn dom.Listener) {
	t.listeners = append(t.listeners, t.ctx.Doc().AddEventListener(n, eventType, fn))
}

func (t *TriggerController) targetConnected(tc *TargetController) {
	if t.target == tc {
		return
	}
	if t.target != nil {
		t.detachTarget()
	}
	t.target = tc
	t.targetElement = tc.Element()
	t.createInstance()
	tc.attach(t)
}

func (t *TriggerController) targetDisconnected(tc *TargetController) {
	if t.target != tc {
		return
	}
	t.detachTarget()
}

func (t *TriggerController) detachTarget() {
	if t.target != nil {
		t.target.detach(t)
	}
	t.destroyInstance()
	t.target = nil
	t.targetElement = nil
	t.morphPending = false
}

func (t *TriggerController) factory() (widget.Widget, error) {
	w, err := t.build(t.targetElement)
	if err == nil && w != nil && t.created != nil {
		t.created(w)
	}
	return w, err
}

// createInstance takes this trigger's reference on the shared instance. It
// is a no-op without a target and idempotent while the reference is held.
func (t *TriggerController) createInstance() widget.Widget {
	if t.targetElement == nil {
		return nil
	}
	if t.acquired {
		return t.instance
	}
	inst, err := t.deps.Registry.Acquire(t.key, t.factory)
	if err != nil {
		t.ctx.Logger.Error("Failed to create component instance.", zap.Stringer("key", t.key), zap.Error(err))
		return nil
	}
	t.instance = inst
	t.acquired = true
	return inst
}

func (t *TriggerController) destroyInstance() {
	if !t.acquired {
		return
	}
	t.acquired = false
	t.instance = nil
	var heir *TriggerController
	if !t.deps.Registry.Release(t.key) {
		heir = t.heir()
	}
	if t.handover != nil {
		t.handover(heir)
	}
}

// heir returns the newest trigger besides t that is attached to the target
// and still holds a reference.
func (t *TriggerController) heir() *TriggerController {
	if t.target == nil {
		return nil
	}
	for i := len(t.target.attached) - 1; i >= 0; i-- {
		if tr := t.target.attached[i]; tr != t && tr.acquired {
			return tr
		}
	}
	return nil
}

// live returns the trigger that answers for the shared instance: t while it
// is connected, otherwise the newest trigger attached to the target.
func (t *TriggerController) live() *TriggerController {
	if t.connected {
		return t
	}
	if tc, ok := t.deps.Pairing.Lookup(t.key); ok {
		return tc.Trigger()
	}
	return nil
}

// liveAs returns the live trigger's per-kind controller.
func liveAs[T Controller](t *TriggerController) (T, bool) {
	var zero T
	tr := t.live()
	if tr == nil {
		return zero, false
	}
	c, ok := tr.self.(T)
	if !ok {
		return zero, false
	}
	return c, true
}

// BeforeMorph notes that the paired target is about to be structurally
// patched. A notification without a morph id gets one written into its
// detail, so every trigger sharing the target sees the same id.
func (t *TriggerController) BeforeMorph(e *dom.Event) {
	if t.targetElement == nil || e.Target != t.targetElement {
		return
	}
	id := e.String("morphId")
	if id == "" {
		id = uuid.NewString()
		if e.Detail == nil {
			e.Detail = make(map[string]any)
		}
		e.Detail["morphId"] = id
	}
	t.morphPending = true
	t.morphID = id
}

// AfterMorph rebuilds the instance once the patch that touched the target
// has completed.
func (t *TriggerController) AfterMorph(e *dom.Event) {
	if !t.morphPending {
		return
	}
	t.morphPending = false
	if !t.acquired {
		return
	}
	morphID := t.morphID
	if morphID == "" {
		morphID = e.String("morphId")
	}
	if morphID == "" {
		morphID = uuid.NewString()
	}
	inst, err := t.deps.Registry.Rebuild(t.key, morphID, t.factory)
	if err != nil {
		t.ctx.Logger.Error("Failed to rebuild component after morph.", zap.Stringer("key", t.key), zap.Error(err))
		t.acquired = false
		t.instance = nil
		return
	}
	t.instance = inst
}

// DispatchInstanceEvent announces a lifecycle event of the shared instance:
// on the bus as "<kind>:<name>" from the target id, and as a bubbling DOM
// event on the target element. Both carry {<kind>: instance}.
func (t *TriggerController) DispatchInstanceEvent(name string) {
	inst, _ := t.deps.Registry.Lookup(t.key)
	detail := map[string]any{t.kind.String(): inst}
	t.deps.Bus.Publish(bus.Topic{Source: t.key.ID, Name: t.kind.String() + ":" + name}, detail)
	if el := t.ctx.Doc().GetElementByID(t.key.ID); el != nil {
		t.ctx.Doc().Dispatch(el, dom.NewCustomEvent(name, detail))
	}
}

// current returns the live instance for the key, which outlives this
// trigger's own reference when other triggers share it.
func (t *TriggerController) current() widget.Widget {
	if t.instance != nil {
		return t.instance
	}
	inst, _ := t.deps.Registry.Lookup(t.key)
	return inst
}

// timerSet tracks a controller's pending timers so they can be cancelled
// together on disconnect.
type timerSet struct {
	loop   eventloop.Loop
	timers map[eventloop.Timer]struct{}
}

func newTimerSet(loop eventloop.Loop) *timerSet {
	return &timerSet{loop: loop, timers: make(map[eventloop.Timer]struct{})}
}

func (s *timerSet) after(d time.Duration, fn func()) eventloop.Timer {
	var tm eventloop.Timer
	tm = s.loop.AfterFunc(d, func() {
		delete(s.timers, tm)
		fn()
	})
	s.timers[tm] = struct{}{}
	return tm
}

func (s *timerSet) every(d time.Duration, fn func()) eventloop.Timer {
	tm := s.loop.Every(d, fn)
	s.timers[tm] = struct{}{}
	return tm
}

func (s *timerSet) stop(tm eventloop.Timer) {
	if tm == nil {
		return
	}
	tm.Stop()
	delete(s.timers, tm)
}

func (s *timerSet) stopAll() {
	if s == nil {
		return
	}
	for tm := range s.timers {
		tm.Stop()
	}
	s.timers = make(map[eventloop.Timer]struct{})
}

func (s *timerSet) len() int { return len(s.timers) }
