// internal/registry/registry.go
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
)

// ErrNilInstance is returned when a factory produces no instance.
var ErrNilInstance = errors.New("factory returned a nil instance")

// Key identifies one live widget: the target element id and the widget kind.
type Key struct {
	ID   string
	Kind widget.Kind
}

func (k Key) String() string { return fmt.Sprintf("%s#%s", k.Kind, k.ID) }

// Factory builds a widget instance on first acquisition.
type Factory func() (widget.Widget, error)

type entry struct {
	instance widget.Widget
	refs     int
	// morphID is the last morph transaction this entry was rebuilt for.
	morphID string
}

// Registry reference-counts widget instances so that every controller
// referring to the same element shares one instance, and the instance is
// destroyed exactly once when the last referrer lets go.
//
// Factories and Destroy run without the registry lock held, so they may call
// back into the registry.
type Registry struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries map[Key]*entry
}

// New creates an empty registry. One registry is built per application and
// handed to every controller.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.Named("registry"),
		entries: make(map[Key]*entry),
	}
}

// Acquire returns the instance for key, creating it with factory when none
// exists. An existing instance is returned unchanged and factory is not
// called. On a factory error nothing is stored.
func (r *Registry) Acquire(key Key, factory Factory) (widget.Widget, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		e.refs++
		inst, refs := e.instance, e.refs
		r.mu.Unlock()
		r.logger.Debug("Reusing existing component instance.", zap.Stringer("key", key), zap.Int("refs", refs))
		return inst, nil
	}
	r.mu.Unlock()

	inst, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", key, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("failed to create %s: %w", key, ErrNilInstance)
	}

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		// The factory acquired the same key re-entrantly. Keep the first
		// instance and discard ours.
		e.refs++
		existing := e.instance
		r.mu.Unlock()
		destroy(inst)
		return existing, nil
	}
	r.entries[key] = &entry{instance: inst, refs: 1}
	r.mu.Unlock()

	r.logger.Debug("Created new component instance.", zap.Stringer("key", key))
	return inst, nil
}

// Release drops one reference. When the count reaches zero the instance is
// destroyed and forgotten, and Release returns true. Releasing an unknown key
// is logged and returns false.
func (r *Registry) Release(key Key) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Attempted to release a non-existent instance.", zap.Stringer("key", key))
		return false
	}
	e.refs--
	if e.refs > 0 {
		refs := e.refs
		r.mu.Unlock()
		r.logger.Debug("Instance still referenced.", zap.Stringer("key", key), zap.Int("refs", refs))
		return false
	}
	delete(r.entries, key)
	r.mu.Unlock()

	destroy(e.instance)
	r.logger.Debug("Destroyed component instance (no more references).", zap.Stringer("key", key))
	return true
}

// ReferenceCount returns the current count for key, or 0.
func (r *Registry) ReferenceCount(key Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Lookup returns the live instance for key without touching its count.
func (r *Registry) Lookup(key Key) (widget.Widget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.instance, true
	}
	return nil, false
}

// Rebuild replaces the instance for key after its element was structurally
// patched, keeping the reference count. Every owner of the key calls Rebuild
// for the same morph transaction; only the first call destroys and recreates,
// the others get the already rebuilt instance.
func (r *Registry) Rebuild(key Key, morphID string, factory Factory) (widget.Widget, error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("cannot rebuild %s: not registered", key)
	}
	if morphID != "" && e.morphID == morphID {
		inst := e.instance
		r.mu.Unlock()
		return inst, nil
	}
	old := e.instance
	e.morphID = morphID
	r.mu.Unlock()

	destroy(old)

	inst, err := factory()
	if err == nil && inst == nil {
		err = ErrNilInstance
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, still := r.entries[key]
	if err != nil {
		// The old instance is gone; an entry pointing at it would be a
		// use-after-destroy waiting to happen.
		if still && current == e {
			delete(r.entries, key)
		}
		return nil, fmt.Errorf("failed to rebuild %s: %w", key, err)
	}
	if !still || current != e {
		destroy(inst)
		return nil, fmt.Errorf("cannot rebuild %s: released during rebuild", key)
	}
	e.instance = inst
	r.logger.Debug("Rebuilt component instance after morph.", zap.Stringer("key", key), zap.String("morph_id", morphID), zap.Int("refs", e.refs))
	return inst, nil
}

// EntrySnapshot is a point-in-time view of one entry.
type EntrySnapshot struct {
	Key  Key
	Type string
	Refs int
}

// Snapshot lists every entry ordered by kind and id. Safe from any goroutine.
func (r *Registry) Snapshot() []EntrySnapshot {
	r.mu.Lock()
	out := make([]EntrySnapshot, 0, len(r.entries))
	for k, e := range r.entries {
		out = append(out, EntrySnapshot{Key: k, Type: fmt.Sprintf("%T", e.instance), Refs: e.refs})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Kind != out[j].Key.Kind {
			return out[i].Key.Kind < out[j].Key.Kind
		}
		return out[i].Key.ID < out[j].Key.ID
	})
	return out
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Debug logs every tracked instance with its reference count.
func (r *Registry) Debug() {
	snap := r.Snapshot()
	r.logger.Info("Component registry status.", zap.Int("instances", len(snap)))
	for _, s := range snap {
		r.logger.Info("Tracked instance.", zap.Stringer("key", s.Key), zap.String("type", s.Type), zap.Int("refs", s.Refs))
	}
}

func destroy(inst widget.Widget) {
	if d, ok := inst.(widget.Destroyer); ok {
		d.Destroy()
	}
}
