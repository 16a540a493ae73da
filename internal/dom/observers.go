// internal/dom/observers.go
package dom

import (
	"golang.org/x/net/html"
)

// MutationType is the kind of change a MutationRecord describes.
type MutationType int

const (
	MutationChildList MutationType = iota
	MutationAttributes
)

func (t MutationType) String() string {
	if t == MutationAttributes {
		return "attributes"
	}
	return "childList"
}

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type          MutationType
	Target        *html.Node
	Added         []*html.Node
	Removed       []*html.Node
	AttributeName string
	OldValue      string
}

// MutationOptions selects what an observer is told about.
type MutationOptions struct {
	ChildList  bool
	Subtree    bool
	Attributes bool
	// AttributeFilter restricts attribute records to these names when set.
	AttributeFilter []string
}

// MutationObserver receives records for changes at or below its target.
type MutationObserver struct {
	doc      *Document
	target   *html.Node
	opts     MutationOptions
	callback func(MutationRecord)
	active   bool
}

// Observe starts delivering records to fn. Records are delivered
// synchronously, right after the mutation.
func (d *Document) Observe(target *html.Node, opts MutationOptions, fn func(MutationRecord)) *MutationObserver {
	o := &MutationObserver{doc: d, target: target, opts: opts, callback: fn, active: true}
	d.observers = append(d.observers, o)
	return o
}

// Disconnect stops delivery. It is safe to call more than once.
func (o *MutationObserver) Disconnect() {
	if o == nil || !o.active {
		return
	}
	o.active = false
	list := o.doc.observers
	for i, other := range list {
		if other == o {
			o.doc.observers = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

func (o *MutationObserver) wants(rec MutationRecord) bool {
	if rec.Target != o.target && !(o.opts.Subtree && IsAncestor(o.target, rec.Target)) {
		return false
	}
	switch rec.Type {
	case MutationChildList:
		return o.opts.ChildList
	case MutationAttributes:
		if !o.opts.Attributes {
			return false
		}
		if len(o.opts.AttributeFilter) == 0 {
			return true
		}
		return contains(o.opts.AttributeFilter, rec.AttributeName)
	}
	return false
}

func (d *Document) notify(rec MutationRecord) {
	if len(d.observers) == 0 {
		return
	}
	snapshot := append([]*MutationObserver(nil), d.observers...)
	for _, o := range snapshot {
		if o.active && o.wants(rec) {
			o.callback(rec)
		}
	}
}

// IntersectionEntry reports how much of a target is visible.
type IntersectionEntry struct {
	Target         *html.Node
	Ratio          float64
	IsIntersecting bool
}

// IntersectionObserver watches the visibility of one element.
type IntersectionObserver struct {
	doc       *Document
	target    *html.Node
	threshold float64
	callback  func(IntersectionEntry)
	active    bool
}

// ObserveIntersection registers fn for visibility reports on target. An entry
// is intersecting when its ratio is positive and at least threshold.
func (d *Document) ObserveIntersection(target *html.Node, threshold float64, fn func(IntersectionEntry)) *IntersectionObserver {
	o := &IntersectionObserver{doc: d, target: target, threshold: threshold, callback: fn, active: true}
	d.intersections[target] = append(d.intersections[target], o)
	return o
}

// Disconnect stops visibility reports. It is safe to call more than once.
func (o *IntersectionObserver) Disconnect() {
	if o == nil || !o.active {
		return
	}
	o.active = false
	list := o.doc.intersections[o.target]
	for i, other := range list {
		if other == o {
			o.doc.intersections[o.target] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(o.doc.intersections[o.target]) == 0 {
		delete(o.doc.intersections, o.target)
	}
}

// ReportIntersection is called by the host (a layout engine, a test, the
// CLI) when the visible ratio of target changes.
func (d *Document) ReportIntersection(target *html.Node, ratio float64) {
	snapshot := append([]*IntersectionObserver(nil), d.intersections[target]...)
	for _, o := range snapshot {
		if !o.active {
			continue
		}
		o.callback(IntersectionEntry{
			Target:         target,
			Ratio:          ratio,
			IsIntersecting: ratio > 0 && ratio >= o.threshold,
		})
	}
}

// IntersectionTargets lists the elements currently being watched.
func (d *Document) IntersectionTargets() []*html.Node {
	out := make([]*html.Node, 0, len(d.intersections))
	Walk(d.root, func(n *html.Node) bool {
		if len(d.intersections[n]) > 0 {
			out = append(out, n)
		}
		return true
	})
	return out
}
