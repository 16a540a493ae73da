// internal/controller/helpers_test.go
package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/morphkit/internal/bus"
	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

// countedWidget counts Destroy calls on top of a reference widget.
type countedWidget struct {
	widget.Widget
	counts *lifecycleCounts
}

func (c *countedWidget) Destroy() {
	c.counts.destroys++
	if d, ok := c.Widget.(widget.Destroyer); ok {
		d.Destroy()
	}
}

type lifecycleCounts struct {
	creates  int
	destroys int
}

type harness struct {
	t      *testing.T
	doc    *dom.Document
	loop   *eventloop.ManualLoop
	app    *Application
	reg    *registry.Registry
	bus    *bus.Bus
	deps   Deps
	clip   *widget.MemoryClipboard
	counts *lifecycleCounts
}

func newHarness(t *testing.T, markup string) *harness {
	return newHarnessWithLogger(t, markup, zaptest.NewLogger(t))
}

func newHarnessWithLogger(t *testing.T, markup string, logger *zap.Logger) *harness {
	t.Helper()
	doc, err := dom.ParseString(markup)
	require.NoError(t, err)

	h := &harness{
		t:      t,
		doc:    doc,
		loop:   eventloop.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		reg:    registry.New(logger),
		bus:    bus.New(logger),
		clip:   &widget.MemoryClipboard{},
		counts: &lifecycleCounts{},
	}
	catalog := widget.DefaultCatalog(h.clip)
	baseModal := catalog.Modal
	catalog.Modal = func(doc *dom.Document, target, trigger *html.Node, opts widget.ModalOptions, inst widget.InstanceOptions) widget.Widget {
		h.counts.creates++
		return &countedWidget{Widget: baseModal(doc, target, trigger, opts, inst), counts: h.counts}
	}
	h.deps = Deps{
		Registry: h.reg,
		Bus:      h.bus,
		Pairing:  NewPairingTable(logger),
		Catalog:  catalog,
		Timing:   config.NewDefaultConfig().Widgets(),
	}
	h.app = NewApplication(doc, h.loop, logger)
	RegisterWidgets(h.app, h.deps)
	h.app.Start()
	t.Cleanup(h.app.Stop)
	return h
}

func (h *harness) el(id string) *html.Node {
	h.t.Helper()
	n := h.doc.GetElementByID(id)
	require.NotNil(h.t, n, "element #%s", id)
	return n
}

func (h *harness) append(markup string) {
	h.t.Helper()
	nodes, err := h.doc.ParseFragment(h.doc.Body(), markup)
	require.NoError(h.t, err)
	for _, n := range nodes {
		h.doc.AppendChild(h.doc.Body(), n)
	}
}

func (h *harness) controller(id, identifier string) Controller {
	h.t.Helper()
	c, ok := h.app.ControllerFor(h.el(id), identifier)
	require.True(h.t, ok, "%s on #%s", identifier, id)
	return c
}

func modalKey(id string) registry.Key { return registry.Key{ID: id, Kind: widget.KindModal} }

// morph emits the notifications a structural patch of el produces.
func (h *harness) morph(el *html.Node, morphID string, patch func()) {
	h.doc.Dispatch(el, dom.NewCustomEvent(EventBeforeMorphElement, map[string]any{"morphId": morphID}))
	patch()
	h.doc.DispatchDocument(dom.NewCustomEvent(EventMorph, map[string]any{"morphId": morphID, "target": el}))
}
