// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/morphkit/internal/bridge"
	"github.com/xkilldash9x/morphkit/internal/bus"
	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/controller"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/lazyframe"
	"github.com/xkilldash9x/morphkit/internal/network"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/turbostream"
	"github.com/xkilldash9x/morphkit/internal/widget"
)

// Page is one document with the whole behaviour layer attached: controllers,
// the instance registry, lazy frames, the stream renderer and the bridge.
// Everything it owns is touched only from its loop.
type Page struct {
	cfg    config.Interface
	logger *zap.Logger

	loop     eventloop.Loop
	ownsLoop bool
	doc      *dom.Document
	bus      *bus.Bus
	registry *registry.Registry
	pairing  *controller.PairingTable
	app      *controller.Application
	renderer *turbostream.Renderer
	bridge   *bridge.Bridge
	fetcher  lazyframe.Fetcher
	baseCtx  context.Context
	stopBase context.CancelFunc

	started bool
}

// Option customizes a Page.
type Option func(*pageOptions)

type pageOptions struct {
	loop      eventloop.Loop
	fetcher   lazyframe.Fetcher
	catalog   *widget.Catalog
	clipboard widget.Clipboard
	baseCtx   context.Context
}

// WithLoop runs the page on loop instead of a fresh manual loop. An
// *eventloop.EventLoop is started and stopped with the page.
func WithLoop(loop eventloop.Loop) Option {
	return func(o *pageOptions) { o.loop = loop }
}

// WithFetcher shares fetcher across pages, so throttling and request
// coalescing apply to all of them.
func WithFetcher(fetcher lazyframe.Fetcher) Option {
	return func(o *pageOptions) { o.fetcher = fetcher }
}

// WithCatalog replaces the reference widget implementations.
func WithCatalog(catalog widget.Catalog) Option {
	return func(o *pageOptions) { o.catalog = &catalog }
}

// WithClipboard sets the clipboard used by the reference catalog.
func WithClipboard(clip widget.Clipboard) Option {
	return func(o *pageOptions) { o.clipboard = clip }
}

// WithBaseContext bounds every fragment fetch the page starts.
func WithBaseContext(ctx context.Context) Option {
	return func(o *pageOptions) { o.baseCtx = ctx }
}

// NewPage wires the behaviour layer onto doc. Controllers connect when Start
// runs.
func NewPage(cfg config.Interface, doc *dom.Document, logger *zap.Logger, opts ...Option) (*Page, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if doc == nil {
		return nil, errors.New("document cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &pageOptions{}
	for _, opt := range opts {
		opt(o)
	}

	p := &Page{
		cfg:    cfg,
		logger: logger.Named("page"),
		doc:    doc,
	}

	p.loop = o.loop
	if p.loop == nil {
		p.loop = eventloop.NewManual(time.Now())
	}
	if _, ok := p.loop.(*eventloop.EventLoop); ok {
		p.ownsLoop = true
	}

	base := o.baseCtx
	if base == nil {
		base = context.Background()
	}
	p.baseCtx, p.stopBase = context.WithCancel(base)

	p.fetcher = o.fetcher
	if p.fetcher == nil {
		client := network.NewClient(network.ClientConfigFrom(cfg.Network(), logger))
		f, err := network.NewFetcher(cfg.Network(), client, logger)
		if err != nil {
			p.stopBase()
			return nil, fmt.Errorf("failed to create fragment fetcher: %w", err)
		}
		p.fetcher = f
	}

	catalog := widget.DefaultCatalog(o.clipboard)
	if o.catalog != nil {
		catalog = *o.catalog
	}

	p.bus = bus.New(logger)
	p.registry = registry.New(logger)
	p.pairing = controller.NewPairingTable(logger)
	p.app = controller.NewApplication(doc, p.loop, logger)
	p.renderer = turbostream.NewRenderer(doc, logger)
	p.bridge = bridge.New(doc, p.registry, p.pairing, cfg.Bridge(), logger)
	p.bridge.Install(p.renderer)

	controller.RegisterWidgets(p.app, controller.Deps{
		Registry: p.registry,
		Bus:      p.bus,
		Pairing:  p.pairing,
		Catalog:  catalog,
		Timing:   cfg.Widgets(),
	})
	lazyframe.Register(p.app, lazyframe.Deps{
		Fetcher:     p.fetcher,
		Processor:   p.renderer,
		Bus:         p.bus,
		Config:      cfg.Loader(),
		BaseContext: p.baseCtx,
	})
	return p, nil
}

// Document returns the page document.
func (p *Page) Document() *dom.Document { return p.doc }

// Loop returns the loop the page runs on.
func (p *Page) Loop() eventloop.Loop { return p.loop }

// Registry returns the instance registry.
func (p *Page) Registry() *registry.Registry { return p.registry }

// Bus returns the internal event bus.
func (p *Page) Bus() *bus.Bus { return p.bus }

// Pairing returns the trigger/target pairing table.
func (p *Page) Pairing() *controller.PairingTable { return p.pairing }

// Application returns the controller host.
func (p *Page) Application() *controller.Application { return p.app }

// Renderer returns the stream renderer.
func (p *Page) Renderer() *turbostream.Renderer { return p.renderer }

// Bridge returns the remote-control bridge.
func (p *Page) Bridge() *bridge.Bridge { return p.bridge }

// Start connects every controller in the document and begins observing it.
func (p *Page) Start(ctx context.Context) error {
	if p.started {
		p.logger.Warn("Page.Start called, but the page is already running.")
		return nil
	}
	if p.ownsLoop {
		if err := p.loop.(*eventloop.EventLoop).Start(ctx); err != nil {
			return fmt.Errorf("failed to start event loop: %w", err)
		}
	}
	if err := p.Do(ctx, p.app.Start); err != nil {
		return fmt.Errorf("failed to start controllers: %w", err)
	}
	p.started = true
	p.logger.Debug("Page started.")
	return nil
}

// Stop disconnects every controller and cancels outstanding fetches.
func (p *Page) Stop() {
	p.stopBase()
	if !p.started {
		return
	}
	p.started = false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Do(ctx, p.app.Stop); err != nil {
		p.logger.Warn("Controllers did not stop cleanly.", zap.Error(err))
	}
	p.bus.Shutdown()
	if p.ownsLoop {
		p.loop.(*eventloop.EventLoop).Stop()
	}
	p.logger.Debug("Page stopped.")
}

// Do runs fn on the page loop and waits for it. On a manual loop the caller
// already is the loop, so fn runs inline followed by whatever it queued.
func (p *Page) Do(ctx context.Context, fn func()) error {
	switch l := p.loop.(type) {
	case *eventloop.EventLoop:
		return l.Do(ctx, fn)
	case *eventloop.ManualLoop:
		fn()
		l.RunPending()
		return nil
	default:
		done := make(chan struct{})
		l.Post(func() {
			defer close(done)
			fn()
		})
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Settle lets in-flight fetches land, then lets settleTime pass so pending
// widget timers fire, then waits for fetches those timers started.
func (p *Page) Settle(ctx context.Context, settleTime time.Duration) error {
	switch l := p.loop.(type) {
	case *eventloop.ManualLoop:
		if err := l.Settle(ctx); err != nil {
			return err
		}
		l.Advance(settleTime)
		return l.Settle(ctx)
	default:
		t := time.NewTimer(settleTime)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RevealAll reports every element under visibility observation as fully in
// view, which starts visible-strategy lazy frames.
func (p *Page) RevealAll(ctx context.Context) (int, error) {
	var n int
	err := p.Do(ctx, func() {
		targets := p.doc.IntersectionTargets()
		n = len(targets)
		for _, t := range targets {
			p.doc.ReportIntersection(t, 1)
		}
	})
	return n, err
}

// ProcessStream applies a stream body on the page loop.
func (p *Page) ProcessStream(ctx context.Context, body string) error {
	var rerr error
	if err := p.Do(ctx, func() { rerr = p.renderer.Process(body) }); err != nil {
		return err
	}
	return rerr
}

// ExecuteBridge runs JSON bridge instructions on the page loop.
func (p *Page) ExecuteBridge(ctx context.Context, data []byte) error {
	var rerr error
	if err := p.Do(ctx, func() { rerr = p.bridge.ExecuteJSON(data) }); err != nil {
		return err
	}
	return rerr
}

// HTML serializes the document on the page loop.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var out string
	err := p.Do(ctx, func() { out = p.doc.String() })
	return out, err
}
