// internal/lazyframe/frame.go
package lazyframe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/xkilldash9x/morphkit/internal/bus"
	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/controller"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"github.com/xkilldash9x/morphkit/internal/network"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Identifier is the controller name in data-controller.
const Identifier = controller.LazyFrameIdentifier

// Events emitted and consumed by frames.
const (
	EventLoaded        = "lazy-frame:loaded"
	EventAnyLoaded     = "lazy-frame:any-loaded"
	EventRequestReload = controller.EventLazyFrameReload
)

// HiddenClass hides the loading indicator.
const HiddenClass = "hidden"

// StreamProcessor applies a body of stream instructions to the page.
type StreamProcessor interface {
	Process(body string) error
}

// Fetcher retrieves a fragment. *network.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*network.Response, error)
}

// Deps are shared by every frame on a page.
type Deps struct {
	Fetcher   Fetcher
	Processor StreamProcessor
	Bus       *bus.Bus
	Config    config.LoaderConfig
	// BaseContext bounds every fetch. Defaults to context.Background.
	BaseContext context.Context
}

// Register installs the lazy-frame controller.
func Register(app *controller.Application, deps Deps) {
	app.Register(Identifier, New(deps))
}

// New is the lazy-frame controller factory.
func New(deps Deps) controller.Factory {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return func(ctx *controller.Context) controller.Controller {
		return &Frame{ctx: ctx, deps: deps}
	}
}

// Frame loads server-rendered content into a placeholder region.
type Frame struct {
	ctx  *controller.Context
	deps Deps

	loadOn    LoadOn
	connected bool
	loaded    bool
	loading   bool
	// generation is bumped by every load and by disconnect; a fetch
	// continuation only applies while it still matches.
	generation uint64
	cancel     context.CancelFunc

	observer *dom.IntersectionObserver
	retry    eventloop.Timer
	removers []func()
}

func (f *Frame) Connect() {
	f.connected = true
	doc := f.ctx.Doc()
	if frame := f.frameTarget(); frame != nil && dom.ID(frame) != "" {
		f.ctx.SetValue("frame-id", dom.ID(frame))
	}

	f.removers = append(f.removers,
		doc.AddEventListener(f.ctx.Element, EventRequestReload, f.handleReloadRequest))

	loadOn, err := ParseLoadOn(f.ctx.StringValue("load-on", ""), f.deps.Config.DefaultEvent)
	if err != nil {
		f.ctx.Logger.Warn("Invalid load-on value, waiting for reload requests.", zap.Error(err))
		return
	}
	f.loadOn = loadOn
	f.ctx.Logger.Debug("Lazy frame connected.",
		zap.String("frame_id", f.FrameID()),
		zap.String("strategy", string(loadOn.Strategy)))

	switch loadOn.Strategy {
	case StrategyConnect:
		f.Load()
	case StrategyVisible:
		f.observer = doc.ObserveIntersection(f.ctx.Element, f.deps.Config.VisibilityThreshold, f.handleIntersection)
	case StrategyEvent:
		container := doc.GetElementByID(loadOn.Event.ContainerID)
		if container == nil {
			f.ctx.Logger.Warn("Lazy frame event container not found.", zap.String("container", loadOn.Event.ContainerID))
			return
		}
		f.removers = append(f.removers,
			doc.AddEventListener(container, loadOn.Event.Name, f.handleContainerEvent))
	}
}

func (f *Frame) Disconnect() {
	f.connected = false
	f.generation++
	f.loading = false
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if f.retry != nil {
		f.retry.Stop()
		f.retry = nil
	}
	if f.observer != nil {
		f.observer.Disconnect()
		f.observer = nil
	}
	for _, remove := range f.removers {
		remove()
	}
	f.removers = nil
}

// LoadOn returns the decoded strategy.
func (f *Frame) LoadOn() LoadOn { return f.loadOn }

// Loaded reports whether any load has completed. It is advisory only.
func (f *Frame) Loaded() bool { return f.loaded }

// Loading reports whether a fetch is outstanding.
func (f *Frame) Loading() bool { return f.loading }

// URL returns the currently recorded URL.
func (f *Frame) URL() string { return f.ctx.StringValue("url", "") }

// FrameID identifies the region in completion events.
func (f *Frame) FrameID() string {
	if frame := f.frameTarget(); frame != nil && dom.ID(frame) != "" {
		return dom.ID(frame)
	}
	if id := f.ctx.StringValue("frame-id", ""); id != "" {
		return id
	}
	return dom.ID(f.ctx.Element)
}

func (f *Frame) frameTarget() *html.Node { return f.ctx.Target("frame") }

func (f *Frame) handleIntersection(entry dom.IntersectionEntry) {
	if !entry.IsIntersecting {
		return
	}
	if f.observer != nil {
		f.observer.Disconnect()
		f.observer = nil
	}
	f.Load()
}

func (f *Frame) handleContainerEvent(*dom.Event) {
	f.clearFrame()
	f.Load()
}

func (f *Frame) handleReloadRequest(e *dom.Event) {
	f.RequestReload(e.String("url"))
}

// RequestReload records url, clears the frame and loads immediately.
func (f *Frame) RequestReload(rawURL string) {
	f.ctx.Logger.Debug("Reload requested.", zap.String("url", rawURL))
	if rawURL != "" {
		f.ctx.SetValue("url", rawURL)
	}
	f.clearFrame()
	f.Load()
}

func (f *Frame) clearFrame() {
	if frame := f.frameTarget(); frame != nil {
		f.ctx.Doc().ReplaceChildren(frame)
	}
}

// Load fetches the recorded URL. Without one it checks again once after the
// configured delay before giving up.
func (f *Frame) Load() {
	if !f.connected {
		return
	}
	raw := f.URL()
	if raw == "" {
		f.awaitURL()
		return
	}
	target, err := RequestURL(raw, f.deps.Config.FormatParam)
	if err != nil {
		f.ctx.Logger.Error("Invalid lazy frame URL.", zap.String("url", raw), zap.Error(err))
		f.ctx.RemoveValue("url")
		return
	}
	if f.retry != nil {
		f.retry.Stop()
		f.retry = nil
	}
	if f.cancel != nil {
		f.cancel()
	}

	f.generation++
	gen := f.generation
	f.loading = true
	f.showIndicator()

	fetchCtx, cancel := context.WithCancel(f.deps.BaseContext)
	f.cancel = cancel
	fetcher := f.deps.Fetcher
	f.ctx.Logger.Debug("Loading fragment.", zap.String("url", target), zap.Uint64("generation", gen))
	f.ctx.Loop().Go(func() func() {
		resp, err := fetcher.Fetch(fetchCtx, target)
		return func() { f.complete(gen, raw, resp, err) }
	})
}

func (f *Frame) awaitURL() {
	if f.retry != nil {
		return
	}
	f.retry = f.ctx.Loop().AfterFunc(f.deps.Config.URLRetryDelay, func() {
		f.retry = nil
		if !f.connected {
			return
		}
		if f.URL() == "" {
			f.ctx.Logger.Warn("Lazy frame has no URL to load.", zap.String("frame_id", f.FrameID()))
			return
		}
		f.Load()
	})
}

func (f *Frame) complete(gen uint64, raw string, resp *network.Response, err error) {
	if !f.connected || gen != f.generation {
		f.ctx.Logger.Debug("Discarding stale fragment.", zap.String("url", raw), zap.Uint64("generation", gen))
		return
	}
	f.loading = false
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}

	applied := false
	if err != nil {
		var statusErr *network.StatusError
		if errors.As(err, &statusErr) {
			f.ctx.Logger.Error("Failed to load fragment.", zap.String("url", raw), zap.Int("status", statusErr.StatusCode))
		} else {
			f.ctx.Logger.Error("Error fetching fragment.", zap.String("url", raw), zap.Error(err))
		}
	} else if resp != nil && len(resp.Body) > 0 {
		f.process(string(resp.Body))
		f.loaded = true
		applied = true
	}

	f.hideIndicator()
	if applied {
		f.announce()
	}
	// Only clear the URL this load used, so a newer assignment survives.
	if f.URL() == raw {
		f.ctx.RemoveValue("url")
	}
}

func (f *Frame) process(body string) {
	if strings.Contains(body, "<turbo-stream") {
		if f.deps.Processor == nil {
			f.ctx.Logger.Error("Stream response received but no processor is configured.")
			return
		}
		if err := f.deps.Processor.Process(body); err != nil {
			f.ctx.Logger.Warn("Stream response applied with errors.", zap.Error(err))
		}
		return
	}
	frame := f.frameTarget()
	if frame == nil {
		f.ctx.Logger.Warn("Lazy frame has no frame target for HTML response.")
		return
	}
	if err := f.ctx.Doc().SetInnerHTML(frame, body); err != nil {
		f.ctx.Logger.Error("Failed to apply HTML response.", zap.Error(err))
	}
}

func (f *Frame) announce() {
	frameID := f.FrameID()
	detail := map[string]any{"frameId": frameID}
	doc := f.ctx.Doc()
	doc.Dispatch(f.ctx.Element, dom.NewCustomEvent(EventLoaded, detail))
	doc.DispatchDocument(dom.NewCustomEvent(EventAnyLoaded, map[string]any{"frameId": frameID}))
	if f.deps.Bus != nil {
		f.deps.Bus.Publish(bus.Topic{Source: frameID, Name: EventLoaded}, map[string]any{"frameId": frameID})
	}
}

func (f *Frame) showIndicator() {
	if ind := f.ctx.Target("loadingIndicator"); ind != nil {
		f.ctx.Doc().RemoveClass(ind, HiddenClass)
	}
}

func (f *Frame) hideIndicator() {
	if ind := f.ctx.Target("loadingIndicator"); ind != nil {
		f.ctx.Doc().AddClass(ind, HiddenClass)
	}
}

// RequestURL adds format=<format> unless a format is already requested. An
// empty format means turbo_stream.
func RequestURL(raw, format string) (string, error) {
	if format == "" {
		format = "turbo_stream"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	q := u.Query()
	if !q.Has("format") {
		q.Add("format", format)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
