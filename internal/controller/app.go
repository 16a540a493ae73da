// internal/controller/app.go
package controller

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/eventloop"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Controller is attached to an element carrying its identifier in the
// element's data-controller attribute.
type Controller interface {
	Connect()
	Disconnect()
}

// Factory builds a controller for one element.
type Factory func(ctx *Context) Controller

// Application connects and disconnects controllers as elements carrying
// data-controller enter and leave the document.
type Application struct {
	doc    *dom.Document
	loop   eventloop.Loop
	logger *zap.Logger

	factories map[string]Factory
	live      map[*html.Node]map[string]Controller
	observer  *dom.MutationObserver
	started   bool
}

// NewApplication creates a stopped application over doc. Every call must be
// made on loop.
func NewApplication(doc *dom.Document, loop eventloop.Loop, logger *zap.Logger) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		doc:       doc,
		loop:      loop,
		logger:    logger.Named("controllers"),
		factories: make(map[string]Factory),
		live:      make(map[*html.Node]map[string]Controller),
	}
}

// Document returns the document the application manages.
func (a *Application) Document() *dom.Document { return a.doc }

// Loop returns the loop every controller runs on.
func (a *Application) Loop() eventloop.Loop { return a.loop }

// Logger returns the application logger.
func (a *Application) Logger() *zap.Logger { return a.logger }

// Register binds identifier to factory. Registering after Start connects
// matching elements already in the document.
func (a *Application) Register(identifier string, factory Factory) {
	a.factories[identifier] = factory
	if a.started {
		for _, el := range dom.Elements(a.doc.Root()) {
			if HasController(el, identifier) {
				a.connect(el, identifier)
			}
		}
	}
}

// Start connects every registered controller present in the document and
// begins watching for changes.
func (a *Application) Start() {
	if a.started {
		return
	}
	a.started = true
	a.observer = a.doc.Observe(a.doc.Root(), dom.MutationOptions{
		ChildList:       true,
		Subtree:         true,
		Attributes:      true,
		AttributeFilter: []string{"data-controller"},
	}, a.handleMutation)
	a.connectTree(a.doc.Root())
	a.logger.Debug("Application started.", zap.Int("controllers", a.liveCount()))
}

// Stop disconnects every controller, deepest elements first.
func (a *Application) Stop() {
	if !a.started {
		return
	}
	a.started = false
	a.observer.Disconnect()
	elements := make([]*html.Node, 0, len(a.live))
	for el := range a.live {
		elements = append(elements, el)
	}
	order := documentOrder(a.doc.Root())
	sort.SliceStable(elements, func(i, j int) bool { return order[elements[i]] > order[elements[j]] })
	for _, el := range elements {
		for _, id := range a.identifiersOf(el) {
			a.disconnect(el, id)
		}
	}
}

// ControllerFor returns the controller bound to el under identifier.
func (a *Application) ControllerFor(el *html.Node, identifier string) (Controller, bool) {
	c, ok := a.live[el][identifier]
	return c, ok
}

// Controllers lists identifier/controller pairs for el.
func (a *Application) Controllers(el *html.Node) map[string]Controller {
	return a.live[el]
}

func (a *Application) liveCount() int {
	n := 0
	for _, m := range a.live {
		n += len(m)
	}
	return n
}

func (a *Application) identifiersOf(el *html.Node) []string {
	ids := make([]string, 0, len(a.live[el]))
	for id := range a.live[el] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *Application) handleMutation(rec dom.MutationRecord) {
	switch rec.Type {
	case dom.MutationChildList:
		for _, n := range rec.Removed {
			if !a.doc.Contains(n) {
				a.disconnectTree(n)
			}
		}
		for _, n := range rec.Added {
			if a.doc.Contains(n) {
				a.connectTree(n)
			}
		}
	case dom.MutationAttributes:
		el := rec.Target
		if !a.doc.Contains(el) {
			return
		}
		wanted := controllerList(el)
		for _, id := range a.identifiersOf(el) {
			if !contains(wanted, id) {
				a.disconnect(el, id)
			}
		}
		for _, id := range wanted {
			a.connect(el, id)
		}
	}
}

func (a *Application) connectTree(root *html.Node) {
	for _, el := range dom.Elements(root) {
		// An earlier connect may have detached this element.
		if !a.doc.Contains(el) {
			continue
		}
		for _, id := range controllerList(el) {
			a.connect(el, id)
		}
	}
}

func (a *Application) disconnectTree(root *html.Node) {
	elements := dom.Elements(root)
	for i := len(elements) - 1; i >= 0; i-- {
		for _, id := range a.identifiersOf(elements[i]) {
			a.disconnect(elements[i], id)
		}
	}
}

func (a *Application) connect(el *html.Node, identifier string) {
	if _, ok := a.live[el][identifier]; ok {
		return
	}
	factory, ok := a.factories[identifier]
	if !ok {
		return
	}
	ctx := &Context{
		app:        a,
		Element:    el,
		Identifier: identifier,
		Logger:     a.logger.Named(identifier),
	}
	c := factory(ctx)
	if c == nil {
		return
	}
	if a.live[el] == nil {
		a.live[el] = make(map[string]Controller)
	}
	a.live[el][identifier] = c
	c.Connect()
}

func (a *Application) disconnect(el *html.Node, identifier string) {
	c, ok := a.live[el][identifier]
	if !ok {
		return
	}
	delete(a.live[el], identifier)
	if len(a.live[el]) == 0 {
		delete(a.live, el)
	}
	c.Disconnect()
}

func documentOrder(root *html.Node) map[*html.Node]int {
	order := make(map[*html.Node]int)
	for i, el := range dom.Elements(root) {
		order[el] = i
	}
	return order
}

func controllerList(el *html.Node) []string {
	return strings.Fields(dom.AttrOr(el, "data-controller", ""))
}

// HasController reports whether el declares identifier in data-controller.
func HasController(el *html.Node, identifier string) bool {
	return contains(controllerList(el), identifier)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Context is what a controller knows about where it is attached.
type Context struct {
	app        *Application
	Element    *html.Node
	Identifier string
	Logger     *zap.Logger
}

// App returns the owning application.
func (c *Context) App() *Application { return c.app }

// Doc returns the document.
func (c *Context) Doc() *dom.Document { return c.app.doc }

// Loop returns the event loop.
func (c *Context) Loop() eventloop.Loop { return c.app.loop }

func (c *Context) valueAttr(name string) string {
	return "data-" + c.Identifier + "-" + name + "-value"
}

// HasValue reports whether data-<identifier>-<name>-value is present.
func (c *Context) HasValue(name string) bool {
	return dom.HasAttr(c.Element, c.valueAttr(name))
}

// StringValue reads a string value, falling back to def.
func (c *Context) StringValue(name, def string) string {
	return dom.AttrOr(c.Element, c.valueAttr(name), def)
}

// BoolValue reads a boolean value. Only "false" and "0" are false once the
// attribute is present, matching how boolean values are declared in markup.
func (c *Context) BoolValue(name string, def bool) bool {
	v, ok := dom.Attr(c.Element, c.valueAttr(name))
	if !ok {
		return def
	}
	return v != "false" && v != "0"
}

// IntValue reads a numeric value, falling back to def when absent or
// malformed.
func (c *Context) IntValue(name string, def int) int {
	v, ok := dom.Attr(c.Element, c.valueAttr(name))
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return int(f)
}

// SetValue writes a value attribute.
func (c *Context) SetValue(name, v string) {
	c.Doc().SetAttr(c.Element, c.valueAttr(name), v)
}

// RemoveValue deletes a value attribute.
func (c *Context) RemoveValue(name string) {
	c.Doc().RemoveAttr(c.Element, c.valueAttr(name))
}

// Targets returns the element and descendants named as target name through
// data-<identifier>-target.
func (c *Context) Targets(name string) []*html.Node {
	expr := "descendant-or-self::*[contains(concat(' ', normalize-space(@data-" + c.Identifier + "-target), ' '), ' " + name + " ')]"
	return c.Doc().Query(c.Element, expr)
}

// Target returns the first target named name, or nil.
func (c *Context) Target(name string) *html.Node {
	if targets := c.Targets(name); len(targets) > 0 {
		return targets[0]
	}
	return nil
}

// Outlet returns the id referenced by data-<identifier>-outlet, or by any
// data-<identifier>-*-outlet attribute, without the leading '#'.
func (c *Context) Outlet() string {
	if v, ok := dom.Attr(c.Element, "data-"+c.Identifier+"-outlet"); ok {
		return strings.TrimPrefix(strings.TrimSpace(v), "#")
	}
	prefix := "data-" + c.Identifier + "-"
	for _, a := range c.Element.Attr {
		if strings.HasPrefix(a.Key, prefix) && strings.HasSuffix(a.Key, "-outlet") {
			return strings.TrimPrefix(strings.TrimSpace(a.Val), "#")
		}
	}
	return ""
}
