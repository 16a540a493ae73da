// internal/widget/catalog.go
package widget

import (
	"sync"

	"github.com/xkilldash9x/morphkit/internal/dom"
	"golang.org/x/net/html"
)

// Constructor signatures follow the widget library: the element the widget
// lives on, the element that drives it, the options bag and the instance
// identity. Modals and drawers ignore the trigger.
type (
	ModalFactory     func(doc *dom.Document, target, trigger *html.Node, opts ModalOptions, inst InstanceOptions) Widget
	DrawerFactory    func(doc *dom.Document, target, trigger *html.Node, opts DrawerOptions, inst InstanceOptions) Widget
	DropdownFactory  func(doc *dom.Document, target, trigger *html.Node, opts DropdownOptions, inst InstanceOptions) Widget
	TooltipFactory   func(doc *dom.Document, target, trigger *html.Node, opts TooltipOptions, inst InstanceOptions) Widget
	DismissFactory   func(doc *dom.Document, target, trigger *html.Node, opts DismissOptions, inst InstanceOptions) Widget
	CollapseFactory  func(doc *dom.Document, target, trigger *html.Node, opts CollapseOptions, inst InstanceOptions) Widget
	ClipboardFactory func(doc *dom.Document, target, trigger *html.Node, opts ClipboardOptions, inst InstanceOptions) Widget
)

// Catalog holds one constructor per kind. Tests swap individual entries for
// fakes.
type Catalog struct {
	Modal     ModalFactory
	Drawer    DrawerFactory
	Dropdown  DropdownFactory
	Tooltip   TooltipFactory
	Dismiss   DismissFactory
	Collapse  CollapseFactory
	Clipboard ClipboardFactory
}

// DefaultCatalog returns the reference implementations. Copies go to clip.
func DefaultCatalog(clip Clipboard) Catalog {
	if clip == nil {
		clip = &MemoryClipboard{}
	}
	return Catalog{
		Modal:    NewModal,
		Drawer:   NewDrawer,
		Dropdown: NewDropdown,
		Tooltip:  NewTooltip,
		Dismiss:  NewDismiss,
		Collapse: NewCollapse,
		Clipboard: func(doc *dom.Document, target, trigger *html.Node, opts ClipboardOptions, inst InstanceOptions) Widget {
			return NewClipboard(doc, target, trigger, opts, inst, clip)
		},
	}
}

// Clipboard receives copied text.
type Clipboard interface {
	WriteText(text string) error
}

// MemoryClipboard keeps the last copied text in memory.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *MemoryClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

// Text returns the last copied text.
func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}
