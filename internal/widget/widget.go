// internal/widget/widget.go
package widget

import (
	"fmt"
	"strings"
)

// Kind names a widget family. It is fixed when a controller is built and
// never derived from identifier strings afterwards.
type Kind int

const (
	KindModal Kind = iota + 1
	KindDrawer
	KindDropdown
	KindTooltip
	KindDismiss
	KindCollapse
	KindClipboard
)

var kindNames = map[Kind]string{
	KindModal:     "modal",
	KindDrawer:    "drawer",
	KindDropdown:  "dropdown",
	KindTooltip:   "tooltip",
	KindDismiss:   "dismiss",
	KindCollapse:  "collapse",
	KindClipboard: "clipboard",
}

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindModal, KindDrawer, KindDropdown, KindTooltip, KindDismiss, KindCollapse, KindClipboard}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown widget kind %q", s)
}

// Widget is the lifecycle surface every widget implementation exposes.
type Widget interface {
	Show()
	Hide()
	Toggle()
	IsVisible() bool
}

// Destroyer is implemented by widgets that hold listeners or other state
// that must be torn down.
type Destroyer interface {
	Destroy()
}

// Callbacks maps widget domain events to handlers. Unused hooks stay nil.
type Callbacks struct {
	OnShow     func()
	OnHide     func()
	OnToggle   func()
	OnCollapse func()
	OnExpand   func()
	OnCopy     func()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// InstanceOptions identifies the instance inside the widget library.
type InstanceOptions struct {
	ID       string
	Override bool
}

// ModalOptions configures a modal.
type ModalOptions struct {
	Callbacks
	// Backdrop is "dynamic" (click closes) or "static".
	Backdrop        string
	BackdropClasses string
	Closable        bool
	Placement       string
}

// DrawerOptions configures a drawer.
type DrawerOptions struct {
	Callbacks
	Placement       string
	BodyScrolling   bool
	Backdrop        bool
	Edge            bool
	EdgeOffset      string
	BackdropClasses string
}

// DropdownOptions configures a dropdown.
type DropdownOptions struct {
	Callbacks
	Placement               string
	TriggerType             string
	OffsetSkidding          int
	OffsetDistance          int
	Delay                   int
	IgnoreClickOutsideClass string
}

// TooltipOptions configures a tooltip.
type TooltipOptions struct {
	Callbacks
	Placement   string
	TriggerType string
}

// DismissOptions configures a dismissible element.
type DismissOptions struct {
	Callbacks
	Transition string
	Duration   int
	Timing     string
}

// CollapseOptions configures a collapse.
type CollapseOptions struct {
	Callbacks
}

// ClipboardOptions configures a copy button.
type ClipboardOptions struct {
	Callbacks
	// ContentType is "input", "textContent" or "innerHTML".
	ContentType  string
	HTMLEntities bool
}
