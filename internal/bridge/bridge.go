// internal/bridge/bridge.go
package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/controller"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/registry"
	"github.com/xkilldash9x/morphkit/internal/turbostream"
	"github.com/xkilldash9x/morphkit/internal/widget"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNoInstance means no live modal instance exists for the id.
	ErrNoInstance = errors.New("no live widget instance")
	// ErrNoController means no drawer target controller is connected for the id.
	ErrNoController = errors.New("no drawer controller")
	// ErrUnknownAction is returned for actions the widget does not support.
	ErrUnknownAction = errors.New("unknown bridge action")
	// ErrUnknownWidget is returned when the widget family cannot be resolved.
	ErrUnknownWidget = errors.New("unknown bridge widget")
)

// Actions understood by the bridge.
const (
	ActionHide       = "hide"
	ActionShow       = "show"
	ActionToggle     = "toggle"
	ActionFocusFirst = "focusFirstAutofocusField"
)

// Instruction is the remote-control payload a server response carries.
type Instruction struct {
	TargetElementID string `json:"targetElementId"`
	// Widget is "modal" or "drawer". When empty the bridge uses whichever
	// is live for the id, preferring the modal.
	Widget     string `json:"widget,omitempty"`
	Action     string `json:"action"`
	ResetForms bool   `json:"resetForms,omitempty"`
	ClearForm  bool   `json:"clearForm,omitempty"`
}

// Bridge invokes widget actions on behalf of the server. It reads the
// registry and the pairing table but never acquires or releases.
type Bridge struct {
	doc      *dom.Document
	registry *registry.Registry
	pairing  *controller.PairingTable
	cfg      config.BridgeConfig
	logger   *zap.Logger
}

// New builds a bridge.
func New(doc *dom.Document, reg *registry.Registry, pairing *controller.PairingTable, cfg config.BridgeConfig, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{doc: doc, registry: reg, pairing: pairing, cfg: cfg, logger: logger.Named("bridge")}
}

// Install registers the modal_action and drawer_action stream actions.
func (b *Bridge) Install(r *turbostream.Renderer) {
	r.RegisterAction(turbostream.ActionModal, func(_ *turbostream.Renderer, inst turbostream.Instruction, _ []*html.Node) error {
		return b.Modal(inst.Target, inst.Attr(turbostream.AttrAction), attrBool(inst, turbostream.AttrClearForm))
	})
	r.RegisterAction(turbostream.ActionDrawer, func(_ *turbostream.Renderer, inst turbostream.Instruction, _ []*html.Node) error {
		return b.Drawer(inst.Target, inst.Attr(turbostream.AttrAction), attrBool(inst, turbostream.AttrResetForms))
	})
}

func attrBool(inst turbostream.Instruction, name string) bool {
	v, err := strconv.ParseBool(inst.Attr(name))
	return err == nil && v
}

// ExecuteJSON decodes one instruction or an array of them and executes each
// in order. Failures do not stop later instructions.
func (b *Bridge) ExecuteJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var insts []Instruction
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &insts); err != nil {
			return fmt.Errorf("invalid bridge instructions: %w", err)
		}
	} else {
		var inst Instruction
		if err := json.Unmarshal(data, &inst); err != nil {
			return fmt.Errorf("invalid bridge instruction: %w", err)
		}
		insts = append(insts, inst)
	}
	var errs []error
	for _, inst := range insts {
		if err := b.Execute(inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Execute runs one instruction.
func (b *Bridge) Execute(inst Instruction) error {
	kind, err := b.resolveWidget(inst)
	if err != nil {
		b.logger.Error("Cannot resolve bridge widget.", zap.String("id", inst.TargetElementID), zap.Error(err))
		return err
	}
	switch kind {
	case widget.KindModal:
		return b.Modal(inst.TargetElementID, inst.Action, inst.ClearForm || inst.ResetForms)
	default:
		return b.Drawer(inst.TargetElementID, inst.Action, inst.ResetForms)
	}
}

func (b *Bridge) resolveWidget(inst Instruction) (widget.Kind, error) {
	if inst.Widget != "" {
		kind, err := widget.ParseKind(inst.Widget)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrUnknownWidget, inst.Widget)
		}
		if kind != widget.KindModal && kind != widget.KindDrawer {
			return 0, fmt.Errorf("%w: %s", ErrUnknownWidget, inst.Widget)
		}
		return kind, nil
	}
	if _, ok := b.registry.Lookup(registry.Key{ID: inst.TargetElementID, Kind: widget.KindModal}); ok {
		return widget.KindModal, nil
	}
	if _, ok := b.pairing.Lookup(registry.Key{ID: inst.TargetElementID, Kind: widget.KindDrawer}); ok {
		return widget.KindDrawer, nil
	}
	return 0, fmt.Errorf("%w: nothing live for %q", ErrNoInstance, inst.TargetElementID)
}

// Modal applies action to the live modal for id. An empty action hides.
// clearForm empties every field of every form inside the modal.
func (b *Bridge) Modal(id, action string, clearForm bool) error {
	if action == "" {
		action = ActionHide
	}
	inst, ok := b.registry.Lookup(registry.Key{ID: id, Kind: widget.KindModal})
	if !ok {
		b.logger.Error("No modal instance for bridge action.", zap.String("id", id), zap.String("action", action))
		return fmt.Errorf("%w: modal %q", ErrNoInstance, id)
	}
	el := b.doc.GetElementByID(id)

	switch action {
	case ActionHide:
		inst.Hide()
	case ActionShow:
		inst.Show()
	case ActionToggle:
		inst.Toggle()
	case ActionFocusFirst:
		if el != nil {
			if field := b.doc.FirstAutofocus(el); field != nil {
				b.doc.Focus(field)
			}
		}
	default:
		b.logger.Error("Unsupported modal action.", zap.String("id", id), zap.String("action", action))
		return fmt.Errorf("%w: %q on modal %q", ErrUnknownAction, action, id)
	}

	if clearForm && el != nil {
		b.doc.ClearFields(el)
	}
	b.logger.Debug("Modal action applied.", zap.String("id", id), zap.String("action", action), zap.Bool("clear_form", clearForm))
	return nil
}

// Drawer applies action to the drawer target controller for id. resetForms
// applies after hide and focusFirstAutofocusField, and after show when the
// bridge is configured for it.
func (b *Bridge) Drawer(id, action string, resetForms bool) error {
	if b.doc.GetElementByID(id) == nil {
		b.logger.Error("Drawer element not found.", zap.String("id", id))
		return fmt.Errorf("%w: element %q not found", ErrNoController, id)
	}
	target, ok := b.pairing.Lookup(registry.Key{ID: id, Kind: widget.KindDrawer})
	if !ok {
		b.logger.Error("Element has no drawer target controller.", zap.String("id", id))
		return fmt.Errorf("%w: %q", ErrNoController, id)
	}
	drawer, ok := target.Owner().(*controller.DrawerTarget)
	if !ok {
		b.logger.Error("Drawer target controller has an unexpected type.", zap.String("id", id))
		return fmt.Errorf("%w: %q", ErrNoController, id)
	}

	switch action {
	case ActionHide:
		drawer.Hide()
	case ActionShow:
		drawer.Show()
		if !b.cfg.DrawerResetFormsOnShow {
			resetForms = false
		}
	case ActionFocusFirst:
		drawer.FocusFirstAutofocusField()
	case "":
	default:
		b.logger.Error("Unsupported drawer action.", zap.String("id", id), zap.String("action", action))
		return fmt.Errorf("%w: %q on drawer %q", ErrUnknownAction, action, id)
	}
	if resetForms {
		drawer.ResetForms()
	}
	b.logger.Debug("Drawer action applied.", zap.String("id", id), zap.String("action", action), zap.Bool("reset_forms", resetForms))
	return nil
}
