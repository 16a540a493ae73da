// internal/turbostream/builder.go
package turbostream

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Custom actions understood by the remote-control bridge.
const (
	ActionModal  = "modal_action"
	ActionDrawer = "drawer_action"
)

// Attributes carried by the custom actions.
const (
	AttrAction     = "data-action"
	AttrClearForm  = "data-clear-form"
	AttrResetForms = "data-reset-forms"
)

// FlashContainerID is where toasts are appended.
const FlashContainerID = "flash"

// Builder assembles a stream response on the server side.
type Builder struct {
	insts []Instruction
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a raw instruction.
func (b *Builder) Add(inst Instruction) *Builder {
	b.insts = append(b.insts, inst)
	return b
}

func (b *Builder) templated(action, target, markup string) *Builder {
	return b.Add(Instruction{Action: action, Target: target, Template: markup})
}

// Append adds markup at the end of the target.
func (b *Builder) Append(target, markup string) *Builder {
	return b.templated(ActionAppend, target, markup)
}

// Prepend adds markup at the start of the target.
func (b *Builder) Prepend(target, markup string) *Builder {
	return b.templated(ActionPrepend, target, markup)
}

// Replace swaps the target for markup.
func (b *Builder) Replace(target, markup string) *Builder {
	return b.templated(ActionReplace, target, markup)
}

// Update replaces the target's content.
func (b *Builder) Update(target, markup string) *Builder {
	return b.templated(ActionUpdate, target, markup)
}

// Morph patches the target's content in place.
func (b *Builder) Morph(target, markup string) *Builder {
	return b.Add(Instruction{Action: ActionUpdate, Target: target, Method: MethodMorph, Template: markup})
}

// Remove deletes the target.
func (b *Builder) Remove(target string) *Builder {
	return b.Add(Instruction{Action: ActionRemove, Target: target})
}

// Before inserts markup ahead of the target.
func (b *Builder) Before(target, markup string) *Builder {
	return b.templated(ActionBefore, target, markup)
}

// After inserts markup behind the target.
func (b *Builder) After(target, markup string) *Builder {
	return b.templated(ActionAfter, target, markup)
}

// LazyFrames fills placeholder frames, patching each in place. Frames are
// emitted in id order.
func (b *Builder) LazyFrames(frames map[string]string) *Builder {
	ids := make([]string, 0, len(frames))
	for id := range frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b.Morph(id, frames[id])
	}
	return b
}

// ModalAction drives a modal instance. An empty action means hide.
func (b *Builder) ModalAction(id, action string, clearForm bool) *Builder {
	if action == "" {
		action = "hide"
	}
	return b.Add(Instruction{
		Action: ActionModal,
		Target: id,
		Attrs:  map[string]string{AttrAction: action, AttrClearForm: strconv.FormatBool(clearForm)},
	})
}

// HideModal hides a modal.
func (b *Builder) HideModal(id string, clearForm bool) *Builder {
	return b.ModalAction(id, "hide", clearForm)
}

// DrawerAction drives a drawer target controller.
func (b *Builder) DrawerAction(id, action string, resetForms bool) *Builder {
	return b.Add(Instruction{
		Action: ActionDrawer,
		Target: id,
		Attrs:  map[string]string{AttrAction: action, AttrResetForms: strconv.FormatBool(resetForms)},
	})
}

// HideDrawer hides a drawer.
func (b *Builder) HideDrawer(id string, resetForms bool) *Builder {
	return b.DrawerAction(id, "hide", resetForms)
}

// ShowDrawer shows a drawer.
func (b *Builder) ShowDrawer(id string, resetForms bool) *Builder {
	return b.DrawerAction(id, "show", resetForms)
}

// Toast appends a flash message. message is trusted markup. An empty id
// gets a random one.
func (b *Builder) Toast(kind, message, id string) *Builder {
	if id == "" {
		id = "toast-" + kind + "-" + randomHex(4)
	}
	markup := fmt.Sprintf(`<div id="%s" class="toast toast-%s" role="alert">%s</div>`,
		html.EscapeString(id), html.EscapeString(kind), message)
	return b.Append(FlashContainerID, markup)
}

// ToastNotice appends a notice toast.
func (b *Builder) ToastNotice(message string) *Builder {
	return b.Toast("notice", message, "")
}

// ToastAlert appends an alert toast.
func (b *Builder) ToastAlert(message string) *Builder {
	return b.Toast("alert", message, "")
}

// Instructions returns the accumulated instructions.
func (b *Builder) Instructions() []Instruction {
	return append([]Instruction(nil), b.insts...)
}

// Len returns the number of instructions.
func (b *Builder) Len() int { return len(b.insts) }

func (b *Builder) String() string {
	var sb strings.Builder
	for _, inst := range b.insts {
		writeInstruction(&sb, inst)
	}
	return sb.String()
}

// WriteTo writes the stream with its content type.
func (b *Builder) WriteTo(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", ContentType+"; charset=utf-8")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeInstruction(sb *strings.Builder, inst Instruction) {
	attrs := map[string]string{}
	for k, v := range inst.Attrs {
		attrs[k] = v
	}
	attrs["action"] = inst.Action
	if inst.Target != "" {
		attrs["target"] = inst.Target
	}
	if inst.Targets != "" {
		attrs["targets"] = inst.Targets
	}
	if inst.Method != "" {
		attrs["method"] = inst.Method
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// action and target first, the rest alphabetically.
	sort.SliceStable(keys, func(i, j int) bool { return attrRank(keys[i]) < attrRank(keys[j]) })

	sb.WriteString("<turbo-stream")
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(attrs[k]))
		sb.WriteString(`"`)
	}
	sb.WriteString("><template>")
	sb.WriteString(inst.Template)
	sb.WriteString("</template></turbo-stream>")
}

func attrRank(k string) int {
	switch k {
	case "action":
		return 0
	case "target", "targets":
		return 1
	case "method":
		return 2
	}
	return 3
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "0000"
	}
	return hex.EncodeToString(buf)
}
