// internal/turbostream/instruction_test.go
package turbostream

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	body := `
		<turbo-stream action="update" target="stats" method="morph"><template><p>42</p></template></turbo-stream>
		<turbo-stream action="REMOVE" targets=".row.old"></turbo-stream>
		<turbo-stream action="modal_action" target="m" data-action="show" data-clear-form="true"></turbo-stream>`

	got, err := Parse(body)
	require.NoError(t, err)

	want := []Instruction{
		{
			Action: "update", Target: "stats", Method: "morph", Template: "<p>42</p>",
			Attrs: map[string]string{"action": "update", "target": "stats", "method": "morph"},
		},
		{
			Action: "remove", Targets: ".row.old",
			Attrs: map[string]string{"action": "REMOVE", "targets": ".row.old"},
		},
		{
			Action: "modal_action", Target: "m",
			Attrs: map[string]string{"action": "modal_action", "target": "m", "data-action": "show", "data-clear-form": "true"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got[0].IsMorph())
	assert.Equal(t, "show", got[2].Attr("data-action"))
	assert.Equal(t, "update#stats", got[0].String())
	assert.Equal(t, "remove[.row.old]", got[1].String())
}

func TestParse_NestedStreamsStayInTemplate(t *testing.T) {
	body := `<turbo-stream action="append" target="log"><template><turbo-stream action="remove" target="x"></turbo-stream></template></turbo-stream>`
	got, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Template, `<turbo-stream action="remove" target="x">`)
}

func TestParse_NoInstructions(t *testing.T) {
	got, err := Parse("<p>plain html</p>")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectorXPath(t *testing.T) {
	tests := []struct {
		sel  string
		want string
		err  bool
	}{
		{sel: "li", want: "//li"},
		{sel: "#a", want: `//*[@id="a"]`},
		{sel: ".row", want: "//*[contains(concat(' ', normalize-space(@class), ' '), ' row ')]"},
		{sel: "div#a.b", want: `//div[@id="a"][contains(concat(' ', normalize-space(@class), ' '), ' b ')]`},
		{sel: "li, p", want: "//li | //p"},
		{sel: "//section/p", want: "//section/p"},
		{sel: "ul > li", err: true},
		{sel: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			got, err := selectorXPath(tt.sel)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilderOutputParses(t *testing.T) {
	b := NewBuilder().
		Update("a", "<b>x</b>").
		Remove("gone").
		ModalAction("m", "", true).
		DrawerAction("d", "show", false)

	got, err := Parse(b.String())
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "<b>x</b>", got[0].Template)
	assert.Equal(t, ActionRemove, got[1].Action)
	assert.Equal(t, "hide", got[2].Attr(AttrAction))
	assert.Equal(t, "true", got[2].Attr(AttrClearForm))
	assert.Equal(t, "false", got[3].Attr(AttrResetForms))
}

// FuzzParse checks that arbitrary bodies never panic the parser and that
// every instruction it yields is normalised.
func FuzzParse(f *testing.F) {
	f.Add(`<turbo-stream action="update" target="a"><template><p>x</p></template></turbo-stream>`)
	f.Add(`<turbo-stream action="remove" targets=".x"></turbo-stream>`)
	f.Add(`<turbo-stream><turbo-stream action=append>`)
	f.Add("")

	f.Fuzz(func(t *testing.T, body string) {
		insts, err := Parse(body)
		if err != nil {
			return
		}
		for _, inst := range insts {
			assert.Equal(t, inst.Target, inst.Attrs["target"])
			assert.Equal(t, strings.ToLower(inst.Action), inst.Action)
		}
	})
}

// FuzzBuilderRoundTrip feeds structured instructions through the builder and
// back through the parser.
func FuzzBuilderRoundTrip(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var target, action string
		var reset bool
		if err := consumer.GenerateStruct(&target); err != nil {
			return
		}
		if err := consumer.GenerateStruct(&action); err != nil {
			return
		}
		if err := consumer.GenerateStruct(&reset); err != nil {
			return
		}

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic while building or parsing: %v", r)
			}
		}()
		body := NewBuilder().DrawerAction(target, action, reset).String()
		insts, err := Parse(body)
		if err != nil {
			return
		}
		if len(insts) != 1 {
			t.Fatalf("expected one instruction from %q, got %d", body, len(insts))
		}
		assert.Equal(t, ActionDrawer, insts[0].Action)
	})
}
