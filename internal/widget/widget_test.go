// internal/widget/widget_test.go
package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/morphkit/internal/dom"
)

func TestKindRoundTrip(t *testing.T) {
	for _, k := range AllKinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("carousel")
	assert.Error(t, err)
	assert.Equal(t, "kind(99)", Kind(99).String())
}

type recorder struct{ events []string }

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnShow:     func() { r.events = append(r.events, "show") },
		OnHide:     func() { r.events = append(r.events, "hide") },
		OnToggle:   func() { r.events = append(r.events, "toggle") },
		OnCollapse: func() { r.events = append(r.events, "collapse") },
		OnExpand:   func() { r.events = append(r.events, "expand") },
		OnCopy:     func() { r.events = append(r.events, "copy") },
	}
}

func parse(t *testing.T, s string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(s)
	require.NoError(t, err)
	return doc
}

func TestModal(t *testing.T) {
	doc := parse(t, `<button id="open">Open</button><div id="m" class="hidden"><input id="f"></div>`)
	target := doc.GetElementByID("m")
	rec := &recorder{}
	m := NewModal(doc, target, nil, ModalOptions{Callbacks: rec.callbacks(), Backdrop: "dynamic", Closable: true, BackdropClasses: "bg-gray-900/50 fixed"}, InstanceOptions{ID: "m", Override: true})

	assert.False(t, m.IsVisible())
	m.Toggle()
	assert.True(t, m.IsVisible())
	assert.False(t, dom.HasClass(target, "hidden"))
	backdrop := doc.QueryOne(nil, "//*[@modal-backdrop]")
	require.NotNil(t, backdrop)

	doc.Click(backdrop)
	assert.False(t, m.IsVisible(), "dynamic backdrop closes on click")
	assert.Nil(t, doc.QueryOne(nil, "//*[@modal-backdrop]"))

	m.Show()
	doc.KeyDown(doc.Body(), "Escape")
	assert.False(t, m.IsVisible())
	assert.Equal(t, []string{"show", "toggle", "hide", "show", "hide"}, rec.events)

	m.Show()
	m.(Destroyer).Destroy()
	assert.Nil(t, doc.QueryOne(nil, "//*[@modal-backdrop]"))
	m.Hide()
	assert.True(t, m.IsVisible(), "destroyed widgets ignore calls")
	assert.Zero(t, doc.ListenerCount(doc.Root(), "keydown"))
}

func TestStaticModalIgnoresBackdrop(t *testing.T) {
	doc := parse(t, `<div id="m" class="hidden"></div>`)
	m := NewModal(doc, doc.GetElementByID("m"), nil, ModalOptions{Backdrop: "static", Closable: true}, InstanceOptions{})
	m.Show()
	doc.Click(doc.QueryOne(nil, "//*[@modal-backdrop]"))
	assert.True(t, m.IsVisible())
}

func TestDrawer(t *testing.T) {
	doc := parse(t, `<div id="d"></div>`)
	target := doc.GetElementByID("d")
	rec := &recorder{}
	d := NewDrawer(doc, target, nil, DrawerOptions{Callbacks: rec.callbacks(), Placement: "right", Backdrop: true}, InstanceOptions{ID: "d"})

	assert.True(t, dom.HasClass(target, "translate-x-full"))
	d.Show()
	assert.True(t, dom.HasClass(target, "transform-none"))
	assert.True(t, dom.HasClass(doc.Body(), "overflow-hidden"))
	doc.Click(doc.QueryOne(nil, "//*[@drawer-backdrop]"))
	assert.False(t, d.IsVisible())
	assert.False(t, dom.HasClass(doc.Body(), "overflow-hidden"))
	assert.Equal(t, []string{"show", "hide"}, rec.events)
}

func TestDropdownClickOutside(t *testing.T) {
	doc := parse(t, `<button id="t">Menu</button><ul id="menu" class="hidden"><li><a id="item" href="#">x</a></li></ul><p id="out" class="keep">o</p>`)
	rec := &recorder{}
	d := NewDropdown(doc, doc.GetElementByID("menu"), doc.GetElementByID("t"), DropdownOptions{Callbacks: rec.callbacks(), TriggerType: "click"}, InstanceOptions{})

	doc.Click(doc.GetElementByID("t"))
	assert.True(t, d.IsVisible())
	assert.Equal(t, "true", dom.AttrOr(doc.GetElementByID("t"), "aria-expanded", ""))

	doc.Click(doc.GetElementByID("item"))
	assert.True(t, d.IsVisible(), "clicks inside the menu are not outside clicks")

	doc.Click(doc.GetElementByID("out"))
	assert.False(t, d.IsVisible())

	d.(Destroyer).Destroy()
	doc.Click(doc.GetElementByID("t"))
	assert.False(t, d.IsVisible())
}

func TestTooltipHover(t *testing.T) {
	doc := parse(t, `<button id="t">?</button><div id="tip" class="invisible opacity-0">tip</div>`)
	tip := NewTooltip(doc, doc.GetElementByID("tip"), doc.GetElementByID("t"), TooltipOptions{TriggerType: "hover"}, InstanceOptions{})
	doc.Dispatch(doc.GetElementByID("t"), &dom.Event{Type: "mouseenter"})
	assert.True(t, tip.IsVisible())
	assert.True(t, dom.HasClass(doc.GetElementByID("tip"), "visible"))
	doc.Dispatch(doc.GetElementByID("t"), &dom.Event{Type: "mouseleave"})
	assert.False(t, tip.IsVisible())
}

func TestCollapse(t *testing.T) {
	doc := parse(t, `<button id="t" aria-expanded="false">More</button><div id="c" class="hidden">body</div>`)
	rec := &recorder{}
	c := NewCollapse(doc, doc.GetElementByID("c"), doc.GetElementByID("t"), CollapseOptions{Callbacks: rec.callbacks()}, InstanceOptions{})

	doc.Click(doc.GetElementByID("t"))
	assert.True(t, c.IsVisible())
	doc.Click(doc.GetElementByID("t"))
	assert.False(t, c.IsVisible())
	assert.Equal(t, []string{"expand", "toggle", "collapse", "toggle"}, rec.events)
}

func TestDismiss(t *testing.T) {
	doc := parse(t, `<div id="alert">Saved</div>`)
	rec := &recorder{}
	d := NewDismiss(doc, doc.GetElementByID("alert"), nil, DismissOptions{Callbacks: rec.callbacks(), Transition: "transition-opacity", Duration: 300, Timing: "ease-out"}, InstanceOptions{})
	d.Hide()
	d.Hide()
	alert := doc.GetElementByID("alert")
	assert.True(t, dom.HasClass(alert, "hidden"))
	assert.True(t, dom.HasClass(alert, "duration-300"))
	assert.Equal(t, []string{"hide"}, rec.events)
}

func TestClipboard(t *testing.T) {
	doc := parse(t, `<input id="src" value="a &amp; b"><button id="copy">Copy</button><p id="p">x &lt; y</p>`)
	clip := &MemoryClipboard{}
	rec := &recorder{}
	catalog := DefaultCatalog(clip)

	w := catalog.Clipboard(doc, doc.GetElementByID("src"), doc.GetElementByID("copy"), ClipboardOptions{Callbacks: rec.callbacks(), ContentType: "input"}, InstanceOptions{ID: "src"})
	doc.Click(doc.GetElementByID("copy"))
	assert.Equal(t, "a & b", clip.Text())
	assert.Equal(t, []string{"copy"}, rec.events)

	doc.SetValue(doc.GetElementByID("src"), "typed")
	doc.Click(doc.GetElementByID("copy"))
	assert.Equal(t, "typed", clip.Text())

	w.(Destroyer).Destroy()
	html := NewClipboard(doc, doc.GetElementByID("p"), nil, ClipboardOptions{ContentType: "innerHTML", HTMLEntities: true}, InstanceOptions{}, clip)
	assert.Equal(t, "x < y", html.(*ClipboardButton).Copy())
}
