// internal/dom/document_test.go
package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="outer" class="a b">
  <button id="btn">Open</button>
  <div id="panel" class="hidden">
    <form id="f">
      <input id="name" name="name" value="default">
      <input id="agree" type="checkbox" checked>
      <input id="go" type="submit" value="Save">
      <select id="choice"><option value="x">X</option><option value="y" selected>Y</option></select>
      <textarea id="notes">hello</textarea>
    </form>
  </div>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	require.NoError(t, err)
	return doc
}

func TestLookupAndQuery(t *testing.T) {
	doc := mustParse(t, page)

	btn := doc.GetElementByID("btn")
	require.NotNil(t, btn)
	assert.Equal(t, "button", btn.Data)
	assert.Nil(t, doc.GetElementByID("missing"))
	assert.Nil(t, doc.GetElementByID(""))

	inputs := doc.Query(doc.GetElementByID("f"), ".//input")
	assert.Len(t, inputs, 3)
	assert.Nil(t, doc.Query(nil, "///bad[["), "invalid xpath matches nothing")

	outer := Closest(btn, func(n *html.Node) bool { return HasClass(n, "a") })
	assert.Equal(t, "outer", ID(outer))
	assert.True(t, doc.Contains(btn))
	assert.Equal(t, "body", doc.Body().Data)
}

func TestAttributesAndClasses(t *testing.T) {
	doc := mustParse(t, page)
	panel := doc.GetElementByID("panel")

	var records []MutationRecord
	obs := doc.Observe(panel, MutationOptions{Attributes: true}, func(r MutationRecord) {
		records = append(records, r)
	})
	defer obs.Disconnect()

	doc.RemoveClass(panel, "hidden")
	assert.False(t, HasClass(panel, "hidden"))
	doc.AddClass(panel, "open  !transition-none")
	assert.Equal(t, []string{"open", "!transition-none"}, Classes(panel))
	doc.AddClass(panel, "open")
	doc.ToggleClass(panel, "open", false)
	assert.Equal(t, []string{"!transition-none"}, Classes(panel))

	doc.SetAttr(panel, "data-x", "1")
	doc.SetAttr(panel, "data-x", "1")
	doc.RemoveAttr(panel, "data-x")
	doc.RemoveAttr(panel, "data-x")

	// remove hidden, add two tokens, remove open, set data-x, remove data-x
	require.Len(t, records, 5)
	assert.Equal(t, "class", records[0].AttributeName)
	assert.Equal(t, "hidden", records[0].OldValue)
	assert.Equal(t, "data-x", records[3].AttributeName)
}

func TestTreeMutationAndObservers(t *testing.T) {
	doc := mustParse(t, page)
	outer := doc.GetElementByID("outer")
	panel := doc.GetElementByID("panel")

	var records []MutationRecord
	obs := doc.Observe(outer, MutationOptions{ChildList: true, Subtree: true}, func(r MutationRecord) {
		records = append(records, r)
	})

	require.NoError(t, doc.SetInnerHTML(panel, `<p id="p1">one</p><p id="p2">two</p>`))
	require.Len(t, records, 1)
	assert.Equal(t, panel, records[0].Target)
	assert.Len(t, records[0].Added, 2)
	assert.Len(t, records[0].Removed, 3, "whitespace, form, whitespace")
	assert.Nil(t, doc.GetElementByID("f"))
	assert.Equal(t, `<p id="p1">one</p><p id="p2">two</p>`, InnerHTML(panel))

	p1 := doc.GetElementByID("p1")
	doc.Remove(p1)
	assert.False(t, doc.Contains(p1))
	require.Len(t, records, 2)
	assert.Equal(t, []*html.Node{p1}, records[1].Removed)

	obs.Disconnect()
	obs.Disconnect()
	doc.SetTextContent(panel, "plain")
	assert.Len(t, records, 2, "no delivery after disconnect")
	assert.Equal(t, "plain", TextContent(panel))
}

func TestReplaceWith(t *testing.T) {
	doc := mustParse(t, page)
	btn := doc.GetElementByID("btn")
	nodes, err := doc.ParseFragment(btn.Parent, `<a id="link" href="#">x</a>`)
	require.NoError(t, err)

	doc.ReplaceWith(btn, nodes...)
	assert.False(t, doc.Contains(btn))
	assert.NotNil(t, doc.GetElementByID("link"))
}

func TestCloneNode(t *testing.T) {
	doc := mustParse(t, page)
	panel := doc.GetElementByID("panel")
	clone := CloneNode(panel, true)
	assert.Equal(t, OuterHTML(panel), OuterHTML(clone))
	assert.Nil(t, clone.Parent)

	shallow := CloneNode(panel, false)
	assert.Nil(t, shallow.FirstChild)
}
