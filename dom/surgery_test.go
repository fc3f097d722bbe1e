package dom

import "testing"

func TestAppendPrependChildren(t *testing.T) {
	doc := mustParse(t, `<html><body><ul id="list"><li id="a">a</li></ul></body></html>`)
	list := FindByID(doc, "list")

	kids, err := ParseFragment(`<li id="b">b</li><li id="c">c</li>`)
	if err != nil {
		t.Fatal(err)
	}
	AppendChildren(list, kids...)
	if got := RenderChildren(list); got != `<li id="a">a</li><li id="b">b</li><li id="c">c</li>` {
		t.Errorf("append: got %q", got)
	}

	kids, err = ParseFragment(`<li id="x">x</li><li id="y">y</li>`)
	if err != nil {
		t.Fatal(err)
	}
	PrependChildren(list, kids...)
	if got := RenderChildren(list); got != `<li id="x">x</li><li id="y">y</li><li id="a">a</li><li id="b">b</li><li id="c">c</li>` {
		t.Errorf("prepend: got %q", got)
	}
}

func TestInsertBeforeAfter(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="ref">ref</div></body></html>`)
	ref := FindByID(doc, "ref")

	before, _ := ParseFragment(`<p id="b1">1</p><p id="b2">2</p>`)
	InsertBefore(ref, before...)
	after, _ := ParseFragment(`<p id="a1">1</p><p id="a2">2</p>`)
	InsertAfter(ref, after...)

	body := Body(doc)
	if got := RenderChildren(body); got != `<p id="b1">1</p><p id="b2">2</p><div id="ref">ref</div><p id="a1">1</p><p id="a2">2</p>` {
		t.Errorf("got %q", got)
	}
}

func TestInsertAroundDetachedIsNoop(t *testing.T) {
	orphan, _ := ParseFragment(`<div>orphan</div>`)
	kid, _ := ParseFragment(`<p>k</p>`)
	InsertBefore(orphan[0], kid...)
	InsertAfter(orphan[0], kid...)
	ReplaceWith(orphan[0], kid...)
	if orphan[0].PrevSibling != nil || orphan[0].NextSibling != nil {
		t.Error("detached node gained siblings")
	}
}

func TestReplaceWith(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="old">old</div></body></html>`)
	old := FindByID(doc, "old")

	repl, _ := ParseFragment(`<section id="new">new</section><aside id="extra"></aside>`)
	ReplaceWith(old, repl...)

	if FindByID(doc, "old") != nil {
		t.Error("old node still in tree")
	}
	if got := RenderChildren(Body(doc)); got != `<section id="new">new</section><aside id="extra"></aside>` {
		t.Errorf("got %q", got)
	}
	if old.Parent != nil {
		t.Error("replaced node keeps parent")
	}
}

func TestReplaceChildren(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="box"><p>1</p><p>2</p></div></body></html>`)
	box := FindByID(doc, "box")

	kids, _ := ParseFragment(`<span>z</span>`)
	ReplaceChildren(box, kids...)
	if got := RenderChildren(box); got != `<span>z</span>` {
		t.Errorf("got %q", got)
	}

	ReplaceChildren(box)
	if box.FirstChild != nil {
		t.Error("ReplaceChildren(): children remain")
	}
}

func TestDetachReinsert(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="a"></div><div id="b"></div></body></html>`)
	a := FindByID(doc, "a")
	b := FindByID(doc, "b")

	// Moving a parented node must not panic: Detach clears links first.
	Detach(a)
	InsertAfter(b, a)
	if got := RenderChildren(Body(doc)); got != `<div id="b"></div><div id="a"></div>` {
		t.Errorf("got %q", got)
	}
}
