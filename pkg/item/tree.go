// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package item

import "fmt"

// Tree is an arena of Items, rooted at handle 1 (the Root item). It owns
// every Item and the parent/child index relationships between them. A Tree
// is built by exactly one Parse call and is not safe for concurrent
// mutation (§5 — a parser instance owns its Tree and forbids concurrent
// access); concurrent read-only access after parsing completes is fine.
type Tree struct {
	items []*Item // items[0] is unused; handles are 1-based.
}

// NewTree creates an empty tree with a single Root item.
func NewTree() *Tree {
	t := &Tree{items: make([]*Item, 1)}
	root := &Item{handle: 1, parent: InvalidHandle, Kind: KindRoot, Name: "Root"}
	t.items = append(t.items, root)
	return t
}

// Root returns the handle of the tree's root item.
func (t *Tree) Root() Handle { return 1 }

// Item returns the Item for a handle. Panics if the handle is invalid; all
// handles returned by Tree methods are valid by construction.
func (t *Tree) Item(h Handle) *Item {
	return t.items[h]
}

// AddItem appends a new last child of parent and returns its handle. Per
// spec.md §4.1, compressed is inherited from the parent at creation time and
// fixed propagates upward through non-compressed ancestors.
func (t *Tree) AddItem(parent Handle, offset uint64, kind Kind, subtype Subtype,
	name, text, info string, header, body, tail []byte, fixed bool) (Handle, error) {
	if parent == InvalidHandle || int(parent) >= len(t.items) {
		return InvalidHandle, fmt.Errorf("add_item: invalid parent handle %d", parent)
	}
	h := Handle(len(t.items))
	it := &Item{
		handle:  h,
		parent:  parent,
		Kind:    kind,
		Subtype: subtype,
		Offset:  offset,
		Name:    name,
		Text:    text,
		Info:    info,
		Header:  header,
		Body:    body,
		Tail:    tail,
		Fixed:   fixed,
	}
	it.Compressed = t.items[parent].Compressed
	t.items = append(t.items, it)
	t.items[parent].children = append(t.items[parent].children, h)
	if fixed {
		t.PropagateFixed(h)
	}
	return h, nil
}

// PropagateFixed marks h and its ancestors fixed, stopping at a compressed
// boundary: a fixed descendant forces all ancestors fixed, unless that
// descendant lies inside a compressed container whose own parent is not
// compressed (spec.md §3, rationale in §4.1).
func (t *Tree) PropagateFixed(h Handle) {
	cur := h
	for cur != InvalidHandle {
		it := t.items[cur]
		it.Fixed = true
		if it.Compressed && it.parent != InvalidHandle && !t.items[it.parent].Compressed {
			// The compressed container's own position is independent of
			// the compressed payload's position; propagation stops here.
			break
		}
		cur = it.parent
	}
}

// SetCompressed sets the compressed flag on h. Per spec.md §3, compressed
// descendants of compressed items inherit compressed=true at creation and
// non-compressed descendants reset it; this setter is used by the parser
// when an item's compressed-ness is determined after creation (e.g. the
// decompressed child of a Compression section).
func (t *Tree) SetCompressed(h Handle, v bool) {
	t.items[h].Compressed = v
}

// SetFixed sets the fixed flag on h, propagating per PropagateFixed if true.
func (t *Tree) SetFixed(h Handle, v bool) {
	t.items[h].Fixed = v
	if v {
		t.PropagateFixed(h)
	}
}

// SetMarking sets the marking colour on h.
func (t *Tree) SetMarking(h Handle, m Marking) {
	t.items[h].Marking = m
}

// SetName sets the display name on h.
func (t *Tree) SetName(h Handle, name string) { t.items[h].Name = name }

// SetText sets the short annotation on h.
func (t *Tree) SetText(h Handle, text string) { t.items[h].Text = text }

// FindParentOfType returns the nearest ancestor of the given kind, or
// InvalidHandle if none exists.
func (t *Tree) FindParentOfType(h Handle, kind Kind) Handle {
	cur := t.items[h].parent
	for cur != InvalidHandle {
		if t.items[cur].Kind == kind {
			return cur
		}
		cur = t.items[cur].parent
	}
	return InvalidHandle
}

// FindLastParentOfType returns the furthest ancestor of the given kind
// (spec.md §4.1: "the furthest ancestor").
func (t *Tree) FindLastParentOfType(h Handle, kind Kind) Handle {
	cur := t.items[h].parent
	last := InvalidHandle
	for cur != InvalidHandle {
		if t.items[cur].Kind == kind {
			last = cur
		}
		cur = t.items[cur].parent
	}
	return last
}

// FindByOffset returns the handle of the item whose Offset equals offset,
// searching the whole tree, or InvalidHandle if none matches.
func (t *Tree) FindByOffset(offset uint64) Handle {
	for h := 1; h < len(t.items); h++ {
		if t.items[h].Offset == offset {
			return Handle(h)
		}
	}
	return InvalidHandle
}

// Walk performs a pre-order traversal of the tree starting at h, calling fn
// for every visited item (including h itself).
func (t *Tree) Walk(h Handle, fn func(Handle) error) error {
	if err := fn(h); err != nil {
		return err
	}
	it := t.items[h]
	for _, c := range it.children {
		if err := t.Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of items in the tree, including the root.
func (t *Tree) Count() int { return len(t.items) - 1 }
