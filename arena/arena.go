// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package arena provides a bump allocator with stack-like lifetimes, used
// by the parser and word expander for scratch buffers whose lifetime is
// bounded by a single parse or a single command's expansion (spec §3
// Arena, §9 "Arena allocator with macro-driven inlined fast paths").
//
// The design mirrors the buffer-reuse idiom already present in the
// teacher repo (parser.go's sync.Pool of *parser values wrapping a
// *bytes.Buffer, and interp/expand.go's ExpandContext.bufferAlloc): a
// pool of fixed-size blocks is reused across arenas instead of being
// freed and reallocated on every parse.
package arena

import "sync"

const blockSize = 4096

type block struct {
	data []byte
	next *block
}

var blockPool = sync.Pool{
	New: func() any { return &block{data: make([]byte, blockSize)} },
}

// Mark is a restorable allocator position returned by PushMark.
type Mark struct {
	blk  *block
	used int
}

// Arena is a linked list of fixed-size blocks with a bump-pointer
// allocator. The zero value is ready to use.
//
// No pointer returned by Alloc may escape the innermost enclosing
// PushMark/PopMark pair (spec §5 "Shared-resource policy").
type Arena struct {
	head *block
	used int
}

// PushMark captures the arena's current bump position.
func (a *Arena) PushMark() Mark {
	return Mark{blk: a.head, used: a.used}
}

// PopMark restores the arena to the state captured by m, releasing every
// block allocated since and returning them to the shared pool. Calling
// PopMark with a Mark from a different Arena is a programming error.
func (a *Arena) PopMark(m Mark) {
	for a.head != nil && a.head != m.blk {
		freed := a.head
		a.head = a.head.next
		freed.next = nil
		// Oversized blocks are sized for one large allocation; don't
		// let them bloat the shared pool for ordinary small requests.
		if len(freed.data) == blockSize {
			blockPool.Put(freed)
		}
	}
	a.head = m.blk
	a.used = m.used
}

// Alloc returns n zeroed bytes with the given alignment (a power of two),
// valid until the next PopMark that unwinds past the mark enclosing this
// call.
func (a *Arena) Alloc(n, align int) []byte {
	if n == 0 {
		return nil
	}
	if a.head == nil {
		a.head = blockPool.Get().(*block)
		a.used = 0
	}
	aligned := alignUp(a.used, align)
	if n > blockSize {
		// Oversized allocation: give it its own dedicated block, sized
		// exactly for n rather than the pool's fixed blockSize, linked
		// in front so PopMark still frees it in order.
		blk := &block{data: make([]byte, n), next: a.head}
		a.head = blk
		a.used = n
		return blk.data
	}
	if aligned+n > blockSize {
		blk := blockPool.Get().(*block)
		blk.next = a.head
		a.head = blk
		aligned = 0
	}
	a.used = aligned + n
	return a.head.data[aligned:a.used]
}

// AllocString copies s into the arena and returns the copy.
func (a *Arena) AllocString(s string) string {
	if s == "" {
		return ""
	}
	b := a.Alloc(len(s), 1)
	copy(b, s)
	return string(b)
}

// Reset releases every block held by the arena back to the shared pool,
// equivalent to PopMark(zero Mark).
func (a *Arena) Reset() {
	a.PopMark(Mark{})
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// WithMark runs f with a mark pushed on a, then pops it unconditionally,
// guaranteeing the mark cannot leak past f's return (spec §9 "with-arena
// acquisition so marks cannot be leaked").
func (a *Arena) WithMark(f func()) {
	m := a.PushMark()
	defer a.PopMark(m)
	f()
}
