/*
   Register cache: host scratch-slot allocator for the guest register file.

   Copyright (c) 2024, drc32x contributors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package rcache tracks which host scratch slots hold which guest
// registers while a block is being translated, emitting the context
// loads and writebacks needed to keep that association honest. It owns
// no host registers itself; it hands out emit.HReg values from a fixed
// pool and records, per slot, whether it's free, holds a clean or
// dirty copy of a guest register, or is on loan as an untracked temp.
package rcache

import "github.com/sh2drc/drc32x/emit"
import "github.com/sh2drc/drc32x/sh2"

// Mode selects how get_reg treats the returned slot.
type Mode int

const (
	Read Mode = iota
	Write
	ReadModifyWrite
)

type kind int

const (
	free kind = iota
	cached
	cachedDirty
	temp
)

type slot struct {
	reg   emit.HReg
	kind  kind
	stamp uint16
	val   sh2.Reg
}

// ArgRegs are the host scratch slots treated as the first three C-ABI
// argument registers by GetTmpArg/GetRegArg.
var ArgRegs = [3]emit.HReg{0, 1, 2}

// Cache is the per-block register-cache instance; a fresh one is built
// for every block translation and discarded once the block is emitted.
type Cache struct {
	e         emit.Emitter
	slots     []slot
	counter   uint16
	staticMap [sh2.NumRegs]int16 // host slot+1, or 0 if unmapped.
	Ops       []emit.Op
}

// New builds a Cache with the given number of host scratch slots
// (reg[i].reg == emit.HReg(i)) and an optional static guest-to-host
// mapping; pass a zero-value map for none.
func New(e emit.Emitter, numSlots int, staticMap [sh2.NumRegs]int16) *Cache {
	c := &Cache{e: e, staticMap: staticMap}
	c.slots = make([]slot, numSlots)
	for i := range c.slots {
		c.slots[i].reg = emit.HReg(i)
	}
	return c
}

func (c *Cache) emit(op emit.Op) { c.Ops = append(c.Ops, op) }

// GetReg returns the host slot holding guest register r, allocating
// and refreshing it as mode requires.
func (c *Cache) GetReg(r sh2.Reg, mode Mode) emit.HReg {
	if hr := c.staticMap[r]; hr != 0 {
		return emit.HReg(hr - 1)
	}

	c.counter++

	for i := len(c.slots) - 1; i >= 0; i-- {
		s := &c.slots[i]
		if (s.kind == cached || s.kind == cachedDirty) && s.val == r {
			s.stamp = c.counter
			if mode != Read {
				s.kind = cachedDirty
			}
			return s.reg
		}
	}

	idx := c.allocSlot()
	s := &c.slots[idx]
	if mode != Write {
		c.emit(c.e.ContextLoad([]emit.HReg{s.reg}, r))
	}
	if mode != Read {
		s.kind = cachedDirty
	} else {
		s.kind = cached
	}
	s.val = r
	s.stamp = c.counter
	return s.reg
}

// allocSlot picks a free slot, or evicts the oldest cached one.
func (c *Cache) allocSlot() int {
	for i := len(c.slots) - 1; i >= 0; i-- {
		if c.slots[i].kind == free {
			return i
		}
	}
	return c.evict()
}

// evict reclaims the cached slot with the smallest stamp, writing it
// back first if dirty. Ties favor the highest slot index.
func (c *Cache) evict() int {
	oldest := -1
	var min uint16 = 0xffff
	for i := 0; i < len(c.slots); i++ {
		s := &c.slots[i]
		if s.kind == cached || s.kind == cachedDirty {
			if s.stamp <= min {
				min = s.stamp
				oldest = i
			}
		}
	}
	if oldest == -1 {
		panic("rcache: no slots left to evict")
	}
	s := &c.slots[oldest]
	if s.kind == cachedDirty {
		c.emit(c.e.ContextStore(s.val, []emit.HReg{s.reg}))
	}
	s.kind = free
	return oldest
}

// GetTmp returns a scratch slot with no guest register association.
// The caller must FreeTmp it once done.
func (c *Cache) GetTmp() emit.HReg {
	idx := -1
	for i := 0; i < len(c.slots); i++ {
		if c.slots[i].kind == free {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = c.evict()
	}
	c.slots[idx].kind = temp
	return c.slots[idx].reg
}

// FreeTmp releases a slot obtained from GetTmp.
func (c *Cache) FreeTmp(hr emit.HReg) {
	for i := range c.slots {
		if c.slots[i].reg == hr {
			if c.slots[i].kind != temp {
				panic("rcache: FreeTmp on a non-temp slot")
			}
			c.slots[i].kind = free
			return
		}
	}
	panic("rcache: FreeTmp on an unknown register")
}

// argSlot finds the slot occupying ArgRegs[arg], writing it back if
// dirty so the caller is free to clobber it as a call argument.
func (c *Cache) argSlot(arg int) int {
	want := ArgRegs[arg]
	for i := range c.slots {
		if c.slots[i].reg == want {
			if c.slots[i].kind == cachedDirty {
				c.emit(c.e.ContextStore(c.slots[i].val, []emit.HReg{c.slots[i].reg}))
			}
			if c.slots[i].kind == temp {
				panic("rcache: arg register already claimed as a temp")
			}
			return i
		}
	}
	panic("rcache: argument register not tracked by this cache")
}

// GetTmpArg claims arg slot n as an untracked temp, for a call
// argument that doesn't correspond to any guest register (e.g. an
// immediate or a computed address).
func (c *Cache) GetTmpArg(n int) emit.HReg {
	idx := c.argSlot(n)
	c.slots[idx].kind = temp
	return c.slots[idx].reg
}

// GetRegArg claims arg slot n and loads guest register r into it,
// reusing an existing cached copy of r instead of re-reading context
// when one is resident. Assumes registers were cleaned before the
// call this argument is being prepared for.
func (c *Cache) GetRegArg(n int, r sh2.Reg) emit.HReg {
	dstIdx := c.argSlot(n)
	dst := c.slots[dstIdx].reg

	src := dst
	if hr := c.staticMap[r]; hr != 0 {
		src = emit.HReg(hr - 1)
	} else {
		found := false
		for i := len(c.slots) - 1; i >= 0; i-- {
			s := &c.slots[i]
			if (s.kind == cached || s.kind == cachedDirty) && s.val == r {
				src = s.reg
				found = true
				break
			}
		}
		if !found {
			c.emit(c.e.ContextLoad([]emit.HReg{dst}, r))
		}
	}
	if src != dst {
		c.emit(c.e.MovRR(dst, src))
	}

	c.counter++
	c.slots[dstIdx].kind = cached
	c.slots[dstIdx].val = r
	c.slots[dstIdx].stamp = c.counter
	return dst
}

// Clean writes back every dirty slot and demotes it to clean. Call
// before any host call that might itself inspect guest state.
func (c *Cache) Clean() {
	for i := range c.slots {
		if c.slots[i].kind == cachedDirty {
			c.emit(c.e.ContextStore(c.slots[i].val, []emit.HReg{c.slots[i].reg}))
			c.slots[i].kind = cached
		}
	}
}

// Invalidate marks every slot free without writing back dirty ones;
// used after a host call whose side effects already landed in
// context through the argument convention.
func (c *Cache) Invalidate() {
	for i := range c.slots {
		c.slots[i].kind = free
	}
}

// Flush is Clean followed by Invalidate.
func (c *Cache) Flush() {
	c.Clean()
	c.Invalidate()
}
