/*
 * drc32x - Code cache: block descriptors, ROM hash table, SMC bitmaps.
 *
 * Copyright (c) 2024, drc32x contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN
 * ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
 * WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 */

// Package cache holds translated blocks: the three disjoint regions,
// region 0's PC hash table, and the per-region self-modifying-code
// bitmaps that let a guest memory write invalidate the block covering
// it without compacting the cache.
//
// Block descriptors live in an arena per region, addressed by a
// 1-based BlockID rather than a pointer: id 0 doubles as both "end of
// hash chain" and "no block" in an SMC bitmap slot, so it must never
// name a real block.
package cache

import (
	"fmt"
	"log/slog"

	"github.com/sh2drc/drc32x/debugflags"
	"github.com/sh2drc/drc32x/emit"
)

// RegionID names the three disjoint code-cache regions.
type RegionID int

const (
	RegionROM RegionID = iota // Shared ROM/DRAM region, master and slave both translate into it.
	RegionMasterInternal
	RegionSlaveInternal
	NumRegions
)

const (
	// BlockCycleLimit is the guest-cycle budget a single translated
	// block may consume before translation ends the block.
	BlockCycleLimit = 100

	// MaxBlockSize is the per-block reservation the bump allocator
	// checks free space against before starting a new block; units
	// match the per-region budgets New derives from regionShare, an
	// abstract stand-in for the host bytes a
	// block would occupy in a real codegen backend.
	MaxBlockSize = BlockCycleLimit * 6 * 6

	// MaxHashEntries is the ROM region's PC hash table size.
	MaxHashEntries = 1024
	hashMask       = MaxHashEntries - 1

	// dramSize/dramGranularity and internalSize/internalGranularity
	// size the per-region SMC bitmaps. DRAM is tracked at half-word
	// granularity (the minimum guest write SMC must notice is a
	// 16-bit opcode); on-chip data array/BIOS the same.
	dramSize         = 0x40000
	dramGranularity  = 2
	internalSize     = 0x1000
	internalGranularity = 2
)

// regionShare splits a caller-chosen total capacity across the three
// regions in the proportion the source DRC used: 6/8 ROM+DRAM, 1/8
// each for master and slave on-chip memory.
var regionShare = [NumRegions]int{6, 1, 1}

// BlockID addresses one descriptor within a region's arena. 0 is
// reserved (see package doc); real blocks start at 1.
type BlockID uint16

// Block is one translated guest code range.
type Block struct {
	Addr    uint32
	EndAddr uint32
	Ops     []emit.Op
	Next    BlockID // Next block in this hash bucket's chain, 0 = end.
}

// Region is one of the three disjoint code-cache partitions.
type Region struct {
	id   RegionID
	cap  int // Descriptor capacity.
	size int // Abstract unit budget (bump-allocated alongside descriptors).

	blocks    []Block // blocks[0] is the unused sentinel.
	used      int     // Units consumed since the last flush.
	descCount int     // Live descriptor count, blocks[1..descCount].

	hash []BlockID // Only populated for RegionROM.
	smc  []uint16  // (blockID<<1)|tailBit per covered address slot.
}

var descriptorCaps = [NumRegions]int{4096, 256, 256}

// Cache owns all three regions. It is not safe for concurrent use;
// the translator and the SMC invalidator are the only writers and
// both run on the dispatching goroutine.
type Cache struct {
	Regions [NumRegions]*Region
}

// New builds a Cache with totalUnits split across regions in the
// source DRC's 6/8-1/8-1/8 proportion.
func New(totalUnits int) *Cache {
	c := &Cache{}
	for i := RegionID(0); i < NumRegions; i++ {
		r := &Region{
			id:     i,
			cap:    descriptorCaps[i],
			size:   totalUnits * regionShare[i] / 8,
			blocks: make([]Block, descriptorCaps[i]+1),
		}
		if i == RegionROM {
			r.hash = make([]BlockID, MaxHashEntries)
			r.smc = make([]uint16, dramSize/dramGranularity)
		} else {
			r.smc = make([]uint16, internalSize/internalGranularity)
		}
		c.Regions[i] = r
	}
	return c
}

// ClassifyPC selects the region a guest PC's block belongs to.
func ClassifyPC(pc uint32, isSlave bool) RegionID {
	if pc>>29 == 6 || pc < 0x1000 {
		if isSlave {
			return RegionSlaveInternal
		}
		return RegionMasterInternal
	}
	return RegionROM
}

// HashIndex computes the ROM hash table bucket for a guest PC.
func HashIndex(pc uint32) uint32 { return pc & hashMask }

// Flush resets a region to empty: the bump pointer and descriptor
// count return to zero and, for ROM, the hash table is cleared too;
// for every region the SMC bitmap is zeroed.
func (c *Cache) Flush(id RegionID) {
	r := c.Regions[id]
	slog.Info("cache: flush", "region", id, "blocks", r.descCount, "units", r.used)
	r.used = 0
	r.descCount = 0
	r.blocks = make([]Block, r.cap+1)
	for i := range r.smc {
		r.smc[i] = 0
	}
	if id == RegionROM {
		for i := range r.hash {
			r.hash[i] = 0
		}
	}
}

// FlushAll resets every region.
func (c *Cache) FlushAll() {
	for i := RegionID(0); i < NumRegions; i++ {
		c.Flush(i)
	}
}

// Reserve accounts for a new block about to be translated, flushing
// the region first if less than MaxBlockSize is free. It never fails;
// a region whose whole budget is below MaxBlockSize is flushed on
// every call.
func (c *Cache) Reserve(id RegionID, units int) {
	r := c.Regions[id]
	if r.size-r.used < MaxBlockSize {
		c.Flush(id)
		r = c.Regions[id]
	}
	r.used += units
}

// AddBlock allocates a descriptor for addr in region id. It returns
// ok=false when the region's descriptor arena is already full; the
// caller is expected to flush and retry, matching the translator's
// "block descriptor exhaustion" policy.
func (c *Cache) AddBlock(id RegionID, addr uint32) (*Block, BlockID, bool) {
	r := c.Regions[id]
	if r.descCount >= r.cap {
		return nil, 0, false
	}
	r.descCount++
	bid := BlockID(r.descCount)
	r.blocks[bid] = Block{Addr: addr}
	return &r.blocks[bid], bid, true
}

// FindBlock walks a hash bucket's chain looking for addr, returning
// its descriptor and id, or (nil, 0) on a miss.
func (c *Cache) FindBlock(id RegionID, head BlockID, addr uint32) (*Block, BlockID) {
	r := c.Regions[id]
	for head != 0 {
		b := &r.blocks[head]
		if b.Addr == addr {
			return b, head
		}
		head = b.Next
	}
	return nil, 0
}

// FindBlockDirect looks up a block starting exactly at addr in a
// non-ROM region. Master/slave internal memory is small and fully
// covered by its own SMC bitmap, so the bitmap doubles as this
// region's index instead of a separate hash table: a slot's tail bit
// marks a block head, and the slot's id names the descriptor.
func (c *Cache) FindBlockDirect(id RegionID, addr uint32) (*Block, BlockID) {
	r := c.Regions[id]
	slot, ok := smcSlot(id, addr)
	if !ok || r.smc[slot]&1 == 0 {
		return nil, 0
	}
	bid := BlockID(r.smc[slot] >> 1)
	b := &r.blocks[bid]
	if b.Addr != addr {
		return nil, 0
	}
	return b, bid
}

// HashHead returns the head of a ROM hash bucket; InsertHash replaces
// it once a new block is ready to publish.
func (c *Cache) HashHead(pc uint32) BlockID {
	return c.Regions[RegionROM].hash[HashIndex(pc)]
}

// InsertHash makes id the new head of its bucket's chain, chaining
// the previous head as id's Next.
func (c *Cache) InsertHash(pc uint32, id BlockID) {
	r := c.Regions[RegionROM]
	idx := HashIndex(pc)
	r.blocks[id].Next = r.hash[idx]
	r.hash[idx] = id
}

// MarkSMC marks the bitmap slots covering [addr, endAddr) as
// belonging to block id: the head slot gets the tail bit set,
// successors don't. Marking stops as soon as it would overwrite an
// already-marked slot, preserving the existing block as an overlay
// this one partially shadows.
func (c *Cache) MarkSMC(id RegionID, blk BlockID, addr, endAddr uint32) {
	r := c.Regions[id]
	slot, ok := smcSlot(id, addr)
	if !ok {
		return
	}
	r.smc[slot] = uint16(blk)<<1 | 1

	endSlot, _ := smcSlot(id, endAddr)
	for s := slot + 1; s < endSlot; s++ {
		if r.smc[s] != 0 {
			break
		}
		r.smc[s] = uint16(blk) << 1
	}
}

// smcSlot maps a guest address to a bitmap index for region id, or
// ok=false when the address isn't covered (ROM proper has no SMC
// bitmap; only its DRAM alias does).
func smcSlot(id RegionID, addr uint32) (int, bool) {
	if id == RegionROM {
		if addr&0xc7fc0000 != 0x06000000 {
			return 0, false
		}
		return int((addr & (dramSize - 1)) / dramGranularity), true
	}
	return int((addr & (internalSize - 1)) / internalGranularity), true
}

// WCheckRAM is the SMC notification for a DRAM write: it kills any
// block (and transitively, any block it overlays) covering addr.
func (c *Cache) WCheckRAM(addr uint32) { c.wcheck(RegionROM, addr) }

// WCheckDA is the SMC notification for an on-chip data-array/BIOS
// write, one bitmap per CPU.
func (c *Cache) WCheckDA(addr uint32, slave bool) {
	id := RegionMasterInternal
	if slave {
		id = RegionSlaveInternal
	}
	c.wcheck(RegionID(id), addr)
}

func (c *Cache) wcheck(id RegionID, addr uint32) {
	slot, ok := smcSlot(id, addr)
	if !ok {
		return
	}
	r := c.Regions[id]
	if r.smc[slot] == 0 {
		return
	}
	c.killAt(r, slot, addr)
}

// killAt implements the backward-walk overlay recursion: find the
// head of the run sharing this block id, zero the descriptor and
// every bitmap slot it owns, then check whether the slot just before
// the run belongs to a block that also covers addr — if so, that
// parent overlay is killed too.
func (c *Cache) killAt(r *Region, p int, addr uint32) {
	id := r.smc[p] >> 1
	bd := &r.blocks[id]
	if debugflags.Enabled(debugflags.SMC) {
		slog.Debug("cache: smc kill", "region", r.id, "block", id, "addr", fmt.Sprintf("%#x", addr), "blockAddr", fmt.Sprintf("%#x", bd.Addr))
	}
	bd.Addr, bd.EndAddr = 0, 0

	for p > 0 && r.smc[p-1]>>1 == id {
		p--
	}

	if p > 0 && r.smc[p-1] != 0 {
		parentID := r.smc[p-1] >> 1
		parent := &r.blocks[parentID]
		if parent.Addr <= addr && addr < parent.EndAddr {
			c.killAt(r, p-1, addr)
		}
	}

	for p < len(r.smc) && r.smc[p]>>1 == id {
		r.smc[p] = 0
		p++
	}
}
