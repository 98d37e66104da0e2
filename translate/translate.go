/*
   Translator: one guest SH-2 block compiled into a run of closures.

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

// Package translate turns a run of guest SH-2 opcodes starting at a
// given PC into a []emit.Op block, managing the register cache,
// delay-slot shaping, cycle accounting and end-of-block bookkeeping
// (hash insertion, SMC bitmap marking, cache-region reservation).
package translate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sh2drc/drc32x/cache"
	"github.com/sh2drc/drc32x/debugflags"
	"github.com/sh2drc/drc32x/emit"
	"github.com/sh2drc/drc32x/host"
	"github.com/sh2drc/drc32x/rcache"
	"github.com/sh2drc/drc32x/sh2"
)

// ErrInvalidPC is returned when a block is requested at a PC outside
// the three valid top-three-bit patterns, or at PC 0.
var ErrInvalidPC = errors.New("translate: invalid block start PC")

const numHostSlots = emit.NumHostRegs

// Translator holds everything a block compilation needs that outlives
// any single block: the code cache, the emitter backend and the
// embedder's callbacks. It carries no per-block mutable state itself.
type Translator struct {
	Cache     *cache.Cache
	Emit      emit.Emitter
	Bus       host.Bus
	Interp    host.Interpreter
	StaticMap [sh2.NumRegs]int16

	// InterpFallback, when true, emits a call into Interp for any
	// opcode outside the natively translated subset. When false the
	// opcode is silently skipped, matching the no-op fallback policy.
	InterpFallback bool
}

func New(c *cache.Cache, e emit.Emitter, bus host.Bus, interp host.Interpreter) *Translator {
	return &Translator{Cache: c, Emit: e, Bus: bus, Interp: interp}
}

// txBuilder is the mutable state of one in-progress block translation.
type txBuilder struct {
	tr *Translator
	rc *rcache.Cache

	startPC   uint32
	pc        uint32
	cycles    int32
	delayedOp int // 0 normal, 2 just entered a delay slot, 1 delay slot just emitted
	testIRQ   bool
	isSlave   bool
	endBlock  bool // set by an opcode that ends the block early (BT/BF, SLEEP, TRAPA, an IRQ poll)
}

// emit appends op to the block's instruction stream, sharing the same
// backing slice the register cache's own context loads and writebacks
// land in, so cache traffic always lands in the position it was
// emitted relative to the instruction op that depends on it.
func (tb *txBuilder) emit(op emit.Op) { tb.rc.Ops = append(tb.rc.Ops, op) }

func (tb *txBuilder) read16(pc uint32) uint16 { return tb.tr.Bus.Read16(pc) }

// Translate compiles one block starting at cpu.PC(). prevHead is the
// current head of the target hash bucket (for ROM blocks), threaded
// through to the new descriptor's Next so the old chain isn't lost.
func (tb0 *Translator) Translate(cpu *sh2.State, region cache.RegionID, prevHead cache.BlockID) (*cache.Block, cache.BlockID, error) {
	pc := cpu.PC()
	top := pc >> 29
	if (top != 0 && top != 1 && top != 6) || pc == 0 {
		return nil, 0, fmt.Errorf("%w: %#x", ErrInvalidPC, pc)
	}

	units := cache.MaxBlockSize
	tb0.Cache.Reserve(region, units)

	blk, id, ok := tb0.Cache.AddBlock(region, pc)
	if !ok {
		tb0.Cache.Flush(region)
		prevHead = 0
		blk, id, ok = tb0.Cache.AddBlock(region, pc)
		if !ok {
			return nil, 0, errors.New("translate: block descriptor exhaustion persisted after flush")
		}
	}
	blk.Next = prevHead

	if debugflags.Enabled(debugflags.Translate) {
		slog.Info("translate: block", "id", id, "pc", fmt.Sprintf("%#x", pc), "region", region, "slave", cpu.IsSlave)
	}

	tb := &txBuilder{
		tr:      tb0,
		rc:      rcache.New(tb0.Emit, numHostSlots, tb0.StaticMap),
		startPC: pc,
		pc:      pc,
		isSlave: cpu.IsSlave,
	}

	for tb.cycles < cache.BlockCycleLimit || tb.delayedOp != 0 {
		if tb.delayedOp > 0 {
			tb.delayedOp--
		}

		op := tb.read16(tb.pc)
		tb.pc += 2
		tb.cycles++

		tb.dispatch(op)

		if tb.delayedOp == 1 {
			tb.copyPPCToPC()
		}
		if tb.testIRQ && tb.delayedOp != 2 {
			if tb.delayedOp == 0 && !tb.endBlock {
				tb.storeConstPC(tb.pc)
			}
			tb.rc.Flush()
			tb.emit(testIRQOp())
			tb.endBlock = true
			tb.testIRQ = false
		}

		if tb.endBlock {
			break
		}
		if tb.delayedOp == 1 {
			break
		}
	}

	if !tb.endBlock && tb.delayedOp == 0 {
		tb.storeConstPC(tb.pc)
	}

	blk.EndAddr = tb.pc
	blk.Ops = tb.finish(id, region)

	if region == cache.RegionROM {
		tb0.Cache.InsertHash(pc, id)
	}

	return blk, id, nil
}

// copyPPCToPC emits PC = PPC, the delayed-branch commit.
func (tb *txBuilder) copyPPCToPC() {
	dst := tb.rc.GetReg(sh2.PC, rcache.Write)
	src := tb.rc.GetReg(sh2.PPC, rcache.Read)
	tb.emit(tb.tr.Emit.MovRR(dst, src))
}

// storeConstPC emits PC = v for a compile-time-known fallthrough PC.
func (tb *txBuilder) storeConstPC(v uint32) {
	dst := tb.rc.GetReg(sh2.PC, rcache.Write)
	tb.emit(tb.tr.Emit.MovImm(dst, v))
}

// storeConstReg emits reg = v.
func (tb *txBuilder) storeConstReg(r sh2.Reg, v uint32) {
	dst := tb.rc.GetReg(r, rcache.Write)
	tb.emit(tb.tr.Emit.MovImm(dst, v))
}

// finish emits the end-of-block fixup: SMC bitmap marking and the
// cycle-field subtraction, then returns the finished op slice.
func (tb *txBuilder) finish(id cache.BlockID, region cache.RegionID) []emit.Op {
	tb.tr.Cache.MarkSMC(region, id, tb.startPC, tb.pc)

	srSlot := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
	tb.emit(tb.tr.Emit.SubImm(srSlot, uint32(tb.cycles)<<sh2.SRCycleShift))
	tb.rc.Flush()

	return tb.rc.Ops
}

// --- addressing helpers -----------------------------------------------

func loadOp(width int, signExt bool, addr, dst emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		a := ctx.Host[addr]
		var v uint32
		switch width {
		case 1:
			b := ctx.Bus.Read8(a)
			if signExt {
				v = uint32(int32(int8(b)))
			} else {
				v = uint32(b)
			}
		case 2:
			w := ctx.Bus.Read16(a)
			if signExt {
				v = uint32(int32(int16(w)))
			} else {
				v = uint32(w)
			}
		default:
			v = ctx.Bus.Read32(a)
		}
		ctx.Host[dst] = v
	}
}

func storeOp(width int, addr, val emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		a := ctx.Host[addr]
		v := ctx.Host[val]
		switch width {
		case 1:
			ctx.Bus.Write8(a, uint8(v))
		case 2:
			ctx.Bus.Write16(a, uint16(v))
		default:
			ctx.Bus.Write32(a, v)
		}
	}
}

func interpOp(pc uint32, op uint16) emit.Op {
	return func(ctx *emit.Ctx) {
		if ctx.Interp != nil {
			ctx.Interp.Step(ctx.State, op)
		}
	}
}

func tFromCarry(sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		if ctx.Carry() {
			ctx.Host[sr] |= sh2.SRFlagT
		} else {
			ctx.Host[sr] &^= sh2.SRFlagT
		}
	}
}

func testIRQOp() emit.Op {
	return func(ctx *emit.Ctx) {
		p := ctx.State.Pending
		if p.IntIRQ == 0 {
			return
		}
		mask := uint8((ctx.State.SR() & sh2.SRMaskI) >> 4)
		if p.Level > mask && ctx.IRQ != nil {
			ctx.IRQ.AcceptIRQ(ctx.State, p.Level, p.IntVector)
		}
	}
}

// regAddr returns a host slot holding Rn's address for @Rn forms.
func (tb *txBuilder) regAddr(r sh2.Reg) emit.HReg {
	return tb.rc.GetReg(r, rcache.Read)
}

// postInc reads Rn as the address then adds delta to Rn, returning a
// temp slot holding the pre-increment address (the caller must free
// it once the memory op has consumed it).
func (tb *txBuilder) postInc(r sh2.Reg, delta uint32) emit.HReg {
	addr := tb.rc.GetTmp()
	src := tb.rc.GetReg(r, rcache.ReadModifyWrite)
	tb.emit(tb.tr.Emit.MovRR(addr, src))
	tb.emit(tb.tr.Emit.AddImm(src, delta))
	return addr
}

func (tb *txBuilder) preDec(r sh2.Reg, delta uint32) emit.HReg {
	slot := tb.rc.GetReg(r, rcache.ReadModifyWrite)
	tb.emit(tb.tr.Emit.SubImm(slot, delta))
	return slot
}

func (tb *txBuilder) dispAddr(r sh2.Reg, disp uint32) emit.HReg {
	addr := tb.rc.GetTmp()
	src := tb.rc.GetReg(r, rcache.Read)
	tb.emit(tb.tr.Emit.MovRR(addr, src))
	tb.emit(tb.tr.Emit.AddImm(addr, disp))
	return addr
}

func (tb *txBuilder) indexedAddr(base, index sh2.Reg) emit.HReg {
	addr := tb.rc.GetTmp()
	b := tb.rc.GetReg(base, rcache.Read)
	i := tb.rc.GetReg(index, rcache.Read)
	tb.emit(tb.tr.Emit.MovRR(addr, b))
	tb.emit(tb.tr.Emit.Add(addr, i))
	return addr
}
