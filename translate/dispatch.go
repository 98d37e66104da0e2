/*
   Translator: opcode-family dispatch.

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

package translate

import (
	"fmt"
	"log/slog"

	"github.com/sh2drc/drc32x/debugflags"
	"github.com/sh2drc/drc32x/disasm"
	"github.com/sh2drc/drc32x/emit"
	"github.com/sh2drc/drc32x/rcache"
	"github.com/sh2drc/drc32x/sh2"
)

func rn(op uint16) sh2.Reg { return sh2.Reg((op >> 8) & 0xf) }
func rm(op uint16) sh2.Reg { return sh2.Reg((op >> 4) & 0xf) }

// disp12 sign-extends a 12-bit branch displacement field and scales it
// to a byte offset (BRA/BSR).
func disp12(op uint16) uint32 {
	return uint32((int32(op) << 20) >> 19)
}

// disp8 sign-extends an 8-bit branch displacement field and scales it
// to a byte offset (BT/BF/BT.S/BF.S).
func disp8(op uint16) uint32 {
	return uint32((int32(op) << 24) >> 23)
}

// enterDelaySlot marks the opcode about to follow as a delay slot:
// one more opcode is translated before the block ends.
func (tb *txBuilder) enterDelaySlot() { tb.delayedOp = 2 }

// setTFromFlag clears then conditionally re-sets SR.T from the flag a
// preceding Cmp/CmpImm against srSlot's cached SR copy produced.
func (tb *txBuilder) setTFromFlag(sr emit.HReg) {
	tb.emit(tb.tr.Emit.AndImm(sr, ^uint32(sh2.SRFlagT)))
	tb.emit(tb.tr.Emit.Predicated(emit.EQ, tb.tr.Emit.OrImm(sr, sh2.SRFlagT)))
}

// dispatch translates a single opcode into the current block.
func (tb *txBuilder) dispatch(op uint16) {
	if debugflags.Enabled(debugflags.Disasm) {
		slog.Debug("translate: decode", "pc", fmt.Sprintf("%#x", tb.pc-2), "op", fmt.Sprintf("%#04x", op), "insn", disasm.Format(tb.pc-2, op))
	}

	switch (op >> 12) & 0xf {
	case 0x0:
		tb.group0(op)
	case 0x1:
		// MOV.L Rm,@(disp,Rn)  0001nnnnmmmmdddd
		addr := tb.dispAddr(rn(op), uint32(op&0xf)*4)
		src := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(storeOp(4, addr, src))
		tb.rc.FreeTmp(addr)
	case 0x2:
		tb.group2(op)
	case 0x3:
		tb.group3(op)
	case 0x4:
		tb.group4(op)
	case 0x5:
		// MOV.L @(disp,Rm),Rn  0101nnnnmmmmdddd
		addr := tb.dispAddr(rm(op), uint32(op&0xf)*4)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x6:
		tb.group6(op)
	case 0x7:
		// ADD #imm,Rn  0111nnnniiiiiiii
		dst := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		imm := int32(int8(op & 0xff))
		if imm < 0 {
			tb.emit(tb.tr.Emit.SubImm(dst, uint32(-imm)))
		} else {
			tb.emit(tb.tr.Emit.AddImm(dst, uint32(imm)))
		}
	case 0x8:
		tb.group8(op)
	case 0x9:
		// MOV.W @(disp,PC),Rn  1001nnnndddddddd
		addr := tb.pc + 2 + uint32(op&0xff)*2
		a := tb.rc.GetTmp()
		tb.emit(tb.tr.Emit.MovImm(a, addr))
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(2, true, a, dst))
		tb.rc.FreeTmp(a)
	case 0xa:
		// BRA label  1010dddddddddddd
		tb.enterDelaySlot()
		target := tb.pc + 2 + disp12(op)
		tb.storeConstReg(sh2.PPC, target)
		tb.cycles++
	case 0xb:
		// BSR label  1011dddddddddddd
		tb.enterDelaySlot()
		tb.storeConstReg(sh2.PR, tb.pc+2)
		target := tb.pc + 2 + disp12(op)
		tb.storeConstReg(sh2.PPC, target)
		tb.cycles++
	case 0xc:
		tb.groupC(op)
	case 0xd:
		// MOV.L @(disp,PC),Rn  1101nnnndddddddd
		addr := ((tb.pc-2)&^3 + 4) + uint32(op&0xff)*4
		a := tb.rc.GetTmp()
		tb.emit(tb.tr.Emit.MovImm(a, addr))
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(4, false, a, dst))
		tb.rc.FreeTmp(a)
	case 0xe:
		// MOV #imm,Rn  1110nnnniiiiiiii
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovImmSext8(dst, int8(op&0xff)))
	default:
		tb.fallback(op)
	}
}

// fallback is the unhandled-opcode path: an interpreter call if the
// embedder wired one in, otherwise a silent no-op. Either way the
// opcode didn't match any natively translated form, which is worth a
// Warn regardless of debugflags — it's an operational gap, not a trace.
func (tb *txBuilder) fallback(op uint16) {
	pc := tb.pc - 2
	slog.Warn("translate: unhandled opcode", "pc", fmt.Sprintf("%#x", pc), "op", fmt.Sprintf("%#04x", op), "insn", disasm.Format(pc, op))

	if tb.tr.InterpFallback && tb.tr.Interp != nil {
		tb.rc.Flush()
		tb.storeConstPC(pc)
		tb.emit(interpOp(pc, op))
	}
}
