/*
   Translator: per-major-opcode decode tables.

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
	"github.com/sh2drc/drc32x/emit"
	"github.com/sh2drc/drc32x/rcache"
	"github.com/sh2drc/drc32x/sh2"
)

// group0 covers the 0x0xxx major opcode: control instructions, the
// R0-indexed MOV forms, MUL.L and MAC.L.
func (tb *txBuilder) group0(op uint16) {
	switch op & 0xf {
	case 0x4:
		// MOV.B Rm,@(R0,Rn)
		addr := tb.indexedAddr(rn(op), sh2.R0)
		src := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(storeOp(1, addr, src))
		tb.rc.FreeTmp(addr)
		return
	case 0x5:
		addr := tb.indexedAddr(rn(op), sh2.R0)
		src := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(storeOp(2, addr, src))
		tb.rc.FreeTmp(addr)
		return
	case 0x6:
		addr := tb.indexedAddr(rn(op), sh2.R0)
		src := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(storeOp(4, addr, src))
		tb.rc.FreeTmp(addr)
		return
	case 0x7:
		// MUL.L Rm,Rn -> MACL
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		macl := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(mulLOp(macl, a, b))
		return
	case 0xc:
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		addr := tb.indexedAddr(rm(op), sh2.R0)
		tb.emit(loadOp(1, true, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0xd:
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		addr := tb.indexedAddr(rm(op), sh2.R0)
		tb.emit(loadOp(2, true, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0xe:
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		addr := tb.indexedAddr(rm(op), sh2.R0)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0xf:
		// MAC.L @Rm+,@Rn+
		tb.macL(op)
		return
	}

	switch op {
	case 0x0009: // NOP
		return
	case 0x0008: // CLRT
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.AndImm(sr, ^uint32(sh2.SRFlagT)))
		return
	case 0x0018: // SETT
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.OrImm(sr, sh2.SRFlagT))
		return
	case 0x0028: // CLRMAC
		tb.storeConstReg(sh2.MACH, 0)
		tb.storeConstReg(sh2.MACL, 0)
		return
	case 0x0019: // DIV0U
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.AndImm(sr, ^uint32(sh2.SRFlagT|sh2.SRFlagQ|sh2.SRFlagM)))
		return
	case 0x000b: // RTS
		tb.enterDelaySlot()
		pr := tb.rc.GetReg(sh2.PR, rcache.Read)
		ppc := tb.rc.GetReg(sh2.PPC, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(ppc, pr))
		tb.cycles++
		return
	case 0x002b: // RTE
		tb.enterDelaySlot()
		tb.rc.Flush()
		tb.emit(rteOp())
		tb.cycles++
		tb.testIRQ = true
		return
	case 0x001b: // SLEEP
		tb.rc.Flush()
		tb.storeConstPC(tb.pc - 2)
		tb.emit(sleepOp())
		tb.endBlock = true
		tb.testIRQ = true
		return
	}

	switch op & 0xf0ff {
	case 0x0002: // STC SR,Rn
		src := tb.rc.GetReg(sh2.SR, rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x0012: // STC GBR,Rn
		src := tb.rc.GetReg(sh2.GBR, rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x0022: // STC VBR,Rn
		src := tb.rc.GetReg(sh2.VBR, rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x000a: // STS MACH,Rn
		src := tb.rc.GetReg(sh2.MACH, rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x001a: // STS MACL,Rn
		src := tb.rc.GetReg(sh2.MACL, rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x002a: // STS PR,Rn
		src := tb.rc.GetReg(sh2.PR, rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x0023: // BRAF Rn
		tb.enterDelaySlot()
		pc := tb.storeConstTmpReg(tb.pc + 2)
		src := tb.rc.GetReg(rn(op), rcache.Read)
		tb.emit(tb.tr.Emit.Add(pc, src))
		ppc := tb.rc.GetReg(sh2.PPC, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(ppc, pc))
		tb.rc.FreeTmp(pc)
		tb.cycles++
		return
	case 0x0003: // BSRF Rn
		tb.enterDelaySlot()
		tb.storeConstReg(sh2.PR, tb.pc+2)
		pc := tb.storeConstTmpReg(tb.pc + 2)
		src := tb.rc.GetReg(rn(op), rcache.Read)
		tb.emit(tb.tr.Emit.Add(pc, src))
		ppc := tb.rc.GetReg(sh2.PPC, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(ppc, pc))
		tb.rc.FreeTmp(pc)
		tb.cycles++
		return
	}

	tb.fallback(op)
}

// storeConstTmpReg returns a temp slot preloaded with v.
func (tb *txBuilder) storeConstTmpReg(v uint32) emit.HReg {
	hr := tb.rc.GetTmp()
	tb.emit(tb.tr.Emit.MovImm(hr, v))
	return hr
}

// group2 is ALU register-register ops of the form 0010nnnnmmmmxxxx.
func (tb *txBuilder) group2(op uint16) {
	switch op & 0xf {
	case 0x0: // MOV.B Rm,@Rn
		b := tb.rc.GetReg(rm(op), rcache.Read)
		addr := tb.regAddr(rn(op))
		tb.emit(storeOp(1, addr, b))
	case 0x1: // MOV.W Rm,@Rn
		b := tb.rc.GetReg(rm(op), rcache.Read)
		addr := tb.regAddr(rn(op))
		tb.emit(storeOp(2, addr, b))
	case 0x2: // MOV.L Rm,@Rn
		b := tb.rc.GetReg(rm(op), rcache.Read)
		addr := tb.regAddr(rn(op))
		tb.emit(storeOp(4, addr, b))
	case 0x4: // MOV.B Rm,@-Rn
		b := tb.rc.GetReg(rm(op), rcache.Read)
		addr := tb.preDec(rn(op), 1)
		tb.emit(storeOp(1, addr, b))
	case 0x5: // MOV.W Rm,@-Rn
		b := tb.rc.GetReg(rm(op), rcache.Read)
		addr := tb.preDec(rn(op), 2)
		tb.emit(storeOp(2, addr, b))
	case 0x6: // MOV.L Rm,@-Rn
		b := tb.rc.GetReg(rm(op), rcache.Read)
		addr := tb.preDec(rn(op), 4)
		tb.emit(storeOp(4, addr, b))
	case 0x7: // DIV0S Rm,Rn
		tb.rc.Flush()
		tb.emit(div0sOp(rn(op), rm(op)))
	case 0x8: // TST Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		sr := tb.andTestSR()
		tb.emit(testAndOp(sr, a, b))
	case 0x9: // AND Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(tb.tr.Emit.And(a, b))
	case 0xa: // XOR Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(tb.tr.Emit.Xor(a, b))
	case 0xb: // OR Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(tb.tr.Emit.Or(a, b))
	case 0xc: // CMP/STR Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(cmpStrOp(a, b, tb.andTestSR()))
	case 0xd: // XTRCT Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(xtrctOp(a, b))
	case 0xe: // MULU.W Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		macl := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(mulWOp(macl, a, b, false))
	case 0xf: // MULS.W Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		macl := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(mulWOp(macl, a, b, true))
	case 0x3:
		tb.fallback(op)
	}
}

// andTestSR returns the SR host slot in read-modify-write mode, for
// the T-flag assignment that TST/CMP.STR perform.
func (tb *txBuilder) andTestSR() emit.HReg {
	return tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
}

// group3 is CMP/EQ,GT,GE,HI,HS and ALU-with-carry ops, 0011nnnnmmmmxxxx.
func (tb *txBuilder) group3(op uint16) {
	switch op & 0xf {
	case 0x0: // CMP/EQ Rm,Rn
		tb.cmpRR(emit.EQ, op)
	case 0x2: // CMP/HS Rm,Rn
		tb.cmpRR(emit.HS, op)
	case 0x3: // CMP/GE Rm,Rn
		tb.cmpRR(emit.GE, op)
	case 0x6: // CMP/HI Rm,Rn
		tb.cmpRR(emit.HI, op)
	case 0x7: // CMP/GT Rm,Rn
		tb.cmpRR(emit.GT, op)
	case 0x4: // DIV1 Rm,Rn
		tb.rc.Flush()
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(tb.tr.Emit.Div1Step(a, b))
	case 0x5: // DMULU.L Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		mh := tb.rc.GetReg(sh2.MACH, rcache.Write)
		ml := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(dmulOp(mh, ml, a, b, false))
	case 0xd: // DMULS.L Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		mh := tb.rc.GetReg(sh2.MACH, rcache.Write)
		ml := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(dmulOp(mh, ml, a, b, true))
	case 0x8, 0xf: // SUB Rm,Rn / ADDV Rm,Rn (overflow detection not modeled)
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		if op&0xf == 0x8 {
			tb.emit(tb.tr.Emit.Sub(a, b))
		} else {
			tb.emit(tb.tr.Emit.Add(a, b))
		}
	case 0xb: // SUBV Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(tb.tr.Emit.Sub(a, b))
	case 0xc: // ADD Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		tb.emit(tb.tr.Emit.Add(a, b))
	case 0xa: // SUBC Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(subcOp(a, b, sr))
	case 0xe: // ADDC Rm,Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		b := tb.rc.GetReg(rm(op), rcache.Read)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(addcOp(a, b, sr))
	default:
		tb.fallback(op)
	}
}

// cmpRR emits the CMP/xx Rm,Rn compare-and-set-T sequence shared by
// every group3 comparison variant.
func (tb *txBuilder) cmpRR(cond emit.Cond, op uint16) {
	a := tb.rc.GetReg(rn(op), rcache.Read)
	b := tb.rc.GetReg(rm(op), rcache.Read)
	sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
	tb.emit(tb.tr.Emit.Cmp(cond, a, b))
	tb.setTFromFlag(sr)
}

// group4 is the shift/rotate/system-register-load family, 0100nnnnxxxxxxxx.
func (tb *txBuilder) group4(op uint16) {
	if op&0xf == 0xf {
		// MAC.W @Rm+,@Rn+
		tb.macW(op)
		return
	}

	switch op & 0xff {
	case 0x00: // SHLL Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.ShiftLL(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x01: // SHLR Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.ShiftLR(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x20: // SHAL Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.ShiftAL(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x21: // SHAR Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.ShiftAR(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x04: // ROTL Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.RotL(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x05: // ROTR Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.RotR(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x24: // ROTCL Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.RotCL(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x25: // ROTCR Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.RotCR(a))
		tb.emit(tFromCarry(sr))
		return
	case 0x08: // SHLL2 Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		tb.emit(shiftImmOp(a, 2))
		return
	case 0x09: // SHLR2 Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		tb.emit(shiftImmOp(a, -2))
		return
	case 0x18: // SHLL8 Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		tb.emit(shiftImmOp(a, 8))
		return
	case 0x19: // SHLR8 Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		tb.emit(shiftImmOp(a, -8))
		return
	case 0x28: // SHLL16 Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		tb.emit(shiftImmOp(a, 16))
		return
	case 0x29: // SHLR16 Rn
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		tb.emit(shiftImmOp(a, -16))
		return
	case 0x15: // CMP/PL Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.CmpImm(emit.GT, a, 0))
		tb.setTFromFlag(sr)
		return
	case 0x11: // CMP/PZ Rn
		a := tb.rc.GetReg(rn(op), rcache.Read)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.CmpImm(emit.GE, a, 0))
		tb.setTFromFlag(sr)
		return
	case 0x10: // DT Rn
		if tb.fuseDtBf(op) {
			return
		}
		a := tb.rc.GetReg(rn(op), rcache.ReadModifyWrite)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.SubImm(a, 1))
		tb.emit(tb.tr.Emit.CmpImm(emit.EQ, a, 0))
		tb.setTFromFlag(sr)
		return
	}

	// Rn occupies bits 8-11 for every case below (LDC/LDS/STS.L/JSR/JMP/
	// TAS.B all take a single register operand read separately via
	// rn(op)), so masking to the low byte isolates the op class without
	// the top nibble group4 is entered with still set.
	switch op & 0xff {
	case 0x0e: // LDC Rn,SR
		tb.rc.Flush()
		src := tb.rc.GetReg(rn(op), rcache.Read)
		tb.emit(tb.tr.Emit.WriteSR(src))
		tb.testIRQ = true
		return
	case 0x1e: // LDC Rn,GBR
		src := tb.rc.GetReg(rn(op), rcache.Read)
		dst := tb.rc.GetReg(sh2.GBR, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x2e: // LDC Rn,VBR
		src := tb.rc.GetReg(rn(op), rcache.Read)
		dst := tb.rc.GetReg(sh2.VBR, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x0a: // LDS Rn,MACH
		src := tb.rc.GetReg(rn(op), rcache.Read)
		dst := tb.rc.GetReg(sh2.MACH, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x1a: // LDS Rn,MACL
		src := tb.rc.GetReg(rn(op), rcache.Read)
		dst := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x2a: // LDS Rn,PR
		src := tb.rc.GetReg(rn(op), rcache.Read)
		dst := tb.rc.GetReg(sh2.PR, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		return
	case 0x06: // LDS.L @Rn+,MACH
		addr := tb.postInc(rn(op), 4)
		dst := tb.rc.GetReg(sh2.MACH, rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x16: // LDS.L @Rn+,MACL
		addr := tb.postInc(rn(op), 4)
		dst := tb.rc.GetReg(sh2.MACL, rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x26: // LDS.L @Rn+,PR
		addr := tb.postInc(rn(op), 4)
		dst := tb.rc.GetReg(sh2.PR, rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x07: // LDC.L @Rn+,SR
		addr := tb.postInc(rn(op), 4)
		tmp := tb.rc.GetTmp()
		tb.emit(loadOp(4, false, addr, tmp))
		tb.rc.FreeTmp(addr)
		tb.rc.Flush()
		tb.emit(tb.tr.Emit.WriteSR(tmp))
		tb.testIRQ = true
		return
	case 0x17: // LDC.L @Rn+,GBR
		addr := tb.postInc(rn(op), 4)
		dst := tb.rc.GetReg(sh2.GBR, rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x27: // LDC.L @Rn+,VBR
		addr := tb.postInc(rn(op), 4)
		dst := tb.rc.GetReg(sh2.VBR, rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x02: // STS.L MACH,@-Rn
		addr := tb.preDec(rn(op), 4)
		src := tb.rc.GetReg(sh2.MACH, rcache.Read)
		tb.emit(storeOp(4, addr, src))
		return
	case 0x12: // STS.L MACL,@-Rn
		addr := tb.preDec(rn(op), 4)
		src := tb.rc.GetReg(sh2.MACL, rcache.Read)
		tb.emit(storeOp(4, addr, src))
		return
	case 0x22: // STS.L PR,@-Rn
		addr := tb.preDec(rn(op), 4)
		src := tb.rc.GetReg(sh2.PR, rcache.Read)
		tb.emit(storeOp(4, addr, src))
		return
	case 0x0b: // JSR @Rn
		tb.enterDelaySlot()
		tb.storeConstReg(sh2.PR, tb.pc+2)
		src := tb.rc.GetReg(rn(op), rcache.Read)
		ppc := tb.rc.GetReg(sh2.PPC, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(ppc, src))
		tb.cycles++
		return
	case 0x2b: // JMP @Rn
		tb.enterDelaySlot()
		src := tb.rc.GetReg(rn(op), rcache.Read)
		ppc := tb.rc.GetReg(sh2.PPC, rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(ppc, src))
		tb.cycles++
		return
	case 0x1b: // TAS.B @Rn
		tb.rc.Flush()
		addr := tb.regAddr(rn(op))
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(tasOp(addr, sr))
		return
	}

	tb.fallback(op)
}

// dtBfCyclesPerIter is the guest-cycle charge FusedDtBf's runtime loop
// deducts per iteration, matching DT+BF's combined cost on real
// hardware closely enough to keep the dispatcher's cycle budget honest.
const dtBfCyclesPerIter = 4

// fuseDtBf recognizes the single peephole the translator folds: a DT
// Rn immediately followed by a BF branching back to the DT itself
// (the classic decrement-and-loop idiom). When present it emits the
// whole loop as one FusedDtBf Op and consumes the BF's two bytes too,
// reporting true so the caller skips DT's normal per-instruction
// translation.
func (tb *txBuilder) fuseDtBf(op uint16) bool {
	dtAddr := tb.pc - 2
	next := tb.read16(tb.pc)
	if next>>12 != 0x8 || (next>>8)&0xf != 0xb {
		return false
	}
	if tb.pc+4+disp8(next) != dtAddr {
		return false
	}

	tb.rc.Flush()
	tb.emit(tb.tr.Emit.FusedDtBf(rn(op), dtBfCyclesPerIter))
	tb.pc += 2
	tb.cycles++
	return true
}

// group6 is the MOV load/store-with-extension family, 0110nnnnmmmmxxxx.
func (tb *txBuilder) group6(op uint16) {
	switch op & 0xf {
	case 0x0: // MOV.B @Rm,Rn
		addr := tb.regAddr(rm(op))
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(1, true, addr, dst))
	case 0x1: // MOV.W @Rm,Rn
		addr := tb.regAddr(rm(op))
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(2, true, addr, dst))
	case 0x2: // MOV.L @Rm,Rn
		addr := tb.regAddr(rm(op))
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
	case 0x3: // MOV Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
	case 0x4: // MOV.B @Rm+,Rn
		addr := tb.postInc(rm(op), 1)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(1, true, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x5: // MOV.W @Rm+,Rn
		addr := tb.postInc(rm(op), 2)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(2, true, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x6: // MOV.L @Rm+,Rn
		addr := tb.postInc(rm(op), 4)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x7: // NOT Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		tb.emit(tb.tr.Emit.Not(dst))
	case 0x8: // SWAP.B Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(swapBOp(dst, src))
	case 0x9: // SWAP.W Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(swapWOp(dst, src))
	case 0xa: // NEGC Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(negcOp(dst, src, sr))
	case 0xb: // NEG Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		tb.emit(tb.tr.Emit.Neg(dst))
	case 0xc: // EXTU.B Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		tb.emit(tb.tr.Emit.AndImm(dst, 0xff))
	case 0xd: // EXTU.W Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(tb.tr.Emit.MovRR(dst, src))
		tb.emit(tb.tr.Emit.AndImm(dst, 0xffff))
	case 0xe: // EXTS.B Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(extsOp(dst, src, 8))
	case 0xf: // EXTS.W Rm,Rn
		src := tb.rc.GetReg(rm(op), rcache.Read)
		dst := tb.rc.GetReg(rn(op), rcache.Write)
		tb.emit(extsOp(dst, src, 16))
	}
}

// group8 is R0-relative MOV, CMP/EQ #imm and the conditional branches.
func (tb *txBuilder) group8(op uint16) {
	switch (op >> 8) & 0xf {
	case 0x0: // MOV.B R0,@(disp,Rn)
		addr := tb.dispAddr(rm(op), uint32(op&0xf))
		src := tb.rc.GetReg(sh2.R0, rcache.Read)
		tb.emit(storeOp(1, addr, src))
		tb.rc.FreeTmp(addr)
		return
	case 0x1: // MOV.W R0,@(disp,Rn)
		addr := tb.dispAddr(rm(op), uint32(op&0xf)*2)
		src := tb.rc.GetReg(sh2.R0, rcache.Read)
		tb.emit(storeOp(2, addr, src))
		tb.rc.FreeTmp(addr)
		return
	case 0x4: // MOV.B @(disp,Rm),R0
		addr := tb.dispAddr(rm(op), uint32(op&0xf))
		dst := tb.rc.GetReg(sh2.R0, rcache.Write)
		tb.emit(loadOp(1, true, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x5: // MOV.W @(disp,Rm),R0
		addr := tb.dispAddr(rm(op), uint32(op&0xf)*2)
		dst := tb.rc.GetReg(sh2.R0, rcache.Write)
		tb.emit(loadOp(2, true, addr, dst))
		tb.rc.FreeTmp(addr)
		return
	case 0x8: // CMP/EQ #imm,R0
		r0 := tb.rc.GetReg(sh2.R0, rcache.Read)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		imm := uint32(int32(int8(op & 0xff)))
		tb.emit(tb.tr.Emit.CmpImm(emit.EQ, r0, imm))
		tb.setTFromFlag(sr)
		return
	case 0x9: // BT label
		tb.condBranch(op, true, false)
		return
	case 0xb: // BF label
		tb.condBranch(op, false, false)
		return
	case 0xd: // BT/S label
		tb.condBranch(op, true, true)
		return
	case 0xf: // BF/S label
		tb.condBranch(op, false, true)
		return
	}
	tb.fallback(op)
}

// condBranch shapes both the delayed (BT/S, BF/S) and non-delayed
// (BT, BF) conditional branches. wantT is true for the BT family
// (branch taken when SR.T is set), false for BF. delayed selects
// whether a delay slot follows before the block ends.
func (tb *txBuilder) condBranch(op uint16, wantT, delayed bool) {
	target := tb.pc + 2 + disp8(op)

	sr := tb.rc.GetReg(sh2.SR, rcache.Read)
	tmp := tb.rc.GetTmp()
	tb.emit(tb.tr.Emit.MovRR(tmp, sr))
	tb.emit(tb.tr.Emit.AndImm(tmp, sh2.SRFlagT))
	cond := emit.NE
	if !wantT {
		cond = emit.EQ
	}
	tb.emit(tb.tr.Emit.CmpImm(cond, tmp, 0))
	tb.rc.FreeTmp(tmp)

	if delayed {
		tb.enterDelaySlot()
		fallthroughPC := tb.pc + 2 // past the delay slot, which always executes
		ppc := tb.rc.GetReg(sh2.PPC, rcache.Write)
		tb.emit(tb.tr.Emit.Predicated(cond, tb.tr.Emit.MovImm(ppc, target)))
		tb.emit(predicatedElseOp(ppc, fallthroughPC))
		tb.cycles++
		return
	}

	tb.rc.Flush()
	pc := tb.rc.GetReg(sh2.PC, rcache.Write)
	tb.emit(tb.tr.Emit.Predicated(cond, tb.tr.Emit.MovImm(pc, target)))
	tb.emit(predicatedElseOp(pc, tb.pc))
	tb.endBlock = true
}

// groupC is GBR-relative MOV, logical #imm ops on R0 and TRAPA.
func (tb *txBuilder) groupC(op uint16) {
	switch (op >> 8) & 0xf {
	case 0x0: // MOV.B R0,@(disp,GBR)
		addr := tb.dispAddr(sh2.GBR, uint32(op&0xff))
		src := tb.rc.GetReg(sh2.R0, rcache.Read)
		tb.emit(storeOp(1, addr, src))
		tb.rc.FreeTmp(addr)
	case 0x1: // MOV.W R0,@(disp,GBR)
		addr := tb.dispAddr(sh2.GBR, uint32(op&0xff)*2)
		src := tb.rc.GetReg(sh2.R0, rcache.Read)
		tb.emit(storeOp(2, addr, src))
		tb.rc.FreeTmp(addr)
	case 0x2: // MOV.L R0,@(disp,GBR)
		addr := tb.dispAddr(sh2.GBR, uint32(op&0xff)*4)
		src := tb.rc.GetReg(sh2.R0, rcache.Read)
		tb.emit(storeOp(4, addr, src))
		tb.rc.FreeTmp(addr)
	case 0x4: // MOV.B @(disp,GBR),R0
		addr := tb.dispAddr(sh2.GBR, uint32(op&0xff))
		dst := tb.rc.GetReg(sh2.R0, rcache.Write)
		tb.emit(loadOp(1, true, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x5: // MOV.W @(disp,GBR),R0
		addr := tb.dispAddr(sh2.GBR, uint32(op&0xff)*2)
		dst := tb.rc.GetReg(sh2.R0, rcache.Write)
		tb.emit(loadOp(2, true, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x6: // MOV.L @(disp,GBR),R0
		addr := tb.dispAddr(sh2.GBR, uint32(op&0xff)*4)
		dst := tb.rc.GetReg(sh2.R0, rcache.Write)
		tb.emit(loadOp(4, false, addr, dst))
		tb.rc.FreeTmp(addr)
	case 0x3: // TRAPA #imm
		tb.rc.Flush()
		tb.storeConstPC(tb.pc)
		tb.emit(trapaOp(uint8(op & 0xff)))
		tb.endBlock = true
	case 0x8: // TST #imm,R0
		r0 := tb.rc.GetReg(sh2.R0, rcache.Read)
		sr := tb.rc.GetReg(sh2.SR, rcache.ReadModifyWrite)
		tb.emit(andTestImmOp(r0, uint32(op&0xff), sr))
	case 0x9: // AND #imm,R0
		r0 := tb.rc.GetReg(sh2.R0, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.AndImm(r0, uint32(op&0xff)))
	case 0xa: // XOR #imm,R0
		r0 := tb.rc.GetReg(sh2.R0, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.XorImm(r0, uint32(op&0xff)))
	case 0xb: // OR #imm,R0
		r0 := tb.rc.GetReg(sh2.R0, rcache.ReadModifyWrite)
		tb.emit(tb.tr.Emit.OrImm(r0, uint32(op&0xff)))
	default:
		tb.fallback(op)
	}
}
