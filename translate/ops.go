/*
   Translator: composed Ops for instructions the Emitter interface has
   no dedicated primitive for.

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

// predicatedElseOp sets dst to elseVal when the last Cmp/CmpImm result
// was false, the complement Emitter.Predicated doesn't provide.
func predicatedElseOp(dst emit.HReg, elseVal uint32) emit.Op {
	return func(ctx *emit.Ctx) {
		if !ctx.Flag() {
			ctx.Host[dst] = elseVal
		}
	}
}

func testAndOp(sr, a, b emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		v := ctx.Host[a] & ctx.Host[b]
		ctx.Host[sr] &^= sh2.SRFlagT
		if v == 0 {
			ctx.Host[sr] |= sh2.SRFlagT
		}
	}
}

func andTestImmOp(r0 emit.HReg, imm uint32, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		v := ctx.Host[r0] & imm
		ctx.Host[sr] &^= sh2.SRFlagT
		if v == 0 {
			ctx.Host[sr] |= sh2.SRFlagT
		}
	}
}

// cmpStrOp implements CMP/STR: T is set when any of the four byte
// lanes of a and b match.
func cmpStrOp(a, b, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		x := ctx.Host[a] ^ ctx.Host[b]
		eq := x&0xff == 0 || x&0xff00 == 0 || x&0xff0000 == 0 || x&0xff000000 == 0
		ctx.Host[sr] &^= sh2.SRFlagT
		if eq {
			ctx.Host[sr] |= sh2.SRFlagT
		}
	}
}

// xtrctOp implements XTRCT Rm,Rn: the middle 32 bits of Rm:Rn.
func xtrctOp(dst, src emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		ctx.Host[dst] = (ctx.Host[dst] >> 16 & 0xffff) | (ctx.Host[src] << 16)
	}
}

func mulLOp(macl, a, b emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) { ctx.Host[macl] = ctx.Host[a] * ctx.Host[b] }
}

func mulWOp(macl, a, b emit.HReg, signed bool) emit.Op {
	return func(ctx *emit.Ctx) {
		var av, bv int64
		if signed {
			av, bv = int64(int16(ctx.Host[a])), int64(int16(ctx.Host[b]))
		} else {
			av, bv = int64(uint16(ctx.Host[a])), int64(uint16(ctx.Host[b]))
		}
		ctx.Host[macl] = uint32(av * bv)
	}
}

func dmulOp(mh, ml, a, b emit.HReg, signed bool) emit.Op {
	return func(ctx *emit.Ctx) {
		var prod uint64
		if signed {
			prod = uint64(int64(int32(ctx.Host[a])) * int64(int32(ctx.Host[b])))
		} else {
			prod = uint64(ctx.Host[a]) * uint64(ctx.Host[b])
		}
		ctx.Host[mh] = uint32(prod >> 32)
		ctx.Host[ml] = uint32(prod)
	}
}

func subcOp(dst, src, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		t := uint64(0)
		if ctx.Host[sr]&sh2.SRFlagT != 0 {
			t = 1
		}
		a, b := ctx.Host[dst], ctx.Host[src]
		borrow := uint64(a) < uint64(b)+t
		ctx.Host[dst] = a - b - uint32(t)
		ctx.Host[sr] &^= sh2.SRFlagT
		if borrow {
			ctx.Host[sr] |= sh2.SRFlagT
		}
	}
}

func addcOp(dst, src, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		t := uint64(0)
		if ctx.Host[sr]&sh2.SRFlagT != 0 {
			t = 1
		}
		sum := uint64(ctx.Host[dst]) + uint64(ctx.Host[src]) + t
		ctx.Host[dst] = uint32(sum)
		ctx.Host[sr] &^= sh2.SRFlagT
		if sum > 0xffffffff {
			ctx.Host[sr] |= sh2.SRFlagT
		}
	}
}

// shiftImmOp shifts dst left by n bits, or right by -n when n is
// negative (the SHLL2/8/16, SHLR2/8/16 immediate-count forms).
func shiftImmOp(dst emit.HReg, n int) emit.Op {
	return func(ctx *emit.Ctx) {
		if n >= 0 {
			ctx.Host[dst] <<= uint(n)
		} else {
			ctx.Host[dst] >>= uint(-n)
		}
	}
}

func swapBOp(dst, src emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		v := ctx.Host[src]
		ctx.Host[dst] = (v & 0xffff0000) | (v&0xff)<<8 | (v>>8)&0xff
	}
}

func swapWOp(dst, src emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		v := ctx.Host[src]
		ctx.Host[dst] = v<<16 | v>>16
	}
}

func negcOp(dst, src, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		t := uint64(0)
		if ctx.Host[sr]&sh2.SRFlagT != 0 {
			t = 1
		}
		s := ctx.Host[src]
		borrow := uint64(s)+t > 0
		ctx.Host[dst] = 0 - s - uint32(t)
		ctx.Host[sr] &^= sh2.SRFlagT
		if borrow {
			ctx.Host[sr] |= sh2.SRFlagT
		}
	}
}

func extsOp(dst, src emit.HReg, bits int) emit.Op {
	return func(ctx *emit.Ctx) {
		if bits == 8 {
			ctx.Host[dst] = uint32(int32(int8(ctx.Host[src])))
		} else {
			ctx.Host[dst] = uint32(int32(int16(ctx.Host[src])))
		}
	}
}

func tasOp(addr, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		a := ctx.Host[addr]
		v := ctx.Bus.Read8(a)
		ctx.Host[sr] &^= sh2.SRFlagT
		if v == 0 {
			ctx.Host[sr] |= sh2.SRFlagT
		}
		ctx.Bus.Write8(a, v|0x80)
	}
}

// div0sOp sets Q, M and T from the sign bits of Rn and Rm ahead of a
// DIV1 sequence. Runs directly against guest state; the caller must
// flush the register cache first.
func div0sOp(rn, rm sh2.Reg) emit.Op {
	return func(ctx *emit.Ctx) {
		q := int32(ctx.State.Regs[rn]) < 0
		m := int32(ctx.State.Regs[rm]) < 0
		sr := ctx.State.SR() &^ (sh2.SRFlagQ | sh2.SRFlagM | sh2.SRFlagT)
		if q {
			sr |= sh2.SRFlagQ
		}
		if m {
			sr |= sh2.SRFlagM
		}
		if q != m {
			sr |= sh2.SRFlagT
		}
		ctx.State.SetSR(sr)
	}
}

func trapaOp(imm uint8) emit.Op {
	return func(ctx *emit.Ctx) {
		sp := ctx.State.Regs[sh2.R15] - 4
		ctx.Bus.Write32(sp, ctx.State.SR())
		sp -= 4
		ctx.Bus.Write32(sp, ctx.State.Regs[sh2.PC])
		ctx.State.Regs[sh2.R15] = sp
		ctx.State.Regs[sh2.PC] = ctx.Bus.Read32(ctx.State.Regs[sh2.VBR] + uint32(imm)*4)
	}
}

// rteOp pops PC then SR from the stack at R15, landing the restored
// PC in PPC for the normal delay-slot commit to pick up.
func rteOp() emit.Op {
	return func(ctx *emit.Ctx) {
		sp := ctx.State.Regs[sh2.R15]
		pc := ctx.Bus.Read32(sp)
		sr := ctx.Bus.Read32(sp + 4)
		ctx.State.Regs[sh2.R15] = sp + 8
		ctx.State.Regs[sh2.PPC] = pc
		ctx.State.SetSR(sr)
	}
}

// sleepOp is a no-op marker; translation leaves PC on the SLEEP itself,
// so the dispatcher re-enters it every iteration until an interrupt is
// pending.
func sleepOp() emit.Op {
	return func(ctx *emit.Ctx) {}
}

// macL implements MAC.L @Rm+,@Rn+: a 32x32->64 signed accumulate into
// MACH:MACL, saturated to a signed 48-bit range when SR.S is set.
func (tb *txBuilder) macL(op uint16) {
	addrN := tb.postInc(rn(op), 4)
	addrM := tb.postInc(rm(op), 4)
	a := tb.rc.GetTmp()
	b := tb.rc.GetTmp()
	tb.emit(loadOp(4, false, addrN, a))
	tb.emit(loadOp(4, false, addrM, b))
	tb.rc.FreeTmp(addrN)
	tb.rc.FreeTmp(addrM)

	mh := tb.rc.GetReg(sh2.MACH, rcache.ReadModifyWrite)
	ml := tb.rc.GetReg(sh2.MACL, rcache.ReadModifyWrite)
	sr := tb.rc.GetReg(sh2.SR, rcache.Read)
	tb.emit(macLOp(mh, ml, a, b, sr))
	tb.rc.FreeTmp(a)
	tb.rc.FreeTmp(b)
}

// macLOp's saturation boundaries are literal replacement values, not a
// clamp-then-split of the 64-bit sum: on overflow MACH:MACL becomes
// exactly 0x00008000:0x00000000 (negative) or 0x00007fff:0xffffffff
// (positive), matching real SH-2 MAC.L hardware.
func macLOp(mh, ml, a, b, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		prod := int64(int32(ctx.Host[a])) * int64(int32(ctx.Host[b]))
		sum := int64(ctx.Host[mh])<<32 | int64(ctx.Host[ml])
		sum += prod

		if ctx.Host[sr]&sh2.SRFlagS != 0 {
			const limit = int64(1) << 47
			switch {
			case sum < -limit:
				ctx.Host[mh] = 0x00008000
				ctx.Host[ml] = 0x00000000
				return
			case sum > limit-1:
				ctx.Host[mh] = 0x00007fff
				ctx.Host[ml] = 0xffffffff
				return
			}
		}
		ctx.Host[mh] = uint32(sum >> 32)
		ctx.Host[ml] = uint32(sum)
	}
}

// macW implements MAC.W @Rm+,@Rn+: a 16x16->32 signed accumulate into
// the MACH:MACL pair.
func (tb *txBuilder) macW(op uint16) {
	addrN := tb.postInc(rn(op), 2)
	addrM := tb.postInc(rm(op), 2)
	a := tb.rc.GetTmp()
	b := tb.rc.GetTmp()
	tb.emit(loadOp(2, true, addrN, a))
	tb.emit(loadOp(2, true, addrM, b))
	tb.rc.FreeTmp(addrN)
	tb.rc.FreeTmp(addrM)

	mh := tb.rc.GetReg(sh2.MACH, rcache.ReadModifyWrite)
	ml := tb.rc.GetReg(sh2.MACL, rcache.ReadModifyWrite)
	sr := tb.rc.GetReg(sh2.SR, rcache.Read)
	tb.emit(macWOp(mh, ml, a, b, sr))
	tb.rc.FreeTmp(a)
	tb.rc.FreeTmp(b)
}

// macWOp's saturation only ever clamps MACL, to 0x80000000 (negative)
// or 0x7fffffff (positive); MACH is left holding whatever the 64-bit
// accumulate produced, mirroring real SH-2 MAC.W hardware.
func macWOp(mh, ml, a, b, sr emit.HReg) emit.Op {
	return func(ctx *emit.Ctx) {
		prod := int64(int16(ctx.Host[a])) * int64(int16(ctx.Host[b]))
		sum := int64(ctx.Host[mh])<<32 | int64(ctx.Host[ml])
		sum += prod
		newMH := uint32(sum >> 32)
		newML := uint32(sum)

		if ctx.Host[sr]&sh2.SRFlagS != 0 && (int32(newML)>>31)^int32(newMH) != 0 {
			if int32(newMH) < 0 {
				newML = 0x80000000
			} else {
				newML = 0x7fffffff
			}
		}
		ctx.Host[mh] = newMH
		ctx.Host[ml] = newML
	}
}
