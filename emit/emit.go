/*
 * drc32x - Host-ISA emitter: closures over a scratch host-register file.
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

// Package emit is the DRC's host-ISA layer: the primitives the
// translator composes into a translated block.
//
// There is no in-process path from pure Go to real x86/ARM machine
// code without cgo and an assembler. The realization adopted here
// treats the Go runtime itself as "the host architecture": an Op is a
// func(*Ctx) closure over a small scratch host-register file, and a
// translated block is a []Op. This preserves every property the
// translated-code contract actually cares about — deterministic,
// position-independent (a slice needs no relocation or patching),
// flush is simply dropping the slice — while staying ordinary Go.
// Emitter remains a genuine interface rather than a concrete type so
// a future real-codegen backend is a second implementation, not a
// rewrite.
package emit

import (
	"github.com/sh2drc/drc32x/host"
	"github.com/sh2drc/drc32x/sh2"
)

// HReg names one slot in the host scratch-register file. At most four
// simultaneous cached guest registers are kept alive at once, plus a
// handful of argument/temp slots; NumHostRegs gives headroom above
// that so rcache's eviction invariant (pool size >= max simultaneous
// holds) always has somewhere to allocate.
type HReg uint8

const NumHostRegs = 8

// Cond is a host condition code, evaluated against the flag Cmp last
// produced. The set is the standard fourteen host condition codes.
type Cond uint8

const (
	EQ Cond = iota
	NE
	LT
	LE
	GT
	GE
	LO
	LS
	HI
	HS
	MI
	PL
	VS
	VC
)

// Ctx is the live state an Op runs against: the host scratch
// registers, the guest CPU context, and the embedder's callbacks.
// A Ctx is reused across every block entry; nothing in it survives
// between Op slices except through the guest State.
type Ctx struct {
	Host [NumHostRegs]uint32

	// flag holds the result of the last Cmp, consumed by predicated
	// ops and by IfBlock. carry holds the last shift/rotate's carry
	// out, the host flag RotCL/RotCR read as their carry in.
	flag  bool
	carry bool

	State  *sh2.State
	Bus    host.Bus
	Interp host.Interpreter
	IRQ    host.IRQAccepter
}

// Op is one host-architecture "instruction": a closure mutating Ctx.
type Op func(*Ctx)

// Carry reports the last shift/rotate's carry-out, the bit a
// translator-composed Op needs when folding it into SR.T itself
// (RotCL/RotCR read the same field back as their carry-in).
func (c *Ctx) Carry() bool { return c.carry }

// Flag reports the result of the last Cmp/CmpImm, for translator-
// composed Ops that need an "else" branch Predicated doesn't offer.
func (c *Ctx) Flag() bool { return c.flag }

// Run executes a translated block's op sequence in order. Block
// termination (a tail-jump to the epilogue in a real codegen backend)
// is implicit: the last Op always leaves ctx.State.PC set, and control
// simply returns here to the dispatcher's loop.
func Run(ops []Op, ctx *Ctx) {
	for _, op := range ops {
		op(ctx)
	}
}

// Emitter is the target-neutral surface the translator composes
// against. The closure backend below is the only implementation
// today; a real amd64/arm64 encoder would satisfy the same interface.
type Emitter interface {
	MovRR(dst, src HReg) Op
	MovImm(dst HReg, imm uint32) Op
	MovImmSext8(dst HReg, imm int8) Op

	Add(dst, src HReg) Op
	Sub(dst, src HReg) Op
	And(dst, src HReg) Op
	Or(dst, src HReg) Op
	Xor(dst, src HReg) Op
	Not(dst HReg) Op
	Neg(dst HReg) Op
	AddImm(dst HReg, imm uint32) Op
	SubImm(dst HReg, imm uint32) Op
	AndImm(dst HReg, imm uint32) Op
	OrImm(dst HReg, imm uint32) Op
	XorImm(dst HReg, imm uint32) Op

	ShiftLL(dst HReg) Op
	ShiftLR(dst HReg) Op
	ShiftAL(dst HReg) Op
	ShiftAR(dst HReg) Op
	RotL(dst HReg) Op
	RotR(dst HReg) Op
	RotCL(dst HReg) Op
	RotCR(dst HReg) Op

	MulAccS(macH, macL, a, b HReg) Op
	MulAccU(macH, macL, a, b HReg) Op

	Cmp(cond Cond, a, b HReg) Op
	CmpImm(cond Cond, a HReg, imm uint32) Op
	Predicated(cond Cond, op Op) Op
	IfBlock(cond Cond, body []Op) Op

	ContextLoad(dst []HReg, base sh2.Reg) Op
	ContextStore(base sh2.Reg, src []HReg) Op

	CallHost(fn func(*Ctx)) Op

	Div1Step(rn, rm HReg) Op
	FusedDtBf(rn sh2.Reg, cyclesPerIter int32) Op
	WriteSR(src HReg) Op
}

// closure is the sole Emitter implementation: every method below
// returns an Op that performs the named primitive directly against a
// Ctx when the block runs.
type closure struct{}

// New returns the closure-backend Emitter.
func New() Emitter { return closure{} }

func (closure) MovRR(dst, src HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] = ctx.Host[src] }
}

func (closure) MovImm(dst HReg, imm uint32) Op {
	return func(ctx *Ctx) { ctx.Host[dst] = imm }
}

func (closure) MovImmSext8(dst HReg, imm int8) Op {
	v := uint32(int32(imm))
	return func(ctx *Ctx) { ctx.Host[dst] = v }
}

func (closure) Add(dst, src HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] += ctx.Host[src] }
}

func (closure) Sub(dst, src HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] -= ctx.Host[src] }
}

func (closure) And(dst, src HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] &= ctx.Host[src] }
}

func (closure) Or(dst, src HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] |= ctx.Host[src] }
}

func (closure) Xor(dst, src HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] ^= ctx.Host[src] }
}

func (closure) Not(dst HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] = ^ctx.Host[dst] }
}

func (closure) Neg(dst HReg) Op {
	return func(ctx *Ctx) { ctx.Host[dst] = -ctx.Host[dst] }
}

func (closure) AddImm(dst HReg, imm uint32) Op {
	return func(ctx *Ctx) { ctx.Host[dst] += imm }
}

func (closure) SubImm(dst HReg, imm uint32) Op {
	return func(ctx *Ctx) { ctx.Host[dst] -= imm }
}

func (closure) AndImm(dst HReg, imm uint32) Op {
	return func(ctx *Ctx) { ctx.Host[dst] &= imm }
}

func (closure) OrImm(dst HReg, imm uint32) Op {
	return func(ctx *Ctx) { ctx.Host[dst] |= imm }
}

func (closure) XorImm(dst HReg, imm uint32) Op {
	return func(ctx *Ctx) { ctx.Host[dst] ^= imm }
}

func (closure) ShiftLL(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		ctx.carry = v&0x80000000 != 0
		ctx.Host[dst] = v << 1
	}
}

func (closure) ShiftLR(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		ctx.carry = v&1 != 0
		ctx.Host[dst] = v >> 1
	}
}

func (closure) ShiftAL(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		ctx.carry = v&0x80000000 != 0
		ctx.Host[dst] = v << 1
	}
}

func (closure) ShiftAR(dst HReg) Op {
	return func(ctx *Ctx) {
		v := int32(ctx.Host[dst])
		ctx.carry = v&1 != 0
		ctx.Host[dst] = uint32(v >> 1)
	}
}

func (closure) RotL(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		ctx.carry = v&0x80000000 != 0
		ctx.Host[dst] = v<<1 | v>>31
	}
}

func (closure) RotR(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		ctx.carry = v&1 != 0
		ctx.Host[dst] = v>>1 | v<<31
	}
}

func (closure) RotCL(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		in := uint32(0)
		if ctx.carry {
			in = 1
		}
		ctx.carry = v&0x80000000 != 0
		ctx.Host[dst] = v<<1 | in
	}
}

func (closure) RotCR(dst HReg) Op {
	return func(ctx *Ctx) {
		v := ctx.Host[dst]
		in := uint32(0)
		if ctx.carry {
			in = 0x80000000
		}
		ctx.carry = v&1 != 0
		ctx.Host[dst] = v>>1 | in
	}
}

func (closure) MulAccS(macH, macL, a, b HReg) Op {
	return func(ctx *Ctx) {
		prod := int64(int32(ctx.Host[a])) * int64(int32(ctx.Host[b]))
		sum := int64(ctx.Host[macH])<<32 | int64(ctx.Host[macL])
		sum += prod
		ctx.Host[macH] = uint32(sum >> 32)
		ctx.Host[macL] = uint32(sum)
	}
}

func (closure) MulAccU(macH, macL, a, b HReg) Op {
	return func(ctx *Ctx) {
		prod := uint64(ctx.Host[a]) * uint64(ctx.Host[b])
		sum := uint64(ctx.Host[macH])<<32 | uint64(ctx.Host[macL])
		sum += prod
		ctx.Host[macH] = uint32(sum >> 32)
		ctx.Host[macL] = uint32(sum)
	}
}

func (closure) Cmp(cond Cond, a, b HReg) Op {
	return func(ctx *Ctx) {
		ctx.flag = EvalCond(cond, ctx.Host[a], ctx.Host[b])
	}
}

func (closure) CmpImm(cond Cond, a HReg, imm uint32) Op {
	return func(ctx *Ctx) {
		ctx.flag = EvalCond(cond, ctx.Host[a], imm)
	}
}

func (closure) Predicated(cond Cond, op Op) Op {
	return func(ctx *Ctx) {
		if ctx.flag {
			op(ctx)
		}
	}
}

func (closure) IfBlock(cond Cond, body []Op) Op {
	return func(ctx *Ctx) {
		if ctx.flag {
			for _, op := range body {
				op(ctx)
			}
		}
	}
}

func (closure) ContextLoad(dst []HReg, base sh2.Reg) Op {
	return func(ctx *Ctx) {
		for i, h := range dst {
			ctx.Host[h] = ctx.State.Regs[int(base)+i]
		}
	}
}

func (closure) ContextStore(base sh2.Reg, src []HReg) Op {
	return func(ctx *Ctx) {
		for i, h := range src {
			ctx.State.Regs[int(base)+i] = ctx.Host[h]
		}
	}
}

func (closure) CallHost(fn func(*Ctx)) Op {
	return func(ctx *Ctx) { fn(ctx) }
}

// Div1Step performs one iteration of the SH-2 DIV1 algorithm directly
// against guest state, updating Q and T (M is read, not changed). rn/rm name the host slots
// already holding the dividend (rn) and divisor (rm) for this step;
// the result is written back into rn.
func (closure) Div1Step(rn, rm HReg) Op {
	return func(ctx *Ctx) {
		sr := ctx.State.SR()
		q := sr&sh2.SRFlagQ != 0
		m := sr&sh2.SRFlagM != 0
		t := sr&sh2.SRFlagT != 0

		orig := ctx.Host[rn]
		q1 := orig&0x80000000 != 0
		val := orig<<1 | boolToU32(t)

		var q2 bool
		if q == m {
			sum := val + ctx.Host[rm]
			q2 = sum < val
			val = sum
		} else {
			diff := val - ctx.Host[rm]
			q2 = val < ctx.Host[rm]
			val = diff
		}

		newQ := m != (q1 != q2)
		newT := q1 == q2

		ctx.Host[rn] = val
		newSR := sr &^ (sh2.SRFlagQ | sh2.SRFlagT)
		if newQ {
			newSR |= sh2.SRFlagQ
		}
		if newT {
			newSR |= sh2.SRFlagT
		}
		ctx.State.SetSR(newSR)
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// FusedDtBf implements the sole peephole the translator recognizes:
// DT Rn immediately followed by BF #-2. Rather than emit the
// decrement-compare-branch-back sequence as separate Ops that a host
// branch would loop over, the fusion runs the whole loop here in one
// Op, charging cyclesPerIter against the cycle budget each iteration
// so a runaway loop still yields control back to the dispatcher.
func (closure) FusedDtBf(rn sh2.Reg, cyclesPerIter int32) Op {
	return func(ctx *Ctx) {
		for {
			v := ctx.State.Regs[rn] - 1
			ctx.State.Regs[rn] = v
			ctx.State.AddCycleField(-cyclesPerIter)
			if v == 0 {
				ctx.State.Regs[sh2.SR] |= sh2.SRFlagT
				return
			}
			ctx.State.Regs[sh2.SR] &^= sh2.SRFlagT
			if ctx.State.CycleField() <= 0 {
				return
			}
		}
	}
}

func (closure) WriteSR(src HReg) Op {
	return func(ctx *Ctx) { ctx.State.SetSR(ctx.Host[src]) }
}

// EvalCond evaluates a two-operand condition the way the emitter's
// Cmp primitive would have set host flags for it. Signed conditions
// compare a and b as int32; the LO/LS/HI/HS family is unsigned.
func EvalCond(cond Cond, a, b uint32) bool {
	sa, sb := int32(a), int32(b)
	switch cond {
	case EQ:
		return a == b
	case NE:
		return a != b
	case LT:
		return sa < sb
	case LE:
		return sa <= sb
	case GT:
		return sa > sb
	case GE:
		return sa >= sb
	case LO:
		return a < b
	case LS:
		return a <= b
	case HI:
		return a > b
	case HS:
		return a >= b
	case MI:
		return sa < 0
	case PL:
		return sa >= 0
	case VS, VC:
		// Overflow conditions: unused by the opcode families this
		// translator implements (no signed-overflow-trapping insn in
		// the native SH-2 subset), kept for Emitter completeness.
		return false
	}
	return false
}
