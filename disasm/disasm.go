/*
   SH-2 disassembler.

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

// Package disasm formats one 16-bit SH-2 opcode as a mnemonic line,
// for the debugflags.Disasm decode trace and for the translator's
// unhandled-opcode warning.
package disasm

import "fmt"

// operand format tags, one per opcode table entry, driving which
// fmt.Sprintf template Format applies to the decoded fields.
const (
	fNone = iota
	fRn
	fRm
	fRnRm
	fImmR0
	fImmRn
	fDispR0
	fDispRn
	fDispPCWord
	fDispPCLong
	fDispBranch8
	fDispBranch12
	fRnIndirect
	fRnRmIndirect
	fRnAtMinus
	fAtRnPlus
	fAtRnPlusRm
)

type entry struct {
	mnemonic string
	format   int
}

// exact holds opcodes fully determined by all 16 bits (no operand
// fields at all).
var exact = map[uint16]entry{
	0x0008: {"CLRT", fNone},
	0x0009: {"NOP", fNone},
	0x000b: {"RTS", fNone},
	0x0018: {"SETT", fNone},
	0x0019: {"DIV0U", fNone},
	0x001b: {"SLEEP", fNone},
	0x0028: {"CLRMAC", fNone},
	0x002b: {"RTE", fNone},
}

// f0ff holds opcodes keyed by op&0xf0ff (one register field, at bits
// 8-11).
var f0ff = map[uint16]entry{
	0x4000: {"SHLL", fRn},
	0x4001: {"SHLR", fRn},
	0x4002: {"STS.L", fRn}, // MACH,@-Rn
	0x4004: {"ROTL", fRn},
	0x4005: {"ROTR", fRn},
	0x4008: {"SHLL2", fRn},
	0x4009: {"SHLR2", fRn},
	0x400b: {"JSR", fRnIndirect},
	0x4010: {"DT", fRn},
	0x4011: {"CMP/PZ", fRn},
	0x4015: {"CMP/PL", fRn},
	0x4018: {"SHLL8", fRn},
	0x4019: {"SHLR8", fRn},
	0x4020: {"SHAL", fRn},
	0x4021: {"SHAR", fRn},
	0x4024: {"ROTCL", fRn},
	0x4025: {"ROTCR", fRn},
	0x4028: {"SHLL16", fRn},
	0x4029: {"SHLR16", fRn},
	0x402b: {"JMP", fRnIndirect},
	0x0002: {"STC", fRn}, // SR,Rn
	0x0003: {"BSRF", fRn},
	0x002a: {"STS", fRn}, // PR,Rn
	0x0023: {"BRAF", fRn},
	0x0029: {"MOVT", fRn},
}

// ffff-style displacement forms keyed by the top 4 bits, decoded in
// Format directly rather than via a table (every instance needs a
// different operand count).
func Format(pc uint32, op uint16) string {
	if e, ok := exact[op]; ok {
		return e.mnemonic
	}
	if e, ok := f0ff[op&0xf0ff]; ok {
		return apply(e, op, pc)
	}

	n := (op >> 8) & 0xf
	m := (op >> 4) & 0xf
	switch (op >> 12) & 0xf {
	case 0x1:
		return fmt.Sprintf("MOV.L   R%d,@(%d,R%d)", m, (op&0xf)*4, n)
	case 0x5:
		return fmt.Sprintf("MOV.L   @(%d,R%d),R%d", (op&0xf)*4, m, n)
	case 0x7:
		return fmt.Sprintf("ADD     #%d,R%d", int8(op&0xff), n)
	case 0x9:
		return fmt.Sprintf("MOV.W   @(%d,PC),R%d", int(op&0xff)*2, n)
	case 0xa:
		return fmt.Sprintf("BRA     %#x", pc+4+disp12(op))
	case 0xb:
		return fmt.Sprintf("BSR     %#x", pc+4+disp12(op))
	case 0xd:
		return fmt.Sprintf("MOV.L   @(%d,PC),R%d", int(op&0xff)*4, n)
	case 0xe:
		return fmt.Sprintf("MOV     #%d,R%d", int8(op&0xff), n)
	}

	switch op >> 8 {
	case 0x88:
		return fmt.Sprintf("CMP/EQ  #%d,R0", int8(op&0xff))
	case 0x89:
		return fmt.Sprintf("BT      %#x", pc+4+disp8(op))
	case 0x8b:
		return fmt.Sprintf("BF      %#x", pc+4+disp8(op))
	case 0x8d:
		return fmt.Sprintf("BT/S    %#x", pc+4+disp8(op))
	case 0x8f:
		return fmt.Sprintf("BF/S    %#x", pc+4+disp8(op))
	}

	return fmt.Sprintf(".WORD   %#04x", op)
}

func apply(e entry, op uint16, pc uint32) string {
	n := (op >> 8) & 0xf
	switch e.format {
	case fRn:
		return fmt.Sprintf("%-7s R%d", e.mnemonic, n)
	case fRnIndirect:
		return fmt.Sprintf("%-7s @R%d", e.mnemonic, n)
	default:
		return e.mnemonic
	}
}

func disp12(op uint16) uint32 { return uint32((int32(op) << 20) >> 19) }
func disp8(op uint16) uint32  { return uint32((int32(op) << 24) >> 23) }
