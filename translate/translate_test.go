/*
   Translator: end-to-end block translation tests.

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
	"testing"

	"github.com/sh2drc/drc32x/cache"
	"github.com/sh2drc/drc32x/emit"
	"github.com/sh2drc/drc32x/sh2"
)

// flatBus is a big-endian byte-array guest memory, sized generously
// enough for every test program's code and stack use.
type flatBus struct {
	mem [0x10000]byte
}

func (b *flatBus) off(addr uint32) uint32 { return addr & 0xffff }

func (b *flatBus) Read8(addr uint32) uint8     { return b.mem[b.off(addr)] }
func (b *flatBus) Write8(addr uint32, v uint8) { b.mem[b.off(addr)] = v }

func (b *flatBus) Read16(addr uint32) uint16 {
	o := b.off(addr)
	return uint16(b.mem[o])<<8 | uint16(b.mem[o+1])
}

func (b *flatBus) Write16(addr uint32, v uint16) {
	o := b.off(addr)
	b.mem[o] = uint8(v >> 8)
	b.mem[o+1] = uint8(v)
}

func (b *flatBus) Read32(addr uint32) uint32 {
	o := b.off(addr)
	return uint32(b.mem[o])<<24 | uint32(b.mem[o+1])<<16 | uint32(b.mem[o+2])<<8 | uint32(b.mem[o+3])
}

func (b *flatBus) Write32(addr uint32, v uint32) {
	o := b.off(addr)
	b.mem[o] = uint8(v >> 24)
	b.mem[o+1] = uint8(v >> 16)
	b.mem[o+2] = uint8(v >> 8)
	b.mem[o+3] = uint8(v)
}

func (b *flatBus) putOps(addr uint32, ops []uint16) {
	for i, op := range ops {
		b.Write16(addr+uint32(i)*2, op)
	}
}

// run translates one block at cpu.PC() and executes it to completion.
// Guest control flow that crosses a block boundary (any branch) needs
// a second call once the first block has updated cpu.PC().
func run(t *testing.T, bus *flatBus, cpu *sh2.State) *cache.Block {
	t.Helper()
	tr := New(cache.New(4096), emit.New(), bus, nil)
	blk, _, err := tr.Translate(cpu, cache.RegionROM, 0)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	ctx := &emit.Ctx{State: cpu, Bus: bus}
	emit.Run(blk.Ops, ctx)
	return blk
}

const startPC = 0x00002000

func TestAluSequence(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0xe105, // MOV #5,R1
		0xe207, // MOV #7,R2
		0x321c, // ADD R1,R2
		0x0009, // NOP
	})
	cpu := &sh2.State{}
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	if cpu.Regs[sh2.R1] != 5 {
		t.Fatalf("R1 = %d, want 5", cpu.Regs[sh2.R1])
	}
	if cpu.Regs[sh2.R2] != 12 {
		t.Fatalf("R2 = %d, want 12", cpu.Regs[sh2.R2])
	}
}

func TestBsrDelaySlotAndReturn(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0xb002, // BSR sub (target = startPC+4+2*2 = startPC+8)
		0x0009, // NOP (delay slot)
		0xe303, // MOV #3,R3 (skipped by the branch)
		0x0009, // NOP
	})
	bus.putOps(startPC+8, []uint16{
		0xe109, // MOV #9,R1 (sub:)
		0x000b, // RTS
		0xe204, // MOV #4,R2 (delay slot)
	})
	cpu := &sh2.State{}
	cpu.Regs[sh2.R15] = 0x8000
	cpu.SetPC(startPC)

	run(t, bus, cpu) // BSR + its delay slot

	if cpu.PC() != startPC+8 {
		t.Fatalf("PC after BSR = %#x, want %#x", cpu.PC(), startPC+8)
	}
	if cpu.Regs[sh2.PR] != startPC+4 {
		t.Fatalf("PR = %#x, want %#x (BSR+4)", cpu.Regs[sh2.PR], startPC+4)
	}

	run(t, bus, cpu) // the subroutine body, through RTS + its delay slot

	if cpu.Regs[sh2.R3] != 0 {
		t.Fatalf("R3 = %d, want 0 (BSR must skip the fallthrough instruction)", cpu.Regs[sh2.R3])
	}
	if cpu.Regs[sh2.R1] != 9 {
		t.Fatalf("R1 = %d, want 9", cpu.Regs[sh2.R1])
	}
	if cpu.Regs[sh2.R2] != 4 {
		t.Fatalf("R2 = %d, want 4 (RTS delay slot must still execute)", cpu.Regs[sh2.R2])
	}
	if cpu.PC() != startPC+4 {
		t.Fatalf("PC = %#x, want %#x (RTS returns to BSR+4)", cpu.PC(), startPC+4)
	}
}

func TestMacLSaturatesWhenSBitSet(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x001f, // MAC.L @R1+,@R0+
		0x0009, // NOP
	})
	bus.Write32(0x9000, 1)
	bus.Write32(0xa000, 1)

	cpu := &sh2.State{}
	cpu.Regs[sh2.R0] = 0x9000
	cpu.Regs[sh2.R1] = 0xa000
	cpu.SetSR(sh2.SRFlagS)
	cpu.Regs[sh2.MACH] = 0x7fff
	cpu.Regs[sh2.MACL] = 0xffffffff // MACH:MACL already sits at the saturation ceiling
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	sum := int64(cpu.Regs[sh2.MACH])<<32 | int64(cpu.Regs[sh2.MACL])
	const limit = int64(1) << 47
	if sum != limit-1 {
		t.Fatalf("MAC.L accumulator = %d, want saturated to %d", sum, limit-1)
	}

	if cpu.Regs[sh2.R0] != 0x9004 || cpu.Regs[sh2.R1] != 0xa004 {
		t.Fatalf("MAC.L did not post-increment both pointers: R0=%#x R1=%#x", cpu.Regs[sh2.R0], cpu.Regs[sh2.R1])
	}
}

func TestMacLSaturatesNegativeWhenSBitSet(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x001f, // MAC.L @R1+,@R0+ (n=R0, m=R1)
		0x0009, // NOP
	})
	bus.Write32(0x9000, 0xfffe0000) // -131072
	bus.Write32(0xa000, 0x7fffffff) // |product| = 2^48-2^17, well past -2^47

	cpu := &sh2.State{}
	cpu.Regs[sh2.R0] = 0x9000
	cpu.Regs[sh2.R1] = 0xa000
	cpu.SetSR(sh2.SRFlagS)
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	if cpu.Regs[sh2.MACH] != 0x00008000 {
		t.Fatalf("MACH = %#x, want %#x (literal, not sign-extended)", cpu.Regs[sh2.MACH], 0x00008000)
	}
	if cpu.Regs[sh2.MACL] != 0x00000000 {
		t.Fatalf("MACL = %#x, want 0", cpu.Regs[sh2.MACL])
	}
}

func TestMacWAccumulates(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x410f, // MAC.W @R0+,@R1+  (0100nnnnmmmm1111, n=1 m=0)
		0x0009,
	})
	bus.Write16(0x9000, 3)
	bus.Write16(0xa000, 4)

	cpu := &sh2.State{}
	cpu.Regs[sh2.R0] = 0x9000
	cpu.Regs[sh2.R1] = 0xa000
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	sum := int64(cpu.Regs[sh2.MACH])<<32 | int64(cpu.Regs[sh2.MACL])
	if sum != 12 {
		t.Fatalf("MAC.W accumulator = %d, want 12", sum)
	}
	if cpu.Regs[sh2.R0] != 0x9002 || cpu.Regs[sh2.R1] != 0xa002 {
		t.Fatalf("MAC.W did not post-increment both pointers by 2: R0=%#x R1=%#x", cpu.Regs[sh2.R0], cpu.Regs[sh2.R1])
	}
}

func TestMacWSaturatesMaclOnlyWhenSBitSet(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x410f, // MAC.W @R0+,@R1+  (n=1, m=0)
		0x0009,
	})
	bus.Write16(0x9000, 1)
	bus.Write16(0xa000, 1) // product = 1

	cpu := &sh2.State{}
	cpu.Regs[sh2.R0] = 0x9000
	cpu.Regs[sh2.R1] = 0xa000
	cpu.SetSR(sh2.SRFlagS)
	cpu.Regs[sh2.MACH] = 0
	cpu.Regs[sh2.MACL] = 0x7fffffff // already at the 32-bit positive ceiling
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	if cpu.Regs[sh2.MACL] != 0x7fffffff {
		t.Fatalf("MACL = %#x, want clamped to 0x7fffffff", cpu.Regs[sh2.MACL])
	}
}

// TestGroup4SystemRegisterOpsReachable checks LDC Rn,GBR, one of the
// LDC/LDS/STS.L/JSR/TAS.B family that a wrong opcode-class mask once
// made permanently unreachable (every one of them silently fell through
// to fallback). LDC Rn,SR, JSR and TAS.B have their own tests below.
func TestGroup4SystemRegisterOpsReachable(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x411e, // LDC R1,GBR
		0x0009,
	})
	cpu := &sh2.State{}
	cpu.Regs[sh2.R1] = 0x12345678
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	if cpu.Regs[sh2.GBR] != 0x12345678 {
		t.Fatalf("GBR = %#x, want 0x12345678 (LDC Rn,GBR must be reachable)", cpu.Regs[sh2.GBR])
	}
}

func TestLdcRnSrSetsTestIRQAndSR(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x400e, // LDC R0,SR
		0x0009,
	})
	cpu := &sh2.State{}
	cpu.Regs[sh2.R0] = sh2.SRFlagS
	cpu.SetPC(startPC)

	blk := run(t, bus, cpu)

	if cpu.Regs[sh2.SR]&sh2.SRFlagS == 0 {
		t.Fatalf("SR = %#x, want SRFlagS set (LDC Rn,SR must be reachable)", cpu.Regs[sh2.SR])
	}
	if blk.EndAddr != startPC+2 {
		t.Fatalf("block ended at %#x, want %#x (LDC Rn,SR must end the block for the IRQ poll)", blk.EndAddr, startPC+2)
	}
}

func TestJsrAndTasReachable(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x400b, // JSR @R0
		0x0009, // NOP (delay slot)
	})
	bus.putOps(startPC+8, []uint16{
		0x411b, // TAS.B @R1
	})
	cpu := &sh2.State{}
	cpu.Regs[sh2.R0] = startPC + 8
	cpu.Regs[sh2.R1] = 0xb000
	cpu.Regs[sh2.R15] = 0x8000
	bus.Write8(0xb000, 0)
	cpu.SetPC(startPC)

	run(t, bus, cpu) // JSR + its delay slot

	if cpu.PC() != startPC+8 {
		t.Fatalf("PC after JSR = %#x, want %#x (JSR must be reachable)", cpu.PC(), startPC+8)
	}
	if cpu.Regs[sh2.PR] != startPC+4 {
		t.Fatalf("PR = %#x, want %#x (address after JSR's delay slot)", cpu.Regs[sh2.PR], startPC+4)
	}

	run(t, bus, cpu) // TAS.B's own block

	if !cpu.T() {
		t.Fatalf("T flag clear after TAS.B on a zero byte")
	}
	if bus.Read8(0xb000) != 0x80 {
		t.Fatalf("byte at R1 = %#x, want 0x80 (TAS.B must set the top bit)", bus.Read8(0xb000))
	}
}

func TestFusedDtBfLoop(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0x4310, // DT R3
		0x8bfd, // BF $-3 (branches back to the DT)
		0x0009, // NOP
	})
	cpu := &sh2.State{}
	cpu.Regs[sh2.R3] = 4
	cpu.SetCycleField(1000) // enough budget for every loop iteration to run
	cpu.SetPC(startPC)

	run(t, bus, cpu)

	if cpu.Regs[sh2.R3] != 0 {
		t.Fatalf("R3 = %d, want 0 after the loop runs to completion", cpu.Regs[sh2.R3])
	}
	if !cpu.T() {
		t.Fatalf("T flag clear after DT reached zero")
	}
}

func TestConditionalBranchNotTaken(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0xe000, // MOV #0,R0
		0x8800, // CMP/EQ #0,R0 (true, sets T)
		0x8b00, // BF skip (not taken: BF wants T clear, T is set)
		0xe105, // MOV #5,R1
		0x0009, // NOP
	})
	cpu := &sh2.State{}
	cpu.SetPC(startPC)

	run(t, bus, cpu) // ends at the BF; falls through to startPC+6

	if cpu.PC() != startPC+6 {
		t.Fatalf("PC after BF = %#x, want %#x (fallthrough)", cpu.PC(), startPC+6)
	}

	run(t, bus, cpu) // the fallthrough instruction's own block

	if cpu.Regs[sh2.R1] != 5 {
		t.Fatalf("R1 = %d, want 5 (BF should not have branched)", cpu.Regs[sh2.R1])
	}
}

func TestConditionalBranchTakenSkipsBlock(t *testing.T) {
	bus := &flatBus{}
	bus.putOps(startPC, []uint16{
		0xe000, // MOV #0,R0
		0x8800, // CMP/EQ #0,R0 (true, sets T)
		0x8900, // BT skip (taken: T is set)
		0xe105, // MOV #5,R1 (must not run)
	})
	bus.putOps(startPC+8, []uint16{
		0xe207, // MOV #7,R2 (skip:)
	})
	cpu := &sh2.State{}
	cpu.SetPC(startPC)

	run(t, bus, cpu) // ends at the BT; jumps straight to startPC+8

	if cpu.PC() != startPC+8 {
		t.Fatalf("PC after BT = %#x, want %#x", cpu.PC(), startPC+8)
	}

	run(t, bus, cpu) // the branch target's own block

	if cpu.Regs[sh2.R1] != 0 {
		t.Fatalf("R1 = %d, want 0 (BT should have branched over it)", cpu.Regs[sh2.R1])
	}
	if cpu.Regs[sh2.R2] != 7 {
		t.Fatalf("R2 = %d, want 7", cpu.Regs[sh2.R2])
	}
}

func TestInvalidPCRejected(t *testing.T) {
	tr := New(cache.New(4096), emit.New(), &flatBus{}, nil)
	cpu := &sh2.State{}
	cpu.SetPC(0)
	if _, _, err := tr.Translate(cpu, cache.RegionROM, 0); err == nil {
		t.Fatalf("Translate accepted PC 0")
	}

	cpu.SetPC(0x90000000)
	if _, _, err := tr.Translate(cpu, cache.RegionROM, 0); err == nil {
		t.Fatalf("Translate accepted a PC outside the three valid top-bit patterns")
	}
}
