/*
   Dispatcher: end-to-end Execute tests.

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

package drc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh2drc/drc32x/cache"
	"github.com/sh2drc/drc32x/sh2"
)

// fakeBus is a big-endian byte-array guest memory standing in for the
// 32X's shared ROM/DRAM alias.
type fakeBus struct {
	mem [0x80000]byte
}

func (b *fakeBus) off(addr uint32) uint32 { return addr & 0x7ffff }

func (b *fakeBus) Read8(addr uint32) uint8     { return b.mem[b.off(addr)] }
func (b *fakeBus) Write8(addr uint32, v uint8) { b.mem[b.off(addr)] = v }

func (b *fakeBus) Read16(addr uint32) uint16 {
	o := b.off(addr)
	return uint16(b.mem[o])<<8 | uint16(b.mem[o+1])
}

func (b *fakeBus) Write16(addr uint32, v uint16) {
	o := b.off(addr)
	b.mem[o] = uint8(v >> 8)
	b.mem[o+1] = uint8(v)
}

func (b *fakeBus) Read32(addr uint32) uint32 {
	o := b.off(addr)
	return uint32(b.mem[o])<<24 | uint32(b.mem[o+1])<<16 | uint32(b.mem[o+2])<<8 | uint32(b.mem[o+3])
}

func (b *fakeBus) Write32(addr uint32, v uint32) {
	o := b.off(addr)
	b.mem[o] = uint8(v >> 24)
	b.mem[o+1] = uint8(v >> 16)
	b.mem[o+2] = uint8(v >> 8)
	b.mem[o+3] = uint8(v)
}

func (b *fakeBus) putOps(addr uint32, ops []uint16) {
	for i, op := range ops {
		b.Write16(addr+uint32(i)*2, op)
	}
}

// fakeInterp counts Step calls without touching cpu, so a block of
// invalid-PC retries decrements the cycle budget by exactly one per
// call rather than looping forever.
type fakeInterp struct {
	calls int
}

func (f *fakeInterp) Step(cpu *sh2.State, opcode uint16) { f.calls++ }

// dramAliasPC is a guest address that is simultaneously a valid ROM
// block start (top 3 bits zero) and covered by the DRAM SMC alias
// cache.go recognizes, so both hash lookup and WCheckRAM apply to it.
const dramAliasPC = 0x06002000

func TestExecuteTranslatesRunsAndAccountsCycles(t *testing.T) {
	bus := &fakeBus{}
	bus.putOps(dramAliasPC, []uint16{
		0xe105, // MOV #5,R1
		0xe207, // MOV #7,R2
		0x321c, // ADD R1,R2
	})

	d, err := New(Config{Bus: bus})
	require.NoError(t, err)

	cpu := &sh2.State{}
	cpu.SetPC(dramAliasPC)

	consumed, err := d.Execute(cpu, 50)
	require.NoError(t, err)

	assert.Equal(t, int32(50), consumed)
	assert.Equal(t, int64(50), cpu.CyclesDone)
	assert.EqualValues(t, 5, cpu.Regs[sh2.R1])
	assert.EqualValues(t, 12, cpu.Regs[sh2.R2])
}

func TestExecuteCachesBlockForReuse(t *testing.T) {
	bus := &fakeBus{}
	bus.putOps(dramAliasPC, []uint16{0xe105, 0x0009})

	d, err := New(Config{Bus: bus})
	require.NoError(t, err)

	cpu := &sh2.State{}
	cpu.SetPC(dramAliasPC)
	_, err = d.Execute(cpu, 10)
	require.NoError(t, err)

	head := d.Cache.HashHead(dramAliasPC)
	blk, _ := d.Cache.FindBlock(cache.RegionROM, head, dramAliasPC)
	require.NotNil(t, blk, "block starting at the entry PC should be cached after Execute")
	assert.Equal(t, uint32(dramAliasPC), blk.Addr)
}

func TestWCheckRAMInvalidatesCachedBlock(t *testing.T) {
	bus := &fakeBus{}
	bus.putOps(dramAliasPC, []uint16{0xe105, 0x0009})

	d, err := New(Config{Bus: bus})
	require.NoError(t, err)

	cpu := &sh2.State{}
	cpu.SetPC(dramAliasPC)
	_, err = d.Execute(cpu, 10)
	require.NoError(t, err)

	d.WCheckRAM(dramAliasPC)

	head := d.Cache.HashHead(dramAliasPC)
	blk, _ := d.Cache.FindBlock(cache.RegionROM, head, dramAliasPC)
	assert.Nil(t, blk, "a guest write over the block's start should invalidate it")
}

func TestExecuteFallsBackToInterpreterOnInvalidPC(t *testing.T) {
	interp := &fakeInterp{}
	d, err := New(Config{Bus: &fakeBus{}, Interpreter: interp})
	require.NoError(t, err)

	cpu := &sh2.State{}
	cpu.SetPC(0) // rejected: translate.ErrInvalidPC

	consumed, err := d.Execute(cpu, 5)
	require.NoError(t, err)

	assert.Equal(t, int32(5), consumed)
	assert.Equal(t, 5, interp.calls, "each retry at the rejected PC should step the interpreter once")
}

func TestExecuteSkipsInvalidPCWithNoInterpreter(t *testing.T) {
	d, err := New(Config{Bus: &fakeBus{}})
	require.NoError(t, err)

	// A top-bit pattern outside {0, 1, 6} stays rejected across every
	// retry, unlike PC 0 (whose only invalidity is being exactly zero):
	// the point here is that skip-and-retry never runs out of budget.
	const invalidPC = 0x40000000
	cpu := &sh2.State{}
	cpu.SetPC(invalidPC)

	consumed, err := d.Execute(cpu, 3)
	require.NoError(t, err)

	assert.Equal(t, int32(3), consumed)
	assert.Equal(t, uint32(invalidPC+6), cpu.PC(), "PC must advance past the rejected opcode each retry")
}

func TestNewRejectsNilBus(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
