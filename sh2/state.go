/*
   SH-2: guest register file and status-register layout.

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

// Package sh2 holds the guest SH-2 register file, status-register bit
// layout and the handful of state transitions (the pending-interrupt
// description, cycle-field bookkeeping) that both the translator and the dispatcher
// need to agree on.
package sh2

// Reg enumerates the 24 guest register-file slots, in context order.
// Offset(r) gives the byte offset a context read/write emitter targets.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	PC  // Current program counter of the opcode being translated.
	PPC // Pending PC, written by delayed branches, copied to PC at end_op.
	PR  // Procedure register (subroutine return address).
	SR  // Status register; bits 12-31 hold the DRC's cycle counter.
	GBR // Global base register.
	VBR // Vector base register.
	MACH
	MACL

	NumRegs = iota
)

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "R?"
}

var regNames = [NumRegs]string{
	"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
	"PC", "PPC", "PR", "SR", "GBR", "VBR", "MACH", "MACL",
}

// Offset returns the byte offset of r within a contiguous context struct,
// as used by the emitter's multi-register load/store primitives.
func (r Reg) Offset() uint32 { return uint32(r) * 4 }

// Status register bit layout. Bits 12-31 are architecturally reserved
// and reused by the DRC as a signed cycle counter.
const (
	SRFlagT uint32 = 0x00000001 // Carry / compare result.
	SRFlagS uint32 = 0x00000002 // MAC saturation mode.
	SRMaskI uint32 = 0x000000f0 // Interrupt mask level.
	SRFlagQ uint32 = 0x00000100 // DIV1 state.
	SRFlagM uint32 = 0x00000200 // DIV1 state.

	SRShiftQ = 8
	SRShiftM = 9

	// SRReservedMask covers the architectural SR bits. SetSR takes only
	// these bits from a written value, so bits 12-31 of the value are
	// dropped and the cycle field keeps its current contents.
	SRReservedMask uint32 = 0x000003f3

	// SRCycleShift is where the DRC packs its signed cycle-budget
	// counter into an otherwise-reserved SR field.
	SRCycleShift = 12
)

// PendingIRQ describes interrupt state the dispatcher consults before
// (re)entering translated code. LDC-to-SR, RTE and SLEEP each cause a
// poll of it to be emitted at end of op.
type PendingIRQ struct {
	Level    uint8 // Highest pending level, IRL or internal.
	IRL      uint8 // Pending external interrupt request level.
	IntIRQ   uint8 // Pending internal-interrupt level, 0 if none.
	IntVector uint8 // Vector for the pending internal interrupt.
}

// State is one guest SH-2 CPU's architectural state plus the DRC's own
// bookkeeping fields (cycles done/aim, which physical core this is).
// It owns no pointers into the DRC's caches: a *Drc is always passed
// alongside a *State, never embedded in it, so caches can be shared
// read-only across a master/slave pair.
type State struct {
	Regs [NumRegs]uint32

	IsSlave bool

	CyclesDone int64
	CyclesAim  int64

	Pending PendingIRQ

	// DRCTmp is the one scratch context slot the translator uses to
	// stage an intermediate 32-bit value across two memory accesses
	// (MAC.L's read-both-operands-then-advance-both-pointers shape).
	DRCTmp uint32
}

// SR returns the current status-register value, cycle field included.
func (s *State) SR() uint32 { return s.Regs[SR] }

// SetSR installs a new guest-visible SR value: the caller's value is
// masked to the architectural bits and replaces them, while the cycle
// field in bits 12-31 keeps its current contents.
func (s *State) SetSR(v uint32) {
	cycles := s.Regs[SR] &^ SRReservedMask
	s.Regs[SR] = cycles | (v & SRReservedMask)
}

// T reports the guest T (true/carry) flag.
func (s *State) T() bool { return s.Regs[SR]&SRFlagT != 0 }

// CycleField extracts the DRC's signed cycle-budget counter from SR.
func (s *State) CycleField() int32 {
	return int32(s.Regs[SR]) >> SRCycleShift
}

// SetCycleField overwrites the cycle-budget counter, preserving the
// guest-visible low bits of SR.
func (s *State) SetCycleField(cycles int32) {
	s.Regs[SR] = (s.Regs[SR] & SRReservedMask) | (uint32(cycles) << SRCycleShift)
}

// AddCycleField decrements (or increments) the cycle-budget counter by
// delta, the action every translated block performs as its last step.
func (s *State) AddCycleField(delta int32) {
	s.SetCycleField(s.CycleField() + delta)
}

// PC/PPC/PR/GBR/VBR/MACH/MACL convenience accessors: translated code
// and the dispatcher both address these by name far more often than by
// raw Reg index.
func (s *State) PC() uint32      { return s.Regs[PC] }
func (s *State) SetPC(v uint32)  { s.Regs[PC] = v }
func (s *State) SetPPC(v uint32) { s.Regs[PPC] = v }
