/*
 * drc32x - Guest memory and interrupt-accepter callback interfaces.
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

// Package host declares the callbacks a drc.Drc expects from its
// embedder: guest memory access, interrupt acceptance and the
// single-opcode interpreter used as a translation fallback.
package host

import "github.com/sh2drc/drc32x/sh2"

// Bus is the guest memory subsystem. The DRC never checks the
// outcome of a read or write beyond the returned value; a faulting
// access is the Bus implementation's responsibility to model (e.g. by
// returning an open-bus value). Memory accessors are unconditionally
// trusted.
type Bus interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, v uint8)
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)
}

// IRQAccepter pushes SR and PC onto the guest stack, loads VBR plus
// vector*4 as the new PC and raises SR.I, exactly as a real exception
// entry would. The dispatcher calls it once per poll when a pending
// interrupt's level exceeds the CPU's current mask.
type IRQAccepter interface {
	AcceptIRQ(cpu *sh2.State, level, vector uint8)
}

// Interpreter executes exactly one guest opcode, used whenever the
// translator declines to emit native code for it: an opcode outside
// the natively-handled families, or the reject-and-interpret path
// taken after a rejected block start.
type Interpreter interface {
	Step(cpu *sh2.State, opcode uint16)
}
