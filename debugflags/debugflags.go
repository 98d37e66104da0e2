/*
 * drc32x - Runtime debug-trace flags.
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

// Package debugflags holds the DRC's runtime debug-trace mask.
//
// There is no natural per-instance owner for this state during early
// bring-up, so a single package-level mask, enabled by name, mirrors
// how a command line turns named trace categories on.
package debugflags

import "fmt"

const (
	// Translate traces each block as its translation starts: block id,
	// start PC, region and whether the CPU is the slave.
	Translate = 1 << iota
	// Disasm traces every guest opcode decoded during translation,
	// using the disasm package's mnemonic formatting.
	Disasm
	// Interp names the interpreter-fallback trace category; no package
	// in this module checks it.
	Interp
	// Refcount names the register-cache trace category; no package in
	// this module checks it.
	Refcount
	// SMC traces self-modifying-code invalidation sweeps.
	SMC
)

var options = map[string]int{
	"TRANSLATE": Translate,
	"DISASM":    Disasm,
	"INTERP":    Interp,
	"REFCOUNT":  Refcount,
	"SMC":       SMC,
}

var mask int

// Enable turns on the named trace category. Unknown names are rejected
// rather than silently ignored.
func Enable(opt string) error {
	flag, ok := options[opt]
	if !ok {
		return fmt.Errorf("debugflags: unknown option %q", opt)
	}
	mask |= flag
	return nil
}

// Reset clears every trace category. Tests use this to avoid leaking
// a mask set by one test into another.
func Reset() { mask = 0 }

// Enabled reports whether every bit in flag is currently set.
func Enabled(flag int) bool { return mask&flag == flag }
