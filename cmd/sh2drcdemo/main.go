/*
   drc32x - Demo driver: translate and run a flat SH-2 binary.

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

// Command sh2drcdemo loads a flat SH-2 ROM image and runs it through
// the DRC for a fixed cycle count, printing the final register file.
// It exists to exercise drc.Execute end to end against a real binary
// rather than a translate/*_test.go synthetic program.
package main

import (
	"fmt"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/sh2drc/drc32x/cache"
	"github.com/sh2drc/drc32x/debugflags"
	"github.com/sh2drc/drc32x/drc"
	"github.com/sh2drc/drc32x/logger"
	"github.com/sh2drc/drc32x/sh2"
)

// flatMem is a byte-array guest address space standing in for the
// 32X's combined ROM/DRAM/on-chip map: good enough for a demo driver,
// not a real memory controller (no open-bus modeling, no mirroring
// beyond the mask below).
type flatMem struct {
	mem [1 << 21]byte
}

func (m *flatMem) off(addr uint32) uint32 { return addr & (1<<21 - 1) }

func (m *flatMem) Read8(addr uint32) uint8     { return m.mem[m.off(addr)] }
func (m *flatMem) Write8(addr uint32, v uint8) { m.mem[m.off(addr)] = v }

func (m *flatMem) Read16(addr uint32) uint16 {
	o := m.off(addr)
	return uint16(m.mem[o])<<8 | uint16(m.mem[o+1])
}

func (m *flatMem) Write16(addr uint32, v uint16) {
	o := m.off(addr)
	m.mem[o] = uint8(v >> 8)
	m.mem[o+1] = uint8(v)
}

func (m *flatMem) Read32(addr uint32) uint32 {
	o := m.off(addr)
	return uint32(m.mem[o])<<24 | uint32(m.mem[o+1])<<16 | uint32(m.mem[o+2])<<8 | uint32(m.mem[o+3])
}

func (m *flatMem) Write32(addr uint32, v uint32) {
	o := m.off(addr)
	m.mem[o] = uint8(v >> 24)
	m.mem[o+1] = uint8(v >> 16)
	m.mem[o+2] = uint8(v >> 8)
	m.mem[o+3] = uint8(v)
}

func main() {
	optROM := getopt.StringLong("rom", 'r', "", "Flat SH-2 ROM image to load at 0x06000000")
	optEntry := getopt.Uint64Long("entry", 'e', 0x06000000, "Entry PC")
	optCycles := getopt.Int64Long("cycles", 'n', 10000, "Guest cycles to run")
	optDebug := getopt.StringLong("debug", 'd', "", "Comma-separated debugflags categories (TRANSLATE,DISASM,INTERP,REFCOUNT,SMC)")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	for _, name := range splitNonEmpty(*optDebug) {
		if err := debugflags.Enable(name); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	slog.SetDefault(slog.New(logger.New(os.Stdout, &slog.HandlerOptions{Level: programLevel}, debugflags.Enabled(debugflags.Translate))))

	bus := &flatMem{}
	if *optROM != "" {
		data, err := os.ReadFile(*optROM)
		if err != nil {
			slog.Error("sh2drcdemo: reading ROM image", "path", *optROM, "err", err)
			os.Exit(1)
		}
		copy(bus.mem[0x06000000&(1<<21-1):], data)
	}

	d, err := drc.New(drc.Config{Bus: bus, CacheUnits: cache.MaxHashEntries * 4})
	if err != nil {
		slog.Error("sh2drcdemo: drc.New", "err", err)
		os.Exit(1)
	}
	defer d.Close()

	cpu := &sh2.State{}
	cpu.SetPC(uint32(*optEntry))

	consumed, err := d.Execute(cpu, int32(*optCycles))
	if err != nil {
		slog.Error("sh2drcdemo: Execute", "err", err)
		os.Exit(1)
	}

	slog.Info("sh2drcdemo: run complete", "consumed_cycles", consumed, "final_pc", fmt.Sprintf("%#x", cpu.PC()))
	for r := sh2.R0; r <= sh2.R15; r++ {
		fmt.Printf("R%-2d = %#010x\n", r, cpu.Regs[r])
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
