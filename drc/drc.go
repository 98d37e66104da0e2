/*
   Dispatcher: the DRC's top-level translate-cache-or-run loop.

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

// Package drc wires the code cache and translator together behind the
// embedder-facing entry point: Execute runs guest code for a cycle
// budget, translating and caching blocks as it goes and falling back
// to an interpreter one opcode at a time wherever translation itself
// cannot proceed.
package drc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sh2drc/drc32x/cache"
	"github.com/sh2drc/drc32x/emit"
	"github.com/sh2drc/drc32x/host"
	"github.com/sh2drc/drc32x/sh2"
	"github.com/sh2drc/drc32x/translate"
)

// DefaultCacheUnits is the total region-0/1/2 unit budget New uses
// when Config.CacheUnits is left at zero.
const DefaultCacheUnits = 1 << 16

// Config collects the embedder callbacks and tuning knobs a Drc needs.
// Bus is required; IRQ and Interpreter are optional, matching the
// original's "NULL means unavailable" convention.
type Config struct {
	Bus         host.Bus
	IRQ         host.IRQAccepter
	Interpreter host.Interpreter

	// InterpFallback, when true, has the translator emit a call into
	// Interpreter for any opcode outside the natively handled subset
	// instead of silently skipping it. Has no effect when Interpreter
	// is nil.
	InterpFallback bool

	// CacheUnits is the total code-cache unit budget, split 6/1/1
	// across ROM, master-internal and slave-internal the way cache.New
	// does. Zero selects DefaultCacheUnits.
	CacheUnits int
}

// Drc owns one code cache and translator pair. It is not safe for
// concurrent use: an embedder driving master and slave SH-2 cores
// through a shared ROM region must serialize its own calls into
// Execute, exactly as the teacher's core.Start loop drives its single
// CPU from one goroutine rather than locking shared state.
type Drc struct {
	Cache *cache.Cache
	tr    *translate.Translator
	cfg   Config
}

// New builds a Drc from cfg. The only failure mode is a missing Bus;
// everything else the DRC needs has a usable zero value.
func New(cfg Config) (*Drc, error) {
	if cfg.Bus == nil {
		return nil, errors.New("drc: Config.Bus is required")
	}
	if cfg.CacheUnits == 0 {
		cfg.CacheUnits = DefaultCacheUnits
	}

	c := cache.New(cfg.CacheUnits)
	tr := translate.New(c, emit.New(), cfg.Bus, cfg.Interpreter)
	tr.InterpFallback = cfg.InterpFallback

	return &Drc{Cache: c, tr: tr, cfg: cfg}, nil
}

// Close releases a Drc's resources. There is nothing to join or tear
// down (the DRC runs entirely on the caller's goroutine), so this only
// drops the cache's contents and logs the shutdown, mirroring the
// teacher's core.Stop without the worker-goroutine wait.
func (d *Drc) Close() {
	d.Cache.FlushAll()
	slog.Info("drc: closed")
}

// FlushAll drops every cached block in all three regions.
func (d *Drc) FlushAll() { d.Cache.FlushAll() }

// WCheckRAM notifies the cache of a guest write to shared ROM/DRAM
// space, invalidating any block it falls inside.
func (d *Drc) WCheckRAM(addr uint32) { d.Cache.WCheckRAM(addr) }

// WCheckDA notifies the cache of a guest write to on-chip data
// array/BIOS space for one CPU, invalidating any block it falls
// inside.
func (d *Drc) WCheckDA(addr uint32, slave bool) { d.Cache.WCheckDA(addr, slave) }

// Execute runs cpu for up to cycles guest cycles, translating and
// running cached blocks until the budget is exhausted, and returns the
// number of cycles actually consumed: cycles minus whatever unused
// budget remains (never negative), per the cycle-accounting invariant
// a single Execute call must honor.
//
// A register-cache eviction-with-nothing-to-evict panic (a translator
// bug, not a guest condition) is recovered here rather than left to
// crash the embedder; it is logged at Error and returned as err.
func (d *Drc) Execute(cpu *sh2.State, cycles int32) (consumed int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("drc: recovered from translator panic", "panic", r)
			err = fmt.Errorf("drc: %v", r)
		}
	}()

	cpu.SetCycleField(cycles)
	ctx := &emit.Ctx{State: cpu, Bus: d.cfg.Bus, Interp: d.cfg.Interpreter, IRQ: d.cfg.IRQ}

	d.pollIRQ(cpu)

	for cpu.CycleField() > 0 {
		region := cache.ClassifyPC(cpu.PC(), cpu.IsSlave)

		blk, _ := d.lookup(region, cpu.PC())
		if blk == nil {
			nblk, id, terr := d.tr.Translate(cpu, region, d.chainHead(region, cpu.PC()))
			if terr != nil {
				d.interpretOne(cpu)
				continue
			}
			blk = nblk
			_ = id
		}

		emit.Run(blk.Ops, ctx)
	}

	unused := cpu.CycleField()
	if unused < 0 {
		unused = 0
	}
	consumed = cycles - unused
	cpu.CyclesDone += int64(consumed)

	return consumed, nil
}

// lookup finds a previously translated block covering pc exactly: ROM
// blocks are found through the region's PC hash chain, master/slave
// internal blocks through the SMC bitmap's direct tail-bit index
// (region 0's bitmap only marks SMC extent, it has no hash entry of
// its own to walk).
func (d *Drc) lookup(region cache.RegionID, pc uint32) (*cache.Block, cache.BlockID) {
	if region == cache.RegionROM {
		head := d.Cache.HashHead(pc)
		return d.Cache.FindBlock(region, head, pc)
	}
	return d.Cache.FindBlockDirect(region, pc)
}

// chainHead returns the hash bucket head a freshly translated ROM
// block should chain behind, so an older block sharing pc's bucket
// isn't orphaned. Internal regions have no chain to preserve.
func (d *Drc) chainHead(region cache.RegionID, pc uint32) cache.BlockID {
	if region == cache.RegionROM {
		return d.Cache.HashHead(pc)
	}
	return 0
}

// interpretOne is the reject-and-interpret fallback taken when
// Translate refuses to start a block at the current PC: step exactly
// one guest opcode through the interpreter and charge it a single
// cycle, then let the dispatcher loop reclassify and retry from
// whatever PC the interpreter left behind. With no Interpreter
// configured this still charges a cycle, advancing PC past the
// rejected opcode so Execute cannot spin forever on it.
func (d *Drc) interpretOne(cpu *sh2.State) {
	pc := cpu.PC()
	if d.cfg.Interpreter != nil {
		op := d.cfg.Bus.Read16(pc)
		d.cfg.Interpreter.Step(cpu, op)
	} else {
		slog.Warn("drc: rejected PC with no interpreter configured, skipping", "pc", pc)
		cpu.SetPC(pc + 2)
	}
	cpu.AddCycleField(-1)
}

// pollIRQ is the dispatcher's own interrupt check, taken once per
// Execute call before any block runs; translated blocks poll again at
// end of op wherever LDC-to-SR, RTE or SLEEP can have unmasked a
// pending interrupt.
func (d *Drc) pollIRQ(cpu *sh2.State) {
	p := cpu.Pending
	if p.IntIRQ == 0 {
		return
	}
	mask := uint8((cpu.SR() & sh2.SRMaskI) >> 4)
	if p.Level > mask && d.cfg.IRQ != nil {
		d.cfg.IRQ.AcceptIRQ(cpu, p.Level, p.IntVector)
	}
}
