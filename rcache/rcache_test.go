package rcache

import (
	"testing"

	"github.com/sh2drc/drc32x/emit"
	"github.com/sh2drc/drc32x/sh2"
)

func TestGetRegLoadsOnFirstAccess(t *testing.T) {
	e := emit.New()
	c := New(e, 4, [sh2.NumRegs]int16{})
	ctx := &emit.Ctx{State: &sh2.State{}}
	ctx.State.Regs[sh2.R2] = 42

	hr := c.GetReg(sh2.R2, Read)
	emit.Run(c.Ops, ctx)

	if ctx.Host[hr] != 42 {
		t.Fatalf("GetReg did not load R2: got %#x", ctx.Host[hr])
	}
}

func TestGetRegCacheHitSkipsSecondLoad(t *testing.T) {
	e := emit.New()
	c := New(e, 4, [sh2.NumRegs]int16{})

	hr1 := c.GetReg(sh2.R2, Read)
	n := len(c.Ops)
	hr2 := c.GetReg(sh2.R2, Read)

	if hr1 != hr2 {
		t.Fatalf("cache hit returned a different register: %d vs %d", hr1, hr2)
	}
	if len(c.Ops) != n {
		t.Fatalf("cache hit re-emitted a context load")
	}
}

func TestGetRegWriteModeSkipsContextRead(t *testing.T) {
	e := emit.New()
	c := New(e, 4, [sh2.NumRegs]int16{})

	c.GetReg(sh2.R3, Write)
	if len(c.Ops) != 0 {
		t.Fatalf("write-mode GetReg emitted %d ops, want 0", len(c.Ops))
	}
}

func TestGetRegDirtyEvictionWritesBack(t *testing.T) {
	e := emit.New()
	c := New(e, 1, [sh2.NumRegs]int16{})

	hr0 := c.GetReg(sh2.R0, Write)
	c.Ops = append(c.Ops, e.MovImm(hr0, 0x55))
	hr1 := c.GetReg(sh2.R1, Read)

	ctx := &emit.Ctx{State: &sh2.State{}}
	ctx.State.Regs[sh2.R1] = 99
	emit.Run(c.Ops, ctx)

	if ctx.State.Regs[sh2.R0] != 0x55 {
		t.Fatalf("dirty eviction did not write back: R0 = %#x", ctx.State.Regs[sh2.R0])
	}
	if ctx.Host[hr1] != 99 {
		t.Fatalf("new slot not loaded after eviction: got %#x", ctx.Host[hr1])
	}
}

func TestEvictTieBreakHighestIndex(t *testing.T) {
	e := emit.New()
	c := New(e, 3, [sh2.NumRegs]int16{})
	c.slots[0] = slot{reg: 0, kind: cached, stamp: 5, val: sh2.R0}
	c.slots[1] = slot{reg: 1, kind: cached, stamp: 5, val: sh2.R1}
	c.slots[2] = slot{reg: 2, kind: free}

	if idx := c.evict(); idx != 1 {
		t.Fatalf("evict() = %d, want 1 (highest index on tied stamp)", idx)
	}
}

func TestGetTmpAndFreeTmp(t *testing.T) {
	e := emit.New()
	c := New(e, 2, [sh2.NumRegs]int16{})

	hr := c.GetTmp()
	c.FreeTmp(hr)

	hr2 := c.GetTmp()
	if hr2 != hr {
		t.Fatalf("freed temp slot not reused: got %d, want %d", hr2, hr)
	}
}

func TestFreeTmpPanicsOnNonTemp(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("FreeTmp on a non-temp slot did not panic")
		}
	}()
	e := emit.New()
	c := New(e, 2, [sh2.NumRegs]int16{})
	c.GetReg(sh2.R0, Write)
	c.FreeTmp(0)
}

func TestStaticMapBypassesCache(t *testing.T) {
	e := emit.New()
	var static [sh2.NumRegs]int16
	static[sh2.R0] = 1 // host slot 0

	c := New(e, 4, static)
	hr := c.GetReg(sh2.R0, Read)

	if hr != 0 {
		t.Fatalf("static-mapped GetReg returned slot %d, want 0", hr)
	}
	if len(c.Ops) != 0 {
		t.Fatalf("static-mapped GetReg emitted ops, want none")
	}
}

func TestCleanWritesBackDirtyOnly(t *testing.T) {
	e := emit.New()
	c := New(e, 2, [sh2.NumRegs]int16{})

	c.GetReg(sh2.R0, Write)
	c.GetReg(sh2.R1, Read)
	n := len(c.Ops)

	c.Clean()
	if len(c.Ops) != n+1 {
		t.Fatalf("Clean emitted %d ops, want exactly 1 writeback", len(c.Ops)-n)
	}

	n2 := len(c.Ops)
	c.Clean()
	if len(c.Ops) != n2 {
		t.Fatalf("second Clean re-emitted a writeback for an already-clean slot")
	}
}

func TestInvalidateFreesWithoutWriteback(t *testing.T) {
	e := emit.New()
	c := New(e, 2, [sh2.NumRegs]int16{})

	c.GetReg(sh2.R0, Write)
	n := len(c.Ops)
	c.Invalidate()

	if len(c.Ops) != n {
		t.Fatalf("Invalidate emitted ops, want none")
	}
	if c.slots[0].kind != free || c.slots[1].kind != free {
		t.Fatalf("Invalidate left a slot non-free")
	}
}

func TestGetRegArgReusesCachedSource(t *testing.T) {
	e := emit.New()
	c := New(e, 3, [sh2.NumRegs]int16{})

	c.GetReg(sh2.R5, Read)
	dst := c.GetRegArg(0, sh2.R5)
	if dst != ArgRegs[0] {
		t.Fatalf("GetRegArg returned %d, want arg slot %d", dst, ArgRegs[0])
	}

	ctx := &emit.Ctx{State: &sh2.State{}}
	ctx.State.Regs[sh2.R5] = 77
	emit.Run(c.Ops, ctx)

	if ctx.Host[dst] != 77 {
		t.Fatalf("GetRegArg did not move cached value into arg slot: got %#x", ctx.Host[dst])
	}
}

func TestGetTmpArgClaimsArgSlot(t *testing.T) {
	e := emit.New()
	c := New(e, 3, [sh2.NumRegs]int16{})

	hr := c.GetTmpArg(1)
	if hr != ArgRegs[1] {
		t.Fatalf("GetTmpArg returned %d, want %d", hr, ArgRegs[1])
	}
	for i := range c.slots {
		if c.slots[i].reg == hr && c.slots[i].kind != temp {
			t.Fatalf("GetTmpArg did not mark the slot as temp")
		}
	}
}
