package cache

import "testing"

func TestClassifyPC(t *testing.T) {
	tests := []struct {
		pc      uint32
		isSlave bool
		want    RegionID
	}{
		{0x06000100, false, RegionROM},
		{0x00000200, false, RegionMasterInternal},
		{0x00000100, false, RegionMasterInternal},
		{0x00000100, true, RegionSlaveInternal},
		{0xc0000100, false, RegionMasterInternal},
		{0xc0000100, true, RegionSlaveInternal},
	}
	for _, tc := range tests {
		if got := ClassifyPC(tc.pc, tc.isSlave); got != tc.want {
			t.Errorf("ClassifyPC(%#x, %v) = %v, want %v", tc.pc, tc.isSlave, got, tc.want)
		}
	}
}

func TestAddFindBlockHashChain(t *testing.T) {
	c := New(100000)
	b1, id1, ok := c.AddBlock(RegionROM, 0x1000)
	if !ok {
		t.Fatal("AddBlock failed")
	}
	b1.EndAddr = 0x1010
	c.InsertHash(0x1000, id1)

	b2, id2, ok := c.AddBlock(RegionROM, 0x2000)
	if !ok {
		t.Fatal("AddBlock failed")
	}
	b2.EndAddr = 0x2010
	c.InsertHash(0x2000, id2)

	if found, fid := c.FindBlock(RegionROM, c.HashHead(0x1000), 0x1000); found == nil || fid != id1 {
		t.Fatalf("FindBlock(0x1000) missed existing block")
	}
	if found, _ := c.FindBlock(RegionROM, c.HashHead(0x1000), 0x9999); found != nil {
		t.Fatalf("FindBlock(0x9999) unexpectedly hit")
	}
}

func TestTwoBlocksSameBucketBothDiscoverable(t *testing.T) {
	c := New(100000)
	// MaxHashEntries colliding addresses: same low bits modulo the mask.
	addrA := uint32(0x1000)
	addrB := addrA + MaxHashEntries*4

	ba, ida, _ := c.AddBlock(RegionROM, addrA)
	ba.EndAddr = addrA + 2
	c.InsertHash(addrA, ida)

	bb, idb, _ := c.AddBlock(RegionROM, addrB)
	bb.EndAddr = addrB + 2
	c.InsertHash(addrB, idb)

	head := c.HashHead(addrA)
	if found, _ := c.FindBlock(RegionROM, head, addrA); found == nil {
		t.Fatalf("addrA not discoverable through shared bucket")
	}
	if found, _ := c.FindBlock(RegionROM, head, addrB); found == nil {
		t.Fatalf("addrB not discoverable through shared bucket")
	}
}

func TestFlushClearsBlocksAndHash(t *testing.T) {
	c := New(100000)
	_, id, _ := c.AddBlock(RegionROM, 0x4000)
	c.InsertHash(0x4000, id)
	c.Flush(RegionROM)

	if head := c.HashHead(0x4000); head != 0 {
		t.Fatalf("hash table not cleared by flush: head = %d", head)
	}
	if _, _, ok := c.AddBlock(RegionROM, 0x4000); !ok {
		t.Fatalf("AddBlock failed right after flush")
	} else if r := c.Regions[RegionROM]; r.descCount != 1 {
		t.Fatalf("descriptor count not reset by flush: %d", r.descCount)
	}
}

func TestDescriptorExhaustion(t *testing.T) {
	c := New(100000)
	capN := descriptorCaps[RegionMasterInternal]
	for i := 0; i < capN; i++ {
		if _, _, ok := c.AddBlock(RegionMasterInternal, uint32(i*2)); !ok {
			t.Fatalf("AddBlock failed before reaching cap at i=%d", i)
		}
	}
	if _, _, ok := c.AddBlock(RegionMasterInternal, 0xffff); ok {
		t.Fatalf("AddBlock succeeded past descriptor cap")
	}
}

func TestSMCInvalidatesCoveringBlock(t *testing.T) {
	c := New(100000)
	addr := uint32(0x06001000)
	blk, id, ok := c.AddBlock(RegionROM, addr)
	if !ok {
		t.Fatal("AddBlock failed")
	}
	blk.EndAddr = addr + 8
	c.MarkSMC(RegionROM, id, addr, addr+8)

	c.WCheckRAM(addr + 2)

	if blk.Addr != 0 || blk.EndAddr != 0 {
		t.Fatalf("block not invalidated by WCheckRAM: addr=%#x end=%#x", blk.Addr, blk.EndAddr)
	}
}

func TestSMCLeavesNonOverlappingBlockAlone(t *testing.T) {
	c := New(100000)
	addr := uint32(0x06002000)
	blk, id, _ := c.AddBlock(RegionROM, addr)
	blk.EndAddr = addr + 8
	c.MarkSMC(RegionROM, id, addr, addr+8)

	c.WCheckRAM(addr + 1000)

	if blk.Addr != addr {
		t.Fatalf("unrelated block was invalidated: addr=%#x", blk.Addr)
	}
}

func TestSMCOverlayRecursion(t *testing.T) {
	c := New(100000)
	addr := uint32(0x06003000)

	parent, parentID, _ := c.AddBlock(RegionROM, addr)
	parent.EndAddr = addr + 16
	c.MarkSMC(RegionROM, parentID, addr, addr+16)

	// A second, shorter block starting partway through the parent's
	// range overlays its tail: marking stops at the parent's
	// already-nonzero slots, so only the prefix up to there is
	// claimed by the child.
	child, childID, _ := c.AddBlock(RegionROM, addr+8)
	child.EndAddr = addr + 16
	c.MarkSMC(RegionROM, childID, addr+8, addr+16)

	c.WCheckRAM(addr + 8)

	if child.Addr != 0 {
		t.Fatalf("child block not killed")
	}
	if parent.Addr != 0 {
		t.Fatalf("parent overlay not killed transitively")
	}
}
