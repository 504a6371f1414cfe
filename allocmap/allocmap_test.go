// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package allocmap

import (
	"sync"
	"testing"
)

func tabContains(v uintptr) bool {
	for _, x := range AllocTab {
		if x == v {
			return true
		}
	}
	return false
}

func TestNoteAtKeepsMaximum(t *testing.T) {
	Reset()
	pc := uintptr(0x40a2f0)
	k := BucketOf(pc)

	NoteAt(pc, 100)
	if AllocTab[k] != 100 {
		t.Fatalf("bucket = %v, want 100", AllocTab[k])
	}
	NoteAt(pc, 50)
	if AllocTab[k] != 100 {
		t.Fatalf("smaller allocation overwrote bucket: %v", AllocTab[k])
	}
	NoteAt(pc, 200)
	if AllocTab[k] != 200 {
		t.Fatalf("bucket = %v, want 200", AllocTab[k])
	}
	NoteAt(pc, -1)
	if AllocTab[k] != 200 {
		t.Fatalf("negative size changed bucket: %v", AllocTab[k])
	}
}

func TestBucketOfInRange(t *testing.T) {
	pcs := []uintptr{0, 1, 0x400000, 0x7fffffffffff, ^uintptr(0)}
	for _, pc := range pcs {
		k := BucketOf(pc)
		if k < 0 || k >= MapSize {
			t.Fatalf("BucketOf(%#x) = %v, out of range", pc, k)
		}
	}
}

func TestBucketIndependence(t *testing.T) {
	Reset()
	// Two sites in different buckets must not interfere.
	pc1, pc2 := uintptr(0x1000), uintptr(0x2000)
	if BucketOf(pc1) == BucketOf(pc2) {
		t.Skip("chosen pcs collide")
	}
	NoteAt(pc1, 10)
	NoteAt(pc2, 1000)
	if AllocTab[BucketOf(pc1)] != 10 {
		t.Fatalf("bucket 1 = %v, want 10", AllocTab[BucketOf(pc1)])
	}
	if AllocTab[BucketOf(pc2)] != 1000 {
		t.Fatalf("bucket 2 = %v, want 1000", AllocTab[BucketOf(pc2)])
	}
}

func TestNoteRecordsCaller(t *testing.T) {
	Reset()
	Note(12345)
	if !tabContains(12345) {
		t.Fatal("Note did not record the allocation")
	}
}

func TestSliceLenIsIdentity(t *testing.T) {
	Reset()
	if got := SliceLen(7, 8); got != 7 {
		t.Fatalf("SliceLen(7, 8) = %v, want 7", got)
	}
	if !tabContains(56) {
		t.Fatal("SliceLen did not record length*elemSize")
	}
	if got := SliceLen(0, 8); got != 0 {
		t.Fatalf("SliceLen(0, 8) = %v, want 0", got)
	}
}

func TestCallSiteID(t *testing.T) {
	pc1 := CallSiteID()
	pc2 := CallSiteID()
	if pc1 == 0 || pc2 == 0 {
		t.Fatal("CallSiteID returned 0")
	}
	if pc1 == pc2 {
		t.Fatal("distinct call sites produced the same id")
	}
}

func TestSnapshotAndReset(t *testing.T) {
	Reset()
	NoteAt(0x5000, 64)

	var snap [MapSize]uintptr
	Snapshot(&snap)
	if snap[BucketOf(0x5000)] != 64 {
		t.Fatal("snapshot missing recorded value")
	}

	// Snapshot is a copy, not a view.
	NoteAt(0x5000, 128)
	if snap[BucketOf(0x5000)] != 64 {
		t.Fatal("snapshot changed after NoteAt")
	}

	Reset()
	for i, v := range AllocTab {
		if v != 0 {
			t.Fatalf("bucket %v = %v after Reset", i, v)
		}
	}
}

func TestConcurrentNotes(t *testing.T) {
	Reset()
	// Writers on distinct buckets never interfere with each other.
	// Same-bucket concurrency is deliberately unsynchronized and is not
	// exercised here.
	type site struct {
		pc   uintptr
		size int
	}
	var sites []site
	seen := map[int]bool{}
	for pc := uintptr(0x1000); len(sites) < 16; pc += 0x10 {
		k := BucketOf(pc)
		if seen[k] {
			continue
		}
		seen[k] = true
		sites = append(sites, site{pc, 100 + len(sites)})
	}

	var wg sync.WaitGroup
	for _, s := range sites {
		wg.Add(1)
		go func(s site) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				NoteAt(s.pc, s.size-1)
				NoteAt(s.pc, s.size)
			}
		}(s)
	}
	wg.Wait()

	for _, s := range sites {
		if got := AllocTab[BucketOf(s.pc)]; got != uintptr(s.size) {
			t.Fatalf("bucket for pc %#x = %v, want %v", s.pc, got, s.size)
		}
	}
}
