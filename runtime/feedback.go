// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"log"

	"github.com/bradleyjkemp/allocfuzz/allocmap"
	. "github.com/bradleyjkemp/allocfuzz/coverage"
)

func makeCopy(data []byte) []byte {
	return append([]byte{}, data...)
}

// compareCover reports whether cur has coverage not present in base.
func compareCover(base, cur []byte) bool {
	if len(base) != CoverSize || len(cur) != CoverSize {
		log.Fatalf("bad cover table size (%v, %v)", len(base), len(cur))
	}
	for i, v := range base {
		if cur[i] > v {
			return true
		}
	}
	return false
}

func findNewCover(old, new []byte) []byte {
	newCover := make([]byte, len(new))
	for loc := range new {
		if new[loc] > old[loc] {
			newCover[loc] = new[loc]
		}
	}
	return newCover
}

func updateMaxCover(base, cur []byte) int {
	if len(base) != CoverSize || len(cur) != CoverSize {
		log.Fatalf("bad cover table size (%v, %v)", len(base), len(cur))
	}
	cnt := 0
	for i, x := range cur {
		v := base[i]
		if v != 0 || x > 0 {
			cnt++
		}
		if v < x {
			base[i] = x
		}
	}
	return cnt
}

// compareAllocMap reports whether any call site in cur reached a larger
// allocation than recorded in base. This is the alloc-map equivalent of
// compareCover: an input that raises a bucket maximum is interesting
// even when it adds no branch coverage.
func compareAllocMap(base, cur []uintptr) bool {
	if len(base) != allocmap.MapSize || len(cur) != allocmap.MapSize {
		log.Fatalf("bad alloc map size (%v, %v)", len(base), len(cur))
	}
	for i, v := range base {
		if cur[i] > v {
			return true
		}
	}
	return false
}

// updateAllocMap folds cur into base and returns the number of buckets
// with a nonzero maximum and the single largest maximum in the map.
func updateAllocMap(base, cur []uintptr) (cnt int, peak uintptr) {
	if len(base) != allocmap.MapSize || len(cur) != allocmap.MapSize {
		log.Fatalf("bad alloc map size (%v, %v)", len(base), len(cur))
	}
	for i, x := range cur {
		v := base[i]
		if v < x {
			base[i] = x
			v = x
		}
		if v != 0 {
			cnt++
		}
		if v > peak {
			peak = v
		}
	}
	return cnt, peak
}

// allocMapGrew reports whether the live allocation table holds a
// maximum not yet folded into the engine's copy. Unlike syncAllocMap it
// does not fold, so a queued input still looks novel when triage gets
// to it.
func (f *Fuzzer) allocMapGrew() bool {
	var cur [allocmap.MapSize]uintptr
	allocmap.Snapshot(&cur)
	return compareAllocMap(f.maxAlloc, cur[:])
}

// syncAllocMap pulls the live allocation table into the engine's copy.
// It reports whether anything grew since the last sync, i.e. whether
// the executions since then pushed some call site to a new maximum.
// On growth the exported mapping is refreshed for external consumers.
func (f *Fuzzer) syncAllocMap() bool {
	var cur [allocmap.MapSize]uintptr
	allocmap.Snapshot(&cur)
	if !compareAllocMap(f.maxAlloc, cur[:]) {
		return false
	}
	f.allocFullness, f.peakAlloc = updateAllocMap(f.maxAlloc, cur[:])
	f.export.publish(f.maxAlloc)
	return true
}
