// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package allocmap records, per allocation call site, the largest single
// allocation size ever requested. The table is a coverage-like feedback
// signal: inputs that push some call site to allocate more than any
// input before them are interesting to the fuzzer even when they add no
// new branch coverage.
package allocmap

import "runtime"

const (
	// MapSize is the number of buckets in AllocTab. Must be a power of two.
	MapSize = 16 << 10

	// Alignment of every region returned by Malloc and Calloc.
	Alignment = 64
)

// AllocTab holds the per-call-site maximum allocation sizes.
// It is initialized to a new array so that instrumentation executed
// during process initialization has somewhere to write to.
// Values only ever grow; the table is never torn down.
//
// Updates are plain (non-atomic) read-modify-writes. Concurrent updates
// to one bucket can lose an increase, never store a torn value. The
// signal is best-effort by design; synchronization here would slow
// every allocation in the process.
var AllocTab = new([MapSize]uintptr)

// BucketOf maps a call-site PC to its bucket in AllocTab.
// Return addresses share low-bit alignment patterns, so the PC is
// mixed ((pc>>4)^(pc<<8)) before masking. Collisions are accepted.
func BucketOf(pc uintptr) int {
	k := (pc >> 4) ^ (pc << 8)
	return int(k & (MapSize - 1))
}

// NoteAt records an allocation of size bytes at the call site pc.
func NoteAt(pc uintptr, size int) {
	if size < 0 {
		return
	}
	k := BucketOf(pc)
	if uintptr(size) > AllocTab[k] {
		AllocTab[k] = uintptr(size)
	}
}

// Note records an allocation of size bytes at the caller's call site.
//
//go:noinline
func Note(size int) {
	NoteAt(callSite(), size)
}

// SliceLen records a slice allocation of length*elemSize bytes at the
// caller's call site and returns length unchanged. The build tool
// splices this into make() length expressions, so it must be an
// identity on its first argument.
//
//go:noinline
func SliceLen(length, elemSize int) int {
	// Overflow of the product is not checked, same as the size
	// computation in Calloc.
	NoteAt(callSite(), length*elemSize)
	return length
}

// CallSiteID returns the address at which execution resumes in the
// immediate caller. This is the call-site identity everything else in
// this package hashes; exposed so hand-instrumented code can feed
// NoteAt directly.
//
//go:noinline
func CallSiteID() uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// callSite is CallSiteID for the exported entry points of this package:
// one more frame to skip (callSite -> entry point -> call site).
// Every caller must be marked go:noinline so the frame count holds.
func callSite() uintptr {
	var pcs [1]uintptr
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// Snapshot copies the current table into dst.
func Snapshot(dst *[MapSize]uintptr) {
	*dst = *AllocTab
}

// Reset zeroes the table. Only the fuzzer runtime calls this, at
// startup; the shim itself never resets.
func Reset() {
	*AllocTab = [MapSize]uintptr{}
}
