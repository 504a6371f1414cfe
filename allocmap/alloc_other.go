// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !darwin && !linux && !freebsd && !dragonfly && !openbsd && !netbsd

package allocmap

import "unsafe"

// alignedAlloc on platforms without anonymous mmap: over-allocate from
// the Go heap and slice at the next 64-byte boundary. The Go runtime
// allocator is not interposed, so the non-recursion requirement still
// holds; alignment and nil-on-failure match the mmap implementation.
func alignedAlloc(size int) []byte {
	buf := make([]byte, size+Alignment)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	shift := int((Alignment - addr&(Alignment-1)) & (Alignment - 1))
	return buf[shift : shift+size : shift+size]
}

// alignedFree is a no-op here; the region is garbage collected.
func alignedFree(b []byte) {}
