// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build darwin || linux || freebsd || dragonfly || openbsd || netbsd

package allocmap

import "syscall"

// alignedAlloc services a shim request with an anonymous private
// mapping. Mapped memory lives outside the Go heap, so the shim can
// never re-enter itself through the runtime allocator or the GC: the
// layering rule is enforced by the primitive, not by convention.
// Page alignment trivially satisfies the 64-byte contract.
//
// This package is compiled into instrumented standard library packages,
// so it must stay dependency-free; syscall, not x/sys.
func alignedAlloc(size int) []byte {
	n := size
	if n == 0 {
		// Zero-byte mappings are invalid. Map one byte so that
		// Malloc(0) returns a distinct, valid, zero-length region.
		n = 1
	}
	b, err := syscall.Mmap(-1, 0, n,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil
	}
	return b[:size]
}

func alignedFree(b []byte) {
	syscall.Munmap(b[:cap(b)])
}
