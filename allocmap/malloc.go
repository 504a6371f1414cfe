// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package allocmap

// Malloc is the interposed allocation entry point. It records size
// against the caller's bucket and services the request through the
// non-recursive aligned allocator. The returned region holds at least
// size bytes and its base address is a multiple of Alignment.
//
// Exhaustion is reported as a nil slice; the failure path performs no
// allocation of its own. To the caller a failure is indistinguishable
// from ordinary allocator exhaustion.
//
//go:noinline
func Malloc(size int) []byte {
	NoteAt(callSite(), size)
	if size < 0 {
		return nil
	}
	return alignedAlloc(size)
}

// Calloc is the interposed array allocation entry point: nmemb elements
// of size bytes each, zero-filled. The effective byte size is
// nmemb*size; overflow of the product is not validated, matching the
// classic calloc interposer this descends from.
//
//go:noinline
func Calloc(nmemb, size int) []byte {
	size *= nmemb
	NoteAt(callSite(), size)
	if size < 0 {
		return nil
	}
	b := alignedAlloc(size)
	if b == nil {
		return nil
	}
	// Fresh mappings are already zero, but the portable allocator may
	// hand back recycled heap memory. Clear unconditionally.
	for i := range b {
		b[i] = 0
	}
	return b
}

// Free releases a region obtained from Malloc or Calloc. Freeing nil is
// a no-op. Regions must not be used after Free.
func Free(b []byte) {
	if b == nil {
		return
	}
	alignedFree(b)
}
