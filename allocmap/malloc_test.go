// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package allocmap

import (
	"sync"
	"testing"
	"unsafe"
)

func TestMallocAlignment(t *testing.T) {
	for _, size := range []int{1, 63, 64, 65, 4096, 100000} {
		b := Malloc(size)
		if b == nil {
			t.Fatalf("Malloc(%v) = nil", size)
		}
		if len(b) != size {
			t.Fatalf("Malloc(%v): len = %v", size, len(b))
		}
		if addr := uintptr(unsafe.Pointer(&b[0])); addr%Alignment != 0 {
			t.Fatalf("Malloc(%v): base %#x not %v-byte aligned", size, addr, Alignment)
		}
		Free(b)
	}
}

func TestMallocZero(t *testing.T) {
	b := Malloc(0)
	if b == nil {
		t.Fatal("Malloc(0) = nil")
	}
	if len(b) != 0 {
		t.Fatalf("Malloc(0): len = %v", len(b))
	}
	Free(b)
}

func TestMallocNegative(t *testing.T) {
	if b := Malloc(-1); b != nil {
		t.Fatalf("Malloc(-1) = %v, want nil", b)
	}
}

func TestMallocRecordsSite(t *testing.T) {
	Reset()
	b := Malloc(777)
	Free(b)
	if !tabContains(777) {
		t.Fatal("Malloc did not record its size")
	}
}

func TestCalloc(t *testing.T) {
	Reset()
	b := Calloc(10, 4)
	if len(b) != 40 {
		t.Fatalf("Calloc(10, 4): len = %v, want 40", len(b))
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("Calloc memory not zeroed at %v: %v", i, v)
		}
	}
	if addr := uintptr(unsafe.Pointer(&b[0])); addr%Alignment != 0 {
		t.Fatalf("Calloc base %#x not aligned", addr)
	}
	// The recorded size is the byte total, not the element count.
	if !tabContains(40) {
		t.Fatal("Calloc did not record nmemb*size")
	}
	Free(b)
}

func TestCallocNegativeProduct(t *testing.T) {
	if b := Calloc(-1, 8); b != nil {
		t.Fatalf("Calloc(-1, 8) = %v, want nil", b)
	}
}

func TestFreeNil(t *testing.T) {
	Free(nil) // must not panic
}

// mallocAt gives every goroutine in TestConcurrentMalloc the same
// allocation call site. Must not be inlined or the copies would get
// distinct program counters.
//
//go:noinline
func mallocAt(size int) []byte {
	return Malloc(size)
}

func TestConcurrentMalloc(t *testing.T) {
	Reset()
	const maxSize = 4096

	// Seed the site's bucket with the maximum up front so the
	// concurrent phase only reads it. Same-bucket write races are
	// lossy by design and deliberately not exercised here.
	Free(mallocAt(maxSize))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				size := 64 + g
				b := mallocAt(size)
				if b == nil {
					t.Errorf("Malloc(%v) = nil", size)
					return
				}
				if len(b) != size {
					t.Errorf("Malloc(%v): len = %v", size, len(b))
				}
				if addr := uintptr(unsafe.Pointer(&b[0])); addr%Alignment != 0 {
					t.Errorf("Malloc(%v): base %#x not aligned", size, addr)
				}
				Free(b)
			}
		}(g)
	}
	wg.Wait()

	// The bucket still holds exactly the seeded maximum: never torn,
	// never lowered by the smaller concurrent requests.
	if !tabContains(maxSize) {
		t.Fatal("bucket lost the recorded maximum under concurrency")
	}
	for _, v := range AllocTab {
		if v > maxSize {
			t.Fatalf("bucket holds %v, larger than any request", v)
		}
	}
}
