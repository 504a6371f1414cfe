// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !darwin && !linux && !freebsd && !dragonfly && !openbsd && !netbsd

package main

import "errors"

// No shared mapping support here; the alloc map stays in-process only.
type allocExport struct{}

func newAllocExport(name string) (*allocExport, error) {
	return nil, errors.New("alloc map export requires mmap")
}

func (e *allocExport) publish(tab []uintptr) {}

func (e *allocExport) close() {}
