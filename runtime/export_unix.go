// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build darwin || linux || freebsd || dragonfly || openbsd || netbsd

package main

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bradleyjkemp/allocfuzz/allocmap"
)

// allocExport mirrors the allocation feedback map into a file-backed
// shared mapping in the workdir, so out-of-process consumers (e.g. a
// monitoring tool deciding which targets deserve more fuzzing time)
// can read the table without attaching to this process. Values are
// fixed-width little-endian uint64, one per bucket.
type allocExport struct {
	f   *os.File
	mem []byte
}

const exportEntrySize = 8

func newAllocExport(name string) (*allocExport, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	size := allocmap.MapSize * exportEntrySize
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &allocExport{f: f, mem: mem}, nil
}

// publish writes the current table into the mapping. Readers get a
// consistent-enough view: individual entries are written whole and
// only ever grow.
func (e *allocExport) publish(tab []uintptr) {
	if e == nil {
		return
	}
	for i, v := range tab {
		binary.LittleEndian.PutUint64(e.mem[i*exportEntrySize:], uint64(v))
	}
	unix.Msync(e.mem, unix.MS_ASYNC)
}

func (e *allocExport) close() {
	if e == nil {
		return
	}
	unix.Munmap(e.mem)
	e.f.Close()
}
