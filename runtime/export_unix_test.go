// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build darwin || linux || freebsd || dragonfly || openbsd || netbsd

package main

import (
	"encoding/binary"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/allocfuzz/allocmap"
)

func TestAllocExport(t *testing.T) {
	name := filepath.Join(t.TempDir(), "allocmap.comm")
	e, err := newAllocExport(name)
	require.NoError(t, err)
	defer e.close()

	tab := make([]uintptr, allocmap.MapSize)
	tab[5] = 1234
	tab[allocmap.MapSize-1] = 1 << 20
	e.publish(tab)

	data, err := ioutil.ReadFile(name)
	require.NoError(t, err)
	require.Len(t, data, allocmap.MapSize*exportEntrySize)

	require.EqualValues(t, 1234, binary.LittleEndian.Uint64(data[5*exportEntrySize:]))
	require.EqualValues(t, 1<<20, binary.LittleEndian.Uint64(data[(allocmap.MapSize-1)*exportEntrySize:]))
	require.EqualValues(t, 0, binary.LittleEndian.Uint64(data[0:]))
}

func TestAllocExportNilReceiver(t *testing.T) {
	// Export is optional; a nil export must be safe to publish to.
	var e *allocExport
	e.publish(make([]uintptr, allocmap.MapSize))
	e.close()
}
