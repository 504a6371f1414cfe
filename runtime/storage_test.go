// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStorageRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s, err := newStorage(dir)
	require.NoError(t, err)
	defer s.close()

	s.addInput([]byte("hello"))
	s.addInput([]byte("hello")) // duplicate
	s.addInput([]byte("world"))
	require.Len(t, s.corpus, 2)

	name := filepath.Join(dir, "corpus", fmt.Sprintf("%x", hash([]byte("hello"))))
	data, err := ioutil.ReadFile(name)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	// A fresh Storage over the same workdir sees the persisted corpus.
	s2, err := newStorage(dir)
	require.NoError(t, err)
	defer s2.close()
	require.Len(t, s2.corpus, 2)
}

func TestStorageCrashers(t *testing.T) {
	dir := t.TempDir()
	s, err := newStorage(dir)
	require.NoError(t, err)
	defer s.close()

	data := []byte("crash me")
	supp := []byte("suppression-a")
	s.addCrasher(data, []byte("panic: boom"), supp, false)

	base := filepath.Join(dir, "crashers", fmt.Sprintf("%x", hash(data)))
	for _, name := range []string{base, base + ".quoted", base + ".output"} {
		_, err := os.Stat(name)
		require.NoError(t, err, name)
	}

	// Same suppression: second crasher dropped unless dup collection is on.
	other := []byte("different input, same bug")
	s.addCrasher(other, []byte("panic: boom"), supp, false)
	_, err = os.Stat(filepath.Join(dir, "crashers", fmt.Sprintf("%x", hash(other))))
	require.True(t, os.IsNotExist(err))

	s.addCrasher(other, []byte("panic: boom"), supp, true)
	_, err = os.Stat(filepath.Join(dir, "crashers", fmt.Sprintf("%x", hash(other))))
	require.NoError(t, err)
}

func TestStoragePollNewInputs(t *testing.T) {
	dir := t.TempDir()
	s, err := newStorage(dir)
	require.NoError(t, err)
	defer s.close()
	if s.watcher == nil {
		t.Skip("corpus watcher unavailable")
	}

	// Simulate an external process dropping a seed into the corpus dir.
	seed := []byte("external seed")
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "corpus", "seed1"), seed, 0644))

	var got [][]byte
	require.Eventually(t, func() bool {
		got = append(got, s.pollNewInputs()...)
		return len(got) > 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, seed, got[0])

	// Our own writes are filtered out by signature.
	s.addInput([]byte("internal"))
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, s.pollNewInputs())
}
