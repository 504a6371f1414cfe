// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
)

// Sig is the identity of an input or a suppression.
type Sig [sha1.Size]byte

func hash(data []byte) Sig {
	return Sig(sha1.Sum(data))
}

// Storage holds the persistent workdir state: the seed corpus,
// crashers, and crash suppressions. Layout matches go-fuzz: one file
// per artifact named by its sha1, crashers accompanied by .quoted and
// .output descriptions.
type Storage struct {
	workdir string

	corpus     [][]byte
	corpusSigs map[Sig]struct{}

	crashers     map[Sig]struct{}
	suppressions map[Sig]struct{}

	watcher *corpusWatcher
}

func newStorage(workdir string) (*Storage, error) {
	s := &Storage{
		workdir:      workdir,
		corpusSigs:   make(map[Sig]struct{}),
		crashers:     make(map[Sig]struct{}),
		suppressions: make(map[Sig]struct{}),
	}
	for _, dir := range []string{s.corpusDir(), s.crashersDir(), s.suppressionsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	files, err := ioutil.ReadDir(s.corpusDir())
	if err != nil {
		return nil, err
	}
	for _, fi := range files {
		if fi.IsDir() {
			continue
		}
		data, err := ioutil.ReadFile(filepath.Join(s.corpusDir(), fi.Name()))
		if err != nil {
			return nil, err
		}
		s.noteCorpus(data)
	}

	// Seeds dropped into the corpus dir while we run are picked up
	// live; a failure to watch only loses that convenience.
	w, err := watchCorpus(s.corpusDir())
	if err != nil {
		log.Printf("not watching corpus dir: %v", err)
	} else {
		s.watcher = w
	}
	return s, nil
}

func (s *Storage) corpusDir() string       { return filepath.Join(s.workdir, "corpus") }
func (s *Storage) crashersDir() string     { return filepath.Join(s.workdir, "crashers") }
func (s *Storage) suppressionsDir() string { return filepath.Join(s.workdir, "suppressions") }

// noteCorpus registers data as a known corpus entry without touching
// disk. Reports false for duplicates.
func (s *Storage) noteCorpus(data []byte) bool {
	sig := hash(data)
	if _, ok := s.corpusSigs[sig]; ok {
		return false
	}
	s.corpusSigs[sig] = struct{}{}
	s.corpus = append(s.corpus, data)
	return true
}

// addInput persists a new corpus input.
func (s *Storage) addInput(data []byte) {
	if !s.noteCorpus(makeCopy(data)) {
		return
	}
	s.writeFile(filepath.Join(s.corpusDir(), fmt.Sprintf("%x", hash(data))), data)
}

// addCrasher persists a crashing input together with a quoted
// reproducer and the panic output. Unless dup is set, only the first
// crasher per suppression is kept.
func (s *Storage) addCrasher(data, output, supp []byte, dup bool) {
	if !dup {
		sig := hash(supp)
		if _, ok := s.suppressions[sig]; ok {
			return // Already have this.
		}
		s.suppressions[sig] = struct{}{}
		s.writeFile(filepath.Join(s.suppressionsDir(), fmt.Sprintf("%x", sig)), supp)
	}
	sig := hash(data)
	if _, ok := s.crashers[sig]; ok {
		return // Already have this.
	}
	s.crashers[sig] = struct{}{}

	// Prepare quoted version of input to simplify creation of standalone reproducers.
	var buf bytes.Buffer
	for i := 0; i < len(data); i += 20 {
		e := i + 20
		if e > len(data) {
			e = len(data)
		}
		fmt.Fprintf(&buf, "\t%q", data[i:e])
		if e != len(data) {
			fmt.Fprintf(&buf, " +")
		}
		fmt.Fprintf(&buf, "\n")
	}

	name := filepath.Join(s.crashersDir(), fmt.Sprintf("%x", sig))
	s.writeFile(name, data)
	s.writeFile(name+".quoted", buf.Bytes())
	s.writeFile(name+".output", output)
}

// pollNewInputs returns corpus entries added to the workdir by someone
// else since the last poll. Our own addInput writes are filtered out by
// signature.
func (s *Storage) pollNewInputs() [][]byte {
	if s.watcher == nil {
		return nil
	}
	var res [][]byte
	for _, name := range s.watcher.poll() {
		data, err := ioutil.ReadFile(name)
		if err != nil {
			continue // partially written or already gone
		}
		if s.noteCorpus(data) {
			res = append(res, data)
		}
	}
	return res
}

func (s *Storage) close() {
	if s.watcher != nil {
		s.watcher.close()
	}
}

func (s *Storage) writeFile(name string, data []byte) {
	if err := ioutil.WriteFile(name, data, 0644); err != nil {
		log.Printf("failed to write %v: %v", name, err)
	}
}
