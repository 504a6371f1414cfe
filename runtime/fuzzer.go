// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"
)

// Fuzzer holds all engine state: the corpus, both feedback maps
// (branch coverage and per-call-site allocation maxima), the work
// queues, and persistent storage.
type Fuzzer struct {
	corpusInputs   []Input
	corpusSigs     map[Sig]struct{}
	badInputs      map[Sig]struct{}
	suppressedSigs map[Sig]struct{}
	lits           [][]byte // string/int literals in testee
	maxCover       []byte
	maxAlloc       []uintptr // engine-side copy of allocmap.AllocTab
	fuzzFunc       func([]byte) int

	mutator *Mutator
	storage *Storage
	export  *allocExport

	triageQueue  []Input
	crasherQueue []NewCrasherArgs

	lastSync time.Time
	execs    uint64

	startTime     time.Time
	lastInput     time.Time
	coverFullness int
	allocFullness int     // alloc map buckets with a nonzero maximum
	peakAlloc     uintptr // largest single allocation observed so far

	// Written by runFuzzFunc, read by the hang watchdog.
	lastExec         time.Time
	currentCandidate []byte
}

type NewCrasherArgs struct {
	Data        []byte
	Error       []byte
	Suppression []byte
	Hanging     bool
}

func (f *Fuzzer) broadcastStats() {
	if time.Since(f.lastSync) < syncPeriod {
		return
	}
	f.lastSync = time.Now()
	corpus := len(f.storage.corpus)
	crashers := len(f.storage.crashers)
	uptime := time.Since(f.startTime).Truncate(time.Second)
	execsPerSec := float64(f.execs) * 1e9 / float64(time.Since(f.startTime))

	// log to stdout
	fmt.Printf("corpus: %v (%v ago), crashers: %v, execs: %v (%.0f/sec),"+
		" cover: %v, alloc: %v (peak %v), uptime: %v\n",
		corpus, time.Since(f.lastInput).Truncate(time.Second),
		crashers, f.execs, execsPerSec,
		f.coverFullness, f.allocFullness, f.peakAlloc,
		uptime,
	)
}
