// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime/debug"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/bradleyjkemp/allocfuzz/allocmap"
	. "github.com/bradleyjkemp/allocfuzz/coverage"
)

var (
	flagWorkdir  = flag.String("workdir", ".", "dir with persistent work data")
	flagMinimize = flag.Duration("minimize", 1*time.Minute, "time limit for input minimization")
	flagDup      = flag.Bool("dup", false, "collect duplicate crashers")
	flagV        = flag.Int("v", 0, "verbosity level")

	shutdown context.Context
)

func main() {
	flag.Parse()

	var cancel context.CancelFunc
	shutdown, cancel = context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	go func() {
		<-sigChan
		cancel()

		// If this hasn't terminated after a delay then exit with an error
		<-time.After(time.Second)
		panic("Failed to respond to SIGINT")
	}()

	debug.SetGCPercent(50) // most memory is in large binary blobs

	*flagWorkdir = expandHomeDir(*flagWorkdir)
	s, err := newStorage(*flagWorkdir)
	if err != nil {
		fmt.Println("Failed to load data:", err)
		os.Exit(1)
	}
	defer s.close()

	export, err := newAllocExport(filepath.Join(*flagWorkdir, "allocmap.comm"))
	if err != nil {
		log.Printf("alloc map export disabled: %v", err)
	}
	defer export.close()

	f := &Fuzzer{
		startTime:      time.Now(),
		lastInput:      time.Now(),
		storage:        s,
		export:         export,
		badInputs:      make(map[Sig]struct{}),
		corpusSigs:     make(map[Sig]struct{}),
		suppressedSigs: make(map[Sig]struct{}),
		fuzzFunc:       selectFuzzFunc(),
		lastExec:       time.Now(),
	}
	go f.watchForHangingInputs()

	if len(f.storage.corpus) == 0 {
		f.storage.addInput([]byte{})
	}

	// Prepare list of string and integer literals.
	for _, lit := range Literals {
		f.lits = append(f.lits, []byte(lit))
	}

	f.maxCover = make([]byte, CoverSize)
	f.maxAlloc = make([]uintptr, allocmap.MapSize)
	// Process initialization has already run instrumented code; start
	// the allocation signal from a clean table, like the coverage one.
	allocmap.Reset()

	f.mutator = newMutator()

	// Triage the initial corpus.
	for _, a := range f.storage.corpus {
		if shutdown.Err() != nil {
			break
		}
		f.broadcastStats()
		f.triageInput(Input{data: a})
	}

	for shutdown.Err() == nil {
		f.broadcastStats()
		if *flagV >= 1 {
			log.Printf("worker loop crasherQueue=%d triageQueue=%d", len(f.crasherQueue), len(f.triageQueue))
		}

		// Seeds dropped into the corpus dir by the user while we run.
		for _, data := range f.storage.pollNewInputs() {
			f.testInput(data)
		}

		if len(f.crasherQueue) > 0 {
			n := len(f.crasherQueue) - 1
			crash := f.crasherQueue[n]
			f.crasherQueue[n] = NewCrasherArgs{}
			f.crasherQueue = f.crasherQueue[:n]
			if *flagV >= 2 {
				log.Printf("worker processes crasher [%v]%x", len(crash.Data), hash(crash.Data))
			}
			f.processCrasher(crash)
			continue
		}

		if len(f.triageQueue) > 0 {
			input := f.triageQueue[0]
			f.triageQueue = f.triageQueue[1:]
			if *flagV >= 2 {
				log.Printf("worker triages local input [%v]%x", len(input.data), hash(input.data))
			}
			f.triageInput(input)
			continue
		}

		// Plain old blind fuzzing.
		data := f.mutator.generate(f.corpusInputs, f.lits)
		f.triageInput(Input{data: data})
	}
}

// Watches for inputs that are hanging and kills the process
func (f *Fuzzer) watchForHangingInputs() {
	for range time.Tick(time.Second) {
		if time.Since(f.lastExec) > 10*time.Second {
			fmt.Printf("Input causes hang: %s\n", strconv.Quote(string(f.currentCandidate)))
			b := &bytes.Buffer{}
			// TODO: this too can hang if the infinite loop isn't interruptible by the scheduler
			pprof.Lookup("goroutine").WriteTo(b, 1)
			output := fmt.Sprintf("hanger\n\n%s", b.String())
			panic(output)
		}
	}
}

// expandHomeDir expands the tilde sign and replaces it
// with current users home directory and returns it.
func expandHomeDir(path string) string {
	if len(path) > 2 && path[:2] == "~/" {
		usr, _ := user.Current()
		path = filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}
