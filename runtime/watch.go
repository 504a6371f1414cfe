// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"github.com/fsnotify/fsnotify"
)

// corpusWatcher collects paths of files created or modified in the
// corpus dir so the fuzzing loop can pick up externally added seeds
// without restarting.
type corpusWatcher struct {
	w       *fsnotify.Watcher
	pending chan string
}

func watchCorpus(dir string) (*corpusWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	cw := &corpusWatcher{w: w, pending: make(chan string, 128)}
	go cw.loop()
	return cw, nil
}

func (cw *corpusWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			select {
			case cw.pending <- ev.Name:
			default:
				// Queue full. The file stays on disk; nothing lost
				// beyond promptness.
			}
		case _, ok := <-cw.w.Errors:
			if !ok {
				return
			}
		}
	}
}

// poll drains the pending queue. Non-blocking, called once per
// iteration of the fuzzing loop.
func (cw *corpusWatcher) poll() []string {
	var res []string
	for {
		select {
		case name := <-cw.pending:
			res = append(res, name)
		default:
			return res
		}
	}
}

func (cw *corpusWatcher) close() {
	cw.w.Close()
}
