// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage holds the branch-coverage half of the feedback
// channel between instrumented code and the fuzzer runtime; the
// allocation half lives in the allocmap package. Both are compiled into
// instrumented standard library packages and so must stay
// dependency-free.
package coverage

const (
	CoverSize    = 64 << 10
	MaxInputSize = 1 << 20
)

// CoverTab holds code coverage counters.
// It is initialized to a new array so that instrumentation
// executed during process initialization has somewhere to write to.
// The runtime zeroes it before every execution of the fuzz function.
var CoverTab = new([CoverSize]byte)

// PreviousLocationID stores the id of the previous coverage point.
// This is combined with the current id to decide which entry in the CoverTab
// to increment in the instrumented code.
// This is done to get a cheap approximation of path coverage instead of
// simply line coverage.
var PreviousLocationID int

// These are populated by an init() function generated during build
var Literals []string
var FuzzFunctions = map[string]func([]byte) int{}
