package main

import (
	"flag"
	"sort"

	"log"

	. "github.com/bradleyjkemp/allocfuzz/coverage"
)

var flagFunc = flag.String("func", "", "which function to fuzz")

// selectFuzzFunc resolves the -func flag against the fuzz functions the
// instrumented packages registered at init time.
func selectFuzzFunc() func([]byte) int {
	if len(FuzzFunctions) == 0 {
		log.Fatal("No functions available to fuzz")
	}

	if *flagFunc == "" {
		var funcs []string
		for name := range FuzzFunctions {
			funcs = append(funcs, name)
		}
		sort.Slice(funcs, func(i, j int) bool {
			return funcs[i] < funcs[j]
		})

		log.Printf("Functions available to fuzz: %v", funcs)
		*flagFunc = funcs[0]
	}

	fuzzFunc, ok := FuzzFunctions[*flagFunc]
	if !ok {
		log.Fatalf("Function %s not available to fuzz", *flagFunc)
	}
	log.Printf("Fuzzing function %s", *flagFunc)
	return fuzzFunc
}
