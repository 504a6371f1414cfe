// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"
)

func TestInstrument(t *testing.T) {
	src := `
package p

func f(n int) []byte {
	if n > 10 {
		return make([]byte, n)
	}
	return nil
}
`
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	conf := types.Config{}
	if _, err := conf.Check("p", fset, []*ast.File{f}, info); err != nil {
		t.Fatalf("typecheck: %v", err)
	}

	buf := new(bytes.Buffer)
	instrument(fset, f, info, types.SizesFor("gc", "amd64"), buf)
	out := buf.String()

	for _, want := range []string{
		`_go_fuzz_dep_ "coverage"`,    // coverage import
		`_alloc_dep_ "allocmap"`,      // alloc feedback import
		`_go_fuzz_dep_.CoverTab[`,     // branch counters
		`_alloc_dep_.SliceLen(n, 1)`,  // allocation site
		`var _ = _go_fuzz_dep_.CoverTab`,
		`var _ = _alloc_dep_.AllocTab`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("instrumented output missing %q:\n%s", want, out)
		}
	}

	// Both arms of the if got a counter plus one for the function entry.
	if n := strings.Count(out, "_go_fuzz_dep_.CoverTab["); n != 3 {
		t.Fatalf("got %v counters, want 3:\n%s", n, out)
	}
}

func TestTrimComments(t *testing.T) {
	src := `
package p

//go:noinline
func f() {}

// an ordinary comment that should be dropped
func g() {}
`
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	comments := trimComments(f, fset)
	if len(comments) != 1 || len(comments[0].List) != 1 {
		t.Fatalf("comments = %v, want only the //go: directive", comments)
	}
	if comments[0].List[0].Text != "//go:noinline" {
		t.Fatalf("kept %q", comments[0].List[0].Text)
	}
}
