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

// rewriteAllocSites typechecks src and returns it with allocation sites
// instrumented. Sizes are fixed to amd64 so expectations are stable.
func rewriteAllocSites(t *testing.T, src string) string {
	t.Helper()
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
	file := &File{
		fset:    fset,
		astFile: f,
		info:    info,
		sizes:   types.SizesFor("gc", "amd64"),
	}
	file.instrumentAllocSites()
	buf := new(bytes.Buffer)
	file.print(buf)
	return buf.String()
}

func TestAllocSiteRewrite(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f(n int) []int64 {
	return make([]int64, n)
}
`)
	if !strings.Contains(out, "_alloc_dep_.SliceLen(n, 8)") {
		t.Fatalf("make length not wrapped:\n%s", out)
	}
}

func TestAllocSiteRewriteCapacity(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f(n int) []byte {
	return make([]byte, 0, n)
}
`)
	// Capacity, not length, determines the allocation size.
	if !strings.Contains(out, "make([]byte, 0, _alloc_dep_.SliceLen(n, 1))") {
		t.Fatalf("make capacity not wrapped:\n%s", out)
	}
}

func TestAllocSiteRewriteConstant(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f() []uint32 {
	return make([]uint32, 16)
}
`)
	if !strings.Contains(out, "_alloc_dep_.SliceLen(16, 4)") {
		t.Fatalf("constant make length not wrapped:\n%s", out)
	}
}

func TestAllocSiteSkipsMapsAndChans(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f(n int) map[string]int {
	_ = make(chan int, n)
	return make(map[string]int, n)
}
`)
	if strings.Contains(out, "SliceLen") {
		t.Fatalf("map/chan make was wrapped:\n%s", out)
	}
}

func TestAllocSiteSkipsShadowedMake(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f() []int {
	make := func(a []int, n int) []int { return a }
	return make(nil, 3)
}
`)
	if strings.Contains(out, "SliceLen") {
		t.Fatalf("shadowed make was wrapped:\n%s", out)
	}
}

func TestAllocSiteSkipsNonIntLength(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f(n uint32) []byte {
	return make([]byte, n)
}
`)
	if strings.Contains(out, "SliceLen") {
		t.Fatalf("non-int make length was wrapped:\n%s", out)
	}
}

func TestSingleArgMakeUntouched(t *testing.T) {
	out := rewriteAllocSites(t, `
package p

func f() map[int]int {
	return make(map[int]int)
}
`)
	if strings.Contains(out, "SliceLen") {
		t.Fatalf("single-arg make was wrapped:\n%s", out)
	}
}
