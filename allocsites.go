// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
)

// instrumentAllocSites rewrites slice allocation sites so the built
// binary reports them to the allocation feedback map. A call
//
//	make([]T, n)
//
// becomes
//
//	make([]T, _alloc_dep_.SliceLen(n, unsafe.Sizeof(T)))
//
// with the element size folded to a constant here at build time.
// SliceLen returns its argument unchanged, so the rewrite never
// changes what the program allocates, only what gets observed.
// The recording happens at the runtime call, which is what gives each
// site a distinct program counter to key the map by.
func (f *File) instrumentAllocSites() {
	ast.Inspect(f.astFile, func(node ast.Node) bool {
		call, ok := node.(*ast.CallExpr)
		if !ok {
			return true
		}
		fn, ok := call.Fun.(*ast.Ident)
		if !ok || fn.Name != "make" || len(call.Args) < 2 {
			return true
		}
		if _, ok := f.info.Uses[fn].(*types.Builtin); !ok {
			// make is shadowed by a local identifier
			return true
		}
		tv, ok := f.info.Types[call.Args[0]]
		if !ok {
			return true
		}
		slice, ok := tv.Type.Underlying().(*types.Slice)
		if !ok {
			// make of a map or channel; the size argument there is an
			// element count hint, not an allocation length
			return true
		}

		// make([]T, n) allocates n elements, make([]T, n, c) allocates c.
		idx := len(call.Args) - 1
		if !isIntArg(f.info, call.Args[idx]) {
			// A non-int length argument (e.g. uint32) would not typecheck
			// through the int-typed hook. Rare enough to skip.
			return true
		}

		elemSize := f.sizes.Sizeof(slice.Elem())
		call.Args[idx] = &ast.CallExpr{
			Fun: &ast.SelectorExpr{
				X:   ast.NewIdent(allocdepPkg),
				Sel: ast.NewIdent("SliceLen"),
			},
			Args: []ast.Expr{
				call.Args[idx],
				&ast.BasicLit{
					Kind:  token.INT,
					Value: strconv.FormatInt(elemSize, 10),
				},
			},
		}
		return true
	})
}

// isIntArg reports whether expr has type int (or defaults to it).
func isIntArg(info *types.Info, expr ast.Expr) bool {
	tv, ok := info.Types[expr]
	if !ok {
		return false
	}
	return types.Identical(types.Default(tv.Type), types.Typ[types.Int])
}
