// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"math/rand"
	"time"

	. "github.com/bradleyjkemp/allocfuzz/coverage"
)

// Mutator generates new candidate inputs by stacking random havoc
// mutations on top of corpus inputs.
type Mutator struct {
	r *rand.Rand
}

func newMutator() *Mutator {
	return &Mutator{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *Mutator) rand(n int) int {
	return m.r.Intn(n)
}

// generate picks a random corpus input and applies a stack of
// mutations to it. With an empty corpus it mutates an empty input,
// which bootstraps the very first executions.
func (m *Mutator) generate(corpus []Input, lits [][]byte) []byte {
	var data []byte
	if len(corpus) > 0 {
		data = corpus[m.rand(len(corpus))].data
	}
	return m.mutate(data, corpus, lits)
}

func (m *Mutator) mutate(data []byte, corpus []Input, lits [][]byte) []byte {
	res := makeCopy(data)
	nm := 1 << uint(1+m.rand(5))
	for iter := 0; iter < nm; iter++ {
		switch m.rand(14) {
		case 0:
			// Remove a range of bytes.
			if len(res) <= 1 {
				continue
			}
			pos0 := m.rand(len(res))
			pos1 := pos0 + m.chooseLen(len(res)-pos0)
			copy(res[pos0:], res[pos1:])
			res = res[:len(res)-(pos1-pos0)]
		case 1:
			// Insert a range of random bytes.
			pos := m.rand(len(res) + 1)
			n := m.chooseLen(10)
			res = append(res, make([]byte, n)...)
			copy(res[pos+n:], res[pos:])
			for i := 0; i < n; i++ {
				res[pos+i] = byte(m.rand(256))
			}
		case 2:
			// Duplicate a range of bytes.
			if len(res) <= 1 {
				continue
			}
			src := m.rand(len(res))
			dst := m.rand(len(res))
			for dst == src {
				dst = m.rand(len(res))
			}
			n := m.chooseLen(len(res) - src)
			tmp := make([]byte, n)
			copy(tmp, res[src:])
			res = append(res, tmp...)
			copy(res[dst+n:], res[dst:])
			copy(res[dst:], tmp)
		case 3:
			// Copy a range of bytes over another range.
			if len(res) <= 1 {
				continue
			}
			src := m.rand(len(res))
			dst := m.rand(len(res))
			for dst == src {
				dst = m.rand(len(res))
			}
			n := m.chooseLen(len(res) - src)
			if dst > len(res)-n {
				dst = len(res) - n
			}
			copy(res[dst:], res[src:src+n])
		case 4:
			// Bit flip.
			if len(res) == 0 {
				continue
			}
			pos := m.rand(len(res))
			res[pos] ^= 1 << uint(m.rand(8))
		case 5:
			// Set a byte to a random value.
			if len(res) == 0 {
				continue
			}
			pos := m.rand(len(res))
			res[pos] ^= byte(m.rand(255)) + 1
		case 6:
			// Add/subtract from a byte.
			if len(res) == 0 {
				continue
			}
			pos := m.rand(len(res))
			v := byte(m.rand(35) + 1)
			if m.rand(2) == 0 {
				res[pos] += v
			} else {
				res[pos] -= v
			}
		case 7:
			// Negate a byte.
			if len(res) == 0 {
				continue
			}
			pos := m.rand(len(res))
			res[pos] = ^res[pos]
		case 8:
			// Replace a byte with an interesting value.
			if len(res) == 0 {
				continue
			}
			pos := m.rand(len(res))
			res[pos] = byte(interesting8[m.rand(len(interesting8))])
		case 9:
			// Add/subtract from a uint16.
			if len(res) < 2 {
				continue
			}
			pos := m.rand(len(res) - 1)
			buf := res[pos:]
			v := uint16(m.rand(35) + 1)
			if m.rand(2) == 0 {
				v = -v
			}
			if m.rand(2) == 0 {
				binary.LittleEndian.PutUint16(buf, binary.LittleEndian.Uint16(buf)+v)
			} else {
				binary.BigEndian.PutUint16(buf, binary.BigEndian.Uint16(buf)+v)
			}
		case 10:
			// Replace a uint32 with an interesting value.
			if len(res) < 4 {
				continue
			}
			pos := m.rand(len(res) - 3)
			buf := res[pos:]
			v := uint32(interesting32[m.rand(len(interesting32))])
			if m.rand(2) == 0 {
				binary.LittleEndian.PutUint32(buf, v)
			} else {
				binary.BigEndian.PutUint32(buf, v)
			}
		case 11:
			// Replace a uint16 with an interesting value.
			if len(res) < 2 {
				continue
			}
			pos := m.rand(len(res) - 1)
			buf := res[pos:]
			v := uint16(interesting16[m.rand(len(interesting16))])
			if m.rand(2) == 0 {
				binary.LittleEndian.PutUint16(buf, v)
			} else {
				binary.BigEndian.PutUint16(buf, v)
			}
		case 12:
			// Splice in a literal from the testee.
			if len(lits) == 0 {
				continue
			}
			lit := lits[m.rand(len(lits))]
			pos := m.rand(len(res) + 1)
			res = append(res, lit...)
			copy(res[pos+len(lit):], res[pos:])
			copy(res[pos:], lit)
		case 13:
			// Crossover: insert a chunk of another corpus input.
			if len(corpus) == 0 {
				continue
			}
			other := corpus[m.rand(len(corpus))].data
			if len(other) == 0 {
				continue
			}
			src := m.rand(len(other))
			n := m.chooseLen(len(other) - src)
			pos := m.rand(len(res) + 1)
			res = append(res, make([]byte, n)...)
			copy(res[pos+n:], res[pos:])
			copy(res[pos:], other[src:src+n])
		}
	}
	if len(res) > MaxInputSize {
		res = res[:MaxInputSize]
	}
	return res
}

// chooseLen chooses length of range mutation, biased towards short
// ranges. n must be positive.
func (m *Mutator) chooseLen(n int) int {
	switch x := m.rand(100); {
	case x < 90:
		return m.rand(min(8, n)) + 1
	case x < 99:
		return m.rand(min(32, n)) + 1
	default:
		return m.rand(n) + 1
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)
