// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hll implements the cache/queue store's cardinality sketch
// : a HyperLogLog with a sparse representation that
// upgrades to dense once it stops paying for itself. This is a bespoke,
// standard-library-only format: no pack dependency implements this exact
// difference-encoded sparse/dense scheme, and the point of the package is
// its specific serialization and merge invariants, not a generic
// cardinality estimate (see DESIGN.md).
package hll

import ("encoding/binary"
	"math"
	"math/bits"
	"sort")

// entry is one sparse bucket: the top pSparse bits of a hash (index) and
// the position of the first set bit among the remaining bits (rho).
type entry struct {
	index uint32
	rho uint8
}

// Sketch is a HyperLogLog counter. It starts in sparse mode (buffer +
// stream) and transitions to dense (registers) permanently once the
// upgrade policy trips; registers is nil until that happens.
type Sketch struct {
	p uint8
	pSparse uint8

	buffer []entry // ordered set, deduped by index, keeps the max rho per index
	stream []entry // same invariant as buffer; populated by flushing buffer into it

	registers []byte // nil while sparse; len == m(p) once dense
}

// New creates a sparse sketch with normal precision p and sparse
// precision pSparse, per "p (normal) and p_sparse ≥ p,
// p_sparse ≤ 25".
func New(p, pSparse uint8) *Sketch {
	return &Sketch{p: p, pSparse: pSparse}
}

func m(precision uint8) int { return 1 << precision }

// IsDense reports whether the upgrade policy has already fired.
func (s *Sketch) IsDense() bool { return s.registers != nil }

// Add inserts one hashed value.
func (s *Sketch) Add(hash uint64) {
	if s.IsDense() {
		s.addDense(hash)
		return
	}
	idx, rho := sparseEncode(hash, s.pSparse)
	insertSorted(&s.buffer, entry{index: idx, rho: rho})
	if len(s.buffer) > m(s.p)/4 {
		s.flush()
	}
}

// sparseEncode splits hash into a pSparse-bit bucket index and the rho
// value (1 + count of leading zeros) measured over the remaining bits.
func sparseEncode(hash uint64, pSparse uint8) (index uint32, rho uint8) {
	index = uint32(hash >> (64 - pSparse))
	rest := hash << pSparse
	return index, uint8(bits.LeadingZeros64(rest)) + 1
}

// insertSorted inserts e into a slice kept sorted by index, collapsing a
// duplicate index by keeping whichever rho is larger (HyperLogLog
// registers only ever move up).
func insertSorted(list *[]entry, e entry) {
	l := *list
	i := sort.Search(len(l), func(i int) bool { return l[i].index >= e.index })
	if i < len(l) && l[i].index == e.index {
		if e.rho > l[i].rho {
			l[i].rho = e.rho
		}
		return
	}
	l = append(l, entry{})
	copy(l[i+1:], l[i:])
	l[i] = e
	*list = l
}

// flush merges buffer into stream and, per upgrade
// policy, upgrades to dense once the stream's serialized size exceeds
// 0.75*m(p) bytes.
func (s *Sketch) flush() {
	s.stream = mergeEntries(s.stream, s.buffer)
	s.buffer = s.buffer[:0]
	if s.streamSizeBytes() > (3*m(s.p))/4 {
		s.upgradeToDense()
	}
}

// mergeEntries merge-joins two index-sorted, index-deduped entry slices,
// collapsing a shared index by keeping the larger rho.
func mergeEntries(a, b []entry) []entry {
	out := make([]entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
			case a[i].index < b[j].index:
			out = append(out, a[i])
			i++
			case a[i].index > b[j].index:
			out = append(out, b[j])
			j++
			default:
			e := a[i]
			if b[j].rho > e.rho {
				e.rho = b[j].rho
			}
			out = append(out, e)
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// entriesSizeBytes is the serialized size of entries under the
// varint-index-delta + one-byte-rho encoding Serialize uses.
func entriesSizeBytes(entries []entry) int {
	var n int
	var prev uint32
	buf := make([]byte, binary.MaxVarintLen32)
	for _, e := range entries {
		n += binary.PutUvarint(buf, uint64(e.index-prev))
		n++ // rho byte
		prev = e.index
	}
	return n
}

func (s *Sketch) streamSizeBytes() int { return entriesSizeBytes(s.stream) }

// sparseSize is this sketch's "sparse_size": the serialized size of its
// stream and buffer combined. merge.go's negative-delta assertion is
// keyed on this value.
func (s *Sketch) sparseSize() int {
	if s.IsDense() {
		return -1
	}
	return entriesSizeBytes(s.stream) + entriesSizeBytes(s.buffer)
}

// mergedEntries returns the logical content of this sparse sketch: the
// stream with any not-yet-flushed buffer entries unioned in.
func (s *Sketch) mergedEntries() []entry {
	return mergeEntries(s.stream, s.buffer)
}

// Cardinality estimates distinct count. In sparse mode this is linear
// counting over empty sparse buckets, per :
// m_s * ln(m_s / zeros).
func (s *Sketch) Cardinality() uint64 {
	if s.IsDense() {
		return s.denseCardinality()
	}
	ms := float64(m(s.pSparse))
	used := len(s.mergedEntries())
	zeros := ms - float64(used)
	if zeros <= 0 {
		// Unreachable while the upgrade policy (flush at m(p)/4,
		// upgrade at 0.75*m(p) stream bytes) holds, since both
		// thresholds are expressed in terms of the much smaller
		// m(p), not m_s. Fall back to the boundary estimate rather
		// than dividing by zero.
		zeros = 1
	}
	return uint64(math.Round(ms * math.Log(ms/zeros)))
}
