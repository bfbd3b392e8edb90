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

package hll

import ("encoding/binary"
	"math"
	"math/bits"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// addDense updates one register in place, once this sketch has upgraded.
func (s *Sketch) addDense(hash uint64) {
	idx := hash >> (64 - uint(s.p))
	rest := hash << uint(s.p)
	rho := uint8(bits.LeadingZeros64(rest)) + 1
	if rho > s.registers[idx] {
		s.registers[idx] = rho
	}
}

// upgradeToDense decodes every sparse entry down to normal precision p
// and discards the sparse buffer/stream for good; a Sketch never goes
// back to sparse.
func (s *Sketch) upgradeToDense() {
	regs := make([]byte, m(s.p))
	for _, e := range s.mergedEntries() {
		idx, rho := downsample(e.index, e.rho, s.pSparse, s.p)
		if rho > regs[idx] {
			regs[idx] = rho
		}
	}
	s.registers = regs
	s.buffer = nil
	s.stream = nil
}

// downsample converts a (index, rho) pair computed at pSparse bits of
// index precision into the equivalent pair at a coarser p bits, the
// standard HyperLogLog++ sparse-to-normal conversion: the top p bits of
// index are the new index; the remaining (pSparse - p) bits of index,
// if all zero, mean the true rho is that many bits further out than
// rho says (add them in), otherwise the new rho is the position of the
// first set bit among exactly those bits.
func downsample(index uint32, rho uint8, pSparse, p uint8) (uint32, uint8) {
	diff := pSparse - p
	newIndex := index >> diff
	if diff == 0 {
		return newIndex, rho
	}
	extra := index & ((1 << diff) - 1)
	if extra == 0 {
		return newIndex, rho + diff
	}
	return newIndex, uint8(bits.LeadingZeros32(extra<<(32-diff))) + 1
}

// alpha is the bias-correction constant from Flajolet et al., keyed by
// register count.
func alpha(mRegisters int) float64 {
	switch mRegisters {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		return 0.7213 / (1 + 1.079/float64(mRegisters))
	}
}

// denseCardinality is the standard HyperLogLog raw estimate with small-
// range linear-counting correction; large-range bias correction tables
// (HLL++) are out of scope here, see DESIGN.md.
func (s *Sketch) denseCardinality() uint64 {
	mRegisters := len(s.registers)
	var sum float64
	var zeros int
	for _, r := range s.registers {
		sum += math.Pow(2, -float64(r))
		if r == 0 {
			zeros++
		}
	}
	estimate := alpha(mRegisters) * float64(mRegisters) * float64(mRegisters) / sum

	if estimate <= 2.5*float64(mRegisters) && zeros > 0 {
		return uint64(math.Round(float64(mRegisters) * math.Log(float64(mRegisters)/float64(zeros))))
	}
	return uint64(math.Round(estimate))
}

const (modeSparse = 0
	modeDense = 1)

// Serialize renders the sketch's wire form: a small header (p, pSparse,
// mode) followed by either the raw register bytes (dense) or the
// difference-encoded stream plus the insertion buffer (sparse), per
// storage description. Re-parsing any serialization must
// yield a sketch with the same cardinality estimate, the invariant
// hll_test.go pins.
func (s *Sketch) Serialize() []byte {
	out := []byte{s.p, s.pSparse}
	if s.IsDense() {
		out = append(out, modeDense)
		return append(out, s.registers...)
	}
	out = append(out, modeSparse)
	out = append(out, encodeEntries(s.stream)...)
	out = append(out, encodeEntries(s.buffer)...)
	return out
}

func encodeEntries(entries []entry) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, uint64(len(entries)))
	out := append([]byte(nil), buf[:n]...)
	var prev uint32
	for _, e := range entries {
		n := binary.PutUvarint(buf, uint64(e.index-prev))
		out = append(out, buf[:n]...)
		out = append(out, e.rho)
		prev = e.index
	}
	return out
}

func decodeEntries(b []byte) (entries []entry, rest []byte, err error) {
	count, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, nil, cerrors.InternalError.New("hll: truncated entry count")
	}
	b = b[n:]
	entries = make([]entry, 0, count)
	var prev uint32
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Uvarint(b)
		if n <= 0 || len(b) < n+1 {
			return nil, nil, cerrors.InternalError.New("hll: truncated entry")
		}
		b = b[n:]
		rho := b[0]
		b = b[1:]
		prev += uint32(delta)
		entries = append(entries, entry{index: prev, rho: rho})
	}
	return entries, b, nil
}

// Parse reconstructs a Sketch from Serialize's output.
func Parse(data []byte) (*Sketch, error) {
	if len(data) < 3 {
		return nil, cerrors.InternalError.New("hll: truncated header")
	}
	s := &Sketch{p: data[0], pSparse: data[1]}
	mode := data[2]
	rest := data[3:]

	switch mode {
	case modeDense:
		if len(rest) != m(s.p) {
			return nil, cerrors.InternalError.New("hll: register count mismatch")
		}
		s.registers = append([]byte(nil), rest...)
		return s, nil
	case modeSparse:
		stream, rest, err := decodeEntries(rest)
		if err != nil {
			return nil, err
		}
		buffer, _, err := decodeEntries(rest)
		if err != nil {
			return nil, err
		}
		s.stream = stream
		s.buffer = buffer
		return s, nil
	default:
		return nil, cerrors.InternalError.New("hll: unknown mode byte")
	}
}
