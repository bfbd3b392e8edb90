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

import ("fmt"

	cerrors "github.com/cubebridge/cubesql/cubesql/errors")

// Merge folds b's distinct values into a, in place. a and b must share
// the same (p, pSparse) pair; merging sketches built at different
// precisions is not supported (is silent on it, and
// downsample's precision-conversion math assumes a single pSparse/p
// relationship per merge).
func Merge(a, b *Sketch) error {
	if a.p != b.p || a.pSparse != b.pSparse {
		return cerrors.UserError.New("hll: cannot merge sketches with different precisions")
	}

	beforeSize := a.sparseSize()

	switch {
	case a.IsDense() && b.IsDense():
		for i, r := range b.registers {
			if r > a.registers[i] {
				a.registers[i] = r
			}
		}

	case a.IsDense() && !b.IsDense():
		for _, e := range b.mergedEntries() {
			idx, rho := downsample(e.index, e.rho, b.pSparse, a.p)
			if rho > a.registers[idx] {
				a.registers[idx] = rho
			}
		}

	case !a.IsDense() && b.IsDense():
		a.upgradeToDense()
		for i, r := range b.registers {
			if r > a.registers[i] {
				a.registers[i] = r
			}
		}

	default:
		mergeSparse(a, b)
	}

	if !a.IsDense() {
		assertSparseSizeNeverShrinksOnMerge(beforeSize, a.sparseSize())
	}
	return nil
}

// mergeSparse implements merge rule: "if the other's
// stored size is small enough, union the other's values into this
// buffer; else flush both and merge-join the two sorted streams,
// collapsing entries whose decoded sparse bucket index matches (keeping
// the one with the higher value)." "Small enough" is read as "small
// enough not to immediately trip a's own flush threshold."
func mergeSparse(a, b *Sketch) {
	bEntries := b.mergedEntries()
	if len(bEntries) <= m(a.p)/4 {
		for _, e := range bEntries {
			insertSorted(&a.buffer, e)
		}
		if len(a.buffer) > m(a.p)/4 {
			a.flush()
		}
		return
	}

	a.stream = mergeEntries(a.stream, a.buffer)
	a.buffer = a.buffer[:0]
	a.stream = mergeEntries(a.stream, mergeEntries(b.stream, b.buffer))
	if a.streamSizeBytes() > (3*m(a.p))/4 {
		a.upgradeToDense()
	}
}

// assertSparseSizeNeverShrinksOnMerge guards one invariant: a merge only
// ever unions values in, so the serialized sparse size can never
// decrease. This is believed unreachable given the merge logic above;
// hll_test.go's merge property tests assert it is never hit.
func assertSparseSizeNeverShrinksOnMerge(before, after int) {
	if after < before {
		panic(fmt.Sprintf("hll: sparse_size shrank during merge (%d -> %d)", before, after))
	}
}
