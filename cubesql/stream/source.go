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

package stream

import ("context"
	"io"

	"github.com/apache/arrow-go/v18/arrow")

// SingleBatchSource adapts a one-shot executor — in this implementation,
// a cubescan.Exec's Execute method — into a Source that yields exactly
// one record then io.EOF, matching the single-partition contract
// CubeScan is given.
type SingleBatchSource struct {
	Exec func(ctx context.Context) (arrow.Record, error)
	done bool
}

func (s *SingleBatchSource) Next(ctx context.Context) (arrow.Record, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.Exec(ctx)
}
