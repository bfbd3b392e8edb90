// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authsvc

import uuid "github.com/satori/go.uuid"

// newSessionID mints the session identifier the Arrow-native AuthAck frame
// and the Postgres session table key both use, built on
// github.com/satori/go.uuid.
func newSessionID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// NewV4 only fails if the system entropy source is broken, which
		// this implementation treats as unrecoverable rather than handing
		// back a degraded (non-unique) session id.
		panic(err)
	}
	return id.String()
}
