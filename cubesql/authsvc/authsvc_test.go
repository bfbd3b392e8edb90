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

package authsvc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubebridge/cubesql/cubesql/authsvc"
)

func TestNoneAlwaysSucceeds(t *testing.T) {
	resp, err := (authsvc.None{}).Authenticate(context.Background(), authsvc.Request{
		Protocol: "postgres",
		Method:   "cleartext",
		User:     "alice",
		Database: "main",
		Token:    "anything",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.True(t, resp.SkipPasswordCheck)
	require.NotEmpty(t, resp.SessionID)
}

func TestNoneMintsDistinctSessionIDs(t *testing.T) {
	first, err := (authsvc.None{}).Authenticate(context.Background(), authsvc.Request{})
	require.NoError(t, err)
	second, err := (authsvc.None{}).Authenticate(context.Background(), authsvc.Request{})
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)
}
