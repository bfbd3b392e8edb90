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

package cubescan

import ("bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/cubebridge/cubesql/cubesql/cube"
	cerrors "github.com/cubebridge/cubesql/cubesql/errors"
	"github.com/cubebridge/cubesql/cubesql/plan")

// HTTPTransport is the Transport cmd/cubebridged wires into both wire
// front-ends by default: it speaks the same meta/load REST pair the
// upstream cube backend exposes, the way Exec already assumes some
// out-of-process service does. No pack example ships a client for this
// exact API, so the request/response shapes here are only as wide as
// CubeQuery/MetadataContext themselves need; everything below net/http
// and encoding/json is standard library, grounded the same way as every
// other "client of its own dependency's public API" entry in DESIGN.md.
type HTTPTransport struct {
	BaseURL string
	Client *http.Client
}

// NewHTTPTransport wraps baseURL (no trailing slash expected) with
// http.DefaultClient's zero-value equivalent; callers that need a
// deadline or custom transport can set Client directly afterward.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{BaseURL: baseURL, Client: &http.Client{}}
}

func (t *HTTPTransport) Meta(ctx context.Context, auth plan.AuthContext) (cube.MetadataContext, error) {
	var meta cube.MetadataContext
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/cubejs-api/v1/meta", nil)
	if err != nil {
		return meta, cerrors.TransportError.New(errors.Wrap(err, "cubescan: build meta request").Error())
	}
	t.authorize(req, auth)

	resp, err := t.Client.Do(req)
	if err != nil {
		return meta, cerrors.TransportError.New(errors.Wrap(err, "cubescan: meta request failed").Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return meta, cerrors.TransportError.New(fmt.Sprintf("cubescan: meta returned %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return meta, cerrors.TransportError.New(errors.Wrap(err, "cubescan: decode meta response").Error())
	}
	return meta, nil
}

func (t *HTTPTransport) Load(ctx context.Context, request cube.CubeQuery, auth plan.AuthContext) (RowBatch, error) {
	body, err := json.Marshal(struct {
		Query cube.CubeQuery `json:"query"`
	}{Query: request})
	if err != nil {
		return nil, cerrors.TransportError.New(errors.Wrap(err, "cubescan: marshal load request").Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/cubejs-api/v1/load", bytes.NewReader(body))
	if err != nil {
		return nil, cerrors.TransportError.New(errors.Wrap(err, "cubescan: build load request").Error())
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req, auth)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, cerrors.TransportError.New(errors.Wrap(err, "cubescan: load request failed").Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, cerrors.TransportError.New(fmt.Sprintf("cubescan: load returned %s: %s", resp.Status, msg))
	}

	var decoded struct {
		Data RowBatch `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, cerrors.TransportError.New(errors.Wrap(err, "cubescan: decode load response").Error())
	}
	return decoded.Data, nil
}

// authorize forwards auth.Security (the session's resolved security
// context, set by whichever wire front-end established the session) as a
// JSON-encoded header the backend's own meta/load handlers already expect
// to parse; a deployment running entirely behind authsvc.None leaves it
// nil and sends no header at all.
func (t *HTTPTransport) authorize(req *http.Request, auth plan.AuthContext) {
	if len(auth.Security) == 0 {
		return
	}
	if encoded, err := json.Marshal(auth.Security); err == nil {
		req.Header.Set("X-Cube-Security-Context", string(encoded))
	}
}
