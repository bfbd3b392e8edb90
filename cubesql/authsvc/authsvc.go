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

// Package authsvc declares the capability both wire front-ends (C8, C9)
// authenticate a new session against, collapsing auth.go's "Mysql
// mysql.AuthServer, Allowed(ctx, permission) error" split into one
// capability per concern into a single request/response call, since
// neither front-end here needs per-query
// permission checks, only a session-establishment decision.
package authsvc

import "context"

// Request is what a front-end sends the auth service to establish a
// session. Method is "cleartext", "md5", or "token" depending on which
// front-end and negotiation path produced it.
type Request struct {
	Protocol string // "postgres" or "arrow_native"
	Method string // "cleartext", "md5", "token"
	User string
	Database string
	Token string // the raw password/token the client supplied
	Salt []byte // md5 challenge salt, set only when Method == "md5"
}

// Response is the auth service's verdict. SkipPasswordCheck mirrors
// "if the service indicates skip_password_check, the token
// is accepted without comparison" rule; otherwise the caller must compare
// Token (the request's) against Password (the service's).
type Response struct {
	Success bool
	SessionID string
	SkipPasswordCheck bool
	Password string
}

// Service is implemented by whatever backs session auth in a given
// deployment.
type Service interface {
	Authenticate(ctx context.Context, req Request) (Response, error)
}

// None always succeeds without comparing credentials, generalizing
// auth.None (auth/none.go): a fixed allow-all policy for deployments,
// typically local development, with no auth service of their own.
type None struct{}

func (None) Authenticate(ctx context.Context, req Request) (Response, error) {
	return Response{Success: true, SessionID: newSessionID(), SkipPasswordCheck: true}, nil
}
