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

package arrownative

import ("context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cubebridge/cubesql/cubesql/authsvc"
	"github.com/cubebridge/cubesql/cubesql/cubescan"
	"github.com/cubebridge/cubesql/cubesql/observability")

// ShutdownMode mirrors pgwire.ShutdownMode — the same three behaviors
// specifies apply to both wire front-ends identically.
type ShutdownMode int

const (Fast ShutdownMode = iota
	SemiFast
	Smart)

// Server accepts Arrow-native connections and runs each on its own
// goroutine, structured identically to pgwire.Server (see that file's
// doc comment for why this control flow is standard-library rather than
// pack-grounded): a per-connection cancel func tracked in a map, drained
// by a WaitGroup, with the three shutdown modes differing only in whether
// and when cancelAll runs.
type Server struct {
	Listener net.Listener
	Auth authsvc.Service
	Transport cubescan.Transport
	Cache *ResultCache
	Log *logrus.Logger
	Report *observability.Reporter

	mu sync.Mutex
	cancels map[*Conn]context.CancelFunc
	wg sync.WaitGroup

	shutdownOnce sync.Once
	stopAccept chan struct{}
}

func NewServer(ln net.Listener, auth authsvc.Service, transport cubescan.Transport, log *logrus.Logger) *Server {
	return &Server{
		Listener: ln,
		Auth: auth,
		Transport: transport,
		Cache: NewResultCache(0, 0),
		Log: log,
		cancels: make(map[*Conn]context.CancelFunc),
		stopAccept: make(chan struct{}),
	}
}

func (s *Server) Serve() error {
	for {
		select {
			case <-s.stopAccept:
			return nil
			default:
		}

		conn, err := s.Listener.Accept()
		if err != nil {
			select {
				case <-s.stopAccept:
				return nil
				default:
				return err
			}
		}

		c := NewConn(conn, s.Auth, s.Transport, s.Cache, s.Log)
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancels[c] = cancel
		s.mu.Unlock()

		s.wg.Add(1)
		remote := conn.RemoteAddr().String()
		if s.Report != nil {
			s.Report.SessionOpened("arrownative", remote)
		}
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.cancels, c)
				s.mu.Unlock()
				if s.Report != nil {
					s.Report.SessionClosed("arrownative", remote)
				}
			}()
			c.Serve(ctx)
		}()
	}
}

// Shutdown implements Fast/SemiFast/Smart behaviors, safe to
// call more than once (only the first call has effect).
func (s *Server) Shutdown(mode ShutdownMode, deadline time.Duration) {
	s.shutdownOnce.Do(func() {
			close(s.stopAccept)
			s.Listener.Close()

			switch mode {
				case Fast:
				s.cancelAll()
				s.wg.Wait()
				case SemiFast:
				s.wg.Wait()
				case Smart:
				done := make(chan struct{})
				go func() {
					s.wg.Wait()
					close(done)
				}()
				select {
					case <-done:
					case <-time.After(deadline):
					s.cancelAll()
					s.wg.Wait()
				}
			}
	})
}

func (s *Server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}
