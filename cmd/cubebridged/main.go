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

package main

import ("fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/cubebridge/cubesql/cubesql/arrownative"
	"github.com/cubebridge/cubesql/cubesql/authsvc"
	"github.com/cubebridge/cubesql/cubesql/cubescan"
	"github.com/cubebridge/cubesql/cubesql/observability"
	"github.com/cubebridge/cubesql/cubesql/pgwire"
	"github.com/cubebridge/cubesql/cubestore/compaction"
	"github.com/cubebridge/cubesql/cubestore/kv")

// This is the one binary that wires every package in the module together:
// the two wire front-ends, the HTTP transport both talk to, the shared
// session-lifecycle logging, and the cache store's background compaction
// loop. Every constructor it calls already does its own job; main's job
// is only flag parsing, dependency construction, and shutdown ordering.
//
// > psql "host=localhost port=5432 dbname=cubebridge user=cube" -c "SELECT 1"

var (
	pgAddr = pflag.String("pg-addr", ":5432", "address the Postgres wire front-end listens on")
	arrowAddr = pflag.String("arrow-addr", ":7432", "address the Arrow-native front-end listens on")
	cubeAPIURL = pflag.String("cube-api-url", "http://localhost:4000", "base URL of the cube meta/load backend")
	cachePath = pflag.String("cache-path", "cubebridged.db", "path to the bolt-backed query cache/queue store")
	compactionInterval = pflag.Duration("compaction-interval", 5*time.Minute, "how often the cache store's TTL compaction pass runs")
	shutdownTimeout = pflag.Duration("shutdown-timeout", 30*time.Second, "deadline for Smart-mode shutdown before falling back to Fast")
)

func main() {
	pflag.Parse()

	log := logrus.New()
	report := observability.NewReporter(log, "cubebridged")

	if err := run(log, report); err != nil {
		log.WithError(err).Fatal("cubebridged: fatal error")
	}
}

func run(log *logrus.Logger, report *observability.Reporter) error {
	store, err := kv.Open(*cachePath)
	if err != nil {
		return fmt.Errorf("cubebridged: open cache store: %w", err)
	}
	defer store.Close()

	transport := cubescan.NewHTTPTransport(*cubeAPIURL)
	auth := authsvc.None{}

	pgListener, err := net.Listen("tcp", *pgAddr)
	if err != nil {
		return fmt.Errorf("cubebridged: listen on %s: %w", *pgAddr, err)
	}
	pgServer := pgwire.NewServerWithReporter(pgListener, auth, transport, log, report)

	arrowListener, err := net.Listen("tcp", *arrowAddr)
	if err != nil {
		return fmt.Errorf("cubebridged: listen on %s: %w", *arrowAddr, err)
	}
	arrowServer := arrownative.NewServer(arrowListener, auth, transport, log)
	arrowServer.Report = report

	stopCompaction := make(chan struct{})
	go runCompactionLoop(store, report, log, stopCompaction)

	errs := make(chan error, 2)
	go func() { errs <- pgServer.Serve() }()
	go func() { errs <- arrowServer.Serve() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		log.WithError(err).Error("cubebridged: a front-end's accept loop exited")
	case s := <-sig:
		log.WithField("signal", s.String()).Info("cubebridged: shutting down")
	}

	close(stopCompaction)
	pgServer.Shutdown(pgwire.Smart, *shutdownTimeout)
	arrowServer.Shutdown(arrownative.Smart, *shutdownTimeout)
	return nil
}

// runCompactionLoop ticks compactionInterval, running one RunWithReporter
// pass per tick until stop closes. A failed pass is logged as a warning
// rather than left to crash the process: a single failed pass (a transient
// bolt I/O error, say) should not bring the whole server down.
func runCompactionLoop(store *kv.Store, report *observability.Reporter, log *logrus.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(*compactionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if _, err := compaction.RunWithReporter(store, now, report); err != nil {
				log.WithError(err).Warn("cubebridged: compaction pass failed")
			}
		}
	}
}
