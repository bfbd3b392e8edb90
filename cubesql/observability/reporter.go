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

// Package observability implements the one logging capability shared
// across package boundaries: a Reporter wraps an injected *logrus.Logger
// with a handful of named events. Both wire front-ends' session tracking
// and the cache/queue store's compaction loop emit through it, so none of
// them reach for logrus's package-level default logger or invent their own
// field names for the same event. RewriteSaturated has no caller:
// rewrite.Compile does not take a Reporter.
package observability

import "github.com/sirupsen/logrus"

// Reporter is always constructed from a caller-owned *logrus.Logger;
// there is no package-level default and no New() that falls back to one.
type Reporter struct {
	log *logrus.Entry
}

// NewReporter wraps log, tagging every entry it produces with component
// so a multi-package log stream stays attributable to its source.
func NewReporter(log *logrus.Logger, component string) *Reporter {
	return &Reporter{log: log.WithField("component", component)}
}

// SessionOpened/SessionClosed log a session manager's lifecycle events.
func (r *Reporter) SessionOpened(protocol, sessionID string) {
	r.log.WithFields(logrus.Fields{"protocol": protocol, "session_id": sessionID}).Info("session opened")
}

func (r *Reporter) SessionClosed(protocol, sessionID string) {
	r.log.WithFields(logrus.Fields{"protocol": protocol, "session_id": sessionID}).Info("session closed")
}

// RewriteSaturated logs one Compile call's saturation outcome: how many
// rounds it took to reach a fixpoint and how large the final e-graph grew,
// the two numbers DefaultSaturationConfig's iteration/node-count bounds
// are guarding against.
func (r *Reporter) RewriteSaturated(iterations, nodeCount int, foundScan bool) {
	r.log.WithFields(logrus.Fields{
				"iterations": iterations,
				"node_count": nodeCount,
				"found_cube_scan": foundScan,
	}).Debug("rewrite engine saturated")
}

// CompactionFinished logs one compaction pass's outcome counts, the
// Prometheus counters mirror in cumulative form.
func (r *Reporter) CompactionFinished(scanned, removed, orphaned, noTTL, notExpired int64) {
	r.log.WithFields(logrus.Fields{
				"scanned": scanned,
				"removed": removed,
				"orphaned": orphaned,
				"no_ttl": noTTL,
				"not_expired": notExpired,
	}).Info("compaction pass finished")
}

// QueryFailed logs a wire front-end's query-level failure, after the
// caller has already turned err into the protocol's own error frame.
func (r *Reporter) QueryFailed(protocol, sql string, err error) {
	r.log.WithFields(logrus.Fields{"protocol": protocol, "sql": sql}).WithError(err).Warn("query failed")
}
