// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package report turns the progress of a monitored device run into
// persisted documents: a time-stamped event log, a JUnit-style XML test
// suite, a JSON summary and TAP output.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.ubxlib.dev/automation/tools/lib/clock"
	"go.ubxlib.dev/automation/tools/lib/logger"
	"go.ubxlib.dev/automation/tools/monitor"
)

// TimeFormat stamps each line of an event log. Times are UTC.
const TimeFormat = "2006-01-02_15:04:05"

// EventLog is a monitor.Reporter that echoes every event through the
// context's logger and, if it has a sink, appends it there with a time
// stamp.
type EventLog struct {
	ctx      context.Context
	instance []int

	mu sync.Mutex
	w  io.Writer
}

// NewEventLog returns an EventLog labelled with instance. w may be nil.
func NewEventLog(ctx context.Context, w io.Writer, instance []int) *EventLog {
	return &EventLog{ctx: ctx, w: w, instance: instance}
}

// Event implements monitor.Reporter.
func (l *EventLog) Event(category monitor.Category, severity monitor.Severity, message string) {
	l.emit(FormatEvent(category, severity, message))
}

// SuiteCompleted implements monitor.Reporter.
func (l *EventLog) SuiteCompleted(run, failed, ignored int, duration string) {
	l.emit(FormatSuiteCompleted(run, failed, ignored, duration))
}

func (l *EventLog) emit(text string) {
	logger.Infof(l.ctx, "%s.", text)
	if l.w == nil {
		return
	}
	var b strings.Builder
	b.WriteString(clock.Now(l.ctx).UTC().Format(TimeFormat))
	if len(l.instance) > 0 {
		b.WriteString(" instance ")
		b.WriteString(monitor.InstanceText(l.instance))
	}
	b.WriteString(" ")
	b.WriteString(text)
	b.WriteString(".\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, b.String()); err != nil {
		logger.Warningf(l.ctx, "failed to write event log: %v", err)
	}
}

// FormatEvent renders an event without time stamp or terminating period.
// A name event carries its message bare; any other event puts it in
// parentheses.
func FormatEvent(category monitor.Category, severity monitor.Severity, message string) string {
	s := string(category) + " " + string(severity)
	switch {
	case message == "":
	case severity == monitor.SeverityName:
		s += " " + message
	default:
		s += " (" + message + ")"
	}
	return s
}

// FormatSuiteCompleted renders the final counts of a run.
func FormatSuiteCompleted(run, failed, ignored int, duration string) string {
	s := FormatEvent(monitor.CategoryTest, "suite completed", duration)
	s += fmt.Sprintf(": %d run, ", run)
	if failed > 0 {
		s += fmt.Sprintf("%d %s", failed, monitor.SeverityFailed)
	} else {
		s += fmt.Sprintf("%d failed", failed)
	}
	return s + fmt.Sprintf(", %d ignored", ignored)
}
