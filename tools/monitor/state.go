// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"fmt"
	"math"
	"time"
)

// Status is the verdict on one item.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Outcome is the recorded result of one completed item.
type Outcome struct {
	Name string
	// Duration is in whole seconds, rounded up.
	Duration int
	Status   Status
	// Message is the failure reason, if the device gave one.
	Message string
}

// RunState is the mutable record of one monitoring session. It is owned by
// the goroutine running Watch and needs no locking.
type RunState struct {
	// Finished is set by a run summary, or once the grace period after a
	// reboot has passed.
	Finished bool
	// FinishNoEarlierThan is the end of the grace period after the first
	// reboot. It is zero until a reboot is seen.
	FinishNoEarlierThan time.Time

	Reboots      int
	ItemsRun     int
	ItemsFailed  int
	ItemsIgnored int

	OverallStart  time.Time
	LastItemStart time.Time

	// Outcomes only grows, in the order items resolved.
	Outcomes []Outcome
}

// NewRunState returns the state of a session starting at now.
func NewRunState(now time.Time) *RunState {
	return &RunState{OverallStart: now, LastItemStart: now}
}

// Reboot counts a reboot and schedules the session to finish after grace.
// A later reboot does not push the finish time back.
func (rs *RunState) Reboot(now time.Time, grace time.Duration) {
	rs.Reboots++
	if rs.FinishNoEarlierThan.IsZero() {
		rs.FinishNoEarlierThan = now.Add(grace)
	}
}

// StartItem notes that an item started running. An earlier item that never
// resolved is left without an outcome.
func (rs *RunState) StartItem(now time.Time) {
	rs.LastItemStart = now
	rs.ItemsRun++
}

// PassItem records a passing outcome for name.
func (rs *RunState) PassItem(name string, now time.Time) Outcome {
	return rs.record(Outcome{Name: name, Duration: wholeSeconds(now.Sub(rs.LastItemStart)), Status: StatusPass})
}

// FailItem records a failing outcome for name.
func (rs *RunState) FailItem(name, reason string, now time.Time) Outcome {
	rs.ItemsFailed++
	return rs.record(Outcome{Name: name, Duration: wholeSeconds(now.Sub(rs.LastItemStart)), Status: StatusFail, Message: reason})
}

func (rs *RunState) record(o Outcome) Outcome {
	rs.Outcomes = append(rs.Outcomes, o)
	return o
}

// FinishRun takes the device's summary counts as final and marks the run
// finished. It returns the elapsed run time as H:MM:SS.
func (rs *RunState) FinishRun(run, failed, ignored int, now time.Time) string {
	rs.ItemsRun, rs.ItemsFailed, rs.ItemsIgnored = run, failed, ignored
	rs.Finished = true
	return FormatElapsed(now.Sub(rs.OverallStart))
}

// FinishDue reports whether the session should end normally at now,
// marking it finished when a reboot grace period has run out.
func (rs *RunState) FinishDue(now time.Time) bool {
	if !rs.Finished && !rs.FinishNoEarlierThan.IsZero() && !now.Before(rs.FinishNoEarlierThan) {
		rs.Finished = true
	}
	return rs.Finished
}

// ReturnCode is the result of a completed session: failures plus reboots.
func (rs *RunState) ReturnCode() int {
	return rs.ItemsFailed + rs.Reboots
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// FormatElapsed renders d as H:MM:SS, dropping fractions of a second.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
