// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

// Category is the area of automation an event belongs to.
type Category string

const (
	CategoryCheck          Category = "check"
	CategoryBuild          Category = "build"
	CategoryDownload       Category = "download"
	CategoryBuildDownload  Category = "build/download"
	CategoryTest           Category = "test"
	CategoryInfrastructure Category = "infrastructure"
)

// Severity says what happened.
type Severity string

const (
	SeverityStart       Severity = "start"
	SeverityComplete    Severity = "complete"
	SeverityFailed      Severity = "*** FAILED ***"
	SeverityPassed      Severity = "PASSED"
	SeverityName        Severity = "name"
	SeverityInformation Severity = "information"
	SeverityWarning     Severity = "*** WARNING ***"
	SeverityError       Severity = "*** ERROR ***"
)

// Reporter receives discrete notifications as a session progresses. Calls
// are made from the goroutine running Watch, in order.
type Reporter interface {
	// Event reports a single occurrence.
	Event(category Category, severity Severity, message string)
	// SuiteCompleted reports the device's final counts and a description
	// of how long the run took.
	SuiteCompleted(run, failed, ignored int, duration string)
}

type nopReporter struct{}

func (nopReporter) Event(Category, Severity, string)     {}
func (nopReporter) SuiteCompleted(int, int, int, string) {}
