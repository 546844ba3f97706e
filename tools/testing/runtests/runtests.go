// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runtests defines the JSON summary of a monitored test run, the
// format consumed by dashboards that aggregate results across devices.
package runtests

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// TestResult is the exit result of a test.
type TestResult string

const (
	// TestSummaryFilename is the conventional name of the summary file.
	TestSummaryFilename = "summary.json"

	// TestSuccess represents a passed test.
	TestSuccess TestResult = "PASS"

	// TestFailure represents a failed test.
	TestFailure TestResult = "FAIL"
)

// TestSummary is a summary of a suite of test runs.
type TestSummary struct {
	// Suite names the monitored session, e.g. "instance 0.1".
	Suite string `json:"suite,omitempty"`

	// Tests is a list of the details of the test runs.
	Tests []TestDetails `json:"tests"`

	// Outputs gives the suite-wide outputs, mapping canonical name of the
	// output to its path.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// TestDetails contains the details of a test run.
type TestDetails struct {
	// Name is the name of the test.
	Name string `json:"name"`

	// Result is the result of the test.
	Result TestResult `json:"result"`

	// Message is the failure reason reported by the device, if any.
	Message string `json:"message,omitempty"`

	// Duration is how long the test execution took.
	DurationMillis int64 `json:"duration_milliseconds"`
}

// Write encodes the summary as indented JSON.
func (s *TestSummary) Write(w io.Writer) error {
	if s.Tests == nil {
		s.Tests = []TestDetails{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// LoadTestSummary reads a summary previously written with Write.
func LoadTestSummary(path string) (*TestSummary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s TestSummary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &s, nil
}
