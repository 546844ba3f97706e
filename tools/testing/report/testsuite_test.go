// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package report

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.ubxlib.dev/automation/tools/monitor"
)

func sampleRun() *monitor.RunState {
	start := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	rs := monitor.NewRunState(start)
	rs.StartItem(start)
	rs.PassItem("portInit", start.Add(3*time.Second))
	rs.StartItem(start.Add(3 * time.Second))
	rs.FailItem("portQueue", "Expected 0 Was -5", start.Add(4500*time.Millisecond))
	rs.FinishRun(2, 1, 0, start.Add(5*time.Second))
	return rs
}

func TestTestSuiteWrite(t *testing.T) {
	var b bytes.Buffer
	if err := NewTestSuite(SuiteName([]int{0}), sampleRun()).Write(&b); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		`<testsuite name="instance 0" tests="2" failures="1">`,
		`    <testcase classname="ubxlib_tests" name="portInit" time="3" status="PASS"></testcase>`,
		`    <testcase classname="ubxlib_tests" name="portQueue" time="2" status="FAIL" message="Expected 0 Was -5"></testcase>`,
		`</testsuite>`,
		``,
	}, "\n")
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("XML mismatch (-want +got):\n%s", diff)
	}
}

func TestTestSuiteRoundTrip(t *testing.T) {
	run := sampleRun()
	var b bytes.Buffer
	if err := NewTestSuite("monitor", run).Write(&b); err != nil {
		t.Fatal(err)
	}
	var got TestSuite
	if err := xml.Unmarshal(b.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.TestCases) != len(run.Outcomes) {
		t.Fatalf("got %d test cases, want %d", len(got.TestCases), len(run.Outcomes))
	}
	for i, o := range run.Outcomes {
		tc := got.TestCases[i]
		if tc.Name != o.Name || tc.Status != string(o.Status) || tc.Time != o.Duration {
			t.Errorf("test case %d = %+v, want outcome %+v", i, tc, o)
		}
	}
}

func TestSuiteName(t *testing.T) {
	if got := SuiteName(nil); got != "monitor" {
		t.Errorf("SuiteName(nil) = %q", got)
	}
	if got := SuiteName([]int{1, 2}); got != "instance 1.2" {
		t.Errorf("SuiteName([1 2]) = %q", got)
	}
}
