// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.ubxlib.dev/automation/tools/monitor"
	"go.ubxlib.dev/automation/tools/testing/runtests"
)

func TestNewSummary(t *testing.T) {
	got := NewSummary("instance 0", sampleRun())
	want := &runtests.TestSummary{
		Suite: "instance 0",
		Tests: []runtests.TestDetails{
			{Name: "portInit", Result: runtests.TestSuccess, DurationMillis: 3000},
			{Name: "portQueue", Result: runtests.TestFailure, Message: "Expected 0 Was -5", DurationMillis: 2000},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteTAP(t *testing.T) {
	res := &monitor.Result{State: monitor.InactivityExpired, Run: sampleRun()}
	var b bytes.Buffer
	if err := WriteTAP(&b, res); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"TAP version 13",
		"1..2",
		"ok 1 portInit",
		"  ---",
		"  duration_seconds: 3",
		"  ...",
		"not ok 2 portQueue",
		"  ---",
		"  duration_seconds: 2",
		"  message: Expected 0 Was -5",
		"  ...",
		"Bail out! INACTIVITY_EXPIRED",
		"",
	}, "\n")
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("TAP mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	out := Outputs{
		XML:         filepath.Join(dir, "report.xml"),
		SummaryJSON: filepath.Join(dir, runtests.TestSummaryFilename),
		TAP:         filepath.Join(dir, "report.tap"),
	}
	res := &monitor.Result{State: monitor.Completed, Run: sampleRun()}
	if err := WriteAll(context.Background(), "monitor", res, out); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{out.XML, out.SummaryJSON, out.TAP} {
		if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
			t.Errorf("%s not written: %v", path, err)
		}
	}
	s, err := runtests.LoadTestSummary(out.SummaryJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Tests) != 2 {
		t.Errorf("summary has %d tests, want 2", len(s.Tests))
	}
}

func TestWriteAllSkipsEmptyPaths(t *testing.T) {
	res := &monitor.Result{State: monitor.Completed, Run: sampleRun()}
	if err := WriteAll(context.Background(), "monitor", res, Outputs{}); err != nil {
		t.Errorf("WriteAll with no outputs: %v", err)
	}
}

func TestWriteAllReportsErrors(t *testing.T) {
	res := &monitor.Result{State: monitor.Completed, Run: sampleRun()}
	out := Outputs{XML: filepath.Join(t.TempDir(), "missing", "report.xml")}
	if err := WriteAll(context.Background(), "monitor", res, out); err == nil {
		t.Error("expected an error writing into a missing directory")
	}
}
