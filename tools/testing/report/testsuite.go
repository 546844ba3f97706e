// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package report

import (
	"encoding/xml"
	"io"

	"go.ubxlib.dev/automation/tools/monitor"
)

// ClassName is the classname of every test case in the XML document.
const ClassName = "ubxlib_tests"

// TestSuite is the XML test report of one session. Attribute names and
// their order are consumed by report aggregators and must not change.
type TestSuite struct {
	XMLName   xml.Name   `xml:"testsuite"`
	Name      string     `xml:"name,attr"`
	Tests     int        `xml:"tests,attr"`
	Failures  int        `xml:"failures,attr"`
	TestCases []TestCase `xml:"testcase"`
}

// TestCase is one recorded outcome.
type TestCase struct {
	ClassName string `xml:"classname,attr"`
	Name      string `xml:"name,attr"`
	Time      int    `xml:"time,attr"`
	Status    string `xml:"status,attr"`
	Message   string `xml:"message,attr,omitempty"`
}

// SuiteName names the suite after the instance, if there is one.
func SuiteName(instance []int) string {
	if len(instance) == 0 {
		return "monitor"
	}
	return "instance " + monitor.InstanceText(instance)
}

// NewTestSuite builds the XML document for a run. Every outcome appears
// once, in the order it was recorded.
func NewTestSuite(name string, run *monitor.RunState) *TestSuite {
	ts := &TestSuite{
		Name:      name,
		Tests:     run.ItemsRun,
		Failures:  run.ItemsFailed,
		TestCases: make([]TestCase, 0, len(run.Outcomes)),
	}
	for _, o := range run.Outcomes {
		ts.TestCases = append(ts.TestCases, TestCase{
			ClassName: ClassName,
			Name:      o.Name,
			Time:      o.Duration,
			Status:    string(o.Status),
			Message:   o.Message,
		})
	}
	return ts
}

// Write serializes the suite, indenting test cases by four spaces.
func (ts *TestSuite) Write(w io.Writer) error {
	b, err := xml.MarshalIndent(ts, "", "    ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
