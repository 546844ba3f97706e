// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.ubxlib.dev/automation/tools/lib/logger"
	"go.ubxlib.dev/automation/tools/monitor"
	"go.ubxlib.dev/automation/tools/testing/runtests"
	"go.ubxlib.dev/automation/tools/testing/tap"
)

// Outputs names the documents to write at the end of a session. Empty
// paths are skipped.
type Outputs struct {
	XML         string `yaml:"xml"`
	SummaryJSON string `yaml:"summary_json"`
	TAP         string `yaml:"tap"`
}

// NewSummary converts a run into the JSON summary shape.
func NewSummary(name string, run *monitor.RunState) *runtests.TestSummary {
	s := &runtests.TestSummary{Suite: name, Tests: []runtests.TestDetails{}}
	for _, o := range run.Outcomes {
		result := runtests.TestSuccess
		if o.Status == monitor.StatusFail {
			result = runtests.TestFailure
		}
		s.Tests = append(s.Tests, runtests.TestDetails{
			Name:           o.Name,
			Result:         result,
			Message:        o.Message,
			DurationMillis: secondsToMillis(o.Duration),
		})
	}
	return s
}

// WriteTAP writes the outcomes of res as TAP. A session that did not
// complete bails out after the outcomes it did record.
func WriteTAP(w io.Writer, res *monitor.Result) error {
	p := tap.NewProducer(w)
	run := res.Run
	p.Plan(len(run.Outcomes))
	for _, o := range run.Outcomes {
		p.Ok(o.Status == monitor.StatusPass, o.Name)
		fields := map[string]interface{}{"duration_seconds": o.Duration}
		if o.Message != "" {
			fields["message"] = o.Message
		}
		if err := p.Diagnostic(fields); err != nil {
			return err
		}
	}
	if res.State != monitor.Completed {
		p.BailOut(res.State.String())
	}
	return nil
}

// WriteAll writes every document requested in out, concurrently.
func WriteAll(ctx context.Context, name string, res *monitor.Result, out Outputs) error {
	var eg errgroup.Group
	write := func(path string, fn func(io.Writer) error) {
		if path == "" {
			return
		}
		eg.Go(func() error {
			if err := writeFile(path, fn); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			logger.Debugf(ctx, "wrote %s", path)
			return nil
		})
	}
	write(out.XML, NewTestSuite(name, res.Run).Write)
	write(out.SummaryJSON, NewSummary(name, res.Run).Write)
	write(out.TAP, func(w io.Writer) error { return WriteTAP(w, res) })
	return eg.Wait()
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return fn(f)
}

func secondsToMillis(s int) int64 {
	return (time.Duration(s) * time.Second).Milliseconds()
}
