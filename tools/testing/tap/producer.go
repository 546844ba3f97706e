// Copyright 2019 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Producer produces TAP output.
//
// This producer always includes test numbers.
type Producer struct {
	output     io.Writer
	testNumber int
}

// NewProducer creates a new Producer that writes to the given Writer.
func NewProducer(w io.Writer) *Producer {
	p := &Producer{output: w}
	p.writeln("TAP version 13")
	return p
}

// Plan outputs the TAP plan line: 1..count.  If count <= 0, nothing is printed
func (p *Producer) Plan(count int) {
	if count > 0 {
		p.writeln("1..%d", count)
	}
}

// Ok outputs a test line containing the given description and starting with either "ok"
// if test is true or "not ok" if false.
func (p *Producer) Ok(test bool, description string) {
	p.testNumber++
	ok := "ok"
	if !test {
		ok = "not ok"
	}
	p.writeln("%s %d %s", ok, p.testNumber, description)
}

// Diagnostic attaches a YAML block to the preceding test line, as TAP 13
// allows.
func (p *Producer) Diagnostic(fields map[string]interface{}) error {
	b, err := yaml.Marshal(fields)
	if err != nil {
		return err
	}
	p.writeln("  ---")
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		fmt.Fprintf(p.writer(), "  %s\n", line)
	}
	p.writeln("  ...")
	return nil
}

// BailOut reports that the run was abandoned.
func (p *Producer) BailOut(reason string) {
	p.writeln("Bail out! %s", reason)
}

func (p *Producer) writeln(format string, args ...interface{}) {
	line := strings.TrimRight(fmt.Sprintf(format, args...), " \t") + "\n"
	io.WriteString(p.writer(), line)
}

// writer initializes the Writer to use for this Producer, in case the Producer was
// initialized with nil output.
func (p *Producer) writer() io.Writer {
	if p.output == nil {
		p.output = os.Stdout
	}
	return p.output
}
