// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/acarl005/stripansi"
)

// EventKind identifies what a classified line means.
type EventKind int

const (
	// RebootEvent means the device crashed or reset.
	RebootEvent EventKind = iota + 1
	// ItemStartEvent means a test item began running.
	ItemStartEvent
	// ItemPassEvent means the running item passed.
	ItemPassEvent
	// ItemFailEvent means the running item failed.
	ItemFailEvent
	// RunFinishedEvent carries the device's own summary of the run.
	RunFinishedEvent
)

var eventKindNames = map[EventKind]string{
	RebootEvent:      "reboot",
	ItemStartEvent:   "item-start",
	ItemPassEvent:    "item-pass",
	ItemFailEvent:    "item-fail",
	RunFinishedEvent: "run-finished",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is the result of classifying one line. Which fields are set
// depends on Kind.
type Event struct {
	Kind EventKind
	// Line is the line that matched, as received.
	Line string
	// Marker names the recognizer that matched.
	Marker string
	// Item is set for the item events.
	Item string
	// Reason is the text after ":FAIL:" on an item failure.
	Reason string
	// Run, Failed and Ignored are set for RunFinishedEvent.
	Run, Failed, Ignored int
}

// Recognizer maps lines matching Pattern to events of kind Kind. Item
// events take the item name from the first capture group; an item failure
// takes its reason from the second, if present. A run summary needs three
// groups holding the run, failed and ignored counts.
type Recognizer struct {
	Name    string
	Kind    EventKind
	Pattern *regexp.Regexp
}

func (r Recognizer) minGroups() int {
	switch r.Kind {
	case ItemStartEvent, ItemPassEvent, ItemFailEvent:
		return 1
	case RunFinishedEvent:
		return 3
	}
	return 0
}

func (r Recognizer) event(line string, m []string) (Event, bool) {
	ev := Event{Kind: r.Kind, Line: line, Marker: r.Name}
	switch r.Kind {
	case ItemStartEvent, ItemPassEvent:
		ev.Item = m[1]
	case ItemFailEvent:
		ev.Item = m[1]
		if len(m) > 2 {
			ev.Reason = m[2]
		}
	case RunFinishedEvent:
		counts := make([]int, 3)
		for i := range counts {
			n, err := strconv.Atoi(m[i+1])
			if err != nil {
				return Event{}, false
			}
			counts[i] = n
		}
		ev.Run, ev.Failed, ev.Ignored = counts[0], counts[1], counts[2]
	}
	return ev, true
}

// DefaultRecognizers returns the recognizer table for Unity test output and
// the crash banners of the supported platforms, in priority order.
//
// Each call compiles a fresh table; callers are expected to build a
// Classifier once and reuse it.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{"abort", RebootEvent, regexp.MustCompile(`^abort`)},
		{"esp32 guru meditation", RebootEvent, regexp.MustCompile(`^Guru Meditation Error`)},
		{"nrf hardfault", RebootEvent, regexp.MustCompile(`^<error> hardfault`)},
		{"zephyr fatal error", RebootEvent, regexp.MustCompile(`^>>> ZEPHYR FATAL ERROR`)},
		{"item start", ItemStartEvent, regexp.MustCompile(`^.*Running +([^.]+)\..{2}$`)},
		{"item pass", ItemPassEvent, regexp.MustCompile(`^.*?\.c:[0-9]*:(.*?):PASS$`)},
		{"item fail", ItemFailEvent, regexp.MustCompile(`^.*?\.c:[0-9]*:(.*?):FAIL:(.*)$`)},
		{"run summary", RunFinishedEvent, regexp.MustCompile(`^([0-9]+) Tests* ([0-9]+) Failures* ([0-9]+) Ignored`)},
	}
}

// Classifier matches lines against an ordered recognizer table. The first
// recognizer that matches decides the event; the rest are not tried. A
// Classifier is immutable and safe for concurrent use.
type Classifier struct {
	recognizers []Recognizer
}

// NewClassifier returns a Classifier over a copy of recognizers.
func NewClassifier(recognizers []Recognizer) (*Classifier, error) {
	rs := make([]Recognizer, len(recognizers))
	for i, r := range recognizers {
		if r.Pattern == nil {
			return nil, fmt.Errorf("recognizer %q has no pattern", r.Name)
		}
		if _, ok := eventKindNames[r.Kind]; !ok {
			return nil, fmt.Errorf("recognizer %q has unknown kind %d", r.Name, r.Kind)
		}
		if n := r.Pattern.NumSubexp(); n < r.minGroups() {
			return nil, fmt.Errorf("recognizer %q has %d capture group(s), a %s recognizer needs %d", r.Name, n, r.Kind, r.minGroups())
		}
		rs[i] = r
	}
	return &Classifier{recognizers: rs}, nil
}

// DefaultClassifier returns a Classifier over DefaultRecognizers.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRecognizers())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the event for line, if any recognizer matches it. Color
// escape sequences are removed before matching.
func (c *Classifier) Classify(line string) (Event, bool) {
	plain := stripansi.Strip(line)
	for _, r := range c.recognizers {
		m := r.Pattern.FindStringSubmatch(plain)
		if m == nil {
			continue
		}
		return r.event(line, m)
	}
	return Event{}, false
}
