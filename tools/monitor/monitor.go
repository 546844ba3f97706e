// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package monitor watches the log output of a device under test, recognizes
// test progress and crashes in it, and decides the outcome of the run.
//
// A session reads lines from a transport on a dedicated goroutine (the
// pump) and classifies them on the calling goroutine, which also enforces
// the guard and inactivity timeouts. Watch returns when the device reports
// the end of the run, a timeout expires, the transport fails, or the
// context is cancelled.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"go.ubxlib.dev/automation/tools/lib/clock"
	"go.ubxlib.dev/automation/tools/lib/logger"
)

// AbnormalReturn is the return code of a session that did not complete.
const AbnormalReturn = -1

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultIdleDelay    = 10 * time.Millisecond
	defaultQueueDepth   = 1024
	defaultRebootGrace  = 2 * time.Second
	defaultSettle       = time.Second
)

// State is a step of the session state machine.
type State int

const (
	Starting State = iota
	Watching
	Completed
	GuardExpired
	InactivityExpired
	TransportError
	Cancelled
)

var stateNames = map[State]string{
	Starting:          "STARTING",
	Watching:          "WATCHING",
	Completed:         "COMPLETED",
	GuardExpired:      "GUARD_EXPIRED",
	InactivityExpired: "INACTIVITY_EXPIRED",
	TransportError:    "TRANSPORT_ERROR",
	Cancelled:         "CANCELLED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s != Starting && s != Watching
}

// Config holds the parameters of one session.
type Config struct {
	// Kind says how to read lines from the handle.
	Kind TransportKind
	// Terminator ends a line. Defaults to '\n'.
	Terminator byte

	// GuardTime bounds the whole session. Zero means unbounded.
	GuardTime time.Duration
	// InactivityTime bounds the gap between received lines. Zero means
	// unbounded.
	InactivityTime time.Duration

	// SendString, if set, is sent to the device through the interactive
	// test menu before watching starts. The handle must be writable.
	SendString string

	// Instance identifies the session in prompts and reports.
	Instance []int

	// DeviceLog, if set, receives every line read from the device.
	DeviceLog io.Writer
	// Reporter, if set, is notified of test progress.
	Reporter Reporter
	// Classifier defaults to DefaultClassifier().
	Classifier *Classifier

	// PollInterval bounds each wait for a line. Defaults to 500ms.
	PollInterval time.Duration
	// IdleDelay is the pause after a read that yields no line. Defaults
	// to 10ms.
	IdleDelay time.Duration
	// QueueDepth is the number of lines buffered between the pump and
	// the classifier. Defaults to 1024.
	QueueDepth int
	// RebootGrace is how long output is still collected after a reboot.
	// Defaults to 2s.
	RebootGrace time.Duration
	// HandshakeSettle is the pause before reading the test menu. Defaults
	// to 1s.
	HandshakeSettle time.Duration
}

func (c Config) withDefaults() Config {
	if c.Terminator == 0 {
		c.Terminator = '\n'
	}
	if c.Reporter == nil {
		c.Reporter = nopReporter{}
	}
	if c.Classifier == nil {
		c.Classifier = DefaultClassifier()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = defaultIdleDelay
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.RebootGrace <= 0 {
		c.RebootGrace = defaultRebootGrace
	}
	if c.HandshakeSettle <= 0 {
		c.HandshakeSettle = defaultSettle
	}
	return c
}

// InstanceText renders an instance identifier as dotted numbers.
func InstanceText(instance []int) string {
	parts := make([]string, len(instance))
	for i, n := range instance {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// ParseInstance is the inverse of InstanceText.
func ParseInstance(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var instance []int
	for _, part := range strings.Split(s, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid instance %q", s)
		}
		instance = append(instance, n)
	}
	return instance, nil
}

// Prompt is the prefix that labels the output of a session.
func Prompt(instance []int) string {
	if len(instance) == 0 {
		return "monitor: "
	}
	return "monitor_" + InstanceText(instance) + ": "
}

// Result describes how a session ended.
type Result struct {
	State State
	// ReturnCode is failures plus reboots for a completed session, and
	// AbnormalReturn otherwise.
	ReturnCode int
	// Run is the final run state.
	Run *RunState
	// Err is the transport or handshake error behind TransportError.
	Err error
	// BytesReceived counts what was read from the device while watching.
	BytesReceived uint64
}

// Watch runs a monitoring session over handle. The handle stays owned by the
// caller; Watch never closes it. Cancelling ctx ends the session in the
// Cancelled state.
func Watch(ctx context.Context, handle io.Reader, cfg Config) *Result {
	cfg = cfg.withDefaults()
	w := &watcher{cfg: cfg, run: NewRunState(clock.Now(ctx))}
	res := &Result{State: Starting, ReturnCode: AbnormalReturn, Run: w.run}

	logger.Debugf(ctx, "state %s", Starting)
	lr, err := NewLineReader(cfg.Kind, handle, cfg.Terminator)
	if err != nil {
		return w.abort(ctx, res, err)
	}
	if cfg.SendString != "" {
		var shared LineReader
		if cfg.Terminator == handshakeTerminator {
			shared = lr
		}
		if err := handshake(ctx, handle, shared, cfg.Kind, cfg.SendString, cfg.HandshakeSettle, cfg.DeviceLog); err != nil {
			return w.abort(ctx, res, err)
		}
	}

	now := clock.Now(ctx)
	w.run.OverallStart = now
	w.start, w.lastActivity = now, now
	res.State = Watching
	logger.Debugf(ctx, "state %s", Watching)
	logger.Infof(ctx, "watching output until run completes...")

	p := startPump(lr, cfg.IdleDelay, cfg.QueueDepth)
	res.State = w.loop(ctx, p, res)

	// The pump observes the stop signal as the finished flag.
	w.run.Finished = true
	p.halt(ctx, interrupter(handle))
	if ds, ok := handle.(deadlineSetter); ok {
		ds.SetReadDeadline(time.Time{})
	}
	for _, line := range p.drain() {
		w.logLine(ctx, line)
	}
	res.BytesReceived = lr.Received()

	switch res.State {
	case Completed:
		res.ReturnCode = w.run.ReturnCode()
	case GuardExpired:
		logger.Errorf(ctx, "guard timer (%s) expired.", cfg.GuardTime)
		cfg.Reporter.Event(CategoryInfrastructure, SeverityError, fmt.Sprintf("guard timer (%s) expired", cfg.GuardTime))
	case InactivityExpired:
		logger.Errorf(ctx, "inactivity timer (%s) expired.", cfg.InactivityTime)
		cfg.Reporter.Event(CategoryInfrastructure, SeverityError, fmt.Sprintf("inactivity timer (%s) expired", cfg.InactivityTime))
	case TransportError:
		logger.Errorf(ctx, "%v.", res.Err)
		cfg.Reporter.Event(CategoryInfrastructure, SeverityError, res.Err.Error())
	case Cancelled:
		logger.Warningf(ctx, "aborting as requested.")
	}
	logger.Debugf(ctx, "state %s", res.State)
	logger.Infof(ctx, "%s of device output received.", humanize.Bytes(res.BytesReceived))
	return res
}

type watcher struct {
	cfg          Config
	run          *RunState
	start        time.Time
	lastActivity time.Time
}

func (w *watcher) abort(ctx context.Context, res *Result, err error) *Result {
	res.State = TransportError
	res.Err = err
	w.run.Finished = true
	logger.Errorf(ctx, "unable to start: %v.", err)
	w.cfg.Reporter.Event(CategoryInfrastructure, SeverityError, err.Error())
	logger.Debugf(ctx, "state %s", res.State)
	return res
}

// loop dequeues and classifies lines until an exit condition holds, and
// returns the terminal state.
func (w *watcher) loop(ctx context.Context, p *pump, res *Result) State {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()
	items := p.items
	for {
		if s := w.exitState(ctx); s.Terminal() {
			return s
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.cfg.PollInterval)
		select {
		case it := <-items:
			if it.err != nil {
				err := it.err
				if !errors.Is(err, ErrTransportClosed) {
					err = fmt.Errorf("%w: %v", ErrTransportClosed, err)
				}
				if !w.run.FinishNoEarlierThan.IsZero() {
					// A device that reboots often drops off the bus;
					// the run still ends when the grace period does.
					logger.Debugf(ctx, "%v after reboot, waiting out the grace period", err)
					items = nil
					continue
				}
				res.Err = err
				return TransportError
			}
			w.lastActivity = clock.Now(ctx)
			w.logLine(ctx, it.line)
			if ev, ok := w.cfg.Classifier.Classify(it.line); ok {
				w.dispatch(ctx, ev)
			}
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}

// exitState evaluates the exit conditions in priority order.
func (w *watcher) exitState(ctx context.Context) State {
	now := clock.Now(ctx)
	switch {
	case w.run.FinishDue(now):
		return Completed
	case ctx.Err() != nil:
		return Cancelled
	case w.cfg.GuardTime > 0 && now.Sub(w.start) >= w.cfg.GuardTime:
		return GuardExpired
	case w.cfg.InactivityTime > 0 && now.Sub(w.lastActivity) >= w.cfg.InactivityTime:
		return InactivityExpired
	}
	return Watching
}

func (w *watcher) logLine(ctx context.Context, line string) {
	logger.Tracef(ctx, "%s", line)
	if w.cfg.DeviceLog != nil {
		fmt.Fprintln(w.cfg.DeviceLog, line)
	}
}

// dispatch applies a classified event to the run state and tells the
// operator and the reporter about it.
func (w *watcher) dispatch(ctx context.Context, ev Event) {
	now := clock.Now(ctx)
	rep := w.cfg.Reporter
	switch ev.Kind {
	case RebootEvent:
		w.run.Reboot(now, w.cfg.RebootGrace)
		logger.Errorf(ctx, "progress update - target has rebooted!")
		rep.Event(CategoryTest, SeverityError, "target has rebooted")
	case ItemStartEvent:
		w.run.StartItem(now)
		logger.Infof(ctx, "progress update - item %s() started on %s.", ev.Item, now.Format(time.ANSIC))
	case ItemPassEvent:
		o := w.run.PassItem(ev.Item, now)
		msg := fmt.Sprintf("%s() passed on %s after running for %d second(s)", ev.Item, now.Format(time.ANSIC), o.Duration)
		logger.Infof(ctx, "progress update - item %s.", msg)
		rep.Event(CategoryTest, SeverityPassed, msg)
	case ItemFailEvent:
		o := w.run.FailItem(ev.Item, ev.Reason, now)
		msg := fmt.Sprintf("%s() FAILED on %s after running for %d second(s)", ev.Item, now.Format(time.ANSIC), o.Duration)
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		logger.Infof(ctx, "progress update - item %s.", msg)
		rep.Event(CategoryTest, SeverityFailed, msg)
	case RunFinishedEvent:
		took := w.run.FinishRun(ev.Run, ev.Failed, ev.Ignored, now)
		logger.Infof(ctx, "run completed on %s, %d item(s) run, %d item(s) failed, %d item(s) ignored, run took %s.",
			now.Format(time.ANSIC), ev.Run, ev.Failed, ev.Ignored, took)
		rep.SuiteCompleted(ev.Run, ev.Failed, ev.Ignored, "run took "+took)
	}
}

// interrupter returns a function that unblocks a pending read on handle, if
// the handle supports read deadlines.
func interrupter(handle io.Reader) func() {
	ds, ok := handle.(deadlineSetter)
	if !ok {
		return nil
	}
	return func() {
		ds.SetReadDeadline(time.Now())
	}
}
