// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.ubxlib.dev/automation/tools/lib/clock"
)

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) Event(c Category, s Severity, msg string) {
	r.events = append(r.events, fmt.Sprintf("%s %s", c, s))
}

func (r *recordingReporter) SuiteCompleted(run, failed, ignored int, duration string) {
	r.events = append(r.events, fmt.Sprintf("suite completed %d/%d/%d", run, failed, ignored))
}

// newDevice returns the monitor's end and the device's end of a connection.
func newDevice(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	host, device := net.Pipe()
	t.Cleanup(func() {
		host.Close()
		device.Close()
	})
	return host, device
}

// emit writes lines to the device end on a separate goroutine.
func emit(device net.Conn, term string, lines ...string) <-chan error {
	errs := make(chan error, 1)
	go func() {
		for _, l := range lines {
			if _, err := io.WriteString(device, l+term); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()
	return errs
}

func testConfig() Config {
	return Config{
		Kind:         StreamTransport,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestWatchCompleted(t *testing.T) {
	host, device := newDevice(t)
	var deviceLog bytes.Buffer
	rep := &recordingReporter{}
	cfg := testConfig()
	cfg.DeviceLog = &deviceLog
	cfg.Reporter = rep

	lines := []string{
		"I (316) cpu_start: Starting scheduler on PRO CPU.",
		"Running testFoo...",
		"/a/b.c:10:testFoo:PASS",
		"Running testBar...",
		"/a/b.c:20:testBar:FAIL: Expected 1 Was 2",
		"Running testBaz...",
		"/a/b.c:30:testBaz:PASS",
		"3 Tests 1 Failures 0 Ignored",
	}
	errs := emit(device, "\n", lines...)
	ctx := clock.NewContext(context.Background(), clock.NewFakeClock())
	res := Watch(ctx, host, cfg)
	if err := <-errs; err != nil {
		t.Fatal(err)
	}

	if res.State != Completed || res.ReturnCode != 1 {
		t.Fatalf("Watch() = %s with code %d, want %s with code 1 (err %v)", res.State, res.ReturnCode, Completed, res.Err)
	}
	wantOutcomes := []Outcome{
		{Name: "testFoo", Status: StatusPass},
		{Name: "testBar", Status: StatusFail, Message: " Expected 1 Was 2"},
		{Name: "testBaz", Status: StatusPass},
	}
	if diff := cmp.Diff(wantOutcomes, res.Run.Outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if res.Run.ItemsRun != 3 || res.Run.ItemsFailed != 1 || res.Run.ItemsIgnored != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/1/0", res.Run.ItemsRun, res.Run.ItemsFailed, res.Run.ItemsIgnored)
	}
	wantEvents := []string{
		"test PASSED",
		"test *** FAILED ***",
		"test PASSED",
		"suite completed 3/1/0",
	}
	if diff := cmp.Diff(wantEvents, rep.events); diff != "" {
		t.Errorf("reported events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(strings.Join(lines, "\n")+"\n", deviceLog.String()); diff != "" {
		t.Errorf("device log mismatch (-want +got):\n%s", diff)
	}
	if want := uint64(len(strings.Join(lines, "\n")) + 1); res.BytesReceived != want {
		t.Errorf("BytesReceived = %d, want %d", res.BytesReceived, want)
	}
}

func TestWatchRebootCollectsTrailingOutput(t *testing.T) {
	host, device := newDevice(t)
	var deviceLog bytes.Buffer
	rep := &recordingReporter{}
	cfg := testConfig()
	cfg.DeviceLog = &deviceLog
	cfg.Reporter = rep

	errs := emit(device, "\r\n",
		"Running testFoo...",
		"Guru Meditation Error: Core  0 panic'ed (LoadProhibited).",
		"Backtrace:0x400d2f7e:0x3ffb5d60",
		"Rebooting...",
	)
	start := time.Now()
	res := Watch(context.Background(), host, cfg)
	if err := <-errs; err != nil {
		t.Fatal(err)
	}

	if res.State != Completed {
		t.Fatalf("Watch() state = %s, want %s (err %v)", res.State, Completed, res.Err)
	}
	if res.Run.Reboots != 1 || res.ReturnCode != 1 {
		t.Errorf("reboots = %d, code = %d; want 1 and 1", res.Run.Reboots, res.ReturnCode)
	}
	if elapsed := time.Since(start); elapsed < defaultRebootGrace {
		t.Errorf("session ended %s after start, before the reboot grace period", elapsed)
	}
	for _, l := range []string{"Backtrace:0x400d2f7e:0x3ffb5d60", "Rebooting..."} {
		if !strings.Contains(deviceLog.String(), l+"\n") {
			t.Errorf("device log is missing trailing line %q:\n%s", l, deviceLog.String())
		}
	}
	if diff := cmp.Diff([]string{"test *** ERROR ***"}, rep.events); diff != "" {
		t.Errorf("reported events mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchInactivityExpired(t *testing.T) {
	host, device := newDevice(t)
	cfg := testConfig()
	cfg.InactivityTime = time.Second
	cfg.GuardTime = time.Minute

	errs := emit(device, "\n", "Running testFoo...")
	start := time.Now()
	res := Watch(context.Background(), host, cfg)
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
	if res.State != InactivityExpired || res.ReturnCode >= 0 {
		t.Fatalf("Watch() = %s with code %d, want %s with a negative code", res.State, res.ReturnCode, InactivityExpired)
	}
	if elapsed := time.Since(start); elapsed < time.Second || elapsed > 10*time.Second {
		t.Errorf("inactivity expired after %s, want about a second", elapsed)
	}
	if res.Run.ItemsRun != 1 {
		t.Errorf("ItemsRun = %d, want 1", res.Run.ItemsRun)
	}
}

func TestWatchGuardExpired(t *testing.T) {
	host, device := newDevice(t)
	cfg := testConfig()
	cfg.GuardTime = 300 * time.Millisecond
	cfg.InactivityTime = time.Minute

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
			}
			if _, err := io.WriteString(device, "still alive\n"); err != nil {
				return
			}
		}
	}()

	res := Watch(context.Background(), host, cfg)
	if res.State != GuardExpired || res.ReturnCode != AbnormalReturn {
		t.Fatalf("Watch() = %s with code %d, want %s with code %d", res.State, res.ReturnCode, GuardExpired, AbnormalReturn)
	}
}

func TestWatchTransportError(t *testing.T) {
	host, device := newDevice(t)
	rep := &recordingReporter{}
	cfg := testConfig()
	cfg.Reporter = rep

	errs := emit(device, "\n", "Running testFoo...")
	go func() {
		<-errs
		device.Close()
	}()
	res := Watch(context.Background(), host, cfg)
	if res.State != TransportError || res.ReturnCode != AbnormalReturn {
		t.Fatalf("Watch() = %s with code %d, want %s with code %d", res.State, res.ReturnCode, TransportError, AbnormalReturn)
	}
	if !errors.Is(res.Err, ErrTransportClosed) {
		t.Errorf("Err = %v, want ErrTransportClosed", res.Err)
	}
	// The line read before the failure is still classified.
	if res.Run.ItemsRun != 1 {
		t.Errorf("ItemsRun = %d, want 1", res.Run.ItemsRun)
	}
	if diff := cmp.Diff([]string{"infrastructure *** ERROR ***"}, rep.events); diff != "" {
		t.Errorf("reported events mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchCancelled(t *testing.T) {
	host, _ := newDevice(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res := Watch(ctx, host, testConfig())
	if res.State != Cancelled || res.ReturnCode != AbnormalReturn {
		t.Fatalf("Watch() = %s with code %d, want %s with code %d", res.State, res.ReturnCode, Cancelled, AbnormalReturn)
	}
	if !res.Run.Finished {
		t.Errorf("run was not marked finished")
	}
}

func TestWatchHandshake(t *testing.T) {
	host, device := newDevice(t)
	cfg := testConfig()
	cfg.Terminator = '\r'
	cfg.SendString = "[port]"
	cfg.HandshakeSettle = 10 * time.Millisecond

	received := make(chan string, 2)
	go func() {
		if _, err := io.WriteString(device, "ESP-IDF v4.2\rPress ENTER to see the list of tests.\r"); err != nil {
			return
		}
		buf := make([]byte, 2)
		if _, err := io.ReadFull(device, buf); err != nil {
			return
		}
		received <- string(buf)
		buf = make([]byte, len("[port]\r\n"))
		if _, err := io.ReadFull(device, buf); err != nil {
			return
		}
		received <- string(buf)
		io.WriteString(device, "Running portInit...\r\n/a/u_port_test.c:5:portInit:PASS\r\n1 Tests 0 Failures 0 Ignored\r\n")
	}()

	res := Watch(context.Background(), host, cfg)
	if res.State != Completed || res.ReturnCode != 0 {
		t.Fatalf("Watch() = %s with code %d, want %s with code 0 (err %v)", res.State, res.ReturnCode, Completed, res.Err)
	}
	if got := <-received; got != "\r\n" {
		t.Errorf("device first received %q, want %q", got, "\r\n")
	}
	if got := <-received; got != "[port]\r\n" {
		t.Errorf("device then received %q, want %q", got, "[port]\r\n")
	}
	if diff := cmp.Diff([]Outcome{{Name: "portInit", Status: StatusPass}}, res.Run.Outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchHandshakeNeedsWritableTransport(t *testing.T) {
	cfg := testConfig()
	cfg.SendString = "[port]"
	res := Watch(context.Background(), strings.NewReader("Press ENTER to see the list of tests.\r"), cfg)
	if res.State != TransportError || !errors.Is(res.Err, ErrHandshake) {
		t.Fatalf("Watch() = %s (%v), want %s wrapping ErrHandshake", res.State, res.Err, TransportError)
	}
	if res.ReturnCode != AbnormalReturn {
		t.Errorf("ReturnCode = %d, want %d", res.ReturnCode, AbnormalReturn)
	}
}

func TestDispatchDurations(t *testing.T) {
	fakeClock := clock.NewFakeClock()
	ctx := clock.NewContext(context.Background(), fakeClock)
	w := &watcher{cfg: testConfig().withDefaults(), run: NewRunState(fakeClock.Now())}

	feed := func(line string) {
		if ev, ok := w.cfg.Classifier.Classify(line); ok {
			w.dispatch(ctx, ev)
		}
	}
	feed("Running testFoo...")
	fakeClock.Advance(3 * time.Second)
	feed("/a/b.c:10:testFoo:PASS")
	feed("Running testBar...")
	fakeClock.Advance(1500 * time.Millisecond)
	feed("/a/b.c:12:testBar:FAIL: timeout")
	// A replayed line is a second, independent event.
	feed("/a/b.c:12:testBar:FAIL: timeout")
	feed("22 Tests 1 Failures 0 Ignored")

	want := []Outcome{
		{Name: "testFoo", Duration: 3, Status: StatusPass},
		{Name: "testBar", Duration: 2, Status: StatusFail, Message: " timeout"},
		{Name: "testBar", Duration: 2, Status: StatusFail, Message: " timeout"},
	}
	if diff := cmp.Diff(want, w.run.Outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if w.run.ItemsRun != 22 || w.run.ItemsFailed != 1 || w.run.ItemsIgnored != 0 {
		t.Errorf("counts = %d/%d/%d, want 22/1/0", w.run.ItemsRun, w.run.ItemsFailed, w.run.ItemsIgnored)
	}
	if got := w.run.ReturnCode(); got != 1 {
		t.Errorf("ReturnCode() = %d, want 1", got)
	}
}

func TestPrompt(t *testing.T) {
	if got := Prompt(nil); got != "monitor: " {
		t.Errorf("Prompt(nil) = %q", got)
	}
	instance, err := ParseInstance("0.1")
	if err != nil {
		t.Fatal(err)
	}
	if got := Prompt(instance); got != "monitor_0.1: " {
		t.Errorf("Prompt(%v) = %q", instance, got)
	}
	if _, err := ParseInstance("0.x"); err == nil {
		t.Errorf("ParseInstance(%q) succeeded", "0.x")
	}
}

func TestWatchRebootThenTransportClosed(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	var deviceLog bytes.Buffer
	cfg := testConfig()
	cfg.Kind = PipeTransport
	cfg.DeviceLog = &deviceLog
	cfg.RebootGrace = 200 * time.Millisecond
	cfg.InactivityTime = time.Minute

	go func() {
		io.WriteString(pw, ">>> ZEPHYR FATAL ERROR 0: CPU exception on CPU 0\nHalting system\n")
		pw.Close()
	}()
	res := Watch(context.Background(), pr, cfg)
	if res.State != Completed || res.ReturnCode != 1 {
		t.Fatalf("Watch() = %s with code %d, want %s with code 1 (err %v)", res.State, res.ReturnCode, Completed, res.Err)
	}
	if res.Run.Reboots != 1 {
		t.Errorf("Reboots = %d, want 1", res.Run.Reboots)
	}
	if !strings.Contains(deviceLog.String(), "Halting system\n") {
		t.Errorf("device log is missing the line sent before the pipe closed:\n%s", deviceLog.String())
	}
}

func TestWatchPipeStopsPromptly(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()
	cfg := testConfig()
	cfg.Kind = PipeTransport
	cfg.GuardTime = 300 * time.Millisecond

	start := time.Now()
	res := Watch(context.Background(), pr, cfg)
	elapsed := time.Since(start)
	if res.State != GuardExpired {
		t.Fatalf("Watch() = %s, want %s", res.State, GuardExpired)
	}
	if elapsed > time.Second {
		t.Errorf("idle pipe session took %s to end after a 300ms guard time", elapsed)
	}
}

func TestWatchHandshakeKeepsPartialLine(t *testing.T) {
	host, device := newDevice(t)
	var deviceLog bytes.Buffer
	cfg := testConfig()
	cfg.Terminator = '\r'
	cfg.SendString = "[port]"
	cfg.HandshakeSettle = 10 * time.Millisecond
	cfg.DeviceLog = &deviceLog

	go func() {
		// The menu text ends half way through a line.
		if _, err := io.WriteString(device, "Press ENTER to see the list of tests.\r\n(1) \"portInit\" [port]\r\nRunning port"); err != nil {
			return
		}
		buf := make([]byte, 2)
		if _, err := io.ReadFull(device, buf); err != nil {
			return
		}
		buf = make([]byte, len("[port]\r\n"))
		if _, err := io.ReadFull(device, buf); err != nil {
			return
		}
		io.WriteString(device, "Init...\r\n/a/u_port_test.c:5:portInit:PASS\r\n1 Tests 0 Failures 0 Ignored\r\n")
	}()

	res := Watch(context.Background(), host, cfg)
	if res.State != Completed || res.ReturnCode != 0 {
		t.Fatalf("Watch() = %s with code %d, want %s with code 0 (err %v)", res.State, res.ReturnCode, Completed, res.Err)
	}
	if !strings.Contains(deviceLog.String(), "Running portInit...\n") {
		t.Errorf("device log lost the line split across the handshake:\n%s", deviceLog.String())
	}
}
