// Copyright 2019 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/shlex"

	"go.ubxlib.dev/automation/tools/lib/logger"
)

// Runner is a Runner that runs commands as local subprocesses.
type Runner struct {
	// Dir is the working directory of the subprocesses; if unspecified, that
	// of the current process will be used.
	Dir string

	// Env is the environment of the subprocess, following the usual convention of a list of
	// strings of the form "<environment variable name>=<value>".
	Env []string
}

// Split breaks a command line into its arguments using shell quoting
// rules.
func Split(commandLine string) ([]string, error) {
	args, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("failed to split %q: %w", commandLine, err)
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}

// Run runs a command until completion or until a context is canceled, in
// which case the subprocess is killed so that no subprocesses it spun up are
// orphaned.
func (r *Runner) Run(ctx context.Context, command []string, stdout io.Writer, stderr io.Writer) error {
	return r.RunWithStdin(ctx, command, stdout, stderr, os.Stdin)
}

// RunWithStdin operates identically to Run, but additionally pipes input to the
// process via stdin.
func (r *Runner) RunWithStdin(ctx context.Context, command []string, stdout io.Writer, stderr io.Writer, stdin io.Reader) error {
	cmd := r.command(ctx, command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = stdin
	// Adding the child to its own process group disconnects it from the
	// terminal's stdin, so only do it for non-interactive commands.
	if stdin != os.Stdin {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error)
	go func() {
		done <- cmd.Wait()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		killGroup(cmd)
		return ctx.Err()
	}
}

// Process is a started subprocess whose output is read by the caller.
type Process struct {
	// Output carries the subprocess's stdout and stderr. It is an *os.File,
	// so it honours read deadlines.
	Output *os.File

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	once    sync.Once
}

// Start launches command with its stdout and stderr joined into
// Process.Output. With usePTY the subprocess writes to a pseudo-terminal
// instead of a pipe, so that C runtimes line-buffer their output. Cancelling
// ctx kills the subprocess and all of its children.
func (r *Runner) Start(ctx context.Context, command []string, usePTY bool) (*Process, error) {
	if len(command) == 0 {
		return nil, errors.New("empty command")
	}
	var out, in *os.File
	var err error
	if usePTY {
		out, in, err = pty.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to create ptm/pts pair: %w", err)
		}
	} else {
		out, in, err = os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create pipe: %w", err)
		}
	}

	cmd := r.command(ctx, command)
	cmd.Stdout = in
	cmd.Stderr = in
	if usePTY {
		cmd.Stdin = in
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	err = cmd.Start()
	// The child holds its own copy of the write end.
	in.Close()
	if err != nil {
		out.Close()
		return nil, err
	}

	p := &Process{Output: out, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	go func() {
		select {
		case <-p.done:
		case <-ctx.Done():
			logger.Debugf(ctx, "killing %v", cmd.Args)
			p.Kill()
		}
	}()
	return p, nil
}

// Pid returns the process ID of the subprocess.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the subprocess exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Kill kills the subprocess and its children.
func (p *Process) Kill() {
	killGroup(p.cmd)
}

// Close kills the subprocess if it is still running, reaps it and
// releases its output.
func (p *Process) Close() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
		default:
			p.Kill()
			<-p.done
		}
		err = p.Output.Close()
	})
	return err
}

func (r *Runner) command(ctx context.Context, command []string) *exec.Cmd {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	if len(cmd.Env) > 0 {
		logger.Debugf(ctx, "environment of subprocess: %v", cmd.Env)
	}
	logger.Debugf(ctx, "starting: %v", cmd.Args)
	return cmd
}

// killGroup kills the process group led by cmd, meaning the process and any
// of its children.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negating the process ID means interpret it as a process group ID.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}
