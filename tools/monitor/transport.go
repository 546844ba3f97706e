// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TransportKind selects how lines are assembled from a transport handle.
type TransportKind int

const (
	// StreamTransport is a serial-like byte stream. A read that finds no
	// data yields no line for that call; partial lines are kept.
	StreamTransport TransportKind = iota
	// ReadUntilTransport is a network terminal session that can block for
	// a bounded time waiting for the terminator.
	ReadUntilTransport
	// PipeTransport is the output of a subprocess, read with a per-call
	// wall-clock budget to ride out pipe buffering.
	PipeTransport
	// RTTTransport is an on-chip debug log relayed over TCP by a debugger. It is
	// read like StreamTransport.
	RTTTransport
)

var transportNames = map[TransportKind]string{
	StreamTransport:    "stream",
	ReadUntilTransport: "read-until",
	PipeTransport:      "pipe",
	RTTTransport:       "rtt",
}

func (k TransportKind) String() string {
	if s, ok := transportNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TransportKind(%d)", int(k))
}

// ParseTransportKind is the inverse of TransportKind.String.
func ParseTransportKind(s string) (TransportKind, error) {
	for k, name := range transportNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid transport kind", s)
}

// ErrTransportClosed is returned, wrapped around the underlying error, when
// the transport handle can no longer be read.
var ErrTransportClosed = errors.New("transport closed")

const (
	// readUntilTimeout bounds a single read-until call.
	readUntilTimeout = time.Second
	// pipeCallBudget bounds a single call on a pipe transport.
	pipeCallBudget = 5 * time.Second
	// streamPollTimeout is how long a stream read waits for a byte before
	// the call reports that no data is available.
	streamPollTimeout = 20 * time.Millisecond
	// pipeRetryDelay spaces out zero-length reads within a pipe call.
	pipeRetryDelay = 10 * time.Millisecond
	// maxLineLength caps a line on transports that never send the
	// terminator, such as a device emitting binary garbage.
	maxLineLength = 64 * 1024
)

// LineReader yields one logical line per call.
type LineReader interface {
	// ReadLine returns the next complete line with the terminator and
	// surrounding whitespace removed. ok is false, with a nil error, when no
	// complete line became available within the transport's bound. A
	// non-nil error wraps ErrTransportClosed and is final.
	ReadLine() (line string, ok bool, err error)

	// Received returns the number of bytes read from the handle so far.
	Received() uint64
}

// DelimitedReader is implemented by handles of the read-until class, such
// as telnet.Conn. ReadUntilTimeout returns data up to and including delim,
// or an error satisfying errors.Is(err, os.ErrDeadlineExceeded) if delim did
// not arrive in time, in which case the partial data is kept for the next
// call.
type DelimitedReader interface {
	ReadUntilTimeout(delim []byte, timeout time.Duration) ([]byte, error)
}

type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// NewLineReader returns a LineReader for the given kind of handle. Lines end
// at terminator.
func NewLineReader(kind TransportKind, handle io.Reader, terminator byte) (LineReader, error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: no transport handle", ErrTransportClosed)
	}
	switch kind {
	case ReadUntilTransport:
		dr, ok := handle.(DelimitedReader)
		if !ok {
			return nil, fmt.Errorf("a %s transport needs a handle implementing ReadUntilTimeout, got %T", kind, handle)
		}
		return &untilLineReader{r: dr, term: terminator}, nil
	case StreamTransport, RTTTransport:
		return newByteLineReader(handle, terminator, 0), nil
	case PipeTransport:
		return newByteLineReader(handle, terminator, pipeCallBudget), nil
	}
	return nil, fmt.Errorf("unknown transport kind %d", kind)
}

func isNoData(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) || os.IsTimeout(err)
}

// cleanLine drops invalid UTF-8 and surrounding whitespace.
func cleanLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}

// byteLineReader assembles lines byte by byte for the stream, RTT and
// pipe classes. The partial line survives across calls.
type byteLineReader struct {
	r        io.Reader
	ds       deadlineSetter
	term     byte
	budget   time.Duration
	buf      []byte
	pending  []byte
	line     []byte
	err      error
	received uint64

	// mu orders arming a read deadline against stop.
	mu      sync.Mutex
	stopped bool
}

func newByteLineReader(r io.Reader, term byte, budget time.Duration) *byteLineReader {
	ds, _ := r.(deadlineSetter)
	return &byteLineReader{
		r:      r,
		ds:     ds,
		term:   term,
		budget: budget,
		buf:    make([]byte, 512),
	}
}

func (r *byteLineReader) Received() uint64 { return r.received }

// stop makes the current and every later ReadLine return without a line
// as soon as possible, interrupting a read in progress if the handle takes
// deadlines.
func (r *byteLineReader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.ds != nil {
		r.ds.SetReadDeadline(time.Now())
	}
}

// arm sets the deadline for the next read. It returns false once stop has
// been called.
func (r *byteLineReader) arm(deadline time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	if r.ds != nil {
		if deadline.IsZero() {
			deadline = time.Now().Add(streamPollTimeout)
		}
		if err := r.ds.SetReadDeadline(deadline); err != nil {
			// Some handles, like os.File on a regular file,
			// cannot take a deadline; read them blocking.
			r.ds = nil
		}
	}
	return true
}

func (r *byteLineReader) ReadLine() (string, bool, error) {
	var deadline time.Time
	if r.budget > 0 {
		deadline = time.Now().Add(r.budget)
	}
	for {
		for len(r.pending) > 0 {
			b := r.pending[0]
			r.pending = r.pending[1:]
			if b != r.term {
				r.line = append(r.line, b)
				if len(r.line) < maxLineLength {
					continue
				}
			}
			if line := cleanLine(r.line); line != "" {
				r.line = r.line[:0]
				return line, true, nil
			}
			r.line = r.line[:0]
		}
		if r.err != nil {
			// Flush what the device managed to send before the
			// handle went away.
			if line := cleanLine(r.line); line != "" {
				r.line = r.line[:0]
				return line, true, nil
			}
			return "", false, r.err
		}
		more, err := r.fill(deadline)
		if err != nil {
			r.err = fmt.Errorf("%w: %v", ErrTransportClosed, err)
			continue
		}
		if !more {
			return "", false, nil
		}
	}
}

// fill reads the next chunk into pending. It returns false if no data
// arrived before the deadline, or straight away when there is no deadline
// and the handle has nothing to offer right now.
func (r *byteLineReader) fill(deadline time.Time) (bool, error) {
	for {
		if !r.arm(deadline) {
			return false, nil
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.received += uint64(n)
			r.pending = r.buf[:n]
			if err != nil && !isNoData(err) {
				r.err = fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			return true, nil
		}
		if err != nil && !isNoData(err) {
			return false, err
		}
		if deadline.IsZero() || !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(pipeRetryDelay)
	}
}

// untilLineReader serves the read-until class.
type untilLineReader struct {
	r        DelimitedReader
	term     byte
	received uint64
}

func (r *untilLineReader) Received() uint64 { return r.received }

func (r *untilLineReader) ReadLine() (string, bool, error) {
	data, err := r.r.ReadUntilTimeout([]byte{r.term}, readUntilTimeout)
	if err != nil {
		if isNoData(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	r.received += uint64(len(data))
	line := strings.ToValidUTF8(string(data), "")
	line = strings.TrimRight(line, string(r.term))
	line = strings.TrimLeft(line, "\n")
	if line == "" {
		return "", false, nil
	}
	return line, true, nil
}
