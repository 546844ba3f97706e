// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package telnet implements the small subset of the telnet protocol needed
// to read a device log relayed over a network terminal session.
package telnet

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"time"
)

const (
	cmdSE    = 240
	cmdGA    = 249
	cmdSB    = 250
	cmdWill  = 251
	cmdWont  = 252
	cmdDo    = 253
	cmdDont  = 254
	cmdStart = 255

	optEcho = 1
)

// Conn represents a telnet connection.
//
// Telnet is a TCP connection carrying ASCII with an in-band command
// structure. A command starts with cmdStart; a literal cmdStart is escaped by
// doubling it. Option negotiation uses cmdWill, cmdWont, cmdDo and cmdDont.
// Only the echo option is accepted, every other option is refused, and
// subnegotiations (cmdSB ... cmdSE) are skipped.
type Conn struct {
	// Conn is the underlying network connection.
	net.Conn

	// reader is a buffer on top of Conn to enable
	// per-byte reading.
	reader *bufio.Reader

	// echo represents whether the echo option is enabled.
	echo bool

	// nextIsCmd is true when the last data byte read was cmdStart. It
	// survives across reads that time out.
	nextIsCmd bool

	// pending holds data bytes read since the last delimiter was returned.
	pending []byte
}

// NewConn wraps an established network connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		Conn:   c,
		reader: bufio.NewReader(c),
	}
}

// DialTimeout dials a telnet connection for the given host, port,
// and timeout, returning a new telnet Conn on success.
func DialTimeout(host string, port uint16, timeout time.Duration) (*Conn, error) {
	c, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprint(port)), timeout)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func (c *Conn) handleOption(cmd byte, opt byte) error {
	// Ignore and deny everything that's not the echo option.
	if opt != optEcho {
		var err error
		switch cmd {
		case cmdDo, cmdDont:
			_, err = c.Conn.Write([]byte{cmdStart, cmdWont, opt})
		case cmdWill, cmdWont:
			_, err = c.Conn.Write([]byte{cmdStart, cmdDont, opt})
		}
		return err
	}

	var reply byte
	switch {
	case cmd == cmdDo && !c.echo:
		c.echo, reply = true, cmdWill
	case cmd == cmdDont && c.echo:
		c.echo, reply = false, cmdWont
	case cmd == cmdWill && !c.echo:
		c.echo, reply = true, cmdDo
	case cmd == cmdWont && c.echo:
		c.echo, reply = false, cmdDont
	default:
		return nil
	}
	_, err := c.Conn.Write([]byte{cmdStart, reply, opt})
	return err
}

func (c *Conn) handleCommand(cmd byte) error {
	switch cmd {
	case cmdDo, cmdDont, cmdWill, cmdWont:
		opt, err := c.reader.ReadByte()
		if err != nil {
			return err
		}
		return c.handleOption(cmd, opt)
	case cmdGA:
		// Ignore Go-ahead.
	case cmdSB:
		// Skip subnegotiation by reading until the server stops
		// negotiating.
		var seq [2]byte
		for !(seq[0] == cmdStart && seq[1] == cmdSE) {
			b, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			seq[0] = seq[1]
			seq[1] = b
		}
	default:
		return fmt.Errorf("unknown telnet command: %d", cmd)
	}
	return nil
}

// readData returns the next data byte, handling any commands in front of it.
func (c *Conn) readData() (byte, error) {
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return 0, err
		}
		switch {
		case c.nextIsCmd && b != cmdStart:
			c.nextIsCmd = false
			if err := c.handleCommand(b); err != nil {
				return 0, err
			}
		case !c.nextIsCmd && b == cmdStart:
			c.nextIsCmd = true
		default:
			c.nextIsCmd = false
			return b, nil
		}
	}
}

// ReadUntilTimeout reads data until delim is seen and returns everything
// read up to and including it. If delim does not arrive within timeout the
// bytes read so far are kept for the next call and an error satisfying
// errors.Is(err, os.ErrDeadlineExceeded) is returned.
func (c *Conn) ReadUntilTimeout(delim []byte, timeout time.Duration) ([]byte, error) {
	if len(delim) == 0 {
		return nil, fmt.Errorf("empty delimiter")
	}
	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer c.Conn.SetReadDeadline(time.Time{})
	for !bytes.HasSuffix(c.pending, delim) {
		b, err := c.readData()
		if err != nil {
			return nil, err
		}
		c.pending = append(c.pending, b)
	}
	out := c.pending
	c.pending = nil
	return out, nil
}

// ReadUntil reads from the connection until the string |s| is seen.
//
// Since vanilla telnet operates purely on ASCII, any non-ASCII inputs
// may block indefinitely.
func (c *Conn) ReadUntil(s string) error {
	for {
		_, err := c.ReadUntilTimeout([]byte(s), time.Hour)
		if err == nil || !os.IsTimeout(err) {
			return err
		}
	}
}

// Writeln writes the given string to the telnet connection with a telnet newline at
// the end ("\r\n").
func (c *Conn) Writeln(s string) error {
	buf := []byte(s)
	// A literal cmdStart must be doubled so the peer does not read it as a
	// command.
	buf = bytes.ReplaceAll(buf, []byte{cmdStart}, []byte{cmdStart, cmdStart})
	buf = append(buf, '\r', '\n')
	_, err := c.Conn.Write(buf)
	return err
}
