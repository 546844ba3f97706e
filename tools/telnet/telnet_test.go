// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package telnet

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestReadUntilTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := NewConn(client)

	var g errgroup.Group
	g.Go(func() error {
		_, err := server.Write([]byte("Running test"))
		return err
	})
	if _, err := c.ReadUntilTimeout([]byte("\r"), 200*time.Millisecond); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("ReadUntilTimeout() error = %v, want deadline exceeded", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	reply := make([]byte, 3)
	g.Go(func() error {
		if _, err := server.Write(append([]byte{cmdStart, cmdDo, optEcho}, "Foo...\r"...)); err != nil {
			return err
		}
		_, err := io.ReadFull(server, reply)
		return err
	})
	got, err := c.ReadUntilTimeout([]byte("\r"), 5*time.Second)
	if err != nil {
		t.Fatalf("ReadUntilTimeout() failed: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := "Running testFoo...\r"; string(got) != want {
		t.Errorf("ReadUntilTimeout() = %q, want %q", got, want)
	}
	if want := []byte{cmdStart, cmdWill, optEcho}; !bytes.Equal(reply, want) {
		t.Errorf("echo negotiation reply = %v, want %v", reply, want)
	}
}

func TestReadUntilTimeoutClosed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	c := NewConn(client)
	server.Close()
	_, err := c.ReadUntilTimeout([]byte("\r"), time.Second)
	if err == nil || os.IsTimeout(err) {
		t.Fatalf("ReadUntilTimeout() on a closed peer = %v, want a non-timeout error", err)
	}
}

func TestWriteln(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := NewConn(client)

	got := make([]byte, 6)
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.ReadFull(server, got)
		return err
	})
	if err := c.Writeln("a\xffb"); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := []byte("a\xff\xffb\r\n"); !bytes.Equal(got, want) {
		t.Errorf("Writeln wrote %q, want %q", got, want)
	}
}
