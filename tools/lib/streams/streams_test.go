// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package streams

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	ctx := context.Background()
	if w := Stdout(ctx); w != os.Stdout {
		t.Errorf("Stdout = %+v, want os.Stdout", w)
	}
	if w := Stderr(ctx); w != os.Stderr {
		t.Errorf("Stderr = %+v, want os.Stderr", w)
	}
}

func TestOverride(t *testing.T) {
	var out, errOut bytes.Buffer
	ctx := ContextWithStdout(context.Background(), &out)
	ctx = ContextWithStderr(ctx, &errOut)
	fmt.Fprint(Stdout(ctx), "end with return value 0.")
	fmt.Fprint(Stderr(ctx), "guard timer expired.")
	if got := out.String(); got != "end with return value 0." {
		t.Errorf("stdout = %q", got)
	}
	if got := errOut.String(); got != "guard timer expired." {
		t.Errorf("stderr = %q", got)
	}
}

func TestTee(t *testing.T) {
	var out, errOut, log bytes.Buffer
	ctx := ContextWithStdout(context.Background(), &out)
	ctx = ContextWithStderr(ctx, &errOut)
	ctx = Tee(ctx, &log)
	fmt.Fprint(Stdout(ctx), "a")
	fmt.Fprint(Stderr(ctx), "b")
	if out.String() != "a" || errOut.String() != "b" {
		t.Errorf("streams got %q and %q, want %q and %q", out.String(), errOut.String(), "a", "b")
	}
	if got := log.String(); got != "ab" {
		t.Errorf("tee got %q, want %q", got, "ab")
	}
}
