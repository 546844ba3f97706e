// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package retry

import (
	"context"
	"errors"
	"testing"
)

func TestRetry(t *testing.T) {
	errPortBusy := errors.New("port busy")

	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		errs := make(chan error, 10)
		err := Retry(context.Background(), WithMaxRetries(NewConstantBackoff(0), 5), func() error {
			calls++
			if calls < 3 {
				return errPortBusy
			}
			return nil
		}, errs)
		if err != nil {
			t.Fatalf("Retry() failed: %v", err)
		}
		if calls != 3 {
			t.Errorf("got %d calls, want 3", calls)
		}
		if len(errs) != 2 {
			t.Errorf("got %d reported errors, want 2", len(errs))
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), WithMaxRetries(NewConstantBackoff(0), 2), func() error {
			calls++
			return errPortBusy
		}, nil)
		if !errors.Is(err, errPortBusy) {
			t.Fatalf("Retry() = %v, want %v", err, errPortBusy)
		}
		if calls != 3 {
			t.Errorf("got %d calls, want 3", calls)
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), NewConstantBackoff(0), func() error {
			calls++
			return Fatal(errPortBusy)
		}, nil)
		if !errors.Is(err, errPortBusy) || calls != 1 {
			t.Fatalf("Retry() = %v after %d calls, want %v after 1", err, calls, errPortBusy)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, NewConstantBackoff(1<<40), func() error { return errPortBusy }, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Retry() = %v, want %v", err, context.Canceled)
		}
	})
}
