// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package retry

import (
	"time"
)

// Stop is returned by Backoff.Next when the operation should be given up.
const Stop time.Duration = -1

// Backoff decides how long to wait between attempts.
type Backoff interface {
	// Next returns the wait before the next attempt, or Stop.
	Next() time.Duration

	// Reset prepares the policy for a fresh sequence of attempts.
	Reset()
}

// ConstantBackoff waits the same interval before every attempt. It suits a
// port that is briefly absent while a device re-enumerates.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff returns a policy that always waits d.
func NewConstantBackoff(d time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: d}
}

func (b *ConstantBackoff) Next() time.Duration { return b.interval }

func (b *ConstantBackoff) Reset() {}

// limited stops its inner policy after a number of retries.
type limited struct {
	inner   Backoff
	retries uint64
	used    uint64
}

func (b *limited) Next() time.Duration {
	if b.used >= b.retries {
		return Stop
	}
	b.used++
	return b.inner.Next()
}

func (b *limited) Reset() {
	b.used = 0
	b.inner.Reset()
}

// WithMaxRetries allows at most max retries of b, so the operation runs at
// most max+1 times. Zero allows no retries.
func WithMaxRetries(b Backoff, max uint64) Backoff {
	return &limited{inner: b, retries: max}
}
