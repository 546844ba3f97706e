// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"context"
	"time"

	"go.ubxlib.dev/automation/tools/lib/logger"
)

// joinWarnInterval is how often a slow pump shutdown is reported.
const joinWarnInterval = 5 * time.Second

// pumpItem is either a line or the final transport error.
type pumpItem struct {
	line string
	err  error
}

// pump runs a LineReader on its own goroutine and relays lines, in order,
// over a buffered channel. A transport error is relayed after every line
// read before it, and ends the pump.
type pump struct {
	r     LineReader
	items chan pumpItem
	stop  chan struct{}
	done  chan struct{}
}

func startPump(r LineReader, idleDelay time.Duration, depth int) *pump {
	p := &pump{
		r:     r,
		items: make(chan pumpItem, depth),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.run(r, idleDelay)
	return p
}

func (p *pump) run(r LineReader, idleDelay time.Duration) {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		line, ok, err := r.ReadLine()
		if err != nil {
			p.send(pumpItem{err: err})
			return
		}
		if !ok {
			select {
			case <-p.stop:
				return
			case <-time.After(idleDelay):
			}
			continue
		}
		if !p.send(pumpItem{line: line}) {
			return
		}
	}
}

func (p *pump) send(it pumpItem) bool {
	select {
	case p.items <- it:
		return true
	case <-p.stop:
		return false
	}
}

// stoppable is implemented by readers that can cut a pending read short.
type stoppable interface {
	stop()
}

// halt tells the pump to stop and waits for its goroutine to exit. A reader
// that is stoppable is stopped; otherwise, if the pump is stuck in a read
// and interrupt is non-nil, interrupt is called once to unblock it. A read
// that still never returns keeps halt waiting; this is logged periodically.
func (p *pump) halt(ctx context.Context, interrupt func()) {
	close(p.stop)
	if s, ok := p.r.(stoppable); ok {
		s.stop()
	}
	select {
	case <-p.done:
		return
	default:
	}
	if _, ok := p.r.(stoppable); !ok && interrupt != nil {
		interrupt()
	}
	for {
		select {
		case <-p.done:
			return
		case <-time.After(joinWarnInterval):
			logger.Warningf(ctx, "still waiting for a blocked transport read to return")
		}
	}
}

// drain returns the lines still queued after the pump has stopped.
func (p *pump) drain() []string {
	var lines []string
	for {
		select {
		case it := <-p.items:
			if it.err == nil {
				lines = append(lines, it.line)
			}
		default:
			return lines
		}
	}
}
