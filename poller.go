// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package rdserial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Schedule says whether a poll runs once or repeats on an interval.
type Schedule struct {
	interval time.Duration
	repeat   bool
}

// OneShot runs the poll exactly once.
func OneShot() Schedule { return Schedule{} }

// RepeatEvery runs the poll, then waits d before the next one.
func RepeatEvery(d time.Duration) Schedule {
	return Schedule{interval: d, repeat: true}
}

// Repeats reports whether the schedule loops.
func (s Schedule) Repeats() bool { return s.repeat }

// Interval is the pause between polls of a repeating schedule.
func (s Schedule) Interval() time.Duration { return s.interval }

func (s Schedule) String() string {
	if !s.repeat {
		return "one-shot"
	}
	return fmt.Sprintf("every %v", s.interval)
}

// ErrorPolicy decides what a failed poll does to the loop.
type ErrorPolicy int

const (
	// Abort returns the first error.
	Abort ErrorPolicy = iota
	// LogAndContinue logs the error and waits for the next interval.
	LogAndContinue
)

func (p ErrorPolicy) String() string {
	switch p {
	case Abort:
		return "abort"
	case LogAndContinue:
		return "log-and-continue"
	}
	return fmt.Sprintf("ErrorPolicy(%d)", int(p))
}

// ParseErrorPolicy accepts "abort" and "continue" (or "log-and-continue").
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "abort":
		return Abort, nil
	case "continue", "log-and-continue", "":
		return LogAndContinue, nil
	}
	return Abort, fmt.Errorf("rdserial: unknown error policy %q", s)
}

// PollFunc performs one complete poll.
type PollFunc func(ctx context.Context) error

// Poller drives a PollFunc according to a Schedule and an ErrorPolicy.
// Cancelling the context always ends Run, whatever the policy.
type Poller struct {
	schedule Schedule
	policy   ErrorPolicy
	clock    clock.Clock
	logger   io.Writer
	onError  func(error)

	polls    atomic.Uint64
	failures atomic.Uint64
}

// NewPoller creates a poller on the wall clock.
func NewPoller(schedule Schedule, policy ErrorPolicy) *Poller {
	return &Poller{schedule: schedule, policy: policy, clock: clock.New()}
}

// SetClock replaces the clock used to wait between polls.
func (p *Poller) SetClock(c clock.Clock) { p.clock = c }

// SetLogger sets the writer failed polls are logged to.
func (p *Poller) SetLogger(logger io.Writer) { p.logger = logger }

// SetOnError registers a callback invoked for every failed poll.
func (p *Poller) SetOnError(fn func(error)) { p.onError = fn }

// Polls returns how many polls have been attempted.
func (p *Poller) Polls() uint64 { return p.polls.Load() }

// Failures returns how many polls failed.
func (p *Poller) Failures() uint64 { return p.failures.Load() }

// Run polls until the schedule is exhausted, the policy aborts, or ctx is
// done. A cancelled context is reported as ctx.Err().
func (p *Poller) Run(ctx context.Context, fn PollFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.polls.Add(1)
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.failures.Add(1)
			if p.onError != nil {
				p.onError(err)
			}
			if p.policy == Abort || !p.schedule.repeat {
				return err
			}
			if p.logger != nil {
				fmt.Fprintf(p.logger, "ERROR: poll failed, retrying in %v: %v\n", p.schedule.interval, err)
			}
		}
		if !p.schedule.repeat {
			return nil
		}
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
}

func (p *Poller) wait(ctx context.Context) error {
	timer := p.clock.Timer(p.schedule.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancellation reports whether err only says that polling was stopped.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
