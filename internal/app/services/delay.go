package services

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay is the randomized pause between two attempted actions. Skip ends the wait in
// progress early; it never touches the action in flight.
type Delay struct {
	base   time.Duration
	offset time.Duration
	skip   chan struct{}
	jitter func(n int64) int64
}

func NewDelay(base, offset time.Duration) *Delay {
	if offset < 0 {
		offset = -offset
	}
	return &Delay{base: base, offset: offset, skip: make(chan struct{}, 1), jitter: rand.Int64N}
}

// Next draws a duration uniformly from [base-offset, base+offset], never below zero.
func (d *Delay) Next() time.Duration {
	if d.offset == 0 {
		return d.base
	}
	delta := time.Duration(d.jitter(int64(2*d.offset)+1)) - d.offset
	if next := d.base + delta; next > 0 {
		return next
	}
	return 0
}

// Wait sleeps for Next(). It returns the drawn duration and whether the wait was skipped.
func (d *Delay) Wait(ctx context.Context) (time.Duration, bool, error) {
	d.drainSkip()
	wait := d.Next()
	if wait == 0 {
		return 0, false, ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return wait, false, nil
	case <-d.skip:
		return wait, true, nil
	case <-ctx.Done():
		return wait, false, ctx.Err()
	}
}

// Skip ends the wait in progress. A skip requested while no wait is running is
// discarded when the next wait starts. Safe to call from signal handlers and input readers.
func (d *Delay) Skip() {
	select {
	case d.skip <- struct{}{}:
	default:
	}
}

func (d *Delay) drainSkip() {
	select {
	case <-d.skip:
	default:
	}
}
