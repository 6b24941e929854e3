package clock

import (
	"sync"
	"time"
)

// Clock abstracts time for the poll/retry state machines so that timeout
// behaviour is testable without real wall-clock waits.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

// Seconds converts a whole-second count, the unit run plans are written in.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a manually driven clock, Sleep advances it immediately.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

// NewFake returns a fake clock starting at the given instant.
func NewFake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake time by d without blocking.
func (f *FakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.sleeps++
}

// Advance moves the fake time forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps returns the number of Sleep calls observed.
func (f *FakeClock) Sleeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sleeps
}
