// Package gesture disambiguates single and double taps on one target.
package gesture

import (
	"sync"
	"time"
)

// DOUBLE_TAP_DELAY is the window in which a second tap turns a pending
// single tap into a double tap.
const DOUBLE_TAP_DELAY = 300 * time.Millisecond

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func realScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type State int

const (
	Idle State = iota
	ArmedSingle
)

type Option func(*Disambiguator)

// OnSingle sets the callback fired when no second tap arrives in time.
func OnSingle(f func()) Option {
	return func(d *Disambiguator) { d.onSingle = f }
}

func WithDelay(delay time.Duration) Option {
	return func(d *Disambiguator) { d.delay = delay }
}

func WithScheduler(s Scheduler) Option {
	return func(d *Disambiguator) { d.schedule = s }
}

// Disambiguator is a two-state machine: Idle, and ArmedSingle while it
// waits for a possible second tap. At most one callback fires per tap
// sequence.
type Disambiguator struct {
	onDouble func()
	onSingle func()
	delay    time.Duration
	schedule Scheduler

	mu    sync.Mutex
	state State
	timer Timer
	// gen invalidates a timer that fired while a second tap was being handled.
	gen uint64
}

// Binding is what a gesture target receives. OnPress is nil when there is
// nothing to bind.
type Binding struct {
	OnPress func()
	d       *Disambiguator
}

// Cancel drops a pending single tap.
func (b Binding) Cancel() {
	if b.d != nil {
		b.d.Cancel()
	}
}

// Bind returns a tap handler firing onDouble on double taps. Without a
// double-tap callback the binding is inert.
func Bind(onDouble func(), opts ...Option) Binding {
	if onDouble == nil {
		return Binding{}
	}
	d := New(onDouble, opts...)
	return Binding{OnPress: d.Tap, d: d}
}

func New(onDouble func(), opts ...Option) *Disambiguator {
	d := &Disambiguator{
		onDouble: onDouble,
		delay:    DOUBLE_TAP_DELAY,
		schedule: realScheduler,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Disambiguator) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Tap feeds one tap into the state machine.
func (d *Disambiguator) Tap() {
	d.mu.Lock()
	switch d.state {
	case Idle:
		d.state = ArmedSingle
		d.gen++
		gen := d.gen
		d.timer = d.schedule(d.delay, func() { d.expire(gen) })
		d.mu.Unlock()
	case ArmedSingle:
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.state = Idle
		d.gen++
		onDouble := d.onDouble
		d.mu.Unlock()
		if onDouble != nil {
			onDouble()
		}
	default:
		d.mu.Unlock()
	}
}

// Cancel returns to Idle without firing anything.
func (d *Disambiguator) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state = Idle
	d.gen++
}

func (d *Disambiguator) expire(gen uint64) {
	d.mu.Lock()
	if d.state != ArmedSingle || d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.state = Idle
	d.timer = nil
	onSingle := d.onSingle
	d.mu.Unlock()
	if onSingle != nil {
		onSingle()
	}
}
