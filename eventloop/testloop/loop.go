// Package testloop is a synchronous, manually-advanced fake of
// eventloop.Loop for unit tests: nothing runs on a background goroutine,
// every callback fires only when the test calls Advance or Fire, so
// reverse-connect retries, housekeeping ticks and certificate rotation can
// be exercised deterministically.
package testloop

import (
	"context"
	"sort"
	"time"

	"github.com/nabbar/opcua-core/eventloop"
)

type entry struct {
	id       eventloop.CallbackID
	deadline time.Time
	interval time.Duration
	policy   eventloop.MissPolicy
	fn       eventloop.TimedCallbackFunc
}

// Loop is not safe for concurrent use; tests drive it from a single
// goroutine, matching the single-threaded contract of the real loop.
type Loop struct {
	now       time.Time
	nextID    uint64
	entries   map[eventloop.CallbackID]*entry
	delayed   []func()
	sources   map[eventloop.EventSource]struct{}
	started   bool
}

// New builds a fake loop with its virtual clock set to start.
func New(start time.Time) *Loop {
	return &Loop{
		now:     start,
		entries: make(map[eventloop.CallbackID]*entry),
		sources: make(map[eventloop.EventSource]struct{}),
	}
}

func (l *Loop) Start(ctx context.Context) error {
	l.started = true
	return nil
}

func (l *Loop) Stop() error {
	l.started = false
	return nil
}

func (l *Loop) Run(timeout time.Duration) (eventloop.RunStatus, error) {
	if !l.started {
		return eventloop.RunStatusStopped, nil
	}
	l.Advance(timeout)
	return eventloop.RunStatusTimeout, nil
}

func (l *Loop) NextCyclicDeadline() (time.Time, bool) {
	best := time.Time{}
	found := false
	for _, e := range l.entries {
		if e.interval <= 0 {
			continue
		}
		if !found || e.deadline.Before(best) {
			best = e.deadline
			found = true
		}
	}
	return best, found
}

func (l *Loop) AddTimedCallback(cb eventloop.TimedCallbackFunc, deadline time.Time) (eventloop.CallbackID, error) {
	return l.add(cb, deadline, 0, eventloop.MissPolicyCatchUp)
}

func (l *Loop) AddCyclicCallback(cb eventloop.TimedCallbackFunc, interval time.Duration, initial *time.Time, missPolicy eventloop.MissPolicy) (eventloop.CallbackID, error) {
	deadline := l.now.Add(interval)
	if initial != nil {
		deadline = *initial
	}
	return l.add(cb, deadline, interval, missPolicy)
}

func (l *Loop) add(cb eventloop.TimedCallbackFunc, deadline time.Time, interval time.Duration, policy eventloop.MissPolicy) (eventloop.CallbackID, error) {
	l.nextID++
	id := eventloop.CallbackID(l.nextID)
	l.entries[id] = &entry{id: id, deadline: deadline, interval: interval, policy: policy, fn: cb}
	return id, nil
}

func (l *Loop) ModifyCyclicCallback(id eventloop.CallbackID, interval time.Duration, initial *time.Time, missPolicy eventloop.MissPolicy) error {
	e, ok := l.entries[id]
	if !ok {
		return errUnknownCallback
	}
	e.interval = interval
	e.policy = missPolicy
	if initial != nil {
		e.deadline = *initial
	} else {
		e.deadline = l.now.Add(interval)
	}
	return nil
}

func (l *Loop) RemoveCallback(id eventloop.CallbackID) error {
	if _, ok := l.entries[id]; !ok {
		return errUnknownCallback
	}
	delete(l.entries, id)
	return nil
}

func (l *Loop) AddDelayedCallback(fn func()) {
	if fn != nil {
		l.delayed = append(l.delayed, fn)
	}
}

func (l *Loop) EventSources() []eventloop.EventSource {
	out := make([]eventloop.EventSource, 0, len(l.sources))
	for s := range l.sources {
		out = append(out, s)
	}
	return out
}

func (l *Loop) AddEventSource(src eventloop.EventSource) error {
	l.sources[src] = struct{}{}
	return nil
}

func (l *Loop) RemoveEventSource(src eventloop.EventSource) error {
	delete(l.sources, src)
	return nil
}

// Advance moves the virtual clock forward by d, firing every delayed
// callback immediately and every timed/cyclic callback now due, in
// deadline order.
func (l *Loop) Advance(d time.Duration) {
	l.now = l.now.Add(d)

	fns := l.delayed
	l.delayed = nil
	for _, fn := range fns {
		fn()
	}

	var due []*entry
	for _, e := range l.entries {
		if !e.deadline.After(l.now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	for _, e := range due {
		if e.interval > 0 {
			switch e.policy {
			case eventloop.MissPolicySkipToNow:
				e.deadline = l.now.Add(e.interval)
			default:
				e.deadline = e.deadline.Add(e.interval)
			}
		} else {
			delete(l.entries, e.id)
		}
		e.fn(context.Background(), e.id)
	}
}

// Now returns the loop's current virtual time.
func (l *Loop) Now() time.Time { return l.now }

// Fire immediately runs the callback registered under id, regardless of
// its deadline, without rescheduling it. Useful to force a single retry
// without advancing the clock past other due callbacks.
func (l *Loop) Fire(id eventloop.CallbackID) bool {
	e, ok := l.entries[id]
	if !ok {
		return false
	}
	e.fn(context.Background(), id)
	return true
}

var _ eventloop.Loop = (*Loop)(nil)
