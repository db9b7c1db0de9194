// Package sysloop is the real event loop: one goroutine owns the timer
// heap and the delayed-callback queue, with Start/Stop driven by a
// runner/startStop background worker the way the rest of the server
// core's long-running components are.
package sysloop

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	liblog "github.com/nabbar/golib/logger"
	runner "github.com/nabbar/golib/runner/startStop"

	"github.com/nabbar/opcua-core/eventloop"
)

type Loop struct {
	log liblog.FuncLog

	mu      sync.Mutex
	heap    timerHeap
	byID    map[eventloop.CallbackID]*scheduled
	nextID  uint64
	delayed []func()

	sources   map[eventloop.EventSource]struct{}
	sourcesMu sync.Mutex

	wake chan struct{}
	run  runner.StartStop
}

// New builds a Loop that logs through defLog, following the same
// FuncLog-injection idiom every long-running golib component uses.
func New(defLog liblog.FuncLog) *Loop {
	l := &Loop{
		log:   defLog,
		byID:  make(map[eventloop.CallbackID]*scheduled),
		wake:  make(chan struct{}, 1),
		sources: make(map[eventloop.EventSource]struct{}),
	}
	l.run = runner.New(l.startRunner, l.stopRunner)
	return l
}

func (l *Loop) startRunner(ctx context.Context) error {
	l.sourcesMu.Lock()
	for src := range l.sources {
		if cm, ok := src.(eventloop.ConnectionManager); ok {
			_ = cm
		}
	}
	l.sourcesMu.Unlock()
	<-ctx.Done()
	return nil
}

func (l *Loop) stopRunner(ctx context.Context) error {
	return nil
}

func (l *Loop) Start(ctx context.Context) error {
	return l.run.Start(ctx)
}

func (l *Loop) Stop() error {
	return l.run.Stop(context.Background())
}

func (l *Loop) NextCyclicDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best time.Time
	found := false
	for _, s := range l.heap {
		if s.cyclic() && (!found || s.deadline.Before(best)) {
			best = s.deadline
			found = true
		}
	}
	return best, found
}

func (l *Loop) AddTimedCallback(cb eventloop.TimedCallbackFunc, deadline time.Time) (eventloop.CallbackID, error) {
	return l.schedule(cb, deadline, 0, eventloop.MissPolicyCatchUp)
}

func (l *Loop) AddCyclicCallback(cb eventloop.TimedCallbackFunc, interval time.Duration, initial *time.Time, missPolicy eventloop.MissPolicy) (eventloop.CallbackID, error) {
	if interval <= 0 {
		return 0, errInvalidInterval
	}
	deadline := time.Now().Add(interval)
	if initial != nil {
		deadline = *initial
	}
	return l.schedule(cb, deadline, interval, missPolicy)
}

func (l *Loop) schedule(cb eventloop.TimedCallbackFunc, deadline time.Time, interval time.Duration, policy eventloop.MissPolicy) (eventloop.CallbackID, error) {
	if cb == nil {
		return 0, errNilCallback
	}

	id := eventloop.CallbackID(atomic.AddUint64(&l.nextID, 1))
	s := &scheduled{id: id, deadline: deadline, interval: interval, policy: policy, fn: cb}

	l.mu.Lock()
	heap.Push(&l.heap, s)
	l.byID[id] = s
	l.mu.Unlock()

	l.poke()
	return id, nil
}

// ModifyCyclicCallback rewrites id's interval/deadline and wakes Run if it
// is blocked waiting on the old, possibly later, deadline — otherwise a
// callback moved earlier would not fire until the stale wait elapsed.
func (l *Loop) ModifyCyclicCallback(id eventloop.CallbackID, interval time.Duration, initial *time.Time, missPolicy eventloop.MissPolicy) error {
	if interval <= 0 {
		return errInvalidInterval
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byID[id]
	if !ok {
		return errUnknownCallback
	}

	s.interval = interval
	s.policy = missPolicy
	if initial != nil {
		s.deadline = *initial
	} else {
		s.deadline = time.Now().Add(interval)
	}
	heap.Fix(&l.heap, s.index)
	l.poke()
	return nil
}

func (l *Loop) RemoveCallback(id eventloop.CallbackID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byID[id]
	if !ok {
		return errUnknownCallback
	}
	heap.Remove(&l.heap, s.index)
	delete(l.byID, id)
	return nil
}

func (l *Loop) AddDelayedCallback(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.delayed = append(l.delayed, fn)
	l.mu.Unlock()
	l.poke()
}

func (l *Loop) poke() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) EventSources() []eventloop.EventSource {
	l.sourcesMu.Lock()
	defer l.sourcesMu.Unlock()

	out := make([]eventloop.EventSource, 0, len(l.sources))
	for src := range l.sources {
		out = append(out, src)
	}
	return out
}

func (l *Loop) AddEventSource(src eventloop.EventSource) error {
	if src == nil {
		return errNilCallback
	}
	l.sourcesMu.Lock()
	l.sources[src] = struct{}{}
	l.sourcesMu.Unlock()
	return nil
}

func (l *Loop) RemoveEventSource(src eventloop.EventSource) error {
	l.sourcesMu.Lock()
	delete(l.sources, src)
	l.sourcesMu.Unlock()
	return nil
}

// Run drains whatever delayed callbacks and due timers exist, waiting up
// to timeout for the next one to come due. It is meant to be called
// repeatedly from an embedder's own loop (a cmd/opcuacored main select, a
// test driver), matching the housekeeping model described for the server
// core: the loop is cooperative, never free-running on its own goroutine
// beyond the idle start/stop worker Start spins up.
func (l *Loop) Run(timeout time.Duration) (eventloop.RunStatus, error) {
	if !l.run.IsRunning() {
		return eventloop.RunStatusStopped, nil
	}

	deadline := time.Now().Add(timeout)
	ran := false

	for {
		l.mu.Lock()
		fns := l.delayed
		l.delayed = nil
		l.mu.Unlock()

		for _, fn := range fns {
			fn()
			ran = true
		}

		now := time.Now()
		l.mu.Lock()
		var due []*scheduled
		for l.heap.Len() > 0 && l.heap[0].deadline.Before(now.Add(time.Millisecond)) {
			s := heap.Pop(&l.heap).(*scheduled)
			due = append(due, s)
			if s.cyclic() {
				s.reschedule(now)
				heap.Push(&l.heap, s)
			} else {
				delete(l.byID, s.id)
			}
		}
		l.mu.Unlock()

		for _, s := range due {
			s.fn(context.Background(), s.id)
			ran = true
		}

		if timeout <= 0 {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		if len(due) == 0 && len(fns) == 0 {
			wait := time.Until(deadline)
			if next, ok := l.NextCyclicDeadline(); ok && next.Before(deadline) {
				wait = time.Until(next)
			}
			if wait <= 0 {
				break
			}
			select {
			case <-l.wake:
			case <-time.After(wait):
			}
		}
	}

	if !ran {
		return eventloop.RunStatusNoWork, nil
	}
	return eventloop.RunStatusTimeout, nil
}

var _ eventloop.Loop = (*Loop)(nil)

func (s *scheduled) reschedule(now time.Time) {
	switch s.policy {
	case eventloop.MissPolicySkipToNow:
		s.deadline = now.Add(s.interval)
	default:
		s.deadline = s.deadline.Add(s.interval)
	}
}
