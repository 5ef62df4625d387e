// Package drawqueue implements the overlay's time-ordered draw action
// queue and its text non-overlap placement algorithm (components B in the
// design: one consumer goroutine executing (time_offset, action) tuples in
// order, holding direct responses on screen for a minimum display time, and
// resolving every text panel's rectangle against a live collision cache
// before it ships).
package drawqueue

import (
	"sync"
	"time"

	"github.com/clovis-agent/clovis/pkg/logger"
)

// directResponseMinDisplay is the minimum time a direct-response panel stays
// on screen before the queue is allowed to hide it.
const directResponseMinDisplay = 4 * time.Second

// Action is one queued draw instruction.
type Action struct {
	// Offset is this action's position on the queue's time axis, relative
	// to the queue's start-of-run.
	Offset time.Duration
	// DirectResponse marks an action that displays a terminal direct
	// response panel, subject to the minimum display time.
	DirectResponse bool
	// Run executes the action's side effect (typically a Hub.Broadcast
	// call, possibly after a layout resolution step).
	Run func()
}

// Queue is a single-consumer, time-ordered action executor.
type Queue struct {
	mu       sync.Mutex
	items    []Action
	notEmpty chan struct{}

	runCancel func()
	runDone   chan struct{}

	hideDirectResponse func()
}

// NewQueue creates an empty Queue. hideDirectResponse is invoked once a
// direct-response panel's minimum display time has elapsed and the next
// action is ready to run.
func NewQueue(hideDirectResponse func()) *Queue {
	return &Queue{
		notEmpty:           make(chan struct{}, 1),
		hideDirectResponse: hideDirectResponse,
	}
}

// SetHideDirectResponse replaces the callback invoked once a direct-response
// panel's minimum display time has elapsed.
func (q *Queue) SetHideDirectResponse(h func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hideDirectResponse = h
}

func (q *Queue) getHideDirectResponse() func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hideDirectResponse
}

// Enqueue appends an action to the queue in call order. Callers are
// responsible for giving actions monotonically increasing Offsets.
func (q *Queue) Enqueue(a Action) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Run starts the consumer loop. It blocks until Stop is called, so callers
// should run it in its own goroutine.
func (q *Queue) Run() {
	stop := make(chan struct{})
	q.mu.Lock()
	q.runCancel = sync.OnceFunc(func() { close(stop) })
	q.runDone = make(chan struct{})
	q.mu.Unlock()
	defer close(q.runDone)

	var prevOffset time.Duration
	var pendingDirectResponse bool
	var directResponseFiredAt time.Time

	for {
		action, ok := q.dequeue(stop)
		if !ok {
			return
		}

		if pendingDirectResponse {
			remaining := directResponseMinDisplay - time.Since(directResponseFiredAt)
			if remaining > 0 {
				if !sleepInterruptible(remaining, stop) {
					return
				}
			}
			if hide := q.getHideDirectResponse(); hide != nil {
				hide()
			}
			pendingDirectResponse = false
		}

		delta := action.Offset - prevOffset
		if delta > 0 {
			if !sleepInterruptible(delta, stop) {
				return
			}
		}
		prevOffset = action.Offset

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Msg("draw action panicked")
				}
			}()
			action.Run()
		}()

		if action.DirectResponse {
			pendingDirectResponse = true
			directResponseFiredAt = time.Now()
		}
	}
}

// dequeue blocks until an action is available or stop fires.
func (q *Queue) dequeue(stop <-chan struct{}) (Action, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			a := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return a, true
		}
		q.mu.Unlock()

		select {
		case <-q.notEmpty:
		case <-stop:
			return Action{}, false
		}
	}
}

func sleepInterruptible(d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

// StopAll clears the queue, cancels the running consumer, and clears the
// caller-supplied rectangle cache.
func (q *Queue) StopAll(cache *RectCache) {
	q.mu.Lock()
	q.items = nil
	cancel := q.runCancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cache != nil {
		cache.Clear()
	}
}

// Len reports the number of actions currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
