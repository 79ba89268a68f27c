package router

import (
	"context"
	"fmt"
	"sync"
)

// laneBufferSize is the capacity of each lane's work channel.
// Tests in this package may override it to exercise full-buffer paths.
var laneBufferSize = 256

type laneItem struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// lane runs the work of one channel on a single goroutine.
type lane struct {
	work    chan laneItem
	pending int // registered but unfinished items, guarded by laneSet.mu
}

// laneSet serializes work per channel. Different channels run concurrently;
// work within one channel runs in submission order. A lane's goroutine exits
// once nothing is pending so idle channels hold no resources.
type laneSet struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

func newLaneSet() *laneSet {
	return &laneSet{lanes: make(map[string]*lane)}
}

// do runs fn in the lane for key and blocks until it finishes or ctx is done.
// Work whose context is canceled before its turn is skipped.
func (s *laneSet) do(ctx context.Context, key string, fn func() error) error {
	l := s.acquire(key)
	item := laneItem{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case l.work <- item:
	case <-ctx.Done():
		s.release(key, l)
		return ctx.Err()
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *laneSet) acquire(key string) *lane {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{work: make(chan laneItem, laneBufferSize)}
		s.lanes[key] = l
		go s.run(key, l)
	}
	l.pending++
	return l
}

// release retires one pending item; the last one closes the lane.
func (s *laneSet) release(key string, l *lane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		delete(s.lanes, key)
		close(l.work)
	}
}

func (s *laneSet) run(key string, l *lane) {
	for item := range l.work {
		if err := item.ctx.Err(); err != nil {
			item.done <- err
		} else {
			item.done <- safeExec(item.fn)
		}
		s.release(key, l)
	}
}

// safeExec runs fn and recovers from panics, converting them to errors.
func safeExec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("router: panic: %v", r)
		}
	}()
	return fn()
}

// count returns the number of lanes with pending work.
func (s *laneSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
