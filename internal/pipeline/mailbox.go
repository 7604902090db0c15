package pipeline

import (
	"sync"

	"github.com/pathfinder-nav/pathfinder/internal/types"
)

// mailbox is a single-slot, overwrite-on-publish frame queue between the
// intake thread and the pipeline worker (spec §5 intake-to-vision mailbox):
// Put never blocks; an unconsumed frame is replaced and counted as dropped.
// Adapted from the teacher's WorkerSlot/inbox sync.Cond mailbox.
type mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	event *types.FrameEvent
	drops uint64
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put is the non-blocking intake-side publish (spec §5: "never blocks;
// drop if full").
func (m *mailbox) Put(ev types.FrameEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.event != nil {
		m.drops++
	}
	m.event = &ev
	m.cond.Signal()
}

// Take blocks until a frame is available or the mailbox is closed, in
// which case it returns (types.FrameEvent{}, false).
func (m *mailbox) Take() (types.FrameEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.event == nil && !m.closed {
		m.cond.Wait()
	}
	if m.event == nil {
		return types.FrameEvent{}, false
	}

	ev := *m.event
	m.event = nil
	return ev, true
}

// Close wakes any blocked Take and causes future calls to return false.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Drops returns the count of frames overwritten before being consumed.
func (m *mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}
