package basic

import (
	"sync"
	"time"

	pq "github.com/named-data/Consumer-Producer-API/types/priority_queue"
)

type dummyEvent struct {
	f         func()
	cancelled bool
}

// DummyTimer is a deterministic virtual clock for tests. Scheduled
// events fire from MoveForward in deadline order.
type DummyTimer struct {
	lock   sync.Mutex
	now    time.Time
	events *pq.Queue[*dummyEvent, int64]
}

// NewDummyTimer creates a timer at the unix epoch.
func NewDummyTimer() *DummyTimer {
	return &DummyTimer{
		now:    time.Unix(0, 0).UTC(),
		events: pq.New[*dummyEvent, int64](),
	}
}

func (tm *DummyTimer) Now() time.Time {
	tm.lock.Lock()
	defer tm.lock.Unlock()
	return tm.now
}

// MoveForward advances the clock and runs every event that became due,
// in deadline order.
func (tm *DummyTimer) MoveForward(d time.Duration) {
	tm.lock.Lock()
	tm.now = tm.now.Add(d)
	deadline := tm.now.UnixNano()
	tm.lock.Unlock()

	for {
		tm.lock.Lock()
		if tm.events.Len() == 0 || tm.events.PeekPriority() > deadline {
			tm.lock.Unlock()
			return
		}
		ev := tm.events.Pop()
		tm.lock.Unlock()

		if !ev.cancelled && ev.f != nil {
			ev.f()
		}
	}
}

func (tm *DummyTimer) Schedule(d time.Duration, f func()) func() error {
	tm.lock.Lock()
	defer tm.lock.Unlock()

	ev := &dummyEvent{f: f}
	tm.events.Push(ev, tm.now.Add(d).UnixNano())

	return func() error {
		tm.lock.Lock()
		defer tm.lock.Unlock()
		ev.cancelled = true
		return nil
	}
}

// Sleep blocks until the virtual clock passes the duration. Only
// useful when another goroutine drives MoveForward.
func (tm *DummyTimer) Sleep(d time.Duration) {
	ch := make(chan struct{})
	tm.Schedule(d, func() { close(ch) })
	<-ch
}

func (*DummyTimer) Nonce() []byte {
	return []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
}
