// Package superpagequeue implements the three-region superpage pipeline
// that sits between a Channel's push/pop API and the DMA engine's
// hardware-facing descriptor ring: Pushing, Arrivals, and Filled.
//
// The three regions behave as a single in-order pipeline: an entry
// enqueued before another appears before it in every region it
// currently occupies, and leaves the terminal Filled region before it
// does.
package superpagequeue

import (
	"container/list"

	"github.com/maersdal/readoutcard/roc"
)

// Entry is the internal wrapper around a client Superpage while it is
// owned by the engine.
type Entry struct {
	Superpage   roc.Superpage
	BusAddress  uint64
	MaxPages    uint32
	PushedPages uint32
}

// UnpushedPages returns the number of pages not yet pushed into the
// hardware descriptor ring.
func (e *Entry) UnpushedPages() uint32 { return e.MaxPages - e.PushedPages }

// FullyPushed reports whether every page of the entry has been pushed.
func (e *Entry) FullyPushed() bool { return e.PushedPages == e.MaxPages }

// Queue holds the Pushing, Arrivals, and Filled regions. AddToQueue
// bounds Pushing+Arrivals combined by the transfer capacity. The ready
// capacity given to New is stored but not enforced: moving an entry
// into Filled never fails, so Filled can grow past it. The zero value
// is not usable; construct with New.
type Queue struct {
	transferCapacity int
	readyCapacity    int

	pushing  *list.List
	arrivals *list.List
	filled   *list.List
}

// New constructs an empty Queue with the given capacities.
func New(transferCapacity, readyCapacity int) *Queue {
	return &Queue{
		transferCapacity: transferCapacity,
		readyCapacity:    readyCapacity,
		pushing:          list.New(),
		arrivals:         list.New(),
		filled:           list.New(),
	}
}

// Clear empties all three regions, e.g. on StartDMA.
func (q *Queue) Clear() {
	q.pushing.Init()
	q.arrivals.Init()
	q.filled.Init()
}

// TransferLen returns |Pushing|+|Arrivals|.
func (q *Queue) TransferLen() int { return q.pushing.Len() + q.arrivals.Len() }

// TransferAvailable returns the remaining slack in the transfer side.
func (q *Queue) TransferAvailable() int { return q.transferCapacity - q.TransferLen() }

// ReadyLen returns |Filled|.
func (q *Queue) ReadyLen() int { return q.filled.Len() }

// AddToQueue appends entry to the tail of Pushing. It fails if the
// transfer queue is already at capacity.
func (q *Queue) AddToQueue(entry Entry) error {
	if q.TransferAvailable() <= 0 {
		return errQueueFull{capacity: q.transferCapacity}
	}
	q.pushing.PushBack(&entry)
	return nil
}

type errQueueFull struct{ capacity int }

func (e errQueueFull) Error() string { return "superpage queue: transfer queue full" }

// Capacity exposes the configured capacity to callers that want to wrap
// this in a richer error type (e.g. *roc.QueueFullError).
func (e errQueueFull) Capacity() int { return e.capacity }

// PushingFront returns the entry at the head of Pushing, or nil if
// Pushing is empty. The returned pointer aliases the queue's storage and
// may be mutated in place by the caller (the DMA engine advances
// PushedPages this way).
func (q *Queue) PushingFront() *Entry {
	if front := q.pushing.Front(); front != nil {
		return front.Value.(*Entry)
	}
	return nil
}

// PushingEmpty reports whether Pushing has no entries.
func (q *Queue) PushingEmpty() bool { return q.pushing.Len() == 0 }

// RemoveFromPushingQueue moves the head of Pushing to the tail of
// Arrivals, preserving insertion order across regions.
func (q *Queue) RemoveFromPushingQueue() {
	front := q.pushing.Front()
	if front == nil {
		return
	}
	q.pushing.Remove(front)
	q.arrivals.PushBack(front.Value)
}

// ArrivalsFront returns the entry at the head of Arrivals, or nil if
// Arrivals is empty. Its pages correspond to the oldest outstanding
// descriptors in the hardware ring.
func (q *Queue) ArrivalsFront() *Entry {
	if front := q.arrivals.Front(); front != nil {
		return front.Value.(*Entry)
	}
	return nil
}

// ArrivalsEmpty reports whether Arrivals has no entries.
func (q *Queue) ArrivalsEmpty() bool { return q.arrivals.Len() == 0 }

// MoveFromArrivalsToFilledQueue moves the head of Arrivals to the tail
// of Filled.
func (q *Queue) MoveFromArrivalsToFilledQueue() {
	front := q.arrivals.Front()
	if front == nil {
		return
	}
	q.arrivals.Remove(front)
	q.filled.PushBack(front.Value)
}

// FilledFront peeks the head of Filled without removing it.
func (q *Queue) FilledFront() (Entry, bool) {
	front := q.filled.Front()
	if front == nil {
		return Entry{}, false
	}
	return *front.Value.(*Entry), true
}

// RemoveFromFilledQueue pops and returns the head of Filled.
func (q *Queue) RemoveFromFilledQueue() (Entry, bool) {
	front := q.filled.Front()
	if front == nil {
		return Entry{}, false
	}
	q.filled.Remove(front)
	return *front.Value.(*Entry), true
}
