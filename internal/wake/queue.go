package wake

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingCall is a queued DIAL awaiting its callee's return from sleep
// (spec.md §3 PendingWakeCall).
type PendingCall struct {
	CallID          uuid.UUID
	CallerAddress   string
	CallerSessionID uuid.UUID
	CalleeAddress   string
	Metadata        map[string]any
	Profile         Profile
	Deadline        time.Time
}

// Queue is the per-address FIFO of PendingCall entries (spec.md §4.5:
// "Pending wake queue per address is FIFO").
type Queue struct {
	mu      sync.Mutex
	pending map[string][]PendingCall
}

// NewQueue constructs an empty pending-wake queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[string][]PendingCall)}
}

// Enqueue appends a PendingCall to the tail of its callee's queue.
func (q *Queue) Enqueue(pc PendingCall) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[pc.CalleeAddress] = append(q.pending[pc.CalleeAddress], pc)
}

// Dequeue removes and returns the oldest PendingCall for address.
func (q *Queue) Dequeue(address string) (PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.pending[address]
	if len(list) == 0 {
		return PendingCall{}, false
	}
	pc := list[0]
	rest := list[1:]
	if len(rest) == 0 {
		delete(q.pending, address)
	} else {
		q.pending[address] = rest
	}
	return pc, true
}

// Requeue pushes a PendingCall back onto the front of its callee's queue
// (used when the callee no longer accepts, e.g. a parallel cap reached
// mid-drain, spec.md §4.2).
func (q *Queue) Requeue(pc PendingCall) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[pc.CalleeAddress] = append([]PendingCall{pc}, q.pending[pc.CalleeAddress]...)
}

// RemoveByCaller removes and returns every PendingCall whose caller is the
// given session (spec.md §4.9 step 5: fail pending calls on disconnect).
func (q *Queue) RemoveByCaller(sessionID uuid.UUID) []PendingCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []PendingCall
	for addr, list := range q.pending {
		kept := list[:0:0]
		for _, pc := range list {
			if pc.CallerSessionID == sessionID {
				removed = append(removed, pc)
			} else {
				kept = append(kept, pc)
			}
		}
		if len(kept) == 0 {
			delete(q.pending, addr)
		} else {
			q.pending[addr] = kept
		}
	}
	return removed
}

// RemoveByCallID removes and returns a single PendingCall by its callId,
// e.g. when its wake timer fires.
func (q *Queue) RemoveByCallID(address string, callID uuid.UUID) (PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.pending[address]
	for i, pc := range list {
		if pc.CallID == callID {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(q.pending, address)
			} else {
				q.pending[address] = list
			}
			return pc, true
		}
	}
	return PendingCall{}, false
}
