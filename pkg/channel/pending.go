package channel

import "sync"

// completedHistory is a small bounded FIFO set of message ids that have
// already been resolved, so that a reply arriving after its waiter was
// removed (drained by rejectAllPending, or completed normally) is
// recognized as "completed-and-ignored" rather than triggering a
// ProtocolError (spec.md §4.3's invariant: "Replies for unknown ids cause
// an internal error event unless the id appears in the bounded completed
// history").
type completedHistory struct {
	mu       sync.Mutex
	capacity int
	order    []uint64
	set      map[uint64]struct{}
}

func newCompletedHistory(capacity int) *completedHistory {
	return &completedHistory{
		capacity: capacity,
		set:      make(map[uint64]struct{}, capacity),
	}
}

func (h *completedHistory) add(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.set[id]; ok {
		return
	}
	h.order = append(h.order, id)
	h.set[id] = struct{}{}
	if len(h.order) > h.capacity {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.set, oldest)
	}
}

func (h *completedHistory) contains(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.set[id]
	return ok
}

// streamItem is what a streamed reply's waiter delivers to its consumer:
// exactly one of Msg or Err is meaningful.
type streamItem struct {
	Msg Message
	Err error
}

// waiter is the Pending Request Table entry for one in-flight message id.
// It is a buffered channel rather than a single-shot promise: because the
// same waiter stays registered in the pending table for the entire
// lifetime of a streamed request, a reply that arrives while the consumer
// is between receives is queued, never dropped. This satisfies spec.md
// §9's "pre-register the next-id waiter before yielding" invariant through
// Go's native channel buffering instead of literally re-registering a
// single-shot waiter per item.
type waiter struct {
	ch     chan streamItem
	stream bool
}

type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]*waiter
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*waiter)}
}

func (t *pendingTable) register(id uint64, stream bool) *waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := &waiter{ch: make(chan streamItem, 16), stream: stream}
	t.entries[id] = w
	return w
}

func (t *pendingTable) lookup(id uint64) (*waiter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.entries[id]
	return w, ok
}

func (t *pendingTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// drain atomically empties the table and returns every waiter it held, for
// rejectAllPending.
func (t *pendingTable) drain() map[uint64]*waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.entries
	t.entries = make(map[uint64]*waiter)
	return out
}
