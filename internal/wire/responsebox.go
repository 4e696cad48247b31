package wire

import (
	"sync"

	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// Response is what a slot eventually holds (spec §4.3 slot entry): either a
// normal payload, a streaming body-head naming a data channel, or an error
// bound to the slot by the framing layer.
type Response struct {
	Payload []byte
	Channel string // non-empty for a body-head response
	Err     error  // set when the framing layer decoded a server-diagnostics record
}

// SlotHandle is the caller-visible handle to one allocated slot (spec §4.3,
// §4.9 Job<T>: "references wire and slot").
type SlotHandle struct {
	box *ResponseBox
	id  uint32
}

func (h *SlotHandle) ID() uint32 { return h.id }

// ResponseBox allocates slot IDs, stores pending responses keyed by slot,
// and wakes waiters. Grounded on the reader/writer goroutine split in
// internal/muxado/session.go, whose streamMap plays the same role keyed by
// stream id instead of slot id; here a buffered channel per slot
// (capacity 1) stands in for that package's condition-variable-free
// handoff.
type ResponseBox struct {
	mu       sync.Mutex
	nextSlot uint32
	slots    map[uint32]*slotEntry
}

type slotEntry struct {
	ready    chan struct{}
	response *Response
	armed    bool // false once taken; re-arriving pushes for a disarmed slot are discarded
}

func NewResponseBox() *ResponseBox {
	return &ResponseBox{slots: make(map[uint32]*slotEntry)}
}

// CreateSlotHandle allocates a fresh slot id and returns a handle to it
// (spec §4.3 "slot numbers are reused after the response is taken"; this
// implementation uses a monotonic counter rather than a free-list, which is
// equally correct since ids only need to be unique among slots currently
// outstanding on the wire and uint32 space is effectively inexhaustible for
// one session's lifetime).
func (b *ResponseBox) CreateSlotHandle() *SlotHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSlot
	b.nextSlot++
	b.slots[id] = &slotEntry{ready: make(chan struct{}, 1), armed: true}
	return &SlotHandle{box: b, id: id}
}

// Push is called by the reader loop to deposit a response for slot. A push
// to a disarmed slot (already taken, or never created) is discarded
// silently per spec §4.3 invariants.
func (b *ResponseBox) Push(slot uint32, resp *Response) {
	b.mu.Lock()
	e, ok := b.slots[slot]
	if !ok || !e.armed || e.response != nil {
		b.mu.Unlock()
		return
	}
	e.response = resp
	b.mu.Unlock()
	select {
	case e.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the response for slot if one is ready.
func (b *ResponseBox) Take(slot uint32) (*Response, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.slots[slot]
	if !ok || e.response == nil {
		return nil, false
	}
	resp := e.response
	e.response = nil
	e.armed = false
	return resp, true
}

// Exists is a non-destructive readiness check.
func (b *ResponseBox) Exists(slot uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.slots[slot]
	return ok && e.response != nil
}

// readyChan returns the channel the waiter should select on; it is closed
// over, not exposed outside the package.
func (b *ResponseBox) readyChan(slot uint32) (chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.slots[slot]
	if !ok {
		return nil, tgerr.Client("wire.readyChan", nil)
	}
	return e.ready, nil
}

// Release removes the bookkeeping for slot once the caller is done with it
// (taken, canceled-and-discarded, or the owning job/result closed).
func (b *ResponseBox) Release(slot uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.slots, slot)
}

// Rearm re-arms a slot after its body-head response has been taken, so the
// streaming query template's later terminal response (spec §4.8: "the slot
// ... will later receive a terminal result-only response") is not silently
// discarded by the disarmed-slot rule Push otherwise applies. Any stale
// readiness token left over from the body-head push is drained so a waiter
// doesn't wake spuriously before the terminal response actually arrives.
func (b *ResponseBox) Rearm(slot uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.slots[slot]
	if !ok {
		return
	}
	e.response = nil
	e.armed = true
	select {
	case <-e.ready:
	default:
	}
}
