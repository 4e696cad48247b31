package wire

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/project-tsurugi/tsubakuro-go/log"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// Wire composes the response box, framing, and transport into the facade
// every service client talks to (spec §4.5). It correlates a request to its
// slot, optionally to a data channel, and offers send/wait/pull/cancel.
type Wire struct {
	link *tcpLink
	box  *ResponseBox
	log  log.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an already-connected transport. Handshake (spec §4.7) happens
// one layer up, in the session package, using SendOnly/PullResponse
// directly before the Wire is handed to any service client.
func New(conn io.ReadWriteCloser, logger log.Logger) *Wire {
	box := NewResponseBox()
	w := &Wire{
		link:   newTCPLink(conn, box, logger),
		box:    box,
		log:    logger,
		closed: make(chan struct{}),
	}
	w.link.onSessionBye = func() { w.Close() }
	return w
}

// SendOnly allocates a slot, builds the outbound frame, and writes it
// (spec §4.5.1). header and payload are already-marshaled framework
// request header / service message bytes.
func (w *Wire) SendOnly(header, payload []byte) (*SlotHandle, error) {
	slot := w.box.CreateSlotHandle()
	f := outboundFrame{info: frameRequest, slot: slot.id, header: header, payload: payload}
	if err := w.link.send(f, time.Time{}); err != nil {
		w.box.Release(slot.id)
		return nil, err
	}
	return slot, nil
}

// SendAndPullResponse sends and waits on the slot until timeout expires or
// a response arrives (spec §4.5.2).
func (w *Wire) SendAndPullResponse(ctx context.Context, header, payload []byte, timeout time.Duration) (*Response, error) {
	slot, err := w.SendOnly(header, payload)
	if err != nil {
		return nil, err
	}
	defer w.box.Release(slot.id)
	return w.PullResponse(ctx, slot, timeout)
}

// Converter turns a raw slot Response into a caller's typed value
// (spec §4.9 "holds a converter closure from raw response to typed value").
type Converter[T any] func(*Response) (T, error)

// SendAndPullAsync sends and returns a Job owning the slot (spec §4.5.3,
// §4.9). It is a free function rather than a method because Go methods
// cannot introduce a type parameter beyond their receiver's.
func SendAndPullAsync[T any](w *Wire, name string, header, payload []byte, convert Converter[T], defaultTimeout time.Duration, failOnDrop bool) (*Job[T], error) {
	slot, err := w.SendOnly(header, payload)
	if err != nil {
		return nil, err
	}
	return newJob(w, name, slot, convert, defaultTimeout, failOnDrop), nil
}

// WaitResponse returns true if a response becomes available within
// timeout, false on timeout, and yields cooperatively between read
// attempts (spec §4.5.4). A zero timeout means "do not wait, only check".
func (w *Wire) WaitResponse(ctx context.Context, slot *SlotHandle, timeout time.Duration) (bool, error) {
	if w.box.Exists(slot.id) {
		return true, nil
	}
	if timeout == 0 {
		return false, nil
	}
	ready, err := w.box.readyChan(slot.id)
	if err != nil {
		return false, err
	}
	var after <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		after = t.C
	}
	select {
	case <-ready:
		return true, nil
	case <-after:
		return false, nil
	case <-w.closed:
		return false, tgerr.Transport("wire.WaitResponse", nil)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// CheckResponse performs at most one read step: a non-blocking readiness
// check (spec §4.5.5).
func (w *Wire) CheckResponse(slot *SlotHandle) bool {
	return w.box.Exists(slot.id)
}

// PullResponse is the blocking consumer: it returns the response, or a
// timeout error (spec §4.5.6).
func (w *Wire) PullResponse(ctx context.Context, slot *SlotHandle, timeout time.Duration) (*Response, error) {
	if resp, ok := w.box.Take(slot.id); ok {
		return resp, nil
	}
	ok, err := w.WaitResponse(ctx, slot, timeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tgerr.Timeout("wire.PullResponse")
	}
	resp, ok := w.box.Take(slot.id)
	if !ok {
		return nil, tgerr.Timeout("wire.PullResponse")
	}
	return resp, nil
}

// Cancel sends a cancel request reusing slot's id (spec §4.3 "cancellation
// sends a cancel message reusing the same slot").
func (w *Wire) Cancel(slot *SlotHandle) error {
	return w.link.sendAsync(outboundFrame{info: frameRequestCancel, slot: slot.id})
}

// ReleaseSlot drops the bookkeeping for a slot once the caller is entirely
// done with it.
func (w *Wire) ReleaseSlot(slot *SlotHandle) {
	w.box.Release(slot.id)
}

// RearmSlot re-arms slot after a body-head response has been consumed, so a
// later terminal response on the same slot (the streaming query template,
// spec §4.8) is captured rather than discarded.
func (w *Wire) RearmSlot(slot *SlotHandle) {
	w.box.Rearm(slot.id)
}

// CreateDataChannel returns a handle consumers read through (spec
// §4.5.7).
func (w *Wire) CreateDataChannel(name string) *DataChannel {
	return w.link.createDataChannel(name)
}

// DropDataChannel discards a data channel's buffered state once its value
// stream has been fully consumed or discarded.
func (w *Wire) DropDataChannel(name string) {
	w.link.dropDataChannel(name)
}

// Close closes the underlying transport. Idempotent (spec §4.7 "close ...
// idempotent").
func (w *Wire) Close() error {
	w.closeOnce.Do(func() {
		close(w.closed)
		w.link.die(tgerr.Transport("wire.Close", nil))
	})
	return nil
}

// IsClosed reports whether the wire has been closed, locally or by the
// remote (spec §4.5.8).
func (w *Wire) IsClosed() bool {
	return w.link.isClosed()
}
