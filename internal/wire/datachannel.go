package wire

import (
	"context"
	"sync"
	"time"

	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// DataChannel is a FIFO of byte buffers keyed by channel name (spec §4.4).
// The reader loop deposits chunks with push/pushEOF; consumers read through
// ReadU8/ReadAll, both timeout-aware. It implements relation.ByteSource.
type DataChannel struct {
	name string

	mu     sync.Mutex
	chunks [][]byte
	eof    bool
	notify chan struct{} // recreated each time we need a new waiter
}

func newDataChannel(name string) *DataChannel {
	return &DataChannel{name: name, notify: make(chan struct{})}
}

func (c *DataChannel) Name() string { return c.name }

// push appends a payload chunk, called by the reader loop.
func (c *DataChannel) push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	notify := c.notify
	c.notify = make(chan struct{})
	c.mu.Unlock()
	close(notify)
}

// pushEOF marks the channel as having received end-of-contents. Further
// ReadU8 calls return ok=false once buffered chunks are drained.
func (c *DataChannel) pushEOF() {
	c.mu.Lock()
	c.eof = true
	notify := c.notify
	c.notify = make(chan struct{})
	c.mu.Unlock()
	close(notify)
}

// ReadU8 reads one byte, blocking (cooperatively, via the notify channel)
// until a byte is available, end-of-contents is reached, or timeout
// elapses. ok is false only at legitimate end-of-contents; a timeout or
// context cancellation returns a non-nil error instead.
func (c *DataChannel) ReadU8(ctx context.Context, timeout time.Duration) (byte, bool, error) {
	buf, ok, err := c.ReadAll(ctx, 1, timeout)
	if err != nil || !ok {
		return 0, ok, err
	}
	return buf[0], true, nil
}

// ReadAll reads exactly n bytes, or reports ok=false if end-of-contents is
// reached before any byte of this call accumulates. If end-of-contents is
// reached after some but fewer than n bytes, ReadAll returns a
// broken-relation error.
func (c *DataChannel) ReadAll(ctx context.Context, n int, timeout time.Duration) ([]byte, bool, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, notify, eof := c.take(n - len(out))
		out = append(out, chunk...)
		if len(out) >= n {
			break
		}
		if eof {
			if len(out) == 0 {
				return nil, false, nil
			}
			return nil, false, tgerr.BrokenRelation("data channel "+c.name, nil)
		}
		if err := waitOrTimeout(ctx, notify, timeout); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// take removes up to want bytes from the front of the buffered chunks,
// returning the current notify channel to wait on if more is needed and
// whether EOF has been observed with nothing left buffered.
func (c *DataChannel) take(want int) (buf []byte, notify chan struct{}, eof bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for want > 0 && len(c.chunks) > 0 {
		head := c.chunks[0]
		if len(head) <= want {
			buf = append(buf, head...)
			want -= len(head)
			c.chunks = c.chunks[1:]
		} else {
			buf = append(buf, head[:want]...)
			c.chunks[0] = head[want:]
			want = 0
		}
	}
	return buf, c.notify, c.eof && len(c.chunks) == 0
}

func waitOrTimeout(ctx context.Context, notify chan struct{}, timeout time.Duration) error {
	var after <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		after = t.C
	}
	select {
	case <-notify:
		return nil
	case <-after:
		return tgerr.Timeout("data channel read")
	case <-ctx.Done():
		return ctx.Err()
	}
}
