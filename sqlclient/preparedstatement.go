package sqlclient

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// PreparedStatement wraps an opaque server prepared-statement handle, a
// back-reference to the client, a close timeout, and a disposed flag (spec
// §4.10), mirroring Transaction.
type PreparedStatement struct {
	client           *Client
	handle           uint64
	hasResultRecords bool
	timeout          time.Duration

	mu       sync.Mutex
	disposed bool
}

func newPreparedStatement(c *Client, handle uint64, hasResultRecords bool, timeout time.Duration) *PreparedStatement {
	stmt := &PreparedStatement{client: c, handle: handle, hasResultRecords: hasResultRecords, timeout: timeout}
	runtime.SetFinalizer(stmt, finalizePreparedStatement)
	return stmt
}

// Handle returns the server-assigned prepared-statement handle.
func (stmt *PreparedStatement) Handle() uint64 { return stmt.handle }

// HasResultRecords reports whether this statement's execution produces a
// result set (preserved verbatim per spec §9 open question on dispose
// semantics).
func (stmt *PreparedStatement) HasResultRecords() bool { return stmt.hasResultRecords }

// Close sends dispose-prepare, waiting for a response. A no-op if the
// statement is already disposed.
func (stmt *PreparedStatement) Close(ctx context.Context) error {
	stmt.mu.Lock()
	if stmt.disposed {
		stmt.mu.Unlock()
		return nil
	}
	stmt.disposed = true
	stmt.mu.Unlock()
	runtime.SetFinalizer(stmt, nil)
	return stmt.client.disposePreparedStatement(ctx, stmt.handle, stmt.hasResultRecords, stmt.timeout)
}

// finalizePreparedStatement is the last-resort cleanup for a
// PreparedStatement the caller forgot to Close, using the send-only dispose
// variant since a finalizer cannot wait for a response (spec §4.8 "dispose
// also has send-only variant used during drop").
func finalizePreparedStatement(stmt *PreparedStatement) {
	stmt.mu.Lock()
	disposed := stmt.disposed
	stmt.mu.Unlock()
	if disposed {
		return
	}
	stmt.client.disposePreparedStatementSendOnly(stmt.handle, stmt.hasResultRecords)
}
