package sqlclient

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Transaction wraps an opaque server transaction handle, a back-reference
// to the client it was started through, a close timeout, and a disposed
// flag (spec §4.10). Use Client.Commit/Rollback to finish it, then Close to
// release the handle (skip Close if Commit's autoDispose was set).
type Transaction struct {
	client  *Client
	handle  uint64
	timeout time.Duration

	mu       sync.Mutex
	disposed bool
}

func newTransaction(c *Client, handle uint64, timeout time.Duration) *Transaction {
	tx := &Transaction{client: c, handle: handle, timeout: timeout}
	runtime.SetFinalizer(tx, finalizeTransaction)
	return tx
}

// Handle returns the server-assigned transaction handle.
func (tx *Transaction) Handle() uint64 { return tx.handle }

func (tx *Transaction) markDisposed() {
	tx.mu.Lock()
	tx.disposed = true
	tx.mu.Unlock()
	runtime.SetFinalizer(tx, nil)
}

// Disposed reports whether the transaction has already been disposed
// (explicitly, or implicitly via Commit's autoDispose).
func (tx *Transaction) Disposed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.disposed
}

// Close sends dispose-transaction, waiting for a response. A no-op if the
// transaction is already disposed.
func (tx *Transaction) Close(ctx context.Context) error {
	tx.mu.Lock()
	if tx.disposed {
		tx.mu.Unlock()
		return nil
	}
	tx.disposed = true
	tx.mu.Unlock()
	runtime.SetFinalizer(tx, nil)
	return tx.client.disposeTransaction(ctx, tx.handle, tx.timeout)
}

// finalizeTransaction is the last-resort cleanup for a Transaction the
// caller forgot to Close or commit-with-autoDispose, mirroring the Job
// pattern: drop cannot suspend, so it sends dispose best-effort without
// waiting (spec §4.10 "Drop sends dispose best-effort using the same
// scoped-runtime technique as session drop").
func finalizeTransaction(tx *Transaction) {
	tx.mu.Lock()
	disposed := tx.disposed
	tx.mu.Unlock()
	if disposed {
		return
	}
	tx.client.disposeTransactionSendOnly(tx.handle)
}
