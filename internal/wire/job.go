package wire

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/project-tsurugi/tsubakuro-go/log"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// Job is an async handle for a response that may still be in flight and may
// be canceled before the underlying work completes (spec §4.9). It is not
// safe for concurrent use by multiple goroutines, matching the "thread
// unsafe" note on the reference implementation's Job<T>.
type Job[T any] struct {
	name           string
	wire           *Wire
	slot           *SlotHandle
	convert        Converter[T]
	defaultTimeout time.Duration
	failOnDrop     bool

	mu       sync.Mutex
	done     bool
	taken    bool
	canceled bool
	closed   bool

	releaseMu   sync.Mutex
	releaseOnce sync.Once
	onRelease   func()
}

func newJob[T any](w *Wire, name string, slot *SlotHandle, convert Converter[T], defaultTimeout time.Duration, failOnDrop bool) *Job[T] {
	j := &Job[T]{
		name:           name,
		wire:           w,
		slot:           slot,
		convert:        convert,
		defaultTimeout: defaultTimeout,
		failOnDrop:     failOnDrop,
	}
	runtime.SetFinalizer(j, finalizeJob[T])
	return j
}

// SetOnRelease registers fn to run exactly once, the first time the job
// reaches a terminal disposition: a successful TakeFor, an explicit Close,
// or the last-resort finalizer. Callers that bound some external resource
// (e.g. a concurrency-limiting semaphore permit) to the job's lifetime use
// this instead of tying the release to any single terminal path, since a
// canceled or abandoned job needs the resource freed just as much as one
// that was taken.
func (j *Job[T]) SetOnRelease(fn func()) {
	j.releaseMu.Lock()
	j.onRelease = fn
	j.releaseMu.Unlock()
}

// release runs the registered onRelease callback exactly once. It uses its
// own lock rather than j.mu, so it is safe to call from within a
// TakeFor/Close that already holds j.mu.
func (j *Job[T]) release() {
	j.releaseOnce.Do(func() {
		j.releaseMu.Lock()
		fn := j.onRelease
		j.releaseMu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (j *Job[T]) Name() string { return j.name }

func (j *Job[T]) SetDefaultTimeout(d time.Duration) { j.defaultTimeout = d }

// Wait reports whether a response has arrived within timeout, without
// consuming it.
func (j *Job[T]) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return true, nil
	}
	ok, err := j.wire.WaitResponse(ctx, j.slot, timeout)
	if ok {
		j.done = true
	}
	return ok, err
}

// IsDone is a non-blocking readiness check.
func (j *Job[T]) IsDone(ctx context.Context) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return true, nil
	}
	if j.canceled || j.closed {
		return false, nil
	}
	ok := j.wire.CheckResponse(j.slot)
	if ok {
		j.done = true
	}
	return ok, nil
}

// Take waits using the job's default timeout and consumes the result.
func (j *Job[T]) Take(ctx context.Context) (T, error) {
	return j.TakeFor(ctx, j.defaultTimeout)
}

// TakeFor retrieves the result value, waiting up to timeout. A Job can only
// be taken once.
func (j *Job[T]) TakeFor(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.taken {
		return zero, tgerr.Client("Job.TakeFor: already taken", nil)
	}
	resp, err := j.wire.PullResponse(ctx, j.slot, timeout)
	if err != nil {
		return zero, err
	}
	j.done = true
	j.taken = true
	j.wire.ReleaseSlot(j.slot)
	defer j.release()
	return j.convert(resp)
}

// TakeIfReady returns (value, true, nil) if a response has already been
// received, or (zero, false, nil) if not yet ready.
func (j *Job[T]) TakeIfReady(ctx context.Context) (T, bool, error) {
	var zero T
	done, err := j.IsDone(ctx)
	if err != nil || !done {
		return zero, false, err
	}
	v, err := j.TakeFor(ctx, 0)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Cancel sends a cancel request and waits for the job's default timeout.
func (j *Job[T]) Cancel(ctx context.Context) (bool, error) {
	return j.CancelFor(ctx, j.defaultTimeout)
}

// CancelFor sends a cancel request and waits up to timeout for a response
// (which is not guaranteed to be an operation-canceled diagnostic: the
// server may already have completed the work).
func (j *Job[T]) CancelFor(ctx context.Context, timeout time.Duration) (bool, error) {
	started, err := j.CancelAsync(ctx)
	if err != nil {
		return false, err
	}
	if !started {
		return true, nil
	}
	return j.Wait(ctx, timeout)
}

// CancelAsync sends the cancel request without waiting, and reports whether
// cancellation was actually started (false means the job was already done
// or already canceled).
func (j *Job[T]) CancelAsync(ctx context.Context) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done || j.canceled {
		return false, nil
	}
	j.canceled = true
	if err := j.wire.Cancel(j.slot); err != nil {
		return false, err
	}
	return true, nil
}

// Close disposes the job: if no response was received and no cancellation
// was made, it sends a best-effort cancel. Idempotent.
func (j *Job[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	runtime.SetFinalizer(j, nil)
	defer j.release()
	if j.done || j.canceled {
		return nil
	}
	return j.wire.Cancel(j.slot)
}

// finalizeJob is the last-resort cleanup for a Job the caller forgot to
// Close, standing in for the reference implementation's Drop impl (which
// spins up a dedicated runtime and blocks on a best-effort cancel). A
// finalizer cannot safely do blocking I/O, so this fires the cancel
// send asynchronously and logs rather than panicking on failure, even when
// failOnDrop is set — panicking from a finalizer would crash the process
// for a simple leaked handle.
func finalizeJob[T any](j *Job[T]) {
	// Run first and unconditionally: release is idempotent (sync.Once), and
	// this is the last chance to free an onRelease-bound resource (e.g. a
	// concurrency permit) for a job whose caller never called Close, no
	// matter which state it was abandoned in.
	j.release()

	j.mu.Lock()
	leaked := !(j.done || j.canceled || j.closed) && !j.wire.box.Exists(j.slot.id)
	j.mu.Unlock()
	if !leaked {
		return
	}
	if err := j.wire.Cancel(j.slot); err != nil && j.wire.log != nil {
		j.wire.log.Log(context.Background(), log.LogLevelWarn, "Job finalized without Close; best-effort cancel failed", map[string]interface{}{
			"name": j.name, "error": err.Error(),
		})
	}
}
