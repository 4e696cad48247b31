// Package sqlclient is the SQL service client built on top of a Session:
// list-tables/describe-table/explain, prepare/dispose, transaction
// begin/commit/rollback, execute/query, and large-object retrieval (spec
// §4.8).
package sqlclient

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/internal/wire"
	"github.com/project-tsurugi/tsubakuro-go/lob"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// session is the minimal surface Client needs; satisfied by *tsubakuro.Session.
// Defined here rather than imported directly to avoid a package cycle
// (the root session package has no reason to import sqlclient).
type session interface {
	ID() int64
	Wire() *wire.Wire
	DefaultTimeout() time.Duration
	SendPathMapper() *lob.SendMapper
	RecvPathMapper() *lob.RecvMapper
}

func (c *Client) recvPath(serverPath string) (string, error) {
	return c.sess.RecvPathMapper().ToClientPath(serverPath)
}

// defaultMaxConcurrentJobs bounds the number of async jobs (PreparedExecuteAsync,
// ExecuteStatementAsync) a Client allows in flight at once, so a caller
// firing off many async executes in a loop can't exhaust slot/memory
// bookkeeping (SPEC_FULL domain-stack note: "bounding concurrent in-flight
// jobs in sql.Client").
const defaultMaxConcurrentJobs = 64

// Client is the SQL service client for one session.
type Client struct {
	sess    session
	sem     *semaphore.Weighted
	blobSeq atomic.Int64
}

// New returns a Client bounded to defaultMaxConcurrentJobs concurrent async
// jobs.
func New(sess session) *Client {
	return NewWithMaxConcurrentJobs(sess, defaultMaxConcurrentJobs)
}

// NewWithMaxConcurrentJobs returns a Client bounding concurrent async jobs
// to maxJobs.
func NewWithMaxConcurrentJobs(sess session, maxJobs int64) *Client {
	return &Client{sess: sess, sem: semaphore.NewWeighted(maxJobs)}
}

// nextBlobChannelSeq hands out a session-wide monotonic sequence number for
// LOB data-channel names, so two concurrent requests never mint the same
// channel name even when they bind a LOB at the same parameter position.
func (c *Client) nextBlobChannelSeq() int64 {
	return c.blobSeq.Add(1)
}

func (c *Client) header(blobs ...tsurugipb.BlobInfo) *tsurugipb.RequestHeader {
	return &tsurugipb.RequestHeader{ServiceID: tsurugipb.SQLServiceID, SessionID: uint64(c.sess.ID()), Blobs: blobs}
}

func (c *Client) timeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return c.sess.DefaultTimeout()
}

// call is the unary template: send, wait for one response, and hand the raw
// Response back for the caller to decode (spec §4.8 "Unary").
func (c *Client) call(ctx context.Context, payload []byte, timeout time.Duration) (*wire.Response, error) {
	return c.callBlobs(ctx, payload, nil, timeout)
}

// callBlobs is call, but attaching blob-info (from LOB parameters) to the
// framework request header (spec §4.8 "the collected blob-info list is
// attached to the framework request header so the server can associate
// files to parameters").
func (c *Client) callBlobs(ctx context.Context, payload []byte, blobs []tsurugipb.BlobInfo, timeout time.Duration) (*wire.Response, error) {
	return c.sess.Wire().SendAndPullResponse(ctx, c.header(blobs...).Marshal(), payload, c.timeout(timeout))
}

// callAsync is the unary-async template: acquire a concurrency permit, send,
// and return a Job whose converter decodes the eventual response (spec
// §4.8 "Unary async", §4.9). The permit is released exactly once, on
// whichever terminal path the Job reaches first: a successful
// Take/TakeFor/TakeIfReady, an explicit Close, or (for a job the caller
// forgot to Close) the finalizer — so a job that is only ever canceled, or
// whose TakeFor times out and is abandoned, still gives its permit back
// instead of leaking it until the session itself closes.
func callAsync[T any](c *Client, ctx context.Context, name string, payload []byte, blobs []tsurugipb.BlobInfo, decode func(*wire.Response) (T, error), timeout time.Duration) (*wire.Job[T], error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, tgerr.Client("sqlclient: acquire job permit", err)
	}
	job, err := wire.SendAndPullAsync[T](c.sess.Wire(), name, c.header(blobs...).Marshal(), payload, decode, c.timeout(timeout), false)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}
	job.SetOnRelease(func() { c.sem.Release(1) })
	return job, nil
}

func serviceErr(e *tsurugipb.ServiceError, op string) error {
	if e == nil {
		return nil
	}
	return tgerr.Service(e.Code, op, e.Message, e.Category, e.CategoryNumber)
}

// ListTables returns the names of every table the session's current
// transaction context can see.
func (c *Client) ListTables(ctx context.Context, timeout time.Duration) ([]string, error) {
	resp, err := c.call(ctx, (&tsurugipb.ListTablesRequest{}).Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	lt, err := tsurugipb.UnmarshalListTablesResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	return lt.TableNames, serviceErr(lt.Error, "list-tables")
}

// TableMetadata describes one table's columns (spec §3, §9 Non-goals: the
// client never infers schema locally, only relays what the server reports).
type TableMetadata struct {
	TableName string
	Columns   []tsurugipb.Column
}

// DescribeTable fetches one table's column metadata.
func (c *Client) DescribeTable(ctx context.Context, tableName string, timeout time.Duration) (*TableMetadata, error) {
	req := &tsurugipb.GetTableMetadataRequest{TableName: tableName}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	tm, err := tsurugipb.UnmarshalTableMetadataResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	if err := serviceErr(tm.Error, "describe-table"); err != nil {
		return nil, err
	}
	return &TableMetadata{TableName: tm.TableName, Columns: tm.Columns}, nil
}

// Explain returns the server's execution plan text for sql, without
// preparing or executing it.
func (c *Client) Explain(ctx context.Context, sql string, timeout time.Duration) (*tsurugipb.ExplainResponse, error) {
	req := &tsurugipb.ExplainRequest{SQL: sql}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	ex, err := tsurugipb.UnmarshalExplainResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	return ex, serviceErr(ex.Error, "explain")
}

// PreparedExplain returns the execution plan for a prepared statement bound
// to the given parameters.
func (c *Client) PreparedExplain(ctx context.Context, stmt *PreparedStatement, params []Parameter, timeout time.Duration) (*tsurugipb.ExplainResponse, error) {
	pbParams, _, err := buildParameters(params, nil, c.nextBlobChannelSeq)
	if err != nil {
		return nil, err
	}
	req := &tsurugipb.ExplainByPreparedStatementRequest{PreparedHandle: stmt.handle, Parameters: pbParams}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	ex, err := tsurugipb.UnmarshalExplainResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	return ex, serviceErr(ex.Error, "prepared-explain")
}

// Prepare compiles sql with named placeholders and returns a handle to the
// resulting prepared statement.
func (c *Client) Prepare(ctx context.Context, sql string, placeholders []tsurugipb.Placeholder, timeout time.Duration) (*PreparedStatement, error) {
	req := &tsurugipb.PrepareRequest{SQL: sql, Placeholders: placeholders}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	pr, err := tsurugipb.UnmarshalPrepareResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	if err := serviceErr(pr.Error, "prepare"); err != nil {
		return nil, err
	}
	return newPreparedStatement(c, pr.Handle, pr.HasResultRecords, c.timeout(timeout)), nil
}

// Begin starts a new transaction.
func (c *Client) Begin(ctx context.Context, opts BeginOptions, timeout time.Duration) (*Transaction, error) {
	req := &tsurugipb.BeginRequest{
		Type:          opts.Type,
		Label:         opts.Label,
		WritePreserve: opts.WritePreserve,
		Priority:      opts.Priority,
	}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	br, err := tsurugipb.UnmarshalBeginResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	if err := serviceErr(br.Error, "begin"); err != nil {
		return nil, err
	}
	return newTransaction(c, br.Handle, c.timeout(timeout)), nil
}

// BeginOptions configures Begin (spec §4.8, §3 TransactionType).
type BeginOptions struct {
	Type          tsurugipb.TransactionType
	Label         string
	WritePreserve []string
	Priority      int32
}

// GetTransactionErrorInfo reports why tx aborted, when it did.
func (c *Client) GetTransactionErrorInfo(ctx context.Context, tx *Transaction, timeout time.Duration) (*tsurugipb.TransactionErrorInfoResponse, error) {
	req := &tsurugipb.GetTransactionErrorInfoRequest{TransactionHandle: tx.handle}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	info, err := tsurugipb.UnmarshalTransactionErrorInfoResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	return info, serviceErr(info.Error, "get-transaction-error-info")
}

// Commit finalizes tx. autoDispose, when true, marks tx disposed
// immediately on success without a separate dispose-transaction call (spec
// §4.10 "Commit with auto-dispose implicitly marks the transaction
// disposed").
func (c *Client) Commit(ctx context.Context, tx *Transaction, notification tsurugipb.NotificationType, autoDispose bool, timeout time.Duration) error {
	req := &tsurugipb.CommitRequest{TransactionHandle: tx.handle, Notification: notification, AutoDispose: autoDispose}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	svcErr, err := tsurugipb.UnmarshalResultOnly(resp.Payload)
	if err != nil {
		return err
	}
	if err := serviceErr(svcErr, "commit"); err != nil {
		return err
	}
	if autoDispose {
		tx.markDisposed()
	}
	return nil
}

// Rollback aborts tx without committing.
func (c *Client) Rollback(ctx context.Context, tx *Transaction, timeout time.Duration) error {
	req := &tsurugipb.RollbackRequest{TransactionHandle: tx.handle}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	svcErr, err := tsurugipb.UnmarshalResultOnly(resp.Payload)
	if err != nil {
		return err
	}
	return serviceErr(svcErr, "rollback")
}

// disposeTransaction sends the dispose-transaction RPC, waiting for a
// response.
func (c *Client) disposeTransaction(ctx context.Context, handle uint64, timeout time.Duration) error {
	req := &tsurugipb.DisposeTransactionRequest{TransactionHandle: handle}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	svcErr, err := tsurugipb.UnmarshalResultOnly(resp.Payload)
	if err != nil {
		return err
	}
	return serviceErr(svcErr, "dispose-transaction")
}

// disposeTransactionSendOnly fires the dispose-transaction RPC without
// waiting for a response, for best-effort cleanup from a finalizer (spec
// §4.10 "Drop sends dispose best-effort").
func (c *Client) disposeTransactionSendOnly(handle uint64) {
	req := &tsurugipb.DisposeTransactionRequest{TransactionHandle: handle}
	slot, err := c.sess.Wire().SendOnly(c.header().Marshal(), req.Marshal())
	if err == nil {
		c.sess.Wire().ReleaseSlot(slot)
	}
}

// disposePreparedStatement sends the dispose-prepare RPC, waiting for a
// response.
func (c *Client) disposePreparedStatement(ctx context.Context, handle uint64, hasResultRecords bool, timeout time.Duration) error {
	req := &tsurugipb.DisposePreparedStatementRequest{Handle: handle, HasResultRecords: hasResultRecords}
	resp, err := c.call(ctx, req.Marshal(), timeout)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	svcErr, err := tsurugipb.UnmarshalResultOnly(resp.Payload)
	if err != nil {
		return err
	}
	return serviceErr(svcErr, "dispose-prepared-statement")
}

// disposePreparedStatementSendOnly is the send-only variant used during
// drop (spec §4.8 "dispose also has send-only variant used during drop").
func (c *Client) disposePreparedStatementSendOnly(handle uint64, hasResultRecords bool) {
	req := &tsurugipb.DisposePreparedStatementRequest{Handle: handle, HasResultRecords: hasResultRecords}
	slot, err := c.sess.Wire().SendOnly(c.header().Marshal(), req.Marshal())
	if err == nil {
		c.sess.Wire().ReleaseSlot(slot)
	}
}

// OpenLOB resolves a large-object reference to a server-local path, rewritten
// through the session's receive-side path mapping before being returned.
func (c *Client) OpenLOB(ctx context.Context, tx *Transaction, ref tsurugipb.LargeObjectReference, timeout time.Duration) (string, error) {
	req := &tsurugipb.OpenLOBRequest{TransactionHandle: tx.handle, Reference: ref}
	return c.lobPathCall(ctx, req.Marshal(), "open-lob", timeout)
}

// CopyLOBTo copies a large object to destinationPath on the server, and
// returns the resolved client-local path via receive-side path mapping.
func (c *Client) CopyLOBTo(ctx context.Context, tx *Transaction, ref tsurugipb.LargeObjectReference, destinationPath string, timeout time.Duration) (string, error) {
	req := &tsurugipb.CopyLOBToRequest{TransactionHandle: tx.handle, Reference: ref, DestinationPath: destinationPath}
	return c.lobPathCall(ctx, req.Marshal(), "copy-lob-to", timeout)
}

func (c *Client) lobPathCall(ctx context.Context, payload []byte, op string, timeout time.Duration) (string, error) {
	resp, err := c.call(ctx, payload, timeout)
	if err != nil {
		return "", err
	}
	if resp.Err != nil {
		return "", resp.Err
	}
	lp, err := tsurugipb.UnmarshalLOBPathResponse(resp.Payload)
	if err != nil {
		return "", err
	}
	if err := serviceErr(lp.Error, op); err != nil {
		return "", err
	}
	return c.recvPath(lp.ServerPath)
}
