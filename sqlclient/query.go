package sqlclient

import (
	"context"
	"time"

	"github.com/project-tsurugi/tsubakuro-go/internal/relation"
	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/internal/wire"
)

// QueryResult is the streaming-query template's handle: column metadata, a
// value stream over the result's data channel, and the slot that will later
// receive a terminal result-only response (spec §4.8 "Streaming query",
// §3 SqlQueryResult). It is not safe for concurrent use (spec §5
// "SqlQueryResult is explicitly not safe across threads").
type QueryResult struct {
	*relation.ValueStream

	columns     []tsurugipb.Column
	channelName string

	w      *wire.Wire
	slot   *wire.SlotHandle
	closed bool
}

// Columns reports the result set's column metadata, verbatim from the
// server (spec §9 Non-goals: no client-side schema inference).
func (r *QueryResult) Columns() []tsurugipb.Column { return r.columns }

// Query runs sql (with no parameters) under tx as a streaming query.
func (c *Client) Query(ctx context.Context, tx *Transaction, sql string, timeout time.Duration) (*QueryResult, error) {
	req := &tsurugipb.ExecuteQueryRequest{TransactionHandle: tx.handle, SQL: sql}
	return c.query(ctx, req.Marshal(), nil, timeout)
}

// PreparedQuery runs stmt bound to params under tx as a streaming query.
func (c *Client) PreparedQuery(ctx context.Context, tx *Transaction, stmt *PreparedStatement, params []Parameter, timeout time.Duration) (*QueryResult, error) {
	pbParams, blobs, err := buildParameters(params, c.sess.SendPathMapper(), c.nextBlobChannelSeq)
	if err != nil {
		return nil, err
	}
	req := &tsurugipb.PreparedQueryRequest{TransactionHandle: tx.handle, PreparedHandle: stmt.handle, Parameters: pbParams}
	return c.query(ctx, req.Marshal(), blobs, timeout)
}

// query sends the request, waits for the body-head response, and builds the
// QueryResult around the named data channel, re-arming the slot so it can
// later receive the terminal result-only response (spec §4.8 "Streaming
// query").
func (c *Client) query(ctx context.Context, payload []byte, blobs []tsurugipb.BlobInfo, timeout time.Duration) (*QueryResult, error) {
	w := c.sess.Wire()
	slot, err := w.SendOnly(c.header(blobs...).Marshal(), payload)
	if err != nil {
		return nil, err
	}
	t := c.timeout(timeout)
	resp, err := w.PullResponse(ctx, slot, t)
	if err != nil {
		w.ReleaseSlot(slot)
		return nil, err
	}
	if resp.Err != nil {
		w.ReleaseSlot(slot)
		return nil, resp.Err
	}
	head, err := tsurugipb.UnmarshalExecuteQueryResponse(resp.Payload)
	if err != nil {
		w.ReleaseSlot(slot)
		return nil, err
	}
	if err := serviceErr(head.Error, "query"); err != nil {
		w.ReleaseSlot(slot)
		return nil, err
	}

	// Body-head consumed; re-arm the slot so the terminal result-only
	// response that follows once the channel is exhausted isn't discarded.
	w.RearmSlot(slot)

	ch := w.CreateDataChannel(head.DataChannelName)
	return &QueryResult{
		ValueStream: relation.New(ch),
		columns:     head.Columns,
		channelName: head.DataChannelName,
		w:           w,
		slot:        slot,
	}, nil
}

// Close discards the data channel and pulls the terminal response,
// returning any service error it carries. Idempotent (spec §4.10).
func (r *QueryResult) Close(ctx context.Context, timeout time.Duration) error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.w.DropDataChannel(r.channelName)
	resp, err := r.w.PullResponse(ctx, r.slot, timeout)
	r.w.ReleaseSlot(r.slot)
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
	return serviceErr(svcErr, "query-result-close")
}
