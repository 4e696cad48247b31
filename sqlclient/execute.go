package sqlclient

import (
	"context"
	"time"

	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/internal/wire"
)

// ExecuteStatement runs sql (with no parameters) under tx and returns the
// affected-row counters (spec §4.8 "execute ... unary (returns counters)").
func (c *Client) ExecuteStatement(ctx context.Context, tx *Transaction, sql string, timeout time.Duration) (*tsurugipb.SqlExecuteResult, error) {
	req := &tsurugipb.ExecuteStatementRequest{TransactionHandle: tx.handle, SQL: sql}
	return c.execute(ctx, req.Marshal(), nil, timeout)
}

// PreparedExecute runs stmt bound to params under tx.
func (c *Client) PreparedExecute(ctx context.Context, tx *Transaction, stmt *PreparedStatement, params []Parameter, timeout time.Duration) (*tsurugipb.SqlExecuteResult, error) {
	pbParams, blobs, err := buildParameters(params, c.sess.SendPathMapper(), c.nextBlobChannelSeq)
	if err != nil {
		return nil, err
	}
	req := &tsurugipb.PreparedExecuteRequest{TransactionHandle: tx.handle, PreparedHandle: stmt.handle, Parameters: pbParams}
	return c.execute(ctx, req.Marshal(), blobs, timeout)
}

func (c *Client) execute(ctx context.Context, payload []byte, blobs []tsurugipb.BlobInfo, timeout time.Duration) (*tsurugipb.SqlExecuteResult, error) {
	resp, err := c.callBlobs(ctx, payload, blobs, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return decodeExecuteResult(resp)
}

func decodeExecuteResult(resp *wire.Response) (*tsurugipb.SqlExecuteResult, error) {
	if resp.Err != nil {
		return nil, resp.Err
	}
	result, err := tsurugipb.UnmarshalSqlExecuteResult(resp.Payload)
	if err != nil {
		return nil, err
	}
	return result, serviceErr(result.Error, "execute")
}

// PreparedExecuteAsync is the unary-async rendition of PreparedExecute: it
// returns a Job immediately rather than blocking for the server's response
// (spec §4.8/§4.9), useful for firing a batch of executes without waiting
// on each one in turn.
func (c *Client) PreparedExecuteAsync(ctx context.Context, tx *Transaction, stmt *PreparedStatement, params []Parameter, timeout time.Duration) (*wire.Job[*tsurugipb.SqlExecuteResult], error) {
	pbParams, blobs, err := buildParameters(params, c.sess.SendPathMapper(), c.nextBlobChannelSeq)
	if err != nil {
		return nil, err
	}
	req := &tsurugipb.PreparedExecuteRequest{TransactionHandle: tx.handle, PreparedHandle: stmt.handle, Parameters: pbParams}
	return c.executeAsync(ctx, "prepared-execute", req.Marshal(), blobs, timeout)
}

// ExecuteStatementAsync is the unary-async rendition of ExecuteStatement.
func (c *Client) ExecuteStatementAsync(ctx context.Context, tx *Transaction, sql string, timeout time.Duration) (*wire.Job[*tsurugipb.SqlExecuteResult], error) {
	req := &tsurugipb.ExecuteStatementRequest{TransactionHandle: tx.handle, SQL: sql}
	return c.executeAsync(ctx, "execute-statement", req.Marshal(), nil, timeout)
}

func (c *Client) executeAsync(ctx context.Context, name string, payload []byte, blobs []tsurugipb.BlobInfo, timeout time.Duration) (*wire.Job[*tsurugipb.SqlExecuteResult], error) {
	return callAsync(c, ctx, name, payload, blobs, decodeExecuteResult, timeout)
}
