package sqlclient

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stretchr/testify/require"

	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/internal/wire"
	"github.com/project-tsurugi/tsubakuro-go/lob"
)

type discardLogger struct{}

func (discardLogger) Log(ctx context.Context, level int, msg string, fields map[string]interface{}) {
}

type fakeSession struct {
	id   int64
	w    *wire.Wire
	send *lob.SendMapper
	recv *lob.RecvMapper
}

func (f *fakeSession) ID() int64                        { return f.id }
func (f *fakeSession) Wire() *wire.Wire                  { return f.w }
func (f *fakeSession) DefaultTimeout() time.Duration     { return 2 * time.Second }
func (f *fakeSession) SendPathMapper() *lob.SendMapper   { return f.send }
func (f *fakeSession) RecvPathMapper() *lob.RecvMapper   { return f.recv }

var testOrder = binary.LittleEndian

// newFakeClient wires a Client to a net.Pipe, with respond driving the
// server side: it is handed each request's raw payload bytes (decoding is
// left to the caller, mirroring session_test.go's approach in the root
// package) and returns the service-payload bytes to send back.
func newFakeClient(t *testing.T, respond func(payload []byte) []byte) (*Client, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	w := wire.New(clientConn, discardLogger{})
	sess := &fakeSession{id: 7, w: w, send: lob.NewSendMapper(nil), recv: lob.NewRecvMapper(nil)}
	c := New(sess)

	go func() {
		for {
			slot, payload, ok := readRequest(serverConn)
			if !ok {
				return
			}
			writeResponse(serverConn, slot, respond(payload))
		}
	}()

	return c, func() { w.Close(); serverConn.Close() }
}

func readRequest(conn net.Conn) (slot uint32, payload []byte, ok bool) {
	br := &byteConn{conn}
	if _, err := br.readByte(); err != nil {
		return 0, nil, false
	}
	var slotBuf [4]byte
	if _, err := io.ReadFull(conn, slotBuf[:]); err != nil {
		return 0, nil, false
	}
	slot = testOrder.Uint32(slotBuf[:])
	if _, err := readLenPrefixed(br); err != nil { // header
		return 0, nil, false
	}
	payload, err := readLenPrefixed(br)
	if err != nil {
		return 0, nil, false
	}
	return slot, payload, true
}

// byteConn adapts net.Conn to the one-byte-at-a-time reads readLenPrefixed
// needs, without pulling in bufio just for this test helper.
type byteConn struct{ net.Conn }

func (b *byteConn) readByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Conn, buf[:])
	return buf[0], err
}

func readLenPrefixed(b *byteConn) ([]byte, error) {
	var raw []byte
	for {
		c, err := b.readByte()
		if err != nil {
			return nil, err
		}
		raw = append(raw, c)
		if c&0x80 == 0 {
			break
		}
	}
	n, cnt := protowire.ConsumeVarint(raw)
	if cnt < 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(b.Conn, buf)
	return buf, err
}

func writeResponse(conn net.Conn, slot uint32, servicePayload []byte) {
	header := protowire.AppendTag(nil, 1, protowire.VarintType)
	header = protowire.AppendVarint(header, 1) // PayloadServicePayload

	var body []byte
	body = protowire.AppendVarint(body, uint64(len(header)))
	body = append(body, header...)
	body = protowire.AppendVarint(body, uint64(len(servicePayload)))
	body = append(body, servicePayload...)

	buf := []byte{1} // frameResponse
	var slotBuf [4]byte
	testOrder.PutUint32(slotBuf[:], slot)
	buf = append(buf, slotBuf[:]...)
	buf = protowire.AppendVarint(buf, 0) // empty channel
	buf = protowire.AppendVarint(buf, uint64(len(body)))
	buf = append(buf, body...)
	conn.Write(buf) //nolint:errcheck
}

func encodeListTablesResponse(names ...string) []byte {
	var buf []byte
	for _, n := range names {
		buf = protowire.AppendTag(buf, 1, protowire.BytesType)
		buf = protowire.AppendString(buf, n)
	}
	return buf
}

func TestListTablesDecodesServerResponse(t *testing.T) {
	c, closeAll := newFakeClient(t, func(payload []byte) []byte {
		return encodeListTablesResponse("t1", "t2")
	})
	defer closeAll()

	names, err := c.ListTables(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t2"}, names)
}

func TestCommitWithAutoDisposeMarksTransactionDisposed(t *testing.T) {
	var beginSeen, commitSeen bool
	c, closeAll := newFakeClient(t, func(payload []byte) []byte {
		if !beginSeen {
			beginSeen = true
			var buf []byte
			buf = protowire.AppendTag(buf, 1, protowire.VarintType)
			buf = protowire.AppendVarint(buf, 99) // handle
			return buf
		}
		commitSeen = true
		return nil // empty result-only response: no error
	})
	defer closeAll()

	tx, err := c.Begin(context.Background(), BeginOptions{}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(99), tx.Handle())
	require.False(t, tx.Disposed())

	err = c.Commit(context.Background(), tx, tsurugipb.NotificationDefault, true, 0)
	require.NoError(t, err)
	require.True(t, commitSeen)
	require.True(t, tx.Disposed())
}

func TestTransactionCloseDisposesOnceAndIsIdempotent(t *testing.T) {
	var beginSeen bool
	disposeCount := 0
	c, closeAll := newFakeClient(t, func(payload []byte) []byte {
		if !beginSeen {
			beginSeen = true
			var buf []byte
			buf = protowire.AppendTag(buf, 1, protowire.VarintType)
			buf = protowire.AppendVarint(buf, 7) // handle
			return buf
		}
		disposeCount++
		return nil // result-only: no error
	})
	defer closeAll()

	tx, err := c.Begin(context.Background(), BeginOptions{}, 0)
	require.NoError(t, err)

	require.NoError(t, tx.Close(context.Background()))
	require.True(t, tx.Disposed())
	require.Equal(t, 1, disposeCount)

	// A second Close is a no-op: no extra dispose-transaction RPC.
	require.NoError(t, tx.Close(context.Background()))
	require.Equal(t, 1, disposeCount)
}
