package tsubakuro

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stretchr/testify/require"

	"github.com/project-tsurugi/tsubakuro-go/config"
	"github.com/project-tsurugi/tsubakuro-go/internal/testcontext"
	"github.com/project-tsurugi/tsubakuro-go/internal/testutil"
)

var testOrder = binary.LittleEndian

// fakeServer emulates just enough of the wire protocol's framing to answer a
// handshake (and, optionally, update-expiration-time) request, standing in
// for a real server the way net.Pipe stands in for a socket elsewhere in
// this codebase's tests.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeServer{ln: ln}
}

func (f *fakeServer) addr() string { return f.ln.Addr().String() }

func (f *fakeServer) serveOne(t *testing.T, sessionID int64, handleExtra func(conn net.Conn, r *bufio.Reader)) {
	t.Helper()
	go func() {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		// First frame: the handshake request. We don't need its contents
		// for this test's purposes, only to reply on the same slot.
		slot, ok := readRequestFrame(r)
		if !ok {
			return
		}
		writeHandshakeResponse(conn, slot, sessionID, "alice")

		if handleExtra != nil {
			handleExtra(conn, r)
			return
		}
		// Keep draining frames (e.g. the eventual session-bye) until the
		// client closes the connection, instead of closing our end first
		// and racing the client's own close.
		for {
			if _, ok := readRequestFrame(r); !ok {
				return
			}
		}
	}()
}

func readRequestFrame(r *bufio.Reader) (slot uint32, ok bool) {
	if _, err := r.ReadByte(); err != nil { // info byte
		return 0, false
	}
	var slotBuf [4]byte
	if _, err := io.ReadFull(r, slotBuf[:]); err != nil {
		return 0, false
	}
	slot = testOrder.Uint32(slotBuf[:])
	if _, err := readLenPrefixed(r); err != nil { // header
		return 0, false
	}
	if _, err := readLenPrefixed(r); err != nil { // payload
		return 0, false
	}
	return slot, true
}

func readLenPrefixed(r *bufio.Reader) ([]byte, error) {
	n, err := readTestVarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	_, err = io.ReadFull(r, buf)
	return buf, err
}

func readTestVarint(r *bufio.Reader) (uint64, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return v, nil
}

func writeFrame(conn net.Conn, kind byte, slot uint32, servicePayload []byte) {
	header := encodeResponseHeader()
	var body []byte
	body = protowire.AppendVarint(body, uint64(len(header)))
	body = append(body, header...)
	body = protowire.AppendVarint(body, uint64(len(servicePayload)))
	body = append(body, servicePayload...)

	buf := []byte{kind}
	var slotBuf [4]byte
	testOrder.PutUint32(slotBuf[:], slot)
	buf = append(buf, slotBuf[:]...)
	buf = protowire.AppendVarint(buf, 0) // empty channel name
	buf = protowire.AppendVarint(buf, uint64(len(body)))
	buf = append(buf, body...)
	conn.Write(buf) //nolint:errcheck
}

// encodeResponseHeader encodes a FrameworkResponseHeader whose payload_type
// is the ordinary service-payload variant (field 1 == 1, matching
// tsurugipb.PayloadServicePayload).
func encodeResponseHeader() []byte {
	buf := protowire.AppendTag(nil, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 1)
	return buf
}

func writeHandshakeResponse(conn net.Conn, slot uint32, sessionID int64, authenticatedAs string) {
	var payload []byte
	payload = protowire.AppendTag(payload, 1, protowire.VarintType)
	payload = protowire.AppendVarint(payload, uint64(sessionID))
	payload = protowire.AppendTag(payload, 2, protowire.BytesType)
	payload = protowire.AppendString(payload, authenticatedAs)
	writeFrame(conn, 1 /* frameResponse */, slot, payload)
}

func TestConnectPerformsHandshake(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serveOne(t, 42, nil)

	ctx := testcontext.ForTB(t)
	s, err := Connect(ctx, config.WithEndpoint(srv.addr()), config.WithApplicationName("test"))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, int64(42), s.ID())
	require.Equal(t, "alice", s.AuthenticatedAs())
	require.False(t, s.IsClosed())
}

func TestConnectRejectsMissingEndpoint(t *testing.T) {
	_, err := Connect(context.Background())
	require.Error(t, err)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()
	srv.serveOne(t, 1, nil)

	ctx := testcontext.ForTB(t)
	s, err := Connect(ctx, config.WithEndpoint(srv.addr()))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, s.IsClosed())
}

func TestSessionCloseWaitsForKeepAliveTask(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()

	keepAliveSeen := testutil.NewSyncPoint()
	srv.serveOne(t, 7, func(conn net.Conn, r *bufio.Reader) {
		// Keep reading frames (update-expiration-time requests) and
		// acknowledging them until the connection closes.
		for {
			slot, ok := readRequestFrame(r)
			if !ok {
				return
			}
			keepAliveSeen.Signal()
			writeFrame(conn, 1, slot, nil)
		}
	})

	ctx := testcontext.ForTB(t)
	s, err := Connect(ctx, config.WithEndpoint(srv.addr()), config.WithKeepAlive(20*time.Millisecond))
	require.NoError(t, err)

	keepAliveSeen.Wait(t)

	// Close must return only after the keep-alive goroutine has exited;
	// if it didn't wait, this would be racy rather than deterministic, but
	// a successful, error-free Close with no panics/leaks here at least
	// exercises the background.Wait() path without hanging.
	require.NoError(t, s.Close())
}
