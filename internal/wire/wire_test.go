package wire

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stretchr/testify/require"

	"github.com/project-tsurugi/tsubakuro-go/internal/testcontext"
	"github.com/project-tsurugi/tsubakuro-go/internal/testutil"
	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/log"
)

type discardLogger struct{}

func (discardLogger) Log(ctx context.Context, level log.LogLevel, msg string, fields map[string]interface{}) {
}

// serverWriteResponse writes one frame in the wire protocol's on-the-wire
// shape directly to conn, standing in for the server side of the link.
func serverWriteResponse(t *testing.T, conn net.Conn, kind frameType, slot uint32, channel string, servicePayload []byte) {
	t.Helper()
	header := (&tsurugipb.ResponseHeader{PayloadType: tsurugipb.PayloadServicePayload}).Marshal()

	var body []byte
	body = protowire.AppendVarint(body, uint64(len(header)))
	body = append(body, header...)
	body = protowire.AppendVarint(body, uint64(len(servicePayload)))
	body = append(body, servicePayload...)

	buf := []byte{byte(kind)}
	var slotBuf [4]byte
	order.PutUint32(slotBuf[:], slot)
	buf = append(buf, slotBuf[:]...)
	buf = protowire.AppendVarint(buf, uint64(len(channel)))
	buf = append(buf, channel...)
	buf = protowire.AppendVarint(buf, uint64(len(body)))
	buf = append(buf, body...)

	_, err := conn.Write(buf)
	require.NoError(t, err)
}

func TestWireSendAndPullResponseRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := New(client, discardLogger{})
	defer w.Close()

	done := testutil.NewSyncPoint()
	go func() {
		defer done.Signal()
		buf := make([]byte, 256)
		n, err := server.Read(buf)
		require.NoError(t, err)
		require.Greater(t, n, 0)
		serverWriteResponse(t, server, frameResponse, 0, "", []byte("hello"))
	}()

	ctx := testcontext.ForTB(t)
	resp, err := w.SendAndPullResponse(ctx, []byte("header"), []byte("payload"), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), resp.Payload)

	done.Wait(t)
}

func TestWireSequentialRequestsGetIndependentSlots(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := New(client, discardLogger{})
	defer w.Close()

	go func() {
		buf := make([]byte, 256)
		for i := 0; i < 2; i++ {
			n, err := server.Read(buf)
			if err != nil {
				return
			}
			require.Greater(t, n, 0)
			serverWriteResponse(t, server, frameResponse, uint32(i), "", []byte("ok"))
		}
	}()

	ctx := testcontext.ForTB(t)
	resp1, err := w.SendAndPullResponse(ctx, nil, []byte("first"), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), resp1.Payload)

	resp2, err := w.SendAndPullResponse(ctx, nil, []byte("second"), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), resp2.Payload)
}

func TestWirePullResponseTimesOut(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := New(client, discardLogger{})
	defer w.Close()

	drain := testutil.NewSyncPoint()
	go func() {
		defer drain.Signal()
		buf := make([]byte, 256)
		server.Read(buf) //nolint:errcheck
	}()

	slot, err := w.SendOnly([]byte("header"), []byte("payload"))
	require.NoError(t, err)
	defer w.ReleaseSlot(slot)

	ctx := testcontext.ForTB(t)
	_, err = w.PullResponse(ctx, slot, 50*time.Millisecond)
	require.Error(t, err)

	drain.Wait(t)
}

func TestWireIsClosedAfterClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	w := New(client, discardLogger{})
	require.False(t, w.IsClosed())
	require.NoError(t, w.Close())
	require.True(t, w.IsClosed())
}
