package relation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memSource is a ByteSource backed by an in-memory buffer, standing in for
// a DataChannel in these decode tests.
type memSource struct {
	buf []byte
	pos int
}

func (m *memSource) ReadU8(ctx context.Context, timeout time.Duration) (byte, bool, error) {
	if m.pos >= len(m.buf) {
		return 0, false, nil
	}
	b := m.buf[m.pos]
	m.pos++
	return b, true, nil
}

func (m *memSource) ReadAll(ctx context.Context, n int, timeout time.Duration) ([]byte, bool, error) {
	if m.pos+n > len(m.buf) {
		return nil, false, nil
	}
	out := m.buf[m.pos : m.pos+n]
	m.pos += n
	return out, true, nil
}

func appendEmbedRow(buf []byte, numColumns int32) []byte {
	return append(buf, byte(headerEmbedRow|int(numColumns-minEmbedRowSize)))
}

func appendEmbedInt(buf []byte, v int32) []byte {
	return append(buf, byte(headerEmbedPositiveInt|int(v-minEmbedPositiveIntValue)))
}

func appendEmbedCharacter(buf []byte, s string) []byte {
	buf = append(buf, byte(headerEmbedCharacter|(len(s)-minEmbedCharacterSize)))
	return append(buf, s...)
}

func appendNull(buf []byte) []byte {
	return append(buf, headerUnknown)
}

func appendEndOfContents(buf []byte) []byte {
	return append(buf, 0xfe)
}

func TestValueStreamReadsOneRowOfScalars(t *testing.T) {
	var buf []byte
	buf = appendEmbedRow(buf, 3)
	buf = appendEmbedInt(buf, 42)
	buf = appendEmbedCharacter(buf, "hi")
	buf = appendNull(buf)
	buf = appendEndOfContents(buf)

	vs := New(&memSource{buf: buf})
	ctx := context.Background()

	more, err := vs.NextRow(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)

	more, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)
	n, err := vs.FetchInt4(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(42), n)

	more, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)
	s, err := vs.FetchCharacter(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "hi", s)

	more, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)
	isNull, err := vs.IsNull()
	require.NoError(t, err)
	require.True(t, isNull)

	more, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)
	require.False(t, more)

	more, err = vs.NextRow(ctx, time.Second)
	require.NoError(t, err)
	require.False(t, more)
}

func TestValueStreamNextRowSkipsUnconsumedColumns(t *testing.T) {
	var buf []byte
	buf = appendEmbedRow(buf, 2)
	buf = appendEmbedInt(buf, 1)
	buf = appendEmbedInt(buf, 2)
	buf = appendEmbedRow(buf, 1)
	buf = appendEmbedInt(buf, 3)
	buf = appendEndOfContents(buf)

	vs := New(&memSource{buf: buf})
	ctx := context.Background()

	more, err := vs.NextRow(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)
	// Deliberately skip consuming any columns of this row.

	more, err = vs.NextRow(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)

	more, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, more)
	n, err := vs.FetchInt4(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(3), n)
}

func TestValueStreamFetchWrongTypeIsClientError(t *testing.T) {
	var buf []byte
	buf = appendEmbedRow(buf, 1)
	buf = appendEmbedCharacter(buf, "x")
	buf = appendEndOfContents(buf)

	vs := New(&memSource{buf: buf})
	ctx := context.Background()

	_, err := vs.NextRow(ctx, time.Second)
	require.NoError(t, err)
	_, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)

	_, err = vs.FetchInt4(ctx, time.Second)
	require.Error(t, err)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
}

func TestValueStreamSignedVarintRoundTrip(t *testing.T) {
	var buf []byte
	buf = appendEmbedRow(buf, 1)
	buf = append(buf, headerInt)
	buf = AppendSignedVarint(buf, -12345)
	buf = appendEndOfContents(buf)

	vs := New(&memSource{buf: buf})
	ctx := context.Background()

	_, err := vs.NextRow(ctx, time.Second)
	require.NoError(t, err)
	_, err = vs.NextColumn(ctx, time.Second)
	require.NoError(t, err)

	n, err := vs.FetchInt8(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(-12345), n)
}
