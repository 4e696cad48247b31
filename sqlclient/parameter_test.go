package sqlclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/project-tsurugi/tsubakuro-go/config"
	"github.com/project-tsurugi/tsubakuro-go/lob"
)

func TestBuildParametersScalarKinds(t *testing.T) {
	params := []Parameter{
		NullParameter("a"),
		Int8Parameter("b", 42),
		Float8Parameter("c", 3.5),
		CharacterParameter("d", "hi"),
	}

	pb, blobs, err := buildParameters(params, nil, testChannelSeq())
	require.NoError(t, err)
	require.Empty(t, blobs)
	require.Len(t, pb, 4)

	require.Equal(t, "a", pb[0].Name)
	require.True(t, pb[0].Value.IsNull)

	require.Equal(t, "b", pb[1].Name)
	require.NotNil(t, pb[1].Value.Int8)
	require.Equal(t, int64(42), *pb[1].Value.Int8)

	require.Equal(t, "c", pb[2].Name)
	require.NotNil(t, pb[2].Value.Float8)
	require.Equal(t, 3.5, *pb[2].Value.Float8)

	require.Equal(t, "d", pb[3].Name)
	require.NotNil(t, pb[3].Value.Character)
	require.Equal(t, "hi", *pb[3].Value.Character)
}

func TestBuildParametersLOBWithSendMapperRewritesToChannel(t *testing.T) {
	mapper := lob.NewSendMapper([]config.LOBPathEntry{
		{ClientPrefix: "/home/user/data", ServerPrefix: "/srv/blobs"},
	})

	params := []Parameter{LOBParameter("doc", "/home/user/data/a.bin", false)}
	pb, blobs, err := buildParameters(params, mapper, testChannelSeq())
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.Equal(t, "/srv/blobs/a.bin", blobs[0].Path)
	require.False(t, blobs[0].IsClob)

	require.Len(t, pb, 1)
	require.Equal(t, "doc", pb[0].Name)
	require.NotNil(t, pb[0].Value.ReferenceLOB)
	require.Equal(t, blobs[0].ChannelName, *pb[0].Value.ReferenceLOB)
}

func TestBuildParametersLOBWithoutSendMapperIsRejected(t *testing.T) {
	params := []Parameter{LOBParameter("doc", "/home/user/data/a.bin", true)}
	_, _, err := buildParameters(params, nil, testChannelSeq())
	require.Error(t, err)
	require.Contains(t, err.Error(), "doc")
}

func TestBuildParametersEmptyListIsFine(t *testing.T) {
	pb, blobs, err := buildParameters(nil, nil, testChannelSeq())
	require.NoError(t, err)
	require.Empty(t, pb)
	require.Empty(t, blobs)
}

func TestBuildParametersLOBChannelNamesAreUniquePerCall(t *testing.T) {
	mapper := lob.NewSendMapper([]config.LOBPathEntry{
		{ClientPrefix: "/home/user/data", ServerPrefix: "/srv/blobs"},
	})
	seq := testChannelSeq()

	params := []Parameter{LOBParameter("doc", "/home/user/data/a.bin", false)}
	pb1, _, err := buildParameters(params, mapper, seq)
	require.NoError(t, err)
	pb2, _, err := buildParameters(params, mapper, seq)
	require.NoError(t, err)

	require.NotEqual(t, *pb1[0].Value.ReferenceLOB, *pb2[0].Value.ReferenceLOB,
		"two requests binding a LOB at the same parameter position must not share a channel name")
}

// testChannelSeq returns an independent session-like monotonic counter for
// tests that don't need a full Client.
func testChannelSeq() func() int64 {
	var n int64
	return func() int64 {
		n++
		return n
	}
}
