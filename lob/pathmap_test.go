package lob

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/project-tsurugi/tsubakuro-go/config"
)

func TestSendMapperRewritesMatchingPrefix(t *testing.T) {
	clientDir := filepath.FromSlash("/home/user/data")
	m := NewSendMapper([]config.LOBPathEntry{
		{ClientPrefix: clientDir, ServerPrefix: "/srv/blobs"},
	})

	got, err := m.ToServerPath(filepath.Join(clientDir, "a", "b.bin"))
	require.NoError(t, err)
	require.Equal(t, "/srv/blobs/a/b.bin", got)
}

func TestSendMapperFallsBackWhenNoRuleMatches(t *testing.T) {
	m := NewSendMapper(nil)
	abs, err := filepath.Abs(filepath.Join("relative", "path.bin"))
	require.NoError(t, err)

	got, err := m.ToServerPath("relative/path.bin")
	require.NoError(t, err)
	require.Equal(t, clientPathToServerPath(stripWindowsVerbatimPrefix(abs)), got)
}

func TestRecvMapperRewritesMatchingPrefix(t *testing.T) {
	clientDir := filepath.FromSlash("/home/user/data")
	m := NewRecvMapper([]config.LOBPathEntry{
		{ServerPrefix: "/srv/blobs", ClientPrefix: clientDir},
	})

	got, err := m.ToClientPath("/srv/blobs/a/b.bin")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(clientDir, "a", "b.bin"), got)
}

func TestRecvMapperFallsBackToSlashConversion(t *testing.T) {
	m := NewRecvMapper(nil)
	got, err := m.ToClientPath("some/server/path.bin")
	require.NoError(t, err)
	require.Equal(t, filepath.FromSlash("some/server/path.bin"), got)
}

func TestSendMapperRejectsPathOutsideClientPrefix(t *testing.T) {
	m := NewSendMapper([]config.LOBPathEntry{
		{ClientPrefix: filepath.FromSlash("/home/user/data"), ServerPrefix: "/srv/blobs"},
	})

	// /etc/passwd is outside the configured client prefix, so the rule
	// doesn't match and the fallback (slash-converted absolute path) is
	// used instead of accidentally matching a sibling directory.
	got, err := m.ToServerPath("/etc/passwd")
	require.NoError(t, err)
	require.NotContains(t, got, "/srv/blobs")
}
