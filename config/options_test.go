package config

import (
	"context"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"github.com/project-tsurugi/tsubakuro-go/log"
)

func TestBuildRequiresEndpoint(t *testing.T) {
	_, err := Build()
	require.Error(t, err)
}

func TestBuildAppliesDefaults(t *testing.T) {
	o, err := Build(WithEndpoint("localhost:12345"))
	require.NoError(t, err)
	require.Equal(t, "localhost:12345", o.Endpoint)
	require.Equal(t, 60*time.Second, o.DefaultTimeout)
	require.Zero(t, o.KeepAlive)
}

func TestBuildRejectsNegativeTimeouts(t *testing.T) {
	_, err := Build(WithEndpoint("localhost:1"), WithDefaultTimeout(-1))
	require.Error(t, err)

	_, err = Build(WithEndpoint("localhost:1"), WithKeepAlive(-1))
	require.Error(t, err)
}

func TestWithUserPasswordSetsCredential(t *testing.T) {
	o, err := Build(WithEndpoint("localhost:1"), WithUserPassword("alice", "hunter2"))
	require.NoError(t, err)
	require.Equal(t, CredentialUserPassword, o.Credential.Kind)
	require.Equal(t, "alice", o.Credential.User)
	require.Equal(t, "hunter2", o.Credential.Password)
}

func TestCredentialStringMasksSecrets(t *testing.T) {
	c := Credential{Kind: CredentialUserPassword, User: "alice", Password: "hunter2"}
	s := c.String()
	require.Contains(t, s, "alice")
	require.NotContains(t, s, "hunter2")
	require.Contains(t, s, "HIDDEN")
}

func TestCredentialStringMasksEmptySecretDifferently(t *testing.T) {
	c := Credential{Kind: CredentialNone}
	s := c.String()
	require.NotContains(t, s, "HIDDEN")
}

func TestSendAndReceivePathMappingAccumulate(t *testing.T) {
	o, err := Build(
		WithEndpoint("localhost:1"),
		WithSendPathMapping("/client/a", "/server/a"),
		WithSendPathMapping("/client/b", "/server/b"),
		WithReceivePathMapping("/server/c", "/client/c"),
	)
	require.NoError(t, err)
	require.Len(t, o.SendPaths, 2)
	require.Len(t, o.ReceivePaths, 1)
	require.Equal(t, "/server/a", o.SendPaths[0].ServerPrefix)
}

func TestWithLogHandlerIsCarriedThrough(t *testing.T) {
	h := log15.DiscardHandler()
	o, err := Build(WithEndpoint("localhost:1"), WithLogHandler(h))
	require.NoError(t, err)
	require.NotNil(t, o.LogHandler)
	require.Nil(t, o.Logger)
}

type stubLogger struct{ calls int }

func (s *stubLogger) Log(ctx context.Context, level log.LogLevel, msg string, data map[string]interface{}) {
	s.calls++
}

func TestWithLoggerTakesPrecedenceOverLogHandler(t *testing.T) {
	l := &stubLogger{}
	o, err := Build(WithEndpoint("localhost:1"), WithLogHandler(log15.DiscardHandler()), WithLogger(l))
	require.NoError(t, err)
	require.Same(t, l, o.Logger)
}
