// Package config builds the ConnectOptions that drive Connect (spec §4.7),
// using the functional-options pattern: a Option mutates a private options
// struct, and Build produces the immutable ConnectOptions the session
// package consumes.
package config

import (
	"fmt"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/project-tsurugi/tsubakuro-go/log"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// CredentialKind selects how a session authenticates (spec §4.7:
// "one of {none, user+password, auth-token, file}").
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialUserPassword
	CredentialAuthToken
	CredentialFile
)

// Credential holds whichever fields CredentialKind requires; unused fields
// are left zero. Password and Token are secret-valued, so String/GoString
// mask them rather than letting a stray %v/%+v of a ConnectOptions leak a
// credential into a log line.
type Credential struct {
	Kind     CredentialKind
	User     string
	Password string
	Token    string
	Path     string
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{Kind:%d User:%q Password:%s Token:%s Path:%q}",
		c.Kind, c.User, maskSecret(c.Password), maskSecret(c.Token), c.Path)
}

func (c Credential) GoString() string { return c.String() }

func maskSecret(s string) string {
	if s == "" {
		return `""`
	}
	return `"HIDDEN"`
}

// LOBPathEntry is one (client_prefix, server_prefix) mapping rule used by
// lob.SendMapper / lob.RecvMapper (spec §4.7, §9 LOB path mapping).
type LOBPathEntry struct {
	ClientPrefix string
	ServerPrefix string
}

// ConnectOptions is the immutable, builder-populated configuration for one
// Connect call (spec §3 "ConnectOptions").
type ConnectOptions struct {
	Endpoint        string
	ApplicationName string
	SessionLabel    string
	Credential      Credential
	DefaultTimeout  time.Duration
	KeepAlive       time.Duration // 0 disables the keep-alive task
	SendPaths       []LOBPathEntry
	ReceivePaths    []LOBPathEntry

	// LogHandler, when set, replaces the log15 DiscardHandler Connect would
	// otherwise install, so keep-alive/finalizer warnings are observable.
	// Logger, when set, takes precedence and bypasses log15 entirely.
	LogHandler log15.Handler
	Logger     log.Logger
}

// Option is a functional option used to configure Connect, matching the
// teacher's AgentOption/EndpointOption pattern.
type Option func(*ConnectOptions)

func defaultOptions() *ConnectOptions {
	return &ConnectOptions{
		DefaultTimeout: 60 * time.Second,
	}
}

// Build applies opts over the defaults and validates the result, returning
// an illegal-argument error (spec §7 kind 9) if the caller supplied
// something nonsensical before any I/O is attempted.
func Build(opts ...Option) (*ConnectOptions, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Endpoint == "" {
		return nil, tgerr.IllegalArgument("endpoint", nil)
	}
	if o.DefaultTimeout < 0 {
		return nil, tgerr.IllegalArgument("default_timeout", nil)
	}
	if o.KeepAlive < 0 {
		return nil, tgerr.IllegalArgument("keep_alive", nil)
	}
	return o, nil
}

// WithEndpoint sets the server endpoint address ("host:port" or
// "tcp://host:port"), the one option Build requires.
func WithEndpoint(endpoint string) Option {
	return func(o *ConnectOptions) { o.Endpoint = endpoint }
}

// WithApplicationName sets the client-reported application name (spec
// §4.7, carried in the handshake).
func WithApplicationName(name string) Option {
	return func(o *ConnectOptions) { o.ApplicationName = name }
}

// WithSessionLabel sets a human-readable label for the session, shown in
// server-side session listings.
func WithSessionLabel(label string) Option {
	return func(o *ConnectOptions) { o.SessionLabel = label }
}

// WithoutCredential selects the "none" credential kind (the default).
func WithoutCredential() Option {
	return func(o *ConnectOptions) { o.Credential = Credential{Kind: CredentialNone} }
}

// WithUserPassword selects user+password credentials, encrypted under the
// server's public key before transmission when one is available (spec
// §4.7).
func WithUserPassword(user, password string) Option {
	return func(o *ConnectOptions) {
		o.Credential = Credential{Kind: CredentialUserPassword, User: user, Password: password}
	}
}

// WithAuthToken selects auth-token credentials.
func WithAuthToken(token string) Option {
	return func(o *ConnectOptions) {
		o.Credential = Credential{Kind: CredentialAuthToken, Token: token}
	}
}

// WithCredentialFile selects file-backed credentials. Connect does not read
// the file at path; it performs the handshake with no credential.
func WithCredentialFile(path string) Option {
	return func(o *ConnectOptions) {
		o.Credential = Credential{Kind: CredentialFile, Path: path}
	}
}

// WithDefaultTimeout sets the default timeout new slots/jobs inherit when
// the caller doesn't specify one explicitly.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *ConnectOptions) { o.DefaultTimeout = d }
}

// WithKeepAlive enables the periodic update-expiration-time task with the
// given interval; zero (the default) disables it (spec §4.7).
func WithKeepAlive(d time.Duration) Option {
	return func(o *ConnectOptions) { o.KeepAlive = d }
}

// WithLogHandler installs a log15.Handler to receive the client runtime's
// log15-backed logging (keep-alive task warnings, finalizer best-effort
// failures, wire diagnostics), in place of the DiscardHandler Connect
// otherwise installs. Ignored if WithLogger is also given.
func WithLogHandler(h log15.Handler) Option {
	return func(o *ConnectOptions) { o.LogHandler = h }
}

// WithLogger installs a fully custom log.Logger, bypassing the log15
// adapter entirely. Takes precedence over WithLogHandler.
func WithLogger(l log.Logger) Option {
	return func(o *ConnectOptions) { o.Logger = l }
}

// WithSendPathMapping adds a client-to-server LOB path rewrite rule applied
// to outbound LOB parameters (spec §9).
func WithSendPathMapping(clientPrefix, serverPrefix string) Option {
	return func(o *ConnectOptions) {
		o.SendPaths = append(o.SendPaths, LOBPathEntry{ClientPrefix: clientPrefix, ServerPrefix: serverPrefix})
	}
}

// WithReceivePathMapping adds a server-to-client LOB path rewrite rule
// applied to LOB references the server returns (spec §9).
func WithReceivePathMapping(serverPrefix, clientPrefix string) Option {
	return func(o *ConnectOptions) {
		o.ReceivePaths = append(o.ReceivePaths, LOBPathEntry{ServerPrefix: serverPrefix, ClientPrefix: clientPrefix})
	}
}
