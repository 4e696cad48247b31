// Package tsubakuro is the client runtime's root package: Connect dials a
// server, performs the handshake, and returns a Session that SQL service
// clients are built on top of (spec §3, §4.7).
package tsubakuro

import (
	"context"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/project-tsurugi/tsubakuro-go/config"
	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/internal/wire"
	"github.com/project-tsurugi/tsubakuro-go/lob"
	"github.com/project-tsurugi/tsubakuro-go/log"
	"github.com/project-tsurugi/tsubakuro-go/log/log15adapter"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// Session is a live connection to a server: the wire it was handshaked over,
// the server-assigned identity, and the per-session configuration that SQL
// service clients consult (default timeout, LOB path mappers) (spec §3).
type Session struct {
	wire            *wire.Wire
	log             log.Logger
	sessionID       int64
	authenticatedAs string

	sendPaths *lob.SendMapper
	recvPaths *lob.RecvMapper

	defaultTimeout time.Duration

	mu                sync.Mutex
	shutdownRequested bool
	closed            bool
	stopKeepAlive     chan struct{}
	background        *errgroup.Group // coordinates the keep-alive task's lifetime with Close

	encKey encryptionKey
}

// Connect dials opts.Endpoint, performs the handshake, and returns a ready
// Session. The endpoint is a TCP address, either bare "host:port" or
// "tcp://host:port"; no other URL scheme is recognized (spec §4.7
// "Connect(endpoint, options) -> Session").
func Connect(ctx context.Context, opts ...config.Option) (*Session, error) {
	o, err := config.Build(opts...)
	if err != nil {
		return nil, err
	}

	var logger log.Logger
	if o.Logger != nil {
		logger = o.Logger
	} else {
		base := log15.New()
		handler := o.LogHandler
		if handler == nil {
			handler = log15.DiscardHandler()
		}
		base.SetHandler(handler)
		logger = log15adapter.NewLogger(base)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(o.Endpoint, "tcp://"))
	if err != nil {
		return nil, tgerr.Transport("connect: dial "+o.Endpoint, err)
	}

	w := wire.New(conn, logger)

	s := &Session{
		wire:           w,
		log:            logger,
		sendPaths:      lob.NewSendMapper(o.SendPaths),
		recvPaths:      lob.NewRecvMapper(o.ReceivePaths),
		defaultTimeout: o.DefaultTimeout,
		stopKeepAlive:  make(chan struct{}),
		background:     &errgroup.Group{},
	}

	if err := s.handshake(ctx, o); err != nil {
		w.Close()
		return nil, err
	}

	if o.KeepAlive > 0 {
		s.background.Go(func() error {
			s.keepAlive(o.KeepAlive)
			return nil
		})
	}

	runtime.SetFinalizer(s, finalizeSession)
	return s, nil
}

// handshake sends a HandshakeRequest over CoreServiceID with session id 0
// (no session exists yet) and binds the server's assigned session id and
// authenticated user name (spec §4.7).
func (s *Session) handshake(ctx context.Context, o *config.ConnectOptions) error {
	req := &tsurugipb.HandshakeRequest{
		ClientInfo: tsurugipb.ClientInformation{
			ApplicationName: o.ApplicationName,
			SessionLabel:    o.SessionLabel,
		},
	}
	switch o.Credential.Kind {
	case config.CredentialUserPassword:
		req.User = o.Credential.User
		if key, keyErr := s.encKey.get(ctx, s); keyErr == nil {
			encrypted, encErr := encryptCredential(key, o.Credential.Password)
			if encErr == nil {
				req.Credential = tsurugipb.CredentialEncryptedUserPassword
				req.Password = encrypted
				break
			}
		}
		// No encryption key available (older server, or the key RPC
		// failed) - fall back to sending the password in the clear
		// rather than failing the whole connect.
		req.Credential = tsurugipb.CredentialUserPassword
		req.Password = o.Credential.Password
	case config.CredentialAuthToken:
		req.Credential = tsurugipb.CredentialAuthToken
		req.Token = o.Credential.Token
	case config.CredentialFile:
		// File-backed credentials are resolved into a user/password pair or
		// token by the caller before Connect; this runtime does not itself
		// interpret credential files.
		req.Credential = tsurugipb.CredentialNone
	default:
		req.Credential = tsurugipb.CredentialNone
	}

	header := &tsurugipb.RequestHeader{ServiceID: tsurugipb.CoreServiceID, SessionID: 0}
	resp, err := s.wire.SendAndPullResponse(ctx, header.Marshal(), req.Marshal(), s.defaultTimeout)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	hr, err := tsurugipb.UnmarshalHandshakeResponse(resp.Payload)
	if err != nil {
		return err
	}
	if hr.Err != nil {
		return tgerr.Service(hr.Err.Code, "handshake", hr.Err.Message, hr.Err.Category, hr.Err.CategoryNumber)
	}
	s.sessionID = hr.SessionID
	s.authenticatedAs = hr.AuthenticatedAs
	return nil
}

// keepAlive periodically extends the session's expiration until the wire
// closes, the session is closed, or a send fails (spec §4.7:
// "if keep-alive > 0, spawns a periodic task that sends update-expiration-
// time until the wire closes or an error occurs").
func (s *Session) keepAlive(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	// A transient send failure (a momentarily full write queue, a slow
	// server) gets a few backed-off retries before the task gives up and
	// lets the wire's own error surface to callers on their next call.
	retry := &backoff.Backoff{Min: 50 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}

	for {
		select {
		case <-t.C:
			if s.wire.IsClosed() {
				return
			}
			if err := s.keepAliveOnce(retry); err != nil {
				s.log.Log(context.Background(), log.LogLevelWarn, "session: keep-alive send failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-s.stopKeepAlive:
			return
		}
	}
}

const keepAliveMaxAttempts = 3

func (s *Session) keepAliveOnce(retry *backoff.Backoff) error {
	var lastErr error
	for attempt := 0; attempt < keepAliveMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retry.Duration())
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.defaultTimeout)
		err := s.UpdateExpirationTime(ctx, false, 0)
		cancel()
		if err == nil {
			retry.Reset()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// ID returns the server-assigned session identifier.
func (s *Session) ID() int64 { return s.sessionID }

// AuthenticatedAs returns the user name the server authenticated this
// session as, or "" if the session was established without credentials.
func (s *Session) AuthenticatedAs() string { return s.authenticatedAs }

// Wire exposes the underlying transport facade for service clients built on
// top of Session (e.g. the SQL service client).
func (s *Session) Wire() *wire.Wire { return s.wire }

// SendPathMapper returns the mapper used to rewrite outbound LOB parameter
// paths (spec §9).
func (s *Session) SendPathMapper() *lob.SendMapper { return s.sendPaths }

// RecvPathMapper returns the mapper used to rewrite server-reported LOB
// paths (spec §9).
func (s *Session) RecvPathMapper() *lob.RecvMapper { return s.recvPaths }

// DefaultTimeout is the timeout new operations inherit when the caller
// doesn't specify one explicitly.
func (s *Session) DefaultTimeout() time.Duration { return s.defaultTimeout }

// UpdateExpirationTime extends the session's server-side expiration. When
// hasDuration is false the server applies its own default policy (spec
// §4.7).
func (s *Session) UpdateExpirationTime(ctx context.Context, hasDuration bool, duration time.Duration) error {
	req := &tsurugipb.UpdateExpirationTimeRequest{HasDuration: hasDuration, DurationNanos: duration.Nanoseconds()}
	header := &tsurugipb.RequestHeader{ServiceID: tsurugipb.CoreServiceID, SessionID: uint64(s.sessionID)}
	resp, err := s.wire.SendAndPullResponse(ctx, header.Marshal(), req.Marshal(), s.defaultTimeout)
	if err != nil {
		return err
	}
	return resp.Err
}

// Shutdown requests connection teardown: graceful lets in-flight work
// finish, forceful (graceful=false) abandons it. Shutdown does not itself
// close the transport; Close does that afterward (spec §4.7).
func (s *Session) Shutdown(ctx context.Context, graceful bool) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()

	req := &tsurugipb.ShutdownRequest{Graceful: graceful}
	header := &tsurugipb.RequestHeader{ServiceID: tsurugipb.CoreServiceID, SessionID: uint64(s.sessionID)}
	resp, err := s.wire.SendAndPullResponse(ctx, header.Marshal(), req.Marshal(), s.defaultTimeout)
	if err != nil {
		return err
	}
	return resp.Err
}

// ShutdownRequested reports whether Shutdown has been called on this
// session.
func (s *Session) ShutdownRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownRequested
}

// Close sends a best-effort session-bye and closes the transport.
// Idempotent (spec §4.7 "close ... idempotent").
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopKeepAlive)
	s.mu.Unlock()

	runtime.SetFinalizer(s, nil)

	// Wait for the keep-alive task to observe the stop signal before tearing
	// down the transport, so it never fires an update-expiration-time send
	// against an already-closed wire (SPEC_FULL domain-stack note:
	// "coordinating the reader loop + keep-alive task lifetimes in
	// session.Session.Close").
	s.background.Wait()

	header := &tsurugipb.RequestHeader{ServiceID: tsurugipb.CoreServiceID, SessionID: uint64(s.sessionID)}
	req := &tsurugipb.SessionByeRequest{}
	s.wire.SendOnly(header.Marshal(), req.Marshal())
	return s.wire.Close()
}

// IsClosed reports whether the session's transport has been closed, locally
// or by the remote.
func (s *Session) IsClosed() bool { return s.wire.IsClosed() }

// finalizeSession is the last-resort cleanup for a Session the caller
// forgot to Close, mirroring the Job pattern in internal/wire: it cannot
// safely block, so it only closes the transport and never panics.
func finalizeSession(s *Session) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.wire.Close()
}
