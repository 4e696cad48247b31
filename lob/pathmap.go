// Package lob implements the large-object path mapping rules a session
// applies when sending LOB parameters and when receiving LOB references
// from the server (spec §9).
package lob

import (
	"path/filepath"
	"strings"

	"github.com/project-tsurugi/tsubakuro-go/config"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

type entry struct {
	clientPrefix string // absolute, OS-native
	serverPrefix string // portable-slash, trailing "/"
}

func newEntry(clientPrefix, serverPrefix string) entry {
	if !strings.HasSuffix(serverPrefix, "/") {
		serverPrefix += "/"
	}
	return entry{clientPrefix: clientPrefix, serverPrefix: serverPrefix}
}

func (e entry) toServer(clientPath string) (string, bool) {
	rel, err := filepath.Rel(e.clientPrefix, clientPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return e.serverPrefix + clientPathToServerPath(rel), true
}

func (e entry) toClient(serverPath string) (string, bool) {
	if !strings.HasPrefix(serverPath, e.serverPrefix) {
		return "", false
	}
	rel := serverPath[len(e.serverPrefix):]
	return filepath.Join(e.clientPrefix, filepath.FromSlash(rel)), true
}

func clientPathToServerPath(p string) string {
	return strings.ReplaceAll(p, string(filepath.Separator), "/")
}

// SendMapper rewrites absolute client-local LOB paths into the server-side
// paths the server expects (spec §9 send-side "(client_prefix,
// server_prefix)").
type SendMapper struct {
	entries []entry
}

func NewSendMapper(rules []config.LOBPathEntry) *SendMapper {
	m := &SendMapper{}
	for _, r := range rules {
		m.entries = append(m.entries, newEntry(r.ClientPrefix, r.ServerPrefix))
	}
	return m
}

// ToServerPath canonicalizes clientPath and rewrites it through the
// configured rules, falling back to a plain slash-converted path if no
// rule's prefix matches (spec large_object.rs: "client_path == server_path"
// fallback).
func (m *SendMapper) ToServerPath(clientPath string) (string, error) {
	abs, err := filepath.Abs(clientPath)
	if err != nil {
		return "", tgerr.IO(clientPath, err)
	}
	abs = stripWindowsVerbatimPrefix(abs)
	for _, e := range m.entries {
		if s, ok := e.toServer(abs); ok {
			return s, nil
		}
	}
	return clientPathToServerPath(abs), nil
}

// RecvMapper rewrites server-reported LOB paths back into client-local
// absolute paths (spec §9 receive-side "(server_prefix, client_prefix)").
type RecvMapper struct {
	entries []entry
}

func NewRecvMapper(rules []config.LOBPathEntry) *RecvMapper {
	m := &RecvMapper{}
	for _, r := range rules {
		// stored the same way as send rules (client_prefix, server_prefix);
		// the caller supplies them in (server_prefix, client_prefix) order.
		m.entries = append(m.entries, newEntry(r.ClientPrefix, r.ServerPrefix))
	}
	return m
}

// ToClientPath rewrites a server-reported path through the configured
// rules, falling back to treating it as already a usable client path.
func (m *RecvMapper) ToClientPath(serverPath string) (string, error) {
	for _, e := range m.entries {
		if c, ok := e.toClient(serverPath); ok {
			return c, nil
		}
	}
	return filepath.FromSlash(serverPath), nil
}

// stripWindowsVerbatimPrefix removes the `\\?\` verbatim prefix Go's
// filepath.Abs can produce on Windows, matching the reference
// implementation's own `trim_start_matches("\\\\?\\")` (spec §9).
func stripWindowsVerbatimPrefix(p string) string {
	return strings.TrimPrefix(p, `\\?\`)
}
