package tsubakuro

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"sync"

	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// encryptionKey caches the server's RSA public key for the lifetime of a
// session, so the key is fetched at most once per session; each Session
// holds its own cache and fetches its own key (spec
// §4.7 encrypted-credential variant, grounded on the teacher's own Wire
// caching a parsed crypto handle the first time a credential is encrypted).
type encryptionKey struct {
	mu  sync.Mutex
	key *rsa.PublicKey
}

func (e *encryptionKey) get(ctx context.Context, s *Session) (*rsa.PublicKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key != nil {
		return e.key, nil
	}

	req := &tsurugipb.EncryptionKeyRequest{}
	header := &tsurugipb.RequestHeader{ServiceID: tsurugipb.EndpointServiceID, SessionID: 0}
	resp, err := s.wire.SendAndPullResponse(ctx, header.Marshal(), req.Marshal(), s.defaultTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	ekr, err := tsurugipb.UnmarshalEncryptionKeyResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	if ekr.Err != nil {
		return nil, tgerr.Service(ekr.Err.Code, "encryption-key", ekr.Err.Message, ekr.Err.Category, ekr.Err.CategoryNumber)
	}

	key, err := parseRSAPublicKeyPEM(ekr.EncryptionKey)
	if err != nil {
		return nil, tgerr.Decode("encryption-key: parse public key", err)
	}
	e.key = key
	return key, nil
}

func parseRSAPublicKeyPEM(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, tgerr.Decode("encryption-key: no PEM block found", nil)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, tgerr.Decode("encryption-key: not an RSA public key", nil)
	}
	return rsaKey, nil
}

// encryptCredential RSA-OAEP(SHA-256)-encrypts plainText under key and
// base64-encodes the ciphertext, producing the string a handshake sends in
// HandshakeRequest.Password when Credential ==
// CredentialEncryptedUserPassword.
func encryptCredential(key *rsa.PublicKey, plainText string) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, []byte(plainText), nil)
	if err != nil {
		return "", tgerr.Decode("encrypt credential", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
