package tsubakuro

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptCredentialDecryptsBack(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	encoded, err := encryptCredential(&priv.PublicKey, "hunter2")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	require.NoError(t, err)
	require.Equal(t, "hunter2", string(plain))
}

func TestParseRSAPublicKeyPEM(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	key, err := parseRSAPublicKeyPEM(pemText)
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey.N, key.N)
	require.Equal(t, priv.PublicKey.E, key.E)
}

func TestParseRSAPublicKeyPEMRejectsGarbage(t *testing.T) {
	_, err := parseRSAPublicKeyPEM("not a pem block")
	require.Error(t, err)
}
