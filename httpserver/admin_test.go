package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/kms"
)

func signedShareRequest(t *testing.T, url, adminID string, key *ecdsa.PrivateKey, share []byte) *http.Request {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"share": base64.StdEncoding.EncodeToString(share),
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url+"/share", bytes.NewReader(body))
	require.NoError(t, err)

	hash := sha256.Sum256(append([]byte("/share"), body...))
	sig, err := ecdsa.SignASN1(rand.Reader, key, hash[:])
	require.NoError(t, err)

	req.Header.Set("X-Admin-ID", adminID)
	req.Header.Set("X-Admin-Signature", base64.StdEncoding.EncodeToString(sig))
	return req
}

func TestAdminUnlockFlow(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	masterKey := bytes.Repeat([]byte{0x42}, 32)
	shares, err := kms.SplitMasterKey(masterKey, 3, 2)
	require.NoError(t, err)

	shamirKMS, err := kms.NewShamirKMS(2)
	require.NoError(t, err)

	adminKeys := make(map[string][]byte)
	adminPrivs := make(map[string]*ecdsa.PrivateKey)
	for _, id := range []string{"alice", "bob"} {
		privPEM, pubPEM, err := GenerateAdminKeyPair()
		require.NoError(t, err)
		priv, err := ParsePrivateKey([]byte(privPEM))
		require.NoError(t, err)
		adminKeys[id] = []byte(pubPEM)
		adminPrivs[id] = priv
	}

	admin := NewAdminHandler(shamirKMS, adminKeys, log)
	ts := httptest.NewServer(admin.AdminRouter())
	defer ts.Close()

	// Locked at first.
	resp, err := ts.Client().Get(ts.URL + "/status")
	require.NoError(t, err)
	var status map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "collecting_shares", status["state"])

	resp, err = ts.Client().Do(signedShareRequest(t, ts.URL, "alice", adminPrivs["alice"], shares[0]))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, shamirKMS.Unlocked())

	resp, err = ts.Client().Do(signedShareRequest(t, ts.URL, "bob", adminPrivs["bob"], shares[2]))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, shamirKMS.Unlocked())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, admin.WaitForUnlock(ctx))

	resp, err = ts.Client().Get(ts.URL + "/status")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "unlocked", status["state"])
}

func TestAdminRejectsUnknownAdmin(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	shamirKMS, err := kms.NewShamirKMS(2)
	require.NoError(t, err)

	admin := NewAdminHandler(shamirKMS, map[string][]byte{}, log)
	ts := httptest.NewServer(admin.AdminRouter())
	defer ts.Close()

	privPEM, _, err := GenerateAdminKeyPair()
	require.NoError(t, err)
	priv, err := ParsePrivateKey([]byte(privPEM))
	require.NoError(t, err)

	resp, err := ts.Client().Do(signedShareRequest(t, ts.URL, "mallory", priv, []byte{1, 2, 3}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRejectsBadSignature(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	shamirKMS, err := kms.NewShamirKMS(2)
	require.NoError(t, err)

	_, alicePubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err)
	mallsPrivPEM, _, err := GenerateAdminKeyPair()
	require.NoError(t, err)
	mallsPriv, err := ParsePrivateKey([]byte(mallsPrivPEM))
	require.NoError(t, err)

	admin := NewAdminHandler(shamirKMS, map[string][]byte{"alice": []byte(alicePubPEM)}, log)
	ts := httptest.NewServer(admin.AdminRouter())
	defer ts.Close()

	// Signed with the wrong key.
	resp, err := ts.Client().Do(signedShareRequest(t, ts.URL, "alice", mallsPriv, []byte{1, 2, 3}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
