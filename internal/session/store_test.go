package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consite-erp/notify-agent/internal/diag"
)

func signedToken(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Claim("user_id", userID).
		Claim("role", role).
		Claim("type", "access").
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)
	return string(signed)
}

func writeSession(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	return NewStore(path, diag.NewRecorder(nil)), path
}

func TestCurrent_MissingFileMeansLoggedOut(t *testing.T) {
	s, _ := newTestStore(t)
	creds := s.Current()
	assert.False(t, creds.Present())
}

func TestCurrent_UserRecordPreferred(t *testing.T) {
	s, path := newTestStore(t)
	writeSession(t, path, `{"token":"opaque-token","user":{"id":"42","role":"project_manager"}}`)

	creds := s.Current()
	assert.True(t, creds.Present())
	assert.Equal(t, "42", creds.UserID)
	assert.Equal(t, "project_manager", creds.Role)
}

func TestCurrent_IdentityFromTokenClaims(t *testing.T) {
	s, path := newTestStore(t)
	token := signedToken(t, "7", "buyer")
	writeSession(t, path, `{"token":"`+token+`"}`)

	creds := s.Current()
	assert.Equal(t, "7", creds.UserID)
	assert.Equal(t, "buyer", creds.Role)
}

func TestCurrent_MalformedFileMeansLoggedOut(t *testing.T) {
	s, path := newTestStore(t)
	writeSession(t, path, `{broken`)
	assert.False(t, s.Current().Present())
}

func TestRefresh_PublishesOnChange(t *testing.T) {
	s, path := newTestStore(t)
	assert.False(t, s.Current().Present())

	ch, cleanup := s.Subscribe()
	defer cleanup()

	writeSession(t, path, `{"token":"tok","user":{"id":"1","role":"admin"}}`)
	creds := s.Refresh()
	assert.True(t, creds.Present())

	select {
	case got := <-ch:
		assert.Equal(t, "1", got.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected credential-change event")
	}

	// Unchanged file publishes nothing.
	s.Refresh()
	select {
	case <-ch:
		t.Fatal("unexpected event for unchanged credentials")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatch_DetectsLoginAndLogout(t *testing.T) {
	s, path := newTestStore(t)
	assert.False(t, s.Current().Present())

	require.NoError(t, s.Watch())
	require.NoError(t, s.Watch()) // idempotent
	defer s.Close()

	ch, cleanup := s.Subscribe()
	defer cleanup()

	writeSession(t, path, `{"token":"tok","user":{"id":"1","role":"admin"}}`)
	select {
	case got := <-ch:
		assert.True(t, got.Present())
	case <-time.After(2 * time.Second):
		t.Fatal("login not observed by watch")
	}

	require.NoError(t, os.Remove(path))
	select {
	case got := <-ch:
		assert.False(t, got.Present())
	case <-time.After(2 * time.Second):
		t.Fatal("logout not observed by watch")
	}
}
