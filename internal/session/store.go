// Package session reads the persisted ERP session. The authentication
// subsystem owns the session file (it writes it on login and removes it on
// logout); this package only observes it: an fsnotify watch is the primary
// change signal, with the hub running a low-frequency comparison poll as
// defense in depth since an atomic replace can slip past a watch.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/consite-erp/notify-agent/internal/diag"
)

// Credentials is the session identity the delivery pipeline runs under.
// Zero values mean "absent": no token means logged out.
type Credentials struct {
	Token  string
	UserID string
	Role   string
}

// Present reports whether a session token exists.
func (c Credentials) Present() bool {
	return c.Token != ""
}

// sessionFile is the on-disk shape the authentication subsystem persists.
// The user record is optional; older versions of the login flow stored only
// the token, in which case identity comes from the token claims.
type sessionFile struct {
	Token string `json:"token"`
	User  *struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

// Store reads and watches the persisted session.
type Store struct {
	path string
	diag *diag.Recorder

	mu      sync.Mutex
	current Credentials
	loaded  bool
	subs    map[chan Credentials]struct{}
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates a session store over the file at path.
func NewStore(path string, recorder *diag.Recorder) *Store {
	return &Store{
		path: path,
		diag: recorder,
		subs: make(map[chan Credentials]struct{}),
	}
}

// Current returns the last-seen credentials, reading the file on first use.
func (s *Store) Current() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.current = s.read()
		s.loaded = true
	}
	return s.current
}

// Refresh re-reads the session file, publishes a change event to all
// subscribers when the credentials differ from the last-seen ones, and
// returns the current credentials.
func (s *Store) Refresh() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds := s.read()
	if s.loaded && creds == s.current {
		return creds
	}
	s.current = creds
	s.loaded = true
	for ch := range s.subs {
		select {
		case ch <- creds:
		default:
		}
	}
	return creds
}

// Subscribe registers for credential-change events. The returned channel
// receives the new credentials after every observed login/logout.
func (s *Store) Subscribe() (<-chan Credentials, func()) {
	ch := make(chan Credentials, 4)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cleanup
}

// Watch starts the filesystem watch on the session file's directory (the
// auth subsystem replaces the file atomically, so the file itself cannot be
// watched directly). Idempotent.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	s.done = make(chan struct{})

	go s.watchLoop(watcher, s.done)
	return nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	base := filepath.Base(s.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == base {
				s.Refresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.diag.Record("session", "session watch error", err)
		case <-done:
			return
		}
	}
}

// Close stops the filesystem watch. Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return
	}
	close(s.done)
	_ = s.watcher.Close()
	s.watcher = nil
}

// read loads credentials from disk. Any failure means "logged out": a
// missing or unreadable session never crashes the pipeline.
func (s *Store) read() Credentials {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.diag.Record("session", "session file unreadable", err)
		}
		return Credentials{}
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.diag.Record("session", "session file malformed", err)
		return Credentials{}
	}
	if file.Token == "" {
		return Credentials{}
	}

	creds := Credentials{Token: file.Token}
	if file.User != nil {
		creds.UserID = file.User.ID
		creds.Role = file.User.Role
	}
	if creds.UserID == "" || creds.Role == "" {
		userID, role := claimsFromToken(file.Token)
		if creds.UserID == "" {
			creds.UserID = userID
		}
		if creds.Role == "" {
			creds.Role = role
		}
	}
	return creds
}

// claimsFromToken extracts user_id and role from the bearer token. The
// agent holds no signing secret, so the token is parsed without
// verification; the backend re-authorizes every request it receives.
func claimsFromToken(token string) (userID, role string) {
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return "", ""
	}
	claims := parsed.PrivateClaims()
	if v, ok := claims["user_id"].(string); ok {
		userID = v
	}
	if v, ok := claims["role"].(string); ok {
		role = v
	}
	return userID, role
}
