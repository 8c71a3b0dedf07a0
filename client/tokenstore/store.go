// Package tokenstore holds the client's single current session token.
//
// The store is replace-only: tokens are never mutated in place, and every
// replacement is guarded by a generation counter. The counter is the sole
// serialization point for the whole client auth machinery: a refresh started
// against generation N can never clobber a token already advanced to N+1 by a
// faster refresh or an intervening logout, because its compare-and-swap
// write fails.
package tokenstore

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Token is the client's view of a session token.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsZero reports whether t holds no token.
func (t Token) IsZero() bool { return t.Value == "" }

// state is the persisted file format.
type state struct {
	Token      Token  `json:"token"`
	Generation uint64 `json:"generation"`
}

// Store is a durable, thread-safe holder of the current token plus its
// generation. It has no network knowledge.
type Store struct {
	mu   sync.Mutex
	path string
	tok  Token
	gen  uint64
}

// Open loads the store persisted at path. A missing or corrupt file yields an
// empty store; the generation picks up from whatever was last persisted.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("[TOKENSTORE] Corrupt state file %s, starting empty: %v", path, err)
		return s, nil
	}

	s.tok = st.Token
	s.gen = st.Generation
	return s, nil
}

// Read returns the current token and its generation atomically as a pair,
// so the caller can later attempt a generation-guarded Write.
func (s *Store) Read() (Token, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, s.gen
}

// Write installs tok only if expectedGen matches the store's current
// generation, advancing it on success. On mismatch the store is left
// untouched and false is returned.
func (s *Store) Write(tok Token, expectedGen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != expectedGen {
		return false
	}
	s.tok = tok
	s.gen++
	s.persistLocked()
	return true
}

// Clear unconditionally drops the current token and always advances the
// generation, so any in-flight refresh started before the clear is
// guaranteed to lose its CAS.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tok = Token{}
	s.gen++
	s.persistLocked()
}

// persistLocked writes the state file via temp-file + rename. Persistence is
// best-effort: a write failure keeps the in-memory state authoritative for
// this process.
func (s *Store) persistLocked() {
	data, err := json.Marshal(state{Token: s.tok, Generation: s.gen})
	if err != nil {
		log.Printf("[TOKENSTORE] Failed to encode state: %v", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokenstore-*")
	if err != nil {
		log.Printf("[TOKENSTORE] Failed to persist state: %v", err)
		return
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.Printf("[TOKENSTORE] Failed to persist state: %v", err)
		return
	}
	tmp.Close()

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		log.Printf("[TOKENSTORE] Failed to persist state: %v", err)
	}
}
