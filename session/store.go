/*
 * Copyright 2022 RapidLoop, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package session implements the authenticated-session store: an
// in-memory table of live sessions serialised by a single mutex, with
// asynchronous persistence to a per-session JSON file under StorePath so
// sessions survive a restart.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated login. ID is also the bearer token
// (X-Auth-Token) the client presents on subsequent requests.
type Session struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Privileges []string  `json:"privileges"`
	ClientIP   string    `json:"clientIP,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsed   time.Time `json:"lastUsed"`
}

// expired reports whether the session has been idle longer than timeout.
func (s *Session) expired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastUsed) > timeout
}

// ErrMaxSessions is returned by Create when the store already holds
// MaxSessions live sessions (mapped to ResourceExhaustion by the
// caller).
var ErrMaxSessions = fmt.Errorf("session: maximum session count reached")

// Store is the process-wide table of live sessions. All exported methods
// are safe for concurrent use; callers never need their own locking.
type Store struct {
	storePath   string
	timeout     time.Duration
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a Store persisting to storePath (created if absent),
// expiring sessions idle longer than timeout, and refusing new logins
// once maxSessions are held concurrently. Pre-existing session files
// under storePath are loaded back in.
func NewStore(storePath string, timeout time.Duration, maxSessions int) (*Store, error) {
	s := &Store{
		storePath:   storePath,
		timeout:     timeout,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
	if storePath != "" {
		if err := os.MkdirAll(storePath, 0o700); err != nil {
			return nil, fmt.Errorf("session: create store dir: %w", err)
		}
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.storePath)
	if err != nil {
		return fmt.Errorf("session: read store dir: %w", err)
	}
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.storePath, e.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(b, &sess); err != nil {
			continue
		}
		if sess.expired(s.timeout, now) {
			_ = os.Remove(filepath.Join(s.storePath, e.Name()))
			continue
		}
		s.sessions[sess.ID] = &sess
	}
	return nil
}

// Create starts a new session for username with the given privileges and
// client IP, persists it, and returns it. Returns ErrMaxSessions if the
// store is already at capacity.
func (s *Store) Create(username string, privileges []string, clientIP string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, ErrMaxSessions
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		Username:   username,
		Privileges: append([]string(nil), privileges...),
		ClientIP:   clientIP,
		CreatedAt:  now,
		LastUsed:   now,
	}
	s.sessions[sess.ID] = sess
	s.persist(sess)
	return cloneSession(sess), nil
}

// Get looks up a live session by ID (bearer token) and refreshes its idle
// timer. Returns nil if the token is unknown or the session has expired.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := time.Now()
	if sess.expired(s.timeout, now) {
		delete(s.sessions, id)
		s.remove(id)
		return nil
	}
	sess.LastUsed = now
	s.persist(sess)
	return cloneSession(sess)
}

// Delete ends a session (logout). A non-existent ID is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	s.remove(id)
}

// List returns a snapshot of every live session, for the SessionService
// collection endpoint.
func (s *Store) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out
}

// Count reports the number of currently live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return len(s.sessions)
}

// expireLocked removes idle-timed-out sessions. Callers must hold s.mu.
func (s *Store) expireLocked() {
	now := time.Now()
	for id, sess := range s.sessions {
		if sess.expired(s.timeout, now) {
			delete(s.sessions, id)
			s.remove(id)
		}
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.storePath, id+".json")
}

// persist writes sess to disk asynchronously. A failed write is silently
// dropped: the error is not returned to the caller, and this package has
// no logger of its own (kept dependency-free so it can be unit tested in
// isolation).
func (s *Store) persist(sess *Session) {
	if s.storePath == "" {
		return
	}
	cp := cloneSession(sess)
	go func() {
		b, err := json.Marshal(cp)
		if err != nil {
			return
		}
		_ = os.WriteFile(s.path(cp.ID), b, 0o600)
	}()
}

func (s *Store) remove(id string) {
	if s.storePath == "" {
		return
	}
	go func() {
		_ = os.Remove(s.path(id))
	}()
}

func cloneSession(sess *Session) *Session {
	cp := *sess
	cp.Privileges = append([]string(nil), sess.Privileges...)
	return &cp
}
