// Shoal is a Redfish aggregator service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package redfish

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"shoal/pkg/auth"
)

const sessionIdleTimeout = 30 * time.Minute

// authSession is one active X-Auth-Token session.
type authSession struct {
	token    string
	userName string
	created  time.Time
	lastUsed time.Time
}

// sessionStore is the per-VM Redfish session table. spec.md §4.4 ties
// session lifetime to 30 minutes of inactivity or an explicit DELETE.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*authSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*authSession)}
}

func (s *sessionStore) create(userName string) *authSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sess := &authSession{
		token:    uuid.NewString(),
		userName: userName,
		created:  now,
		lastUsed: now,
	}
	s.sessions[sess.token] = sess
	return sess
}

func (s *sessionStore) touch(token string) (*authSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if time.Since(sess.lastUsed) > sessionIdleTimeout {
		delete(s.sessions, token)
		return nil, false
	}
	sess.lastUsed = time.Now()
	return sess, true
}

func (s *sessionStore) list(basePath string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for token := range s.sessions {
		out = append(out, basePath+"/"+token)
	}
	return out
}

func (s *sessionStore) delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return false
	}
	delete(s.sessions, token)
	return true
}

// authenticate checks Basic credentials or an X-Auth-Token header against
// this VM's configured Redfish user and the session table. It returns the
// authenticated principal name, or "" if unauthenticated.
func (srv *Server) authenticate(r *http.Request) string {
	if token := r.Header.Get("X-Auth-Token"); token != "" {
		if sess, ok := srv.sessions.touch(token); ok {
			return sess.userName
		}
		return ""
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	if user != srv.vm.RedfishUser {
		return ""
	}
	if err := auth.VerifyPassword(pass, srv.vm.RedfishPasswordHash); err != nil {
		return ""
	}
	return user
}
