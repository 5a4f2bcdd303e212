// Package session implements a cookie-based session store, grounded on
// original_source's Cookie.cpp ensureSessionFor/attachSessionCookie pair:
// session ids are hex(time)-rand-fd strings, and the idle sweep purges
// entries past idleMax.
package session

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultIdleTimeout matches original_source's SESSION_MAX_IDLE /
// Session.cpp's 1800-second expiry (no shared constant value survived the
// distillation, so both sources agree on 30 minutes).
const DefaultIdleTimeout = 30 * time.Minute

type entry struct {
	lastSeen     time.Time
	requestCount int
}

// Store is the process-wide session table. The event loop calls Ensure,
// Sweep and Drain from its own goroutine; the mutex makes every method safe
// to call from other goroutines as well.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	idleMax  time.Duration
}

// New creates an empty session store with the given idle timeout.
func New(idleMax time.Duration) *Store {
	if idleMax <= 0 {
		idleMax = DefaultIdleTimeout
	}
	return &Store{sessions: make(map[string]*entry), idleMax: idleMax}
}

// ParseCookies implements the Cookie: header tokenizer of Cookie.cpp's
// parseCookies.
func ParseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	for _, tok := range strings.Split(header, ";") {
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(tok[:eq])
		value := strings.TrimSpace(tok[eq+1:])
		if name != "" {
			cookies[name] = value
		}
	}
	return cookies
}

// GenerateID implements Cookie.cpp's generateSessionId: hex(time)-rand-fd.
func GenerateID(fd int) string {
	return fmt.Sprintf("%x-%d-%d", time.Now().Unix(), rand.Int(), fd)
}

// Ensure looks up the session_id cookie; if absent or unknown, it mints a
// new id and reports that Set-Cookie must be attached. It always bumps
// lastSeen and the request counter for the returned id.
func (s *Store) Ensure(cookieHeader string, fd int) (id string, shouldSetCookie bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cookieHeader != "" {
		if v, ok := ParseCookies(cookieHeader)["session_id"]; ok && v != "" {
			if e, found := s.sessions[v]; found {
				e.lastSeen = time.Now()
				e.requestCount++
				return v, false
			}
			// Unknown id: fall through and mint a fresh one rather than
			// trusting a client-supplied value into the session table.
		}
	}

	id = GenerateID(fd)
	s.sessions[id] = &entry{lastSeen: time.Now(), requestCount: 1}
	return id, true
}

// Sweep purges entries idle past the store's idleMax.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastSeen) > s.idleMax {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Drain discards every session, used on server shutdown.
func (s *Store) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*entry)
}

// CookieHeaderValue formats the Set-Cookie value for a session id.
func CookieHeaderValue(id string) string {
	return fmt.Sprintf("session_id=%s; Path=/; SameSite=Lax", id)
}
