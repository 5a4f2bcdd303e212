package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureNewSession(t *testing.T) {
	s := New(time.Minute)
	id, setCookie := s.Ensure("", 3)
	require.NotEmpty(t, id)
	require.True(t, setCookie)
	require.Equal(t, 1, s.Len())
}

func TestEnsureExistingSessionNoSetCookie(t *testing.T) {
	s := New(time.Minute)
	id, _ := s.Ensure("", 3)
	id2, setCookie := s.Ensure("session_id="+id, 3)
	require.Equal(t, id, id2)
	require.False(t, setCookie)
	require.Equal(t, 1, s.Len())
}

func TestEnsureUnknownCookieCreatesFresh(t *testing.T) {
	s := New(time.Minute)
	id, setCookie := s.Ensure("session_id=bogus", 3)
	require.NotEqual(t, "bogus", id)
	require.NotEmpty(t, id)
	require.True(t, setCookie)
	require.Equal(t, 1, s.Len())
}

func TestSweepPurgesIdle(t *testing.T) {
	s := New(time.Millisecond)
	s.Ensure("", 3)
	time.Sleep(5 * time.Millisecond)
	purged := s.Sweep(time.Now())
	require.Equal(t, 1, purged)
	require.Equal(t, 0, s.Len())
}

func TestDrainClearsAllSessions(t *testing.T) {
	s := New(time.Minute)
	s.Ensure("", 1)
	s.Ensure("", 2)
	require.Equal(t, 2, s.Len())
	s.Drain()
	require.Equal(t, 0, s.Len())
}

func TestParseCookies(t *testing.T) {
	c := ParseCookies("a=1; session_id=xyz ; b=2")
	require.Equal(t, "xyz", c["session_id"])
	require.Equal(t, "1", c["a"])
}

func TestCookieHeaderValue(t *testing.T) {
	require.Equal(t, "session_id=abc; Path=/; SameSite=Lax", CookieHeaderValue("abc"))
}
