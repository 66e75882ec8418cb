package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sid", "secret", time.Hour, false), mr
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		return nil
	}
	return cookies[0]
}

func load(t *testing.T, sm *SessionManager, cookie *http.Cookie) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newTestManager(t)

	sess := load(t, sm, nil)
	sess.SetUser("42")
	sess.SetCompany(7)
	cookie := commit(t, sm, sess)
	require.NotNil(t, cookie)

	again := load(t, sm, cookie)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, "42", again.User())
	assert.Equal(t, int64(7), again.Company())
}

func TestAnonymousSessionNotPersisted(t *testing.T) {
	sm, mr := newTestManager(t)
	cookie := commit(t, sm, load(t, sm, nil))
	assert.Nil(t, cookie)
	assert.Empty(t, mr.Keys())
}

func TestUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := load(t, sm, &http.Cookie{Name: "sid", Value: "attacker-chosen"})
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.Empty(t, sess.User())
}

func TestRenewDropsOldID(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := load(t, sm, nil)
	sess.Set(CSRFSessionKey, "tok")
	cookie := commit(t, sm, sess)
	oldID := sess.ID

	sess = load(t, sm, cookie)
	sm.Renew(sess)
	sess.SetUser("1")
	commit(t, sm, sess)

	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+sess.ID))
}

func TestDestroyClearsCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := load(t, sm, nil)
	sess.SetUser("9")
	cookie := commit(t, sm, sess)

	sess = load(t, sm, cookie)
	sm.Destroy(sess)
	cleared := commit(t, sm, sess)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.False(t, mr.Exists("session:"+sess.ID))
}

func TestCompanyIgnoresGarbage(t *testing.T) {
	sess := &Session{}
	sess.Set(SessionCompanyKey, "abc")
	assert.Zero(t, sess.Company())
	sess.SetCompany(0)
	assert.Empty(t, sess.Get(SessionCompanyKey))
}
