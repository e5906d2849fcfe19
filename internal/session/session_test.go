package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xn030523/Warp-Plus/internal/gateway"
)

type fakeBackend struct {
	mu          sync.Mutex
	loginResult *gateway.LoginResult
	loginErr    error
	loginCalls  int
	logoutErr   error
	logoutCalls int
	loginGate   chan struct{} // 非空时 Login 阻塞等待放行
}

func (f *fakeBackend) Login(ctx context.Context, password string) (*gateway.LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	gate := f.loginGate
	result, err := f.loginResult, f.loginErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *fakeBackend) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeBackend) setResult(r *gateway.LoginResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginResult = r
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

func okLogin(token, role string, balance float64) *gateway.LoginResult {
	return &gateway.LoginResult{
		Success: true,
		Message: "ok",
		Token:   strPtr(token),
		Role:    strPtr(role),
		Balance: f64Ptr(balance),
	}
}

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	return NewStore(backend, filepath.Join(t.TempDir(), "user_session.json"), nil)
}

// 构造一个只含 exp 声明的未签名 JWT
func makeJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]interface{}{"exp": exp.Unix()})
	require.NoError(t, err)
	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

func TestRestore_NoFile(t *testing.T) {
	store := newTestStore(t, &fakeBackend{})

	snap := store.Restore(context.Background())
	assert.False(t, snap.Authenticated)
}

func TestRestore_ValidFile(t *testing.T) {
	backend := &fakeBackend{}
	path := filepath.Join(t.TempDir(), "user_session.json")
	sess := &Session{Token: "opaque-token", Role: "user", Balance: 4, LoggedInAt: time.Now().UTC(), Password: "pw"}
	require.NoError(t, saveSessionFile(path, sess))

	store := NewStore(backend, path, nil)
	snap := store.Restore(context.Background())

	require.True(t, snap.Authenticated)
	assert.Equal(t, "opaque-token", snap.Session.Token)
	assert.Equal(t, 4.0, snap.Session.Balance)
	assert.Zero(t, backend.calls(), "restore must not hit the backend")
}

func TestRestore_ExpiredJWTDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_session.json")
	sess := &Session{Token: makeJWT(t, time.Now().Add(-time.Hour)), Role: "user", Password: "pw"}
	require.NoError(t, saveSessionFile(path, sess))

	store := NewStore(&fakeBackend{}, path, nil)
	snap := store.Restore(context.Background())

	assert.False(t, snap.Authenticated)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expired session file should be removed")
}

func TestRestore_FutureJWTAccepted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_session.json")
	sess := &Session{Token: makeJWT(t, time.Now().Add(time.Hour)), Role: "user", Password: "pw"}
	require.NoError(t, saveSessionFile(path, sess))

	store := NewStore(&fakeBackend{}, path, nil)
	snap := store.Restore(context.Background())
	assert.True(t, snap.Authenticated)
}

func TestLogin_EmptyPasswordRejectedLocally(t *testing.T) {
	backend := &fakeBackend{}
	store := newTestStore(t, backend)

	_, err := store.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
	assert.Zero(t, backend.calls())
}

func TestLogin_Success(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 12.5)}
	store := newTestStore(t, backend)

	var notified []Snapshot
	store.Subscribe(func(s Snapshot) { notified = append(notified, s) })

	snap, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)
	assert.True(t, snap.Authenticated)
	assert.Equal(t, "tok-1", snap.Session.Token)
	assert.Equal(t, 12.5, snap.Session.Balance)
	assert.Equal(t, "pw", snap.Session.Password)

	// 订阅时一次（未登录）+ 登录转换一次
	require.Len(t, notified, 2)
	assert.False(t, notified[0].Authenticated)
	assert.True(t, notified[1].Authenticated)
}

func TestLogin_BackendRefusalVerbatim(t *testing.T) {
	backend := &fakeBackend{loginResult: &gateway.LoginResult{Success: false, Message: "密码错误"}}
	store := newTestStore(t, backend)

	_, err := store.Login(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, "密码错误", err.Error())
	assert.False(t, store.Snapshot().Authenticated)
}

func TestLogout_FailureRetainsSession(t *testing.T) {
	backend := &fakeBackend{
		loginResult: okLogin("tok-1", "user", 4),
		logoutErr:   fmt.Errorf("network down"),
	}
	store := newTestStore(t, backend)
	_, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)

	err = store.Logout(context.Background())
	require.Error(t, err)
	assert.True(t, store.Snapshot().Authenticated, "failed logout must keep the session")
}

func TestLogout_SuccessClearsSession(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 4)}
	store := newTestStore(t, backend)
	_, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)

	var last Snapshot
	store.Subscribe(func(s Snapshot) { last = s })

	require.NoError(t, store.Logout(context.Background()))
	assert.False(t, last.Authenticated)
	assert.False(t, store.Snapshot().Authenticated)
}

func TestRefresh_ReplacesWholesaleKeepsLoginTime(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 10)}
	store := newTestStore(t, backend)
	first, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)

	backend.setResult(okLogin("tok-2", "user", 6))
	snap, err := store.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", snap.Session.Token)
	assert.Equal(t, 6.0, snap.Session.Balance)
	assert.Equal(t, first.Session.LoggedInAt, snap.Session.LoggedInAt)
	assert.Equal(t, "pw", snap.Session.Password)
}

func TestRefresh_RequiresSession(t *testing.T) {
	store := newTestStore(t, &fakeBackend{})
	_, err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestUpdateBalance(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 4)}
	store := newTestStore(t, backend)
	_, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)

	snap, err := store.UpdateBalance(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Session.Balance)
	assert.Equal(t, "tok-1", snap.Session.Token, "optimistic update keeps other fields")
}

func TestUpdateBalance_NotAuthenticated(t *testing.T) {
	store := newTestStore(t, &fakeBackend{})
	_, err := store.UpdateBalance(1)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

// 先发出的慢刷新不能覆盖之后落地的乐观余额
func TestRefresh_StaleResolutionDiscarded(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 4)}
	store := newTestStore(t, backend)
	_, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.loginGate = gate
	backend.loginResult = okLogin("tok-1", "user", 4) // 刷新会带回旧余额
	backend.mu.Unlock()

	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := store.Refresh(context.Background())
		done <- snap
	}()

	// 等刷新真正发出后再做乐观更新
	require.Eventually(t, func() bool { return backend.calls() >= 2 }, time.Second, time.Millisecond)
	_, err = store.UpdateBalance(0)
	require.NoError(t, err)

	close(gate)
	snap := <-done

	assert.Equal(t, 0.0, snap.Session.Balance, "stale refresh resolution must not clobber newer balance")
	assert.Equal(t, 0.0, store.Snapshot().Session.Balance)
}

// 登出后才解析完成的刷新属于已废弃纪元，结果作废
func TestRefresh_SupersededEpochDiscarded(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 4)}
	store := newTestStore(t, backend)
	_, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.loginGate = gate
	backend.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := store.Refresh(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool { return backend.calls() >= 2 }, time.Second, time.Millisecond)

	backend.mu.Lock()
	backend.loginGate = nil
	backend.mu.Unlock()
	require.NoError(t, store.Logout(context.Background()))

	close(gate)
	assert.ErrorIs(t, <-errCh, ErrNotAuthenticated)
	assert.False(t, store.Snapshot().Authenticated)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	backend := &fakeBackend{loginResult: okLogin("tok-1", "user", 4)}
	store := newTestStore(t, backend)

	count := 0
	unsubscribe := store.Subscribe(func(Snapshot) { count++ })
	assert.Equal(t, 1, count, "immediate snapshot on subscribe")

	unsubscribe()
	_, err := store.Login(context.Background(), "pw")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "no notifications after unsubscribe")
}
