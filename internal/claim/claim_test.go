package claim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/session"
)

type fakeStore struct {
	mu   sync.Mutex
	snap session.Snapshot
}

func (f *fakeStore) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeStore) UpdateBalance(newBalance float64) (session.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.snap.Authenticated {
		return session.Snapshot{}, session.ErrNotAuthenticated
	}
	f.snap.Session.Balance = newBalance
	return f.snap, nil
}

func authedStore(balance float64) *fakeStore {
	return &fakeStore{snap: session.Snapshot{
		Authenticated: true,
		Session:       session.Session{Token: "tok-1", Role: "user", Balance: balance},
	}}
}

type fakeBackend struct {
	mu         sync.Mutex
	claimData  *gateway.ClaimData
	claimErr   error
	claimCalls int
	tokens     []gateway.TokenRecord
	tokensErr  error
	gate       chan struct{}
}

func (f *fakeBackend) Claim(ctx context.Context, token string) (*gateway.ClaimData, error) {
	f.mu.Lock()
	f.claimCalls++
	gate := f.gate
	data, err := f.claimData, f.claimErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return data, err
}

func (f *fakeBackend) MyTokens(ctx context.Context, token string) ([]gateway.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens, f.tokensErr
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimCalls
}

type fakeMirror struct {
	saved  []gateway.TokenRecord
	stored []gateway.TokenRecord
}

func (f *fakeMirror) SaveTokens(records []gateway.TokenRecord) error {
	f.saved = append([]gateway.TokenRecord(nil), records...)
	return nil
}

func (f *fakeMirror) ListTokens() ([]gateway.TokenRecord, error) {
	return f.stored, nil
}

func TestClaim_NotAuthenticated(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, &fakeStore{}, nil, 1, nil)

	_, err := w.Claim(context.Background())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Zero(t, backend.calls())
}

func TestClaim_InsufficientBalanceRejectedLocally(t *testing.T) {
	backend := &fakeBackend{}
	w := NewWorkflow(backend, authedStore(0.5), nil, 1, nil)

	_, err := w.Claim(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Zero(t, backend.calls(), "doomed claim must not reach the backend")
}

func TestClaim_SuccessAppliesNewBalance(t *testing.T) {
	store := authedStore(4)
	backend := &fakeBackend{claimData: &gateway.ClaimData{
		Email:        "a@b.c",
		RefreshToken: "rt-1",
		AILimit:      2500,
		NewBalance:   0,
	}}
	w := NewWorkflow(backend, store, nil, 1, nil)

	data, err := w.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rt-1", data.RefreshToken)
	assert.Equal(t, 0.0, store.Snapshot().Session.Balance, "UI balance follows backend new_balance")
}

// 余额 ¥4 领取成功返回 ¥0 后，再次领取必须被本地拒绝且不触网
func TestClaim_DrainedBalanceBlocksNextClaimLocally(t *testing.T) {
	store := authedStore(4)
	backend := &fakeBackend{claimData: &gateway.ClaimData{Email: "a@b.c", RefreshToken: "rt", NewBalance: 0}}
	w := NewWorkflow(backend, store, nil, 1, nil)

	_, err := w.Claim(context.Background())
	require.NoError(t, err)
	callsAfterFirst := backend.calls()

	_, err = w.Claim(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, callsAfterFirst, backend.calls())
}

func TestClaim_RejectionLeavesBalanceUntouched(t *testing.T) {
	store := authedStore(4)
	backend := &fakeBackend{claimErr: &gateway.Error{Kind: gateway.KindRejected, Command: "claim-token", Message: "号池已空"}}
	w := NewWorkflow(backend, store, nil, 1, nil)

	_, err := w.Claim(context.Background())
	require.Error(t, err)
	assert.Equal(t, "号池已空", gateway.RejectedMessage(err))
	assert.Equal(t, 4.0, store.Snapshot().Session.Balance)
}

func TestClaim_NoReentrantInvocation(t *testing.T) {
	store := authedStore(10)
	gate := make(chan struct{})
	backend := &fakeBackend{
		claimData: &gateway.ClaimData{Email: "a@b.c", RefreshToken: "rt", NewBalance: 6},
		gate:      gate,
	}
	w := NewWorkflow(backend, store, nil, 1, nil)

	done := make(chan error, 1)
	go func() {
		_, err := w.Claim(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return backend.calls() == 1 }, time.Second, time.Millisecond)

	_, err := w.Claim(context.Background())
	assert.ErrorIs(t, err, ErrClaimInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.calls())
}

func TestListTokens_MirrorsOnSuccess(t *testing.T) {
	mirror := &fakeMirror{}
	backend := &fakeBackend{tokens: []gateway.TokenRecord{{ID: 1, Email: "a@b.c"}}}
	w := NewWorkflow(backend, authedStore(4), mirror, 1, nil)

	records, fromLocal, err := w.ListTokens(context.Background())
	require.NoError(t, err)
	assert.False(t, fromLocal)
	require.Len(t, records, 1)
	assert.Len(t, mirror.saved, 1)
}

func TestListTokens_FallsBackToMirror(t *testing.T) {
	mirror := &fakeMirror{stored: []gateway.TokenRecord{{ID: 7, Email: "old@b.c"}}}
	backend := &fakeBackend{tokensErr: &gateway.Error{Kind: gateway.KindTransport, Command: "get-my-tokens", Message: "请求失败"}}
	w := NewWorkflow(backend, authedStore(4), mirror, 1, nil)

	records, fromLocal, err := w.ListTokens(context.Background())
	require.NoError(t, err)
	assert.True(t, fromLocal)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0].ID)
}

func TestListTokens_BothSourcesFail(t *testing.T) {
	backend := &fakeBackend{tokensErr: &gateway.Error{Kind: gateway.KindTransport, Command: "get-my-tokens", Message: "请求失败"}}
	w := NewWorkflow(backend, authedStore(4), &fakeMirror{}, 1, nil)

	_, _, err := w.ListTokens(context.Background())
	assert.Error(t, err)
}
