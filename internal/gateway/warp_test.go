package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarpClient_RefreshAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "grant_type=refresh_token")
		assert.Contains(t, string(body), "refresh_token=rt-1")
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("content-type"))
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-2","expires_in":"3600","token_type":"Bearer","user_id":"u1"}`))
	}))
	defer srv.Close()

	client := NewWarpClient(srv.URL, srv.URL, "v-test", 5*time.Second, nil)
	token, err := client.RefreshAccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", token.AccessToken)
	assert.Equal(t, "rt-2", token.RefreshToken)
}

func TestWarpClient_QueryUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("authorization"))
		assert.Equal(t, "v-test", r.Header.Get("x-warp-client-version"))
		w.Write([]byte(`{"data":{"user":{"user":{"requestLimitInfo":{"isUnlimited":false,"requestLimit":150,"requestsUsedSinceLastRefresh":42,"nextRefreshTime":"2025-09-01T00:00:00Z"}}}}}`))
	}))
	defer srv.Close()

	client := NewWarpClient(srv.URL, srv.URL, "v-test", 5*time.Second, nil)
	info, err := client.QueryUsage(context.Background(), "at-1")
	require.NoError(t, err)
	assert.False(t, info.IsUnlimited)
	assert.Equal(t, 150, info.RequestLimit)
	assert.Equal(t, 42, info.RequestsUsed)
}

func TestWarpClient_QueryUsage_MissingInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"user":{}}}`))
	}))
	defer srv.Close()

	client := NewWarpClient(srv.URL, srv.URL, "v-test", 5*time.Second, nil)
	_, err := client.QueryUsage(context.Background(), "at-1")
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindMalformed, ge.Kind)
}
