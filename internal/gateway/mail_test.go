package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailClient(t *testing.T, handler http.Handler) *MailClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMailClient(srv.URL, 5*time.Second, 100, nil)
}

func TestMailClient_GenerateEmail(t *testing.T) {
	client := newTestMailClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate-email", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("user-agent"))
		w.Write([]byte(`{"email":"x1y2@chatgpt.org.uk"}`))
	}))

	address, err := client.GenerateEmail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x1y2@chatgpt.org.uk", address)
}

func TestMailClient_GenerateEmail_Empty(t *testing.T) {
	client := newTestMailClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := client.GenerateEmail(context.Background())
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindMalformed, ge.Kind)
}

func TestMailClient_GetEmails(t *testing.T) {
	client := newTestMailClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get-emails", r.URL.Path)
		assert.Equal(t, "x1y2@chatgpt.org.uk", r.URL.Query().Get("email"))
		w.Write([]byte(`{"emails":[{"id":"m1","from":"noreply@warp.dev","to":"x1y2@chatgpt.org.uk","subject":"Verify","content":"hi","htmlContent":"<p>hi</p>","hasHtml":true,"timestamp":1724800000000}]}`))
	}))

	emails, err := client.GetEmails(context.Background(), "x1y2@chatgpt.org.uk")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "m1", emails[0].ID)
	assert.True(t, emails[0].HasHTML)
}

func TestMailClient_RateLimiterHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"emails":[]}`))
	}))
	defer srv.Close()

	client := NewMailClient(srv.URL, time.Second, 1, nil)

	// 耗尽突发配额后，已取消的 context 应立即失败而不是等待配额
	_, _ = client.GetEmails(context.Background(), "a@b.c")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetEmails(ctx, "a@b.c")
	assert.Error(t, err)
}
