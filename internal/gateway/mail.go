package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MailClient 临时邮箱中转服务的网关
//
// 中转服务是第三方公共服务，出站请求走限流器，
// 避免 10 秒轮询叠加手动刷新把对方打挂
type MailClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewMailClient 创建邮箱网关
//
// maxRPS 是对中转服务的每秒请求上限
func NewMailClient(baseURL string, timeout time.Duration, maxRPS int, logger *zap.Logger) *MailClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRPS <= 0 {
		maxRPS = 2
	}
	return &MailClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(maxRPS), maxRPS),
		logger:     logger,
	}
}

// 中转服务校验浏览器式请求头，缺失会被拒绝
func (c *MailClient) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("accept-language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("cache-control", "no-cache")
	req.Header.Set("pragma", "no-cache")
	req.Header.Set("referer", c.baseURL+"/")
	req.Header.Set("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	return req, nil
}

func (c *MailClient) do(command string, req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("mail relay call failed",
			zap.String("command", command),
			zap.Error(err))
		return transportError(command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(command, resp.Status, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformedError(command, err)
	}
	return nil
}

// GenerateEmail 生成一个新的临时邮箱地址
func (c *MailClient) GenerateEmail(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", transportError("generate-temp-email", err)
	}

	req, err := c.newRequest(ctx, c.baseURL+"/api/generate-email")
	if err != nil {
		return "", transportError("generate-temp-email", err)
	}

	var result struct {
		Email string `json:"email"`
	}
	if err := c.do("generate-temp-email", req, &result); err != nil {
		return "", err
	}
	if result.Email == "" {
		return "", malformedError("generate-temp-email", errEmptyEmail)
	}
	return result.Email, nil
}

// GetEmails 拉取指定地址的收件箱
func (c *MailClient) GetEmails(ctx context.Context, address string) ([]EmailMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError("get-emails", err)
	}

	req, err := c.newRequest(ctx, c.baseURL+"/api/get-emails?email="+url.QueryEscape(address))
	if err != nil {
		return nil, transportError("get-emails", err)
	}

	var result struct {
		Emails []EmailMessage `json:"emails"`
	}
	if err := c.do("get-emails", req, &result); err != nil {
		return nil, err
	}
	return result.Emails, nil
}
