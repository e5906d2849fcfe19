package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client 号池后端的命令网关
//
// 每个方法对应一条后端命令；网关只负责一次调用，
// 不做重试、不做缓存、不持有任何会话状态
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 创建后端网关
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do 执行请求并把响应体解码到 out
//
// 非 2xx 状态码视为传输层失败，响应体片段带进错误消息
func (c *Client) do(command string, req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend call failed",
			zap.String("command", command),
			zap.Error(err))
		return transportError(command, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		zap.String("command", command),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(command, resp.Status, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformedError(command, err)
	}
	return nil
}

// Login 登录命令
//
// Success=false 原样返回，不转换为错误；调用方负责展示 Message
func (c *Client) Login(ctx context.Context, password string) (*LoginResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/login", "", map[string]string{
		"password": password,
	})
	if err != nil {
		return nil, transportError("login", err)
	}

	var result LoginResult
	if err := c.do("login", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout 登出命令
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/logout", token, nil)
	if err != nil {
		return transportError("logout", err)
	}

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.do("logout", req, &result); err != nil {
		return err
	}
	if !result.Success {
		return rejectedError("logout", result.Message)
	}
	return nil
}

// Stats 获取号池统计数据（公开接口，无需登录）
func (c *Client) Stats(ctx context.Context) (*StatsData, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/stats", "", nil)
	if err != nil {
		return nil, transportError("get-stats", err)
	}

	var result struct {
		Success bool       `json:"success"`
		Data    *StatsData `json:"data"`
	}
	if err := c.do("get-stats", req, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, malformedError("get-stats", fmt.Errorf("no stats data in response"))
	}
	return result.Data, nil
}

// Claim 领取一个 Token
//
// 后端保证余额扣减与 Token 分配的原子性；这里把 success=false
// 转换为 KindRejected 错误，消息原文保留
func (c *Client) Claim(ctx context.Context, token string) (*ClaimData, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/token/claim", token, nil)
	if err != nil {
		return nil, transportError("claim-token", err)
	}

	var result struct {
		Success bool       `json:"success"`
		Message string     `json:"message"`
		Data    *ClaimData `json:"data"`
	}
	if err := c.do("claim-token", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, rejectedError("claim-token", result.Message)
	}
	if result.Data == nil {
		// 成功却没有载荷，对调用方而言必须是全有或全无
		return nil, malformedError("claim-token", fmt.Errorf("success without claim data"))
	}
	return result.Data, nil
}

// MyTokens 获取当前用户已领取的 Token 记录
func (c *Client) MyTokens(ctx context.Context, token string) ([]TokenRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/tokens/my", token, nil)
	if err != nil {
		return nil, transportError("get-my-tokens", err)
	}

	var result struct {
		Success bool          `json:"success"`
		Message string        `json:"message"`
		Data    []TokenRecord `json:"data"`
	}
	if err := c.do("get-my-tokens", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, rejectedError("get-my-tokens", result.Message)
	}
	return result.Data, nil
}

// CreateRecharge 创建充值订单
func (c *Client) CreateRecharge(ctx context.Context, token string, amount float64, paymentType string) (*RechargeOrder, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/recharge", token, map[string]interface{}{
		"amount": amount,
		"type":   paymentType,
	})
	if err != nil {
		return nil, transportError("create-recharge-order", err)
	}

	var result struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    *RechargeOrder `json:"data"`
	}
	if err := c.do("create-recharge-order", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, rejectedError("create-recharge-order", result.Message)
	}
	if result.Data == nil {
		return nil, malformedError("create-recharge-order", fmt.Errorf("no order data in response"))
	}
	return result.Data, nil
}
