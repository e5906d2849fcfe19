package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var errEmptyEmail = errors.New("empty email in response")

// WarpClient Warp 官方接口的网关，用于额度查询链路
type WarpClient struct {
	tokenURL      string
	graphqlURL    string
	clientVersion string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewWarpClient 创建 Warp 接口网关
func NewWarpClient(tokenURL, graphqlURL, clientVersion string, timeout time.Duration, logger *zap.Logger) *WarpClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarpClient{
		tokenURL:      tokenURL,
		graphqlURL:    graphqlURL,
		clientVersion: clientVersion,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// RefreshAccessToken 用 refresh_token 换取 access_token
func (c *WarpClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, transportError("refresh-access-token", err)
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("accept", "*/*")
	req.Header.Set("x-warp-client-version", c.clientVersion)
	req.Header.Set("x-warp-os-category", "desktop")
	req.Header.Set("x-warp-os-name", "Windows")
	req.Header.Set("x-warp-os-version", "10")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("refresh-access-token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, statusError("refresh-access-token", resp.Status, string(snippet))
	}

	var token AccessToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, malformedError("refresh-access-token", err)
	}
	return &token, nil
}

const requestLimitQuery = `
query GetRequestLimitInfo($requestContext: RequestContext!) {
    user(requestContext: $requestContext) {
        __typename
        ... on UserOutput {
            user {
                requestLimitInfo {
                    isUnlimited
                    nextRefreshTime
                    requestLimit
                    requestsUsedSinceLastRefresh
                }
            }
        }
    }
}
`

// QueryUsage 查询账号的请求额度
func (c *WarpClient) QueryUsage(ctx context.Context, accessToken string) (*RequestLimitInfo, error) {
	payload := map[string]interface{}{
		"query":         requestLimitQuery,
		"operationName": "GetRequestLimitInfo",
		"variables": map[string]interface{}{
			"requestContext": map[string]interface{}{
				"clientContext": map[string]string{"version": c.clientVersion},
				"osContext": map[string]string{
					"category": "Windows",
					"name":     "Windows",
					"version":  "10",
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, transportError("get-warp-usage", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, &buf)
	if err != nil {
		return nil, transportError("get-warp-usage", err)
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", "Bearer "+accessToken)
	req.Header.Set("x-warp-client-version", c.clientVersion)
	req.Header.Set("x-warp-os-category", "Windows")
	req.Header.Set("x-warp-os-name", "Windows")
	req.Header.Set("x-warp-os-version", "10")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("get-warp-usage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, statusError("get-warp-usage", resp.Status, string(snippet))
	}

	// GraphQL 返回的额度信息埋在 data.user.user.requestLimitInfo
	var result struct {
		Data struct {
			User struct {
				User struct {
					RequestLimitInfo *RequestLimitInfo `json:"requestLimitInfo"`
				} `json:"user"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, malformedError("get-warp-usage", err)
	}
	if result.Data.User.User.RequestLimitInfo == nil {
		return nil, malformedError("get-warp-usage", errors.New("no requestLimitInfo in response"))
	}
	return result.Data.User.User.RequestLimitInfo, nil
}
