// Package deeplink 拼装并唤起 Warp 桌面端的登录深链
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// ErrMissingField refresh_token 和 state 都不能为空
var ErrMissingField = errors.New("refresh_token 和 state 不能为空")

// BuildAuthURL 生成 warp://auth/desktop_redirect 登录链接
func BuildAuthURL(refreshToken, state string) (string, error) {
	if refreshToken == "" || state == "" {
		return "", ErrMissingField
	}
	return fmt.Sprintf("warp://auth/desktop_redirect?refresh_token=%s&state=%s",
		url.QueryEscape(refreshToken), url.QueryEscape(state)), nil
}

// ExtractState 从输入中提取 state 参数
//
// 支持直接粘贴完整回调 URL；不是 URL 或没有 state 参数时原样返回
func ExtractState(input string) string {
	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" {
		return input
	}
	if state := u.Query().Get("state"); state != "" {
		return state
	}
	return input
}

// Open 交给系统默认处理器打开链接
func Open(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("唤起链接失败: %w", err)
	}
	// 不等处理器退出，浏览器或 Warp 可能常驻
	go func() { _ = cmd.Wait() }()
	return nil
}
