package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xn030523/Warp-Plus/internal/gateway"
)

// Credentials 查询额度所需的本地 Warp 账号凭据
type Credentials struct {
	Email        string
	UserID       string
	RefreshToken string
}

// CredentialSource 凭据来源
type CredentialSource interface {
	Credentials() (*Credentials, error)
}

// warpUserFile Warp 桌面端落盘的用户文件结构
type warpUserFile struct {
	IDToken struct {
		RefreshToken string `json:"refresh_token"`
	} `json:"id_token"`
	LocalID string `json:"local_id"`
	Email   string `json:"email"`
}

// FileSource 从 Warp 桌面端的用户文件读取凭据
//
// Windows 上该文件位于 AppData\Local\warp\Warp\data\dev.warp.Warp-User，
// 且可能经过 DPAPI 加密；加密文件会解析失败并走上层回退
type FileSource struct {
	Path string
}

// DefaultWarpUserFile 返回 Warp 用户文件的默认路径
func DefaultWarpUserFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "AppData", "Local", "warp", "Warp", "data", "dev.warp.Warp-User")
}

func (f *FileSource) Credentials() (*Credentials, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("Warp 用户文件不存在，请确保已登录 Warp")
	}
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	var user warpUserFile
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("解析用户信息失败: %w", err)
	}
	if user.IDToken.RefreshToken == "" {
		return nil, fmt.Errorf("用户文件缺少 refresh_token")
	}
	return &Credentials{
		Email:        user.Email,
		UserID:       user.LocalID,
		RefreshToken: user.IDToken.RefreshToken,
	}, nil
}

// TokenLister 已领取令牌的查询入口
type TokenLister interface {
	ListTokens() ([]gateway.TokenRecord, error)
}

// MirrorSource 退而求其次：用最近一次领取的令牌做凭据
type MirrorSource struct {
	Mirror TokenLister
}

func (m *MirrorSource) Credentials() (*Credentials, error) {
	records, err := m.Mirror.ListTokens()
	if err != nil {
		return nil, fmt.Errorf("读取本地令牌失败: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("本地没有可用的令牌")
	}
	latest := records[0]
	return &Credentials{
		Email:        latest.Email,
		UserID:       strconv.FormatInt(latest.AccountID, 10),
		RefreshToken: latest.RefreshToken,
	}, nil
}

// ChainSource 依次尝试多个凭据来源，全部失败时返回最后一个错误
type ChainSource []CredentialSource

func (c ChainSource) Credentials() (*Credentials, error) {
	var lastErr error
	for _, src := range c {
		creds, err := src.Credentials()
		if err == nil {
			return creds, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("没有配置凭据来源")
	}
	return nil, lastErr
}
