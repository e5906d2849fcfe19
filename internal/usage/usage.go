// Package usage 查询 Warp 账号的额度信息
//
// 在线路径：本地凭据 → refresh_token 换 access_token → GraphQL 查询；
// 任何一步失败都回退到本地缓存的上一次快照
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/poller"
	"github.com/xn030523/Warp-Plus/internal/storage/sqlite"
)

// Source 快照的数据来源
type Source int

const (
	SourceLive  Source = iota // 刚从 Warp 查到的
	SourceCache               // 本地缓存兜底
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Snapshot 一次额度查询的结果
type Snapshot struct {
	Email             string
	UserID            string
	IsUnlimited       bool
	RequestLimit      int
	RequestsUsed      int
	RequestsRemaining int
	NextRefreshTime   string
	Source            Source
	FetchedAt         time.Time
}

// WarpAPI Warp 官方接口
type WarpAPI interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*gateway.AccessToken, error)
	QueryUsage(ctx context.Context, accessToken string) (*gateway.RequestLimitInfo, error)
}

// Cache 快照的本地缓存
type Cache interface {
	SaveUsage(rec *sqlite.UsageRecord) error
	LoadUsage() (*sqlite.UsageRecord, error)
}

// Service 额度查询服务
type Service struct {
	warp     WarpAPI
	creds    CredentialSource
	cache    Cache
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	last   *Snapshot
	handle *poller.Handle
}

// NewService 创建额度查询服务
func NewService(warp WarpAPI, creds CredentialSource, cache Cache, interval time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		warp:     warp,
		creds:    creds,
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Fetch 查询一次额度
//
// 在线链路失败时读本地缓存；缓存也没有才返回在线链路的错误
func (s *Service) Fetch(ctx context.Context) (*Snapshot, error) {
	snap, liveErr := s.fetchLive(ctx)
	if liveErr == nil {
		s.remember(snap)
		return snap, nil
	}

	s.logger.Warn("live usage query failed, falling back to cache", zap.Error(liveErr))

	rec, cacheErr := s.cache.LoadUsage()
	if cacheErr != nil {
		return nil, liveErr
	}
	snap = &Snapshot{
		Email:             rec.Email,
		UserID:            rec.UserID,
		IsUnlimited:       rec.IsUnlimited,
		RequestLimit:      rec.RequestLimit,
		RequestsUsed:      rec.RequestsUsed,
		RequestsRemaining: rec.RequestsRemaining,
		NextRefreshTime:   rec.NextRefreshTime,
		Source:            SourceCache,
		FetchedAt:         rec.FetchedAt,
	}
	s.remember(snap)
	return snap, nil
}

// Last 返回最近一次成功的快照，可能为 nil
func (s *Service) Last() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Watch 按固定周期轮询额度，结果通过 fn 回传
//
// 首次查询立即执行；停止轮询调用返回句柄的 Cancel
func (s *Service) Watch(ctx context.Context, fn func(*Snapshot, error)) *poller.Handle {
	handle := poller.Schedule(ctx, s.interval, func(tickCtx context.Context) {
		fn(s.Fetch(tickCtx))
	})

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	return handle
}

// Stop 停止轮询
func (s *Service) Stop() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
}

func (s *Service) fetchLive(ctx context.Context) (*Snapshot, error) {
	creds, err := s.creds.Credentials()
	if err != nil {
		return nil, err
	}

	token, err := s.warp.RefreshAccessToken(ctx, creds.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("刷新访问令牌失败: %w", err)
	}

	info, err := s.warp.QueryUsage(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("查询额度失败: %w", err)
	}

	remaining := info.RequestLimit - info.RequestsUsed
	if info.IsUnlimited || remaining < 0 {
		remaining = 0
	}
	snap := &Snapshot{
		Email:             creds.Email,
		UserID:            creds.UserID,
		IsUnlimited:       info.IsUnlimited,
		RequestLimit:      info.RequestLimit,
		RequestsUsed:      info.RequestsUsed,
		RequestsRemaining: remaining,
		NextRefreshTime:   info.NextRefreshTime,
		Source:            SourceLive,
		FetchedAt:         time.Now(),
	}

	// 缓存写失败不影响本次结果
	if err := s.cache.SaveUsage(&sqlite.UsageRecord{
		Email:             snap.Email,
		UserID:            snap.UserID,
		IsUnlimited:       snap.IsUnlimited,
		RequestLimit:      snap.RequestLimit,
		RequestsUsed:      snap.RequestsUsed,
		RequestsRemaining: snap.RequestsRemaining,
		NextRefreshTime:   snap.NextRefreshTime,
		FetchedAt:         snap.FetchedAt,
	}); err != nil {
		s.logger.Warn("persist usage snapshot failed", zap.Error(err))
	}
	return snap, nil
}

func (s *Service) remember(snap *Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}
