// Package claim 实现余额换取 Token 的领取流程
//
// 号池是共享的有限资源，重复提交是正确性问题而不只是体验问题，
// 同一会话同一时刻只允许一次领取在途
package claim

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/session"
)

var (
	// ErrInsufficientBalance 余额低于预检门槛，不发起后端调用
	ErrInsufficientBalance = errors.New("余额不足，请先充值")
	// ErrClaimInFlight 已有一次领取在途
	ErrClaimInFlight = errors.New("领取进行中，请稍候")
)

// Backend 领取流程依赖的后端命令
type Backend interface {
	Claim(ctx context.Context, token string) (*gateway.ClaimData, error)
	MyTokens(ctx context.Context, token string) ([]gateway.TokenRecord, error)
}

// SessionStore 领取流程对会话存储的依赖
type SessionStore interface {
	Snapshot() session.Snapshot
	UpdateBalance(newBalance float64) (session.Snapshot, error)
}

// Mirror 本地历史镜像，可为空
type Mirror interface {
	SaveTokens(records []gateway.TokenRecord) error
	ListTokens() ([]gateway.TokenRecord, error)
}

// Workflow 领取流程
type Workflow struct {
	backend    Backend
	store      SessionStore
	mirror     Mirror
	minBalance float64
	logger     *zap.Logger

	inFlight atomic.Bool
}

// NewWorkflow 创建领取流程
//
// minBalance 只是避免注定失败调用的保守预检，实际价格由后端裁决
func NewWorkflow(backend Backend, store SessionStore, mirror Mirror, minBalance float64, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		backend:    backend,
		store:      store,
		mirror:     mirror,
		minBalance: minBalance,
		logger:     logger,
	}
}

// Claim 领取一个 Token
//
// 响应是全有或全无的：成功拿到完整载荷并乐观回显新余额，
// 失败则余额不动、后端消息原样上抛
func (w *Workflow) Claim(ctx context.Context) (*gateway.ClaimData, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return nil, ErrClaimInFlight
	}
	defer w.inFlight.Store(false)

	snap := w.store.Snapshot()
	if !snap.Authenticated {
		return nil, session.ErrNotAuthenticated
	}
	if snap.Session.Balance < w.minBalance {
		return nil, ErrInsufficientBalance
	}

	data, err := w.backend.Claim(ctx, snap.Session.Token)
	if err != nil {
		return nil, err
	}

	// new_balance 来自后端响应，客户端不做差额运算
	if _, err := w.store.UpdateBalance(data.NewBalance); err != nil {
		w.logger.Warn("optimistic balance update failed", zap.Error(err))
	}
	w.logger.Info("token claimed",
		zap.String("email", data.Email),
		zap.Float64("new_balance", data.NewBalance))
	return data, nil
}

// ListTokens 获取已领取记录
//
// 在线获取成功后顺手镜像到本地；在线失败时降级读本地镜像，
// fromLocal 标识数据来源，两边都失败才报错
func (w *Workflow) ListTokens(ctx context.Context) (records []gateway.TokenRecord, fromLocal bool, err error) {
	snap := w.store.Snapshot()
	if !snap.Authenticated {
		return nil, false, session.ErrNotAuthenticated
	}

	records, err = w.backend.MyTokens(ctx, snap.Session.Token)
	if err == nil {
		if w.mirror != nil {
			if mirrorErr := w.mirror.SaveTokens(records); mirrorErr != nil {
				w.logger.Warn("mirror tokens failed", zap.Error(mirrorErr))
			}
		}
		return records, false, nil
	}

	if w.mirror != nil {
		local, localErr := w.mirror.ListTokens()
		if localErr == nil && len(local) > 0 {
			w.logger.Info("serving token history from local mirror", zap.Error(err))
			return local, true, nil
		}
	}
	return nil, false, err
}
