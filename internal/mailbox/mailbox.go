// Package mailbox 管理临时邮箱的地址与收件箱
//
// 收件箱每 10 秒轮询一次；换址时旧调度先取消、消息列表原子清空，
// 旧地址的迟到结果绝不允许落进新地址的列表
package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/poller"
)

// ErrNoAddress 还没有生成邮箱地址
var ErrNoAddress = errors.New("尚未生成邮箱地址")

// Client 邮箱服务依赖的中转网关
type Client interface {
	GenerateEmail(ctx context.Context) (string, error)
	GetEmails(ctx context.Context, address string) ([]gateway.EmailMessage, error)
}

// Snapshot 邮箱状态快照
//
// Messages 的顺序由中转服务决定，客户端不重排
type Snapshot struct {
	Address  string
	Messages []gateway.EmailMessage
}

// Listener 状态变化回调，注意事项同会话订阅：回调内不得反调服务方法
type Listener func(Snapshot)

// Service 临时邮箱服务
type Service struct {
	client   Client
	interval time.Duration
	logger   *zap.Logger

	mu           sync.Mutex
	address      string
	addressEpoch uint64 // 换址时递增，用于丢弃旧地址的迟到结果
	messages     []gateway.EmailMessage
	handle       *poller.Handle
	listeners    map[int]Listener
	nextListener int
}

// NewService 创建邮箱服务
func NewService(client Client, interval time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:    client,
		interval:  interval,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Subscribe 订阅邮箱状态变化
func (s *Service) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	fn(s.snapshotLocked())

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot 返回当前邮箱快照
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Regenerate 生成新地址并重新绑定轮询
//
// 顺序固定：先取消旧调度，再取新地址，然后原子地换址、清空消息，
// 最后启动绑定到新地址的调度；换址失败时停留在无地址状态
func (s *Service) Regenerate(ctx context.Context) (string, error) {
	s.stopScheduleLockedOut()

	address, err := s.client.GenerateEmail(ctx)
	if err != nil {
		s.mu.Lock()
		s.address = ""
		s.messages = nil
		s.addressEpoch++
		s.notifyLocked()
		s.mu.Unlock()
		return "", err
	}

	s.mu.Lock()
	s.addressEpoch++
	epoch := s.addressEpoch
	s.address = address
	s.messages = nil
	s.notifyLocked()
	s.mu.Unlock()

	handle := poller.Schedule(ctx, s.interval, func(tickCtx context.Context) {
		s.refresh(tickCtx, address, epoch)
	})

	s.mu.Lock()
	if s.addressEpoch == epoch {
		s.handle = handle
		s.mu.Unlock()
	} else {
		// 并发的再次换址已经超越了这次绑定
		s.mu.Unlock()
		handle.Cancel()
	}

	s.logger.Info("mailbox regenerated", zap.String("address", address))
	return address, nil
}

// RefreshNow 立即拉取一次当前地址的收件箱
func (s *Service) RefreshNow(ctx context.Context) error {
	s.mu.Lock()
	address := s.address
	epoch := s.addressEpoch
	s.mu.Unlock()

	if address == "" {
		return ErrNoAddress
	}
	return s.fetchAndApply(ctx, address, epoch)
}

// Stop 停止轮询（视图卸载时调用）
func (s *Service) Stop() {
	s.stopScheduleLockedOut()
}

func (s *Service) stopScheduleLockedOut() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	// Cancel 会等待在途动作结束，动作里要拿锁，所以必须在锁外等
	if handle != nil {
		handle.Cancel()
	}
}

func (s *Service) refresh(ctx context.Context, address string, epoch uint64) {
	if err := s.fetchAndApply(ctx, address, epoch); err != nil {
		s.logger.Warn("inbox refresh failed",
			zap.String("address", address),
			zap.Error(err))
	}
}

func (s *Service) fetchAndApply(ctx context.Context, address string, epoch uint64) error {
	messages, err := s.client.GetEmails(ctx, address)
	if err != nil {
		// 拉取失败保留旧列表，等下一个周期
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 结果返回前地址已被更换：这批消息属于旧地址，丢弃
	if s.addressEpoch != epoch || s.address != address {
		return nil
	}
	s.messages = messages
	s.notifyLocked()
	return nil
}

func (s *Service) snapshotLocked() Snapshot {
	return Snapshot{
		Address:  s.address,
		Messages: append([]gateway.EmailMessage(nil), s.messages...),
	}
}

func (s *Service) notifyLocked() {
	snap := s.snapshotLocked()
	for _, fn := range s.listeners {
		fn(snap)
	}
}
