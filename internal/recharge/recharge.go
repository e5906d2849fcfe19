// Package recharge 实现充值下单与支付对账流程
//
// 客户端收不到支付回调，关闭支付页是唯一的对账触发点：
// 每次关闭都当作"可能已支付"，无条件回源刷新余额
package recharge

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xn030523/Warp-Plus/internal/gateway"
	"github.com/xn030523/Warp-Plus/internal/session"
)

// PaymentType 固定走支付宝通道
const PaymentType = "alipay"

var (
	// ErrInvalidAmount 充值金额非法，不发起下单调用
	ErrInvalidAmount = errors.New("请输入有效的充值金额")
	// ErrPaymentOpen 当前已有支付页面未关闭
	ErrPaymentOpen = errors.New("请先关闭当前支付页面")
	// ErrNoPaymentOpen 当前没有打开的支付页面
	ErrNoPaymentOpen = errors.New("当前没有待关闭的支付页面")
)

// State 充值流程状态
type State int

const (
	// StateIdle 空闲
	StateIdle State = iota
	// StateOrderCreated 订单已创建（瞬时状态，随即进入支付展示）
	StateOrderCreated
	// StatePaymentPresented 支付页面已展示，等待用户关闭
	StatePaymentPresented
)

// String 返回状态的可读名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOrderCreated:
		return "order-created"
	case StatePaymentPresented:
		return "payment-presented"
	default:
		return "unknown"
	}
}

// Backend 充值流程依赖的后端命令
type Backend interface {
	CreateRecharge(ctx context.Context, token string, amount float64, paymentType string) (*gateway.RechargeOrder, error)
}

// SessionStore 充值流程对会话存储的依赖
type SessionStore interface {
	Snapshot() session.Snapshot
	Refresh(ctx context.Context) (session.Snapshot, error)
}

// Workflow 充值流程
//
// 订单对象从不复用，每次尝试都新建订单
type Workflow struct {
	mu      sync.Mutex
	state   State
	order   *gateway.RechargeOrder
	backend Backend
	store   SessionStore
	logger  *zap.Logger
}

// NewWorkflow 创建充值流程
func NewWorkflow(backend Backend, store SessionStore, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		backend: backend,
		store:   store,
		logger:  logger,
	}
}

// State 返回当前流程状态
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// CreateOrder 创建充值订单并进入支付展示状态
//
// 金额必须大于零；下单失败时回到空闲态，后端消息原样上抛
func (w *Workflow) CreateOrder(ctx context.Context, amount float64) (*gateway.RechargeOrder, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}

	snap := w.store.Snapshot()
	if !snap.Authenticated {
		return nil, session.ErrNotAuthenticated
	}

	w.mu.Lock()
	if w.state != StateIdle {
		w.mu.Unlock()
		return nil, ErrPaymentOpen
	}
	w.state = StateOrderCreated
	w.mu.Unlock()

	order, err := w.backend.CreateRecharge(ctx, snap.Session.Token, amount, PaymentType)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = StateIdle
		return nil, err
	}
	w.state = StatePaymentPresented
	w.order = order
	w.logger.Info("recharge order created",
		zap.String("out_trade_no", order.OutTradeNo),
		zap.Float64("amount", order.Amount))
	return order, nil
}

// ClosePayment 关闭支付页面并对账
//
// 无论支付是否真的完成，都恰好刷新一次余额再回到空闲态；
// 刷新失败不阻止状态复位，错误上抛由调用方提示
func (w *Workflow) ClosePayment(ctx context.Context) (session.Snapshot, error) {
	w.mu.Lock()
	if w.state != StatePaymentPresented {
		w.mu.Unlock()
		return session.Snapshot{}, ErrNoPaymentOpen
	}
	// 订单作废，不再复用
	w.state = StateIdle
	w.order = nil
	w.mu.Unlock()

	snap, err := w.store.Refresh(ctx)
	if err != nil {
		w.logger.Warn("post-payment balance refresh failed", zap.Error(err))
		return w.store.Snapshot(), err
	}
	return snap, nil
}

// ParseAmount 解析用户输入的充值金额
//
// 空串、非数字、零或负数都视为非法金额
func ParseAmount(input string) (float64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	amount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}
