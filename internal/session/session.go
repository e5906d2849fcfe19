// Package session 维护唯一权威的登录会话
//
// 余额只接受来自后端响应的值，客户端从不自行做加减；
// 所有视图通过订阅快照感知状态变化
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xn030523/Warp-Plus/internal/gateway"
)

var (
	// ErrEmptyPassword 本地校验失败：密码为空，不发起后端调用
	ErrEmptyPassword = errors.New("请输入密码")
	// ErrNotAuthenticated 当前未登录
	ErrNotAuthenticated = errors.New("未登录")
)

// Session 客户端缓存的登录身份
//
// Password 用于刷新余额时重新登录，与原会话文件格式保持一致
type Session struct {
	Token      string    `json:"token"`
	Role       string    `json:"role"`
	Balance    float64   `json:"balance"`
	LoggedInAt time.Time `json:"logged_in_at"`
	Password   string    `json:"password"`
}

// IsAdmin 是否管理员角色
func (s *Session) IsAdmin() bool {
	return s.Role == "admin"
}

// Snapshot 会话状态的一致性快照，发给订阅者的是值拷贝
type Snapshot struct {
	Authenticated bool
	Session       Session
}

// Backend 会话存储依赖的后端命令
type Backend interface {
	Login(ctx context.Context, password string) (*gateway.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Listener 状态变化回调
//
// 回调在存储的内部锁下同步执行，回调内只能使用传入的快照，
// 不得再调用 Store 的任何方法
type Listener func(Snapshot)

// Store 会话存储
//
// 同一时刻只存在一个权威会话对象；epoch 在登出时递增，
// version 在纪元内的每次状态变更时递增，用于丢弃迟到的异步结果
type Store struct {
	mu       sync.Mutex
	backend  Backend
	filePath string
	logger   *zap.Logger

	sess    *Session
	epoch   uint64
	version uint64

	listeners    map[int]Listener
	nextListener int

	sf singleflight.Group
}

// NewStore 创建会话存储
//
// filePath 是会话文件位置，内容与旧版客户端的 user_session.json 兼容
func NewStore(backend Backend, filePath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:   backend,
		filePath:  filePath,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Subscribe 订阅状态变化
//
// 注册时立即用当前快照回调一次，返回的函数用于取消订阅
func (s *Store) Subscribe(fn Listener) func() {
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

// Snapshot 返回当前状态快照
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Restore 启动时恢复会话
//
// 任何失败（文件不存在、损坏、令牌已过期）都回到未登录状态，
// 这是预期路径而不是错误
func (s *Store) Restore(ctx context.Context) Snapshot {
	sess, err := loadSessionFile(s.filePath)
	if err != nil {
		s.logger.Debug("no restorable session", zap.Error(err))
		return s.Snapshot()
	}

	if tokenExpired(sess.Token) {
		s.logger.Info("stored session token expired, discarding")
		_ = os.Remove(s.filePath)
		return s.Snapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.version++
	s.notifyLocked()
	return s.snapshotLocked()
}

// Login 登录
//
// 成功后以刚保存并重新读取的会话为准建立状态；
// 失败时状态保持未登录，后端消息原样返回给调用方
func (s *Store) Login(ctx context.Context, password string) (Snapshot, error) {
	if password == "" {
		return s.Snapshot(), ErrEmptyPassword
	}

	result, err := s.backend.Login(ctx, password)
	if err != nil {
		return s.Snapshot(), err
	}
	if !result.Success {
		return s.Snapshot(), errors.New(loginFailureMessage(result.Message))
	}
	if result.Token == nil || result.Role == nil {
		return s.Snapshot(), errors.New("登录响应缺少会话字段")
	}

	sess := &Session{
		Token:      *result.Token,
		Role:       *result.Role,
		Balance:    balanceOrZero(result.Balance),
		LoggedInAt: time.Now().UTC(),
		Password:   password,
	}
	if err := saveSessionFile(s.filePath, sess); err != nil {
		return s.Snapshot(), fmt.Errorf("保存会话失败: %w", err)
	}

	// 登录命令的回显字段不直接当作会话，
	// 以持久化后重新读取的内容为准，避免两边不一致
	fresh, err := loadSessionFile(s.filePath)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("读取会话失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = fresh
	s.version++
	s.notifyLocked()
	s.logger.Info("logged in", zap.String("role", fresh.Role))
	return s.snapshotLocked(), nil
}

// Logout 登出
//
// 只有后端调用成功才清除本地状态；失败时会话保留、错误上抛
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.sess == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	token := s.sess.Token
	s.mu.Unlock()

	if err := s.backend.Logout(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	_ = os.Remove(s.filePath)
	s.sess = nil
	s.epoch++
	s.version++
	s.notifyLocked()
	s.logger.Info("logged out")
	return nil
}

// Refresh 重新获取权威会话（余额变动后的对账入口）
//
// 并发的刷新请求会被合并为一次后端调用；如果刷新期间状态已被
// 更新的变更（乐观余额、另一次刷新、登出）超越，迟到的结果直接丢弃
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.sess == nil {
		s.mu.Unlock()
		return Snapshot{}, ErrNotAuthenticated
	}
	issuedEpoch := s.epoch
	issuedVersion := s.version
	password := s.sess.Password
	loggedInAt := s.sess.LoggedInAt
	s.mu.Unlock()

	type refreshOutcome struct {
		snap Snapshot
	}
	v, err, _ := s.sf.Do("refresh", func() (interface{}, error) {
		result, err := s.backend.Login(ctx, password)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, errors.New("刷新失败，请重新登录")
		}
		if result.Token == nil || result.Role == nil {
			return nil, errors.New("刷新失败")
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		// 纪元已被登出超越：结果作废
		if s.epoch != issuedEpoch || s.sess == nil {
			return nil, ErrNotAuthenticated
		}
		// 发起之后已有更新的状态落地：丢弃这次较旧的解析结果
		if s.version != issuedVersion {
			return refreshOutcome{snap: s.snapshotLocked()}, nil
		}

		fresh := &Session{
			Token:      *result.Token,
			Role:       *result.Role,
			Balance:    balanceOrZero(result.Balance),
			LoggedInAt: loggedInAt, // 保持原登录时间
			Password:   password,
		}
		if err := saveSessionFile(s.filePath, fresh); err != nil {
			s.logger.Warn("persist refreshed session failed", zap.Error(err))
		}
		s.sess = fresh
		s.version++
		s.notifyLocked()
		return refreshOutcome{snap: s.snapshotLocked()}, nil
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return v.(refreshOutcome).snap, nil
}

// UpdateBalance 乐观更新余额
//
// 只用于领取成功后立即回显后端返回的 new_balance，
// 不改变会话的其它字段；数值必须来源于后端响应
func (s *Store) UpdateBalance(newBalance float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return Snapshot{}, ErrNotAuthenticated
	}
	s.sess.Balance = newBalance
	s.version++
	if err := saveSessionFile(s.filePath, s.sess); err != nil {
		s.logger.Warn("persist balance update failed", zap.Error(err))
	}
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

func (s *Store) snapshotLocked() Snapshot {
	if s.sess == nil {
		return Snapshot{}
	}
	return Snapshot{Authenticated: true, Session: *s.sess}
}

func (s *Store) notifyLocked() {
	snap := s.snapshotLocked()
	for _, fn := range s.listeners {
		fn(snap)
	}
}

func balanceOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func loginFailureMessage(message string) string {
	if message == "" {
		return "登录失败"
	}
	return message
}

// tokenExpired 尽力而为的本地过期判断
//
// 只做未验签的 exp 声明检查；非 JWT 格式的令牌一律放行，
// 真正的有效性仍由后端裁决
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

func loadSessionFile(path string) (*Session, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(content, &sess); err != nil {
		return nil, fmt.Errorf("解析会话失败: %w", err)
	}
	if sess.Token == "" {
		return nil, errors.New("会话文件缺少令牌")
	}
	return &sess, nil
}

func saveSessionFile(path string, sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
