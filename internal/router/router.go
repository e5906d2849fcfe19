// Package router 视图导航与登录态守卫
//
// 需要登录的视图在会话变为未登录时立刻被重定向回登录页，
// 反向亦然：登录成功后停留在登录页没有意义，自动进入首页
package router

import (
	"errors"
	"sync"

	"github.com/xn030523/Warp-Plus/internal/session"
)

// View 应用内的一个页面
type View string

const (
	ViewLogin     View = "login"
	ViewHome      View = "home"
	ViewMail      View = "mail"
	ViewTokens    View = "tokens"
	ViewRecharge  View = "recharge"
	ViewUsage     View = "usage"
	ViewMachineID View = "machine-id"
	ViewWarpLogin View = "warp-login"
)

// ErrUnknownView 目标视图未注册
var ErrUnknownView = errors.New("未知的视图")

// requiresAuth 各视图是否需要登录态
var requiresAuth = map[View]bool{
	ViewLogin:     false,
	ViewHome:      true,
	ViewMail:      true,
	ViewTokens:    true,
	ViewRecharge:  true,
	ViewUsage:     true,
	ViewMachineID: false,
	ViewWarpLogin: false,
}

// Listener 当前视图变化回调
type Listener func(View)

// Router 视图路由器
type Router struct {
	mu            sync.Mutex
	current       View
	authenticated bool
	listeners     map[int]Listener
	nextListener  int
}

// New 创建路由器并挂到会话存储上
//
// 初始视图由当前会话决定：已登录进首页，否则停在登录页
func New(store *session.Store) (*Router, func()) {
	r := &Router{
		current:   ViewLogin,
		listeners: make(map[int]Listener),
	}
	unsubscribe := store.Subscribe(func(snap session.Snapshot) {
		r.onSession(snap)
	})
	return r, unsubscribe
}

// Current 返回当前视图
func (r *Router) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate 切换到目标视图
//
// 未登录状态下请求需要登录的视图会落回登录页而不是报错，
// 与会话过期时的被动重定向行为保持一致
func (r *Router) Navigate(target View) (View, error) {
	r.mu.Lock()
	if _, known := requiresAuth[target]; !known {
		r.mu.Unlock()
		return r.Current(), ErrUnknownView
	}
	if requiresAuth[target] && !r.authenticated {
		target = ViewLogin
	}
	r.setLocked(target)
	current := r.current
	r.mu.Unlock()
	return current, nil
}

// Subscribe 订阅视图变化
func (r *Router) Subscribe(fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	fn(r.current)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Views 返回全部已注册视图及其守卫要求
func Views() map[View]bool {
	out := make(map[View]bool, len(requiresAuth))
	for v, need := range requiresAuth {
		out[v] = need
	}
	return out
}

func (r *Router) onSession(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasAuthenticated := r.authenticated
	r.authenticated = snap.Authenticated

	switch {
	case !snap.Authenticated && requiresAuth[r.current]:
		// 登出或会话失效：受保护视图立即失守
		r.setLocked(ViewLogin)
	case snap.Authenticated && !wasAuthenticated && r.current == ViewLogin:
		r.setLocked(ViewHome)
	}
}

func (r *Router) setLocked(v View) {
	if r.current == v {
		return
	}
	r.current = v
	for _, fn := range r.listeners {
		fn(v)
	}
}
