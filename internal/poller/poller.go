// Package poller 提供可取消的周期刷新原语
//
// 收件箱轮询和额度轮询都基于它；同一个调度在单一时间线上执行，
// 动作耗时超过间隔时顺延下一次，绝不会并发堆积
package poller

import (
	"context"
	"time"
)

// Action 周期执行的动作
//
// ctx 在调度被取消时结束，动作内部的网关调用应透传它
type Action func(ctx context.Context)

// Handle 一次调度的取消句柄
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Schedule 启动一个周期调度
//
// 动作先立即执行一次，之后每隔 interval 执行一次。
// 所有执行都发生在同一个协程里，慢动作不会导致重叠执行
func Schedule(ctx context.Context, interval time.Duration, action Action) *Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		action(runCtx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// 取消和 tick 同时就绪时优先退出
				if runCtx.Err() != nil {
					return
				}
				action(runCtx)
			}
		}
	}()

	return h
}

// Cancel 取消调度并等待执行协程退出
//
// 返回后保证动作不会再被执行；重复调用是安全的
func (h *Handle) Cancel() {
	h.cancel()
	<-h.done
}
