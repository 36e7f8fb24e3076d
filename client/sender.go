package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"townsync/protocol"
)

// sendLoop Sender：推送合并后的最新位置，然后清空聊天队列
func (a *Agent) sendLoop(stop <-chan struct{}) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}
		a.sendOnce(context.Background())

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// sendOnce 一个 Sender 周期
func (a *Agent) sendOnce(ctx context.Context) {
	// 未注册时保留待发送状态与聊天，等注册成功后再发
	if !a.ensureRegistered(ctx) {
		return
	}

	if st, ok := a.session.takePending(); ok {
		a.sendState(ctx, st, false)
	} else if a.heartbeatDue() {
		a.sendState(ctx, *a.lastSent, true)
	}

	a.drainChat(ctx)
}

// heartbeatDue 长时间没有位置变化时重发最后一次状态，避免被服务端过期清理
func (a *Agent) heartbeatDue() bool {
	return a.cfg.Heartbeat > 0 && a.lastSent != nil && time.Since(a.lastSentAt) >= a.cfg.Heartbeat
}

func (a *Agent) sendState(ctx context.Context, st protocol.PlayerState, heartbeat bool) {
	id := a.session.id()
	if id == protocol.Unregistered {
		a.session.restorePending(st)
		return
	}
	st.ID = id

	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	err := a.transport.SubmitState(reqCtx, st)
	cancel()

	switch {
	case err == nil:
		a.lastSent = &st
		a.lastSentAt = time.Now()
		atomic.AddInt64(&a.stats.StatesSent, 1)
		if heartbeat {
			atomic.AddInt64(&a.stats.Heartbeats, 1)
		}
	case errors.Is(err, ErrNotFound):
		// 服务端已丢失本会话：立即在本协程重新注册
		a.log.Warnf("player id=%d not found (404), re-registering", id)
		a.lastSent = nil
		if a.session.markStale(id) {
			a.session.restorePending(st)
		}
		a.ensureRegistered(ctx)
	default:
		// 尽力而为：本次丢弃，下一次本地更新会覆盖
		atomic.AddInt64(&a.stats.SendFailures, 1)
		a.log.Debugf("submit state: %v", err)
	}
}

// drainChat 每个周期发送队列中的全部聊天；单条失败直接丢弃，不重试
func (a *Agent) drainChat(ctx context.Context) {
	for {
		id := a.session.id()
		if id == protocol.Unregistered {
			return
		}
		var text string
		select {
		case text = <-a.outbound:
		default:
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
		err := a.transport.PostChat(reqCtx, id, text)
		cancel()
		if err != nil {
			atomic.AddInt64(&a.stats.ChatDropped, 1)
			a.log.Debugf("post chat: %v", err)
			continue
		}
		atomic.AddInt64(&a.stats.ChatSent, 1)
	}
}
