package client

import (
	"context"
	"sync/atomic"
	"time"
)

// fetchLoop Fetcher：注册（如需要）→ 拉取玩家列表 → 每 ChatEvery 次拉取一次聊天
func (a *Agent) fetchLoop(stop <-chan struct{}) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-stop:
			return
		default:
		}
		a.fetchOnce(context.Background(), tick)

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// fetchOnce 一个 Fetcher 周期；任何失败都吞掉，下个周期自然重试
func (a *Agent) fetchOnce(ctx context.Context, tick int) {
	if !a.ensureRegistered(ctx) {
		return
	}
	a.fetchPlayers(ctx)
	if tick%a.cfg.ChatEvery == 0 {
		a.fetchChat(ctx)
	}
}

func (a *Agent) fetchPlayers(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	players, err := a.transport.ListPlayers(ctx)
	if err != nil {
		atomic.AddInt64(&a.stats.FetchFailures, 1)
		a.log.Debugf("fetch players: %v", err)
		return
	}
	a.session.setRemote(players)
}

func (a *Agent) fetchChat(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	msgs, err := a.transport.FetchChat(ctx)
	if err != nil {
		atomic.AddInt64(&a.stats.FetchFailures, 1)
		a.log.Debugf("fetch chat: %v", err)
		return
	}
	if n := a.session.mergeChat(msgs); n > 0 {
		atomic.AddInt64(&a.stats.ChatReceived, int64(n))
	}
}
