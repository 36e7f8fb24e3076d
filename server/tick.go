package server

import (
	"context"
	"time"
)

// StartTicker 启动推送通道的 Tick 循环（单协程广播）
func (f *Feed) StartTicker(ctx context.Context) {
	if f.tickerStarted {
		return
	}
	f.tickerStarted = true
	go func() {
		interval := f.interval()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			start := time.Now()
			f.Broadcast()
			f.metrics.AddFeedTick(time.Since(start).Nanoseconds())

			// 频率被管理接口修改后重置 ticker
			if cur := f.interval(); cur != interval {
				interval = cur
				ticker.Reset(interval)
			}
		}
	}()
}

// StartSweeper 周期性清理超时未活跃的玩家；保持 WebSocket 连接的玩家不清理
func (s *Server) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Server) sweep() {
	evicted := s.registry.Sweep(s.feed.Subscribed)
	if len(evicted) == 0 {
		return
	}
	s.metrics.AddPlayersEvicted(len(evicted))
	s.log.Infof("evicted %d stale players: %v", len(evicted), evicted)
}
