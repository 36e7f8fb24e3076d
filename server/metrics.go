package server

import (
	"sync/atomic"
)

// Metrics 记录服务运行期的关键指标（用于监控与调试）
type Metrics struct {
	Registrations   int64 // 成功注册次数
	UpdatesAccepted int64 // 被接受的状态提交
	UpdatesNotFound int64 // 因 id 未知返回 404 的状态提交
	BadRequests     int64 // 载荷无法解析的请求
	ChatPosted      int64 // 收到的聊天消息
	ChatEvicted     int64 // 因容量淘汰的聊天消息
	PlayersEvicted  int64 // 因超时被清理的玩家
	FeedClients     int64 // 当前 WebSocket 订阅数
	FeedDropped     int64 // 因发送队列满被丢弃的推送帧
	FeedTicks       int64 // 推送 Tick 次数
	TotalFeedTickNs int64 // 推送 Tick 累计耗时（纳秒）
}

func (m *Metrics) IncRegistrations() { atomic.AddInt64(&m.Registrations, 1) }
func (m *Metrics) IncUpdatesAccepted() { atomic.AddInt64(&m.UpdatesAccepted, 1) }
func (m *Metrics) IncUpdatesNotFound() { atomic.AddInt64(&m.UpdatesNotFound, 1) }
func (m *Metrics) IncBadRequests() { atomic.AddInt64(&m.BadRequests, 1) }
func (m *Metrics) IncChatPosted() { atomic.AddInt64(&m.ChatPosted, 1) }
func (m *Metrics) IncChatEvicted() { atomic.AddInt64(&m.ChatEvicted, 1) }
func (m *Metrics) AddPlayersEvicted(n int) { atomic.AddInt64(&m.PlayersEvicted, int64(n)) }
func (m *Metrics) AddFeedClients(d int64) { atomic.AddInt64(&m.FeedClients, d) }
func (m *Metrics) IncFeedDropped() { atomic.AddInt64(&m.FeedDropped, 1) }
func (m *Metrics) AddFeedTick(ns int64) {
	atomic.AddInt64(&m.FeedTicks, 1)
	atomic.AddInt64(&m.TotalFeedTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	ticks := atomic.LoadInt64(&m.FeedTicks)
	total := atomic.LoadInt64(&m.TotalFeedTickNs)
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"registrations":    atomic.LoadInt64(&m.Registrations),
		"updates_accepted": atomic.LoadInt64(&m.UpdatesAccepted),
		"updates_notfound": atomic.LoadInt64(&m.UpdatesNotFound),
		"bad_requests":     atomic.LoadInt64(&m.BadRequests),
		"chat_posted":      atomic.LoadInt64(&m.ChatPosted),
		"chat_evicted":     atomic.LoadInt64(&m.ChatEvicted),
		"players_evicted":  atomic.LoadInt64(&m.PlayersEvicted),
		"feed_clients":     atomic.LoadInt64(&m.FeedClients),
		"feed_dropped":     atomic.LoadInt64(&m.FeedDropped),
		"feed_ticks":       ticks,
		"avg_feed_tick_ms": avgMs,
	}
}
