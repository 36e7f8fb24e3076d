package server

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"townsync/protocol"
)

// Feed WebSocket 推送通道：每个 Tick 向所有订阅者广播玩家列表与新增聊天
type Feed struct {
	mu   deadlock.Mutex
	subs map[protocol.PlayerID]*subscriber

	registry *Registry
	chat     *ChatBuffer
	metrics  *Metrics
	log      *zap.SugaredLogger

	intervalNs    int64 // 原子读写，管理接口可热更新
	tickerStarted bool
}

// subscriber 一个订阅连接及其已下发的最后一条聊天 id
type subscriber struct {
	conn     *ClientConn
	lastChat int64
}

func NewFeed(registry *Registry, chat *ChatBuffer, metrics *Metrics, log *zap.SugaredLogger, hz int) *Feed {
	f := &Feed{
		subs:     make(map[protocol.PlayerID]*subscriber),
		registry: registry,
		chat:     chat,
		metrics:  metrics,
		log:      log,
	}
	f.SetRate(hz)
	return f
}

// SetRate 设置广播频率（每秒次数），下一次 Tick 生效
func (f *Feed) SetRate(hz int) {
	if hz <= 0 {
		hz = 1
	}
	atomic.StoreInt64(&f.intervalNs, int64(time.Second)/int64(hz))
}

// Rate 当前广播频率
func (f *Feed) Rate() int {
	return int(time.Second / f.interval())
}

func (f *Feed) interval() time.Duration {
	return time.Duration(atomic.LoadInt64(&f.intervalNs))
}

// Subscribe 加入广播；新订阅者在下一个 Tick 收到当前全部聊天记录
func (f *Feed) Subscribe(id protocol.PlayerID, conn *ClientConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.subs[id]; ok {
		old.conn.Close()
	} else {
		f.metrics.AddFeedClients(1)
	}
	f.subs[id] = &subscriber{conn: conn}
}

// Unsubscribe 移出广播并关闭连接
func (f *Feed) Unsubscribe(id protocol.PlayerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		sub.conn.Close()
		delete(f.subs, id)
		f.metrics.AddFeedClients(-1)
	}
}

// Subscribed 是否存在该玩家的订阅
func (f *Feed) Subscribed(id protocol.PlayerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[id]
	return ok
}

// Broadcast 将当前状态广播给所有订阅者（文本 JSON）
// 先在锁外取好快照，避免与注册表/聊天记录的锁嵌套
func (f *Feed) Broadcast() {
	players := f.registry.List()
	recent := f.chat.Recent()

	b, err := json.Marshal(protocol.PlayersUpdateFrame{Type: protocol.TypePlayersUpdate, Players: players})
	if err != nil {
		f.log.Errorf("marshal players frame: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		if !sub.conn.Enqueue(b) {
			f.metrics.IncFeedDropped()
		}
		fresh := chatAfter(recent, sub.lastChat)
		if len(fresh) == 0 {
			continue
		}
		cb, err := json.Marshal(protocol.ChatUpdateFrame{Type: protocol.TypeChatUpdate, Messages: fresh})
		if err != nil {
			f.log.Errorf("marshal chat frame for id=%d: %v", id, err)
			continue
		}
		// 队列满时不推进 lastChat，下个 Tick 重发
		if sub.conn.Enqueue(cb) {
			sub.lastChat = fresh[len(fresh)-1].ID
		} else {
			f.metrics.IncFeedDropped()
		}
	}
}

// chatAfter 从按 id 升序的消息中取出 id 大于 after 的部分
func chatAfter(msgs []protocol.ChatMessage, after int64) []protocol.ChatMessage {
	for i, m := range msgs {
		if m.ID > after {
			return msgs[i:]
		}
	}
	return nil
}
