package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"townsync/config"
	"townsync/protocol"
)

// OutboundChatCapacity 待发送聊天队列容量
const OutboundChatCapacity = 50

// Agent 客户端同步代理：Fetcher 拉取远端状态，Sender 推送本地状态，
// 两者独立于渲染循环运行。展示层只调用 RemotePlayers / RecentChat 等只读方法。
type Agent struct {
	cfg       config.Client
	log       *zap.SugaredLogger
	transport *Transport
	session   *session

	// 聊天发送队列：满时立即拒绝，不阻塞调用方
	outbound chan string

	// 同一时刻只允许一个协程发起注册，避免重复分配 id
	regMu       deadlock.Mutex
	regFailures int

	// 仅由 Sender 协程访问
	lastSent   *protocol.PlayerState
	lastSentAt time.Time

	lifeMu deadlock.Mutex
	stop   chan struct{} // nil 表示未运行
	wg     sync.WaitGroup

	stats Stats
}

// Stats 代理运行计数
type Stats struct {
	Registrations   int64
	StatesSent      int64
	StatesCoalesced int64 // 发送前被新状态覆盖的次数
	Heartbeats      int64
	SendFailures    int64
	FetchFailures   int64
	ChatSent        int64
	ChatDropped     int64 // 发送失败被丢弃
	ChatRejected    int64 // 队列满被拒绝
	ChatReceived    int64
}

// NewAgent 创建代理，Enter 之前不会发起任何请求；配置非法时返回错误
func NewAgent(cfg config.Client, log *zap.SugaredLogger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}
	return &Agent{
		cfg:       cfg,
		log:       log,
		transport: NewTransport(cfg.ServerURL),
		session:   newSession(),
		outbound:  make(chan string, OutboundChatCapacity),
	}, nil
}

// Enter 启动 Fetcher 与 Sender；已在运行时为空操作
func (a *Agent) Enter() {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.stop != nil {
		return
	}
	stop := make(chan struct{})
	a.stop = stop
	a.wg.Add(2)
	go a.fetchLoop(stop)
	go a.sendLoop(stop)
	a.log.Infof("sync agent started (server %s)", a.cfg.ServerURL)
}

// Exit 通知两个工作协程停止，不等待其退出
func (a *Agent) Exit() {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.stop == nil {
		return
	}
	close(a.stop)
	a.stop = nil
	a.log.Info("sync agent stopping")
}

// Wait 阻塞直到已启动的工作协程全部退出，应在 Exit 之后调用
func (a *Agent) Wait() {
	a.wg.Wait()
}

// PlayerID 当前 id，未注册时为 protocol.Unregistered
func (a *Agent) PlayerID() protocol.PlayerID {
	return a.session.id()
}

// SubmitLocalState 覆盖待发送的本地状态；未注册或朝向无法识别时返回 false
func (a *Agent) SubmitLocalState(x, y float64, mapName string, dir protocol.Direction, moving bool) bool {
	dir, ok := protocol.ParseDirection(string(dir))
	if !ok {
		return false
	}
	accepted, overwrote := a.session.offer(protocol.PlayerState{
		X:         x,
		Y:         y,
		Map:       mapName,
		Direction: dir,
		IsMoving:  moving,
	})
	if overwrote {
		atomic.AddInt64(&a.stats.StatesCoalesced, 1)
	}
	return accepted
}

// EnqueueChat 放入发送队列；空白文本或队列已满时返回 false
func (a *Agent) EnqueueChat(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	select {
	case a.outbound <- t:
		return true
	default:
		atomic.AddInt64(&a.stats.ChatRejected, 1)
		return false
	}
}

// QueuedChat 尚未发送的聊天条数
func (a *Agent) QueuedChat() int {
	return len(a.outbound)
}

// RemotePlayers 最近一次拉取到的其他玩家（不含自己）
func (a *Agent) RemotePlayers() map[protocol.PlayerID]protocol.PlayerState {
	return a.session.remotePlayers()
}

// RecentChat 最近 limit 条聊天，最新的在最后；limit <= 0 返回全部缓存
func (a *Agent) RecentChat(limit int) []protocol.ChatMessage {
	return a.session.recentChat(limit)
}

// Stats 返回计数快照
func (a *Agent) Stats() Stats {
	return Stats{
		Registrations:   atomic.LoadInt64(&a.stats.Registrations),
		StatesSent:      atomic.LoadInt64(&a.stats.StatesSent),
		StatesCoalesced: atomic.LoadInt64(&a.stats.StatesCoalesced),
		Heartbeats:      atomic.LoadInt64(&a.stats.Heartbeats),
		SendFailures:    atomic.LoadInt64(&a.stats.SendFailures),
		FetchFailures:   atomic.LoadInt64(&a.stats.FetchFailures),
		ChatSent:        atomic.LoadInt64(&a.stats.ChatSent),
		ChatDropped:     atomic.LoadInt64(&a.stats.ChatDropped),
		ChatRejected:    atomic.LoadInt64(&a.stats.ChatRejected),
		ChatReceived:    atomic.LoadInt64(&a.stats.ChatReceived),
	}
}

// ensureRegistered 未注册时发起注册，返回调用结束时是否处于已注册状态
func (a *Agent) ensureRegistered(ctx context.Context) bool {
	if a.session.id() != protocol.Unregistered {
		return true
	}
	a.regMu.Lock()
	defer a.regMu.Unlock()
	// 另一个协程可能刚完成注册
	if a.session.id() != protocol.Unregistered {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RegisterTimeout)
	defer cancel()
	id, err := a.transport.Register(ctx)
	if err != nil {
		a.regFailures++
		// 服务端不可达时每个周期都会重试，只有第一次失败记 Warn
		if a.regFailures == 1 {
			a.log.Warnf("registration failed: %v", err)
		} else {
			a.log.Debugf("registration failed (attempt %d): %v", a.regFailures, err)
		}
		return false
	}
	a.regFailures = 0
	a.session.setID(id)
	atomic.AddInt64(&a.stats.Registrations, 1)
	a.log.Infof("registered with id=%d", id)
	return true
}
