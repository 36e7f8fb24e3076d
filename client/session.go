package client

import (
	"github.com/sasha-s/go-deadlock"

	"townsync/protocol"
)

// InboundChatCapacity 客户端缓存的最近聊天条数
const InboundChatCapacity = 200

// session 客户端会话：注册状态、待发送位置、收到的聊天与其他玩家快照
// 两个工作协程与展示层共享，所有字段由 mu 保护
type session struct {
	mu deadlock.Mutex

	playerID   protocol.PlayerID
	pending    *protocol.PlayerState // 合并槽：只保留最新一次本地状态
	inbound    []protocol.ChatMessage
	lastChatID int64
	remote     map[protocol.PlayerID]protocol.PlayerState
}

func newSession() *session {
	return &session{
		playerID: protocol.Unregistered,
		inbound:  make([]protocol.ChatMessage, 0, InboundChatCapacity),
		remote:   make(map[protocol.PlayerID]protocol.PlayerState),
	}
}

func (s *session) id() protocol.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

func (s *session) setID(id protocol.PlayerID) {
	s.mu.Lock()
	s.playerID = id
	s.mu.Unlock()
}

// markStale 服务端已不认识 id 时回到未注册状态；id 已被替换则不处理
func (s *session) markStale(id protocol.PlayerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playerID != id {
		return false
	}
	s.playerID = protocol.Unregistered
	return true
}

// offer 覆盖待发送槽（后写者胜）。未注册时拒绝；返回是否覆盖了未发送的旧值
func (s *session) offer(st protocol.PlayerState) (accepted, overwrote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playerID == protocol.Unregistered {
		return false, false
	}
	overwrote = s.pending != nil
	s.pending = &st
	return true, overwrote
}

// takePending 原子地取出并清空待发送槽
func (s *session) takePending() (protocol.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return protocol.PlayerState{}, false
	}
	st := *s.pending
	s.pending = nil
	return st, true
}

// restorePending 放回被拒绝的状态；期间已有更新的本地状态时不覆盖
func (s *session) restorePending(st protocol.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = &st
	}
}

// setRemote 整体替换其他玩家快照，过滤掉自己
func (s *session) setRemote(players map[protocol.PlayerID]protocol.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remote := make(map[protocol.PlayerID]protocol.PlayerState, len(players))
	for id, p := range players {
		if id == s.playerID || p.ID == s.playerID {
			continue
		}
		remote[id] = p
	}
	s.remote = remote
}

func (s *session) remotePlayers() map[protocol.PlayerID]protocol.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[protocol.PlayerID]protocol.PlayerState, len(s.remote))
	for id, p := range s.remote {
		if id == s.playerID {
			continue
		}
		out[id] = p
	}
	return out
}

// mergeChat 追加 id 大于 lastChatID 的消息（按 id 去重），超出容量丢弃最旧；返回追加条数
func (s *session) mergeChat(msgs []protocol.ChatMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range msgs {
		if m.ID <= s.lastChatID {
			continue
		}
		if len(s.inbound) >= InboundChatCapacity {
			copy(s.inbound, s.inbound[1:])
			s.inbound = s.inbound[:len(s.inbound)-1]
		}
		s.inbound = append(s.inbound, m)
		s.lastChatID = m.ID
		added++
	}
	return added
}

// recentChat 最近 limit 条，最新的在最后；limit <= 0 返回全部
func (s *session) recentChat(limit int) []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(s.inbound) {
		start = len(s.inbound) - limit
	}
	out := make([]protocol.ChatMessage, len(s.inbound)-start)
	copy(out, s.inbound[start:])
	return out
}

func (s *session) lastSeenChat() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChatID
}
