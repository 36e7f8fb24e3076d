package server

import (
	"time"

	"github.com/sasha-s/go-deadlock"

	"townsync/protocol"
)

// Registry 权威玩家注册表：id → 最近一次完整状态
// 所有读写由同一把锁串行化，List 返回副本
type Registry struct {
	mu      deadlock.RWMutex
	players map[protocol.PlayerID]*playerEntry
	nextID  protocol.PlayerID
	ttl     time.Duration

	now func() time.Time
}

// NewRegistry 创建注册表；ttl 为 0 时不做过期清理
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		players: make(map[protocol.PlayerID]*playerEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Register 分配新的 id（单调递增，不复用）并创建空记录
func (r *Registry) Register() protocol.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.players[id] = newPlayerEntry(id, r.now())
	return id
}

// Update 整体替换 id 对应的状态；未注册或已过期返回 ErrPlayerNotFound
func (r *Registry) Update(s protocol.PlayerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[s.ID]
	if !ok {
		return ErrPlayerNotFound
	}
	if s.Direction == "" {
		s.Direction = protocol.DefaultDirection
	}
	e.replace(s, r.now())
	return nil
}

// List 返回当前注册表的快照
func (r *Registry) List() map[protocol.PlayerID]protocol.PlayerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[protocol.PlayerID]protocol.PlayerState, len(r.players))
	for id, e := range r.players {
		out[id] = e.state
	}
	return out
}

// Remove 显式移除玩家（例如 WebSocket 断开）
func (r *Registry) Remove(id protocol.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// Len 当前玩家数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// TTL 当前过期时长
func (r *Registry) TTL() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ttl
}

// SetTTL 运行期调整过期时长（管理接口使用）
func (r *Registry) SetTTL(ttl time.Duration) {
	r.mu.Lock()
	r.ttl = ttl
	r.mu.Unlock()
}

// Sweep 移除超过 ttl 未活跃的玩家，返回被移除的 id
// keep 返回 true 的玩家（例如仍保持 WebSocket 连接）不会被移除，可为 nil
func (r *Registry) Sweep(keep func(protocol.PlayerID) bool) []protocol.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var evicted []protocol.PlayerID
	for id, e := range r.players {
		if keep != nil && keep(id) {
			continue
		}
		if e.expired(now, r.ttl) {
			delete(r.players, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
