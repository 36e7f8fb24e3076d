package server

import (
	"time"

	"townsync/protocol"
)

// playerEntry 注册表中的一条记录：最近一次完整状态 + 最近活跃时间
type playerEntry struct {
	state   protocol.PlayerState
	touched time.Time // 注册或更新时刷新，用于过期清理
}

// newPlayerEntry 注册时创建：位置尚无意义，朝向取默认值
func newPlayerEntry(id protocol.PlayerID, now time.Time) *playerEntry {
	return &playerEntry{
		state:   protocol.PlayerState{ID: id, Direction: protocol.DefaultDirection},
		touched: now,
	}
}

// replace 整体替换状态（不做字段合并）
func (e *playerEntry) replace(s protocol.PlayerState, now time.Time) {
	e.state = s
	e.touched = now
}

func (e *playerEntry) expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.touched) > ttl
}
