package protocol

import "strings"

// PlayerID 服务端分配的玩家唯一标识
type PlayerID int64

// Unregistered 客户端尚未注册时的哨兵值
const Unregistered PlayerID = -1

// Direction 玩家朝向
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// DefaultDirection 缺省朝向
const DefaultDirection = DirDown

// ParseDirection 解析朝向字符串，空串返回默认朝向
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultDirection, true
	case DirUp:
		return DirUp, true
	case DirDown:
		return DirDown, true
	case DirLeft:
		return DirLeft, true
	case DirRight:
		return DirRight, true
	default:
		return DefaultDirection, false
	}
}

// PlayerState 一个玩家的权威状态，每次更新整体替换
type PlayerState struct {
	ID        PlayerID  `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Map       string    `json:"map"`
	Direction Direction `json:"direction" jsonschema:"enum=up,enum=down,enum=left,enum=right"`
	IsMoving  bool      `json:"is_moving"`
}

// ChatMessage 聊天消息，创建后不可变
type ChatMessage struct {
	ID   int64    `json:"id" jsonschema:"description=Server assigned sequence number, never reused"`
	From PlayerID `json:"from"`
	Text string   `json:"text"`
}
