package server

import (
	"github.com/sasha-s/go-deadlock"

	"townsync/protocol"
)

// ChatCapacity 服务端保留的最近消息条数
const ChatCapacity = 50

// ChatBuffer 有界聊天记录：超出容量时淘汰最旧消息，id 不复用
type ChatBuffer struct {
	mu       deadlock.Mutex
	messages []protocol.ChatMessage
	capacity int
	posted   int64 // 历史累计条数，下一条 id = posted + 1
}

func NewChatBuffer(capacity int) *ChatBuffer {
	if capacity <= 0 {
		capacity = ChatCapacity
	}
	return &ChatBuffer{
		messages: make([]protocol.ChatMessage, 0, capacity),
		capacity: capacity,
	}
}

// Post 追加一条消息并分配序号；返回追加的消息以及是否淘汰了旧消息
func (b *ChatBuffer) Post(from protocol.PlayerID, text string) (protocol.ChatMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posted++
	msg := protocol.ChatMessage{ID: b.posted, From: from, Text: text}

	evicted := false
	if len(b.messages) >= b.capacity {
		// 原地左移，保持底层数组不增长
		copy(b.messages, b.messages[1:])
		b.messages = b.messages[:len(b.messages)-1]
		evicted = true
	}
	b.messages = append(b.messages, msg)
	return msg, evicted
}

// Recent 按 id 升序返回当前缓冲内容的副本
func (b *ChatBuffer) Recent() []protocol.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.ChatMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Since 返回 id 大于 after 的消息（推送通道增量下发）
func (b *ChatBuffer) Since(after int64) []protocol.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.ChatMessage
	for _, m := range b.messages {
		if m.ID > after {
			out = append(out, m)
		}
	}
	return out
}

// LastID 最近分配的序号，尚无消息时为 0
func (b *ChatBuffer) LastID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.posted
}
