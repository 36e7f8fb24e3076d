package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"

	"townsync/protocol"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 64
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws *websocket.Conn

	mu     deadlock.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃），返回是否入队
func (c *ClientConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃本帧（防止阻塞广播）
		return false
	}
}

// EnqueueJSON 编码后入队
func (c *ClientConn) EnqueueJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.Enqueue(b)
}

// Close 关闭发送队列，写协程随之退出并关闭底层连接；可重复调用
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定时发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端帧并应用到注册表/聊天记录；退出时注销订阅并移除玩家
func (c *ClientConn) readPump(s *Server, id protocol.PlayerID) {
	defer func() {
		s.feed.Unsubscribe(id)
		if s.registry.Remove(id) {
			s.log.Infof("player disconnected: id=%d", id)
		}
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warnf("ws read id=%d: %v", id, err)
			}
			return
		}
		if err := s.applyInput(id, payload); err != nil {
			s.log.Debugf("ws input id=%d: %v", id, err)
			c.EnqueueJSON(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 无鉴权需求，允许所有来源
		return true
	},
}

// handleWS WebSocket 接入：连接即注册一个新玩家，断开即移除
func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("upgrade error: %v", err)
		return
	}

	id := s.registry.Register()
	s.metrics.IncRegistrations()
	s.log.Infof("player registered via ws: id=%d", id)

	client := NewClientConn(ws)
	client.EnqueueJSON(protocol.RegisteredFrame{Type: protocol.TypeRegistered, ID: id})
	s.feed.Subscribe(id, client)

	go client.writePump()
	go client.readPump(s, id)
}
