package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"townsync/config"
	"townsync/protocol"
)

// Server 组合注册表、聊天记录与推送通道，对外暴露 HTTP 接口
// 由 main 创建一次并显式传递，不使用全局单例
type Server struct {
	cfg      config.Server
	log      *zap.SugaredLogger
	registry *Registry
	chat     *ChatBuffer
	feed     *Feed
	metrics  *Metrics
	schemas  map[string]*jsonschema.Schema

	engine *gin.Engine
}

// New 创建服务；后台循环需调用 Start 启动
func New(cfg config.Server, log *zap.SugaredLogger) *Server {
	metrics := &Metrics{}
	registry := NewRegistry(cfg.PlayerTTL)
	chat := NewChatBuffer(ChatCapacity)
	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		chat:     chat,
		feed:     NewFeed(registry, chat, metrics, log, cfg.FeedHz),
		metrics:  metrics,
		schemas:  protocol.Schemas(),
	}
	s.engine = s.routes()
	return s
}

// Handler 返回可挂到 http.Server 的处理器
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Registry() *Registry { return s.registry }
func (s *Server) Chat() *ChatBuffer   { return s.chat }
func (s *Server) Metrics() *Metrics   { return s.metrics }

// Start 启动过期清理与推送 Tick，ctx 取消后退出
func (s *Server) Start(ctx context.Context) {
	s.StartSweeper(ctx)
	s.feed.StartTicker(ctx)
}
