package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"townsync/protocol"
)

// adminConfig 可热更新的运行参数，POST 时只更新出现的字段
type adminConfig struct {
	PlayerTTLMs *int64 `json:"player_ttl_ms,omitempty" binding:"omitempty,min=0"`
	FeedHz      *int   `json:"feed_hz,omitempty" binding:"omitempty,min=1,max=120"`
}

// handleGetConfig GET /admin/config 返回当前配置
func (s *Server) handleGetConfig(c *gin.Context) {
	ttl := s.registry.TTL().Milliseconds()
	hz := s.feed.Rate()
	c.JSON(http.StatusOK, adminConfig{PlayerTTLMs: &ttl, FeedHz: &hz})
}

// handleSetConfig POST /admin/config 以 JSON 载荷更新部分字段
func (s *Server) handleSetConfig(c *gin.Context) {
	var body adminConfig
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	if body.PlayerTTLMs != nil {
		s.registry.SetTTL(time.Duration(*body.PlayerTTLMs) * time.Millisecond)
	}
	if body.FeedHz != nil {
		s.feed.SetRate(*body.FeedHz)
	}
	c.JSON(http.StatusOK, protocol.SuccessResponse{Success: true})
	s.log.Infof("config updated: player_ttl=%s feed_hz=%d", s.registry.TTL(), s.feed.Rate())
}

// handleMetrics 输出运行指标
// GET /metrics
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"players": s.registry.Len(),
		"chat_id": s.chat.LastID(),
		"metrics": s.metrics.Snapshot(),
	})
}
