package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"townsync/protocol"
)

// routes 注册全部路由。处理器本身无状态，只委托给注册表与聊天记录
func (s *Server) routes() *gin.Engine {
	r := gin.New()
	// 未匹配路由一律 404，不做尾斜杠重定向
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(requestID(), accessLog(s.log), recovery(s.log))

	r.GET("/", s.handleHealth)
	r.GET("/register", s.handleRegister)
	r.GET("/players", s.handleListPlayers)
	r.POST("/players", s.handleUpdatePlayer)
	r.GET("/chat", s.handleListChat)
	r.POST("/chat", s.handlePostChat)

	r.GET("/ws", s.handleWS)
	r.GET("/schema", s.handleSchema)
	r.GET("/metrics", s.handleMetrics)
	admin := r.Group("/admin")
	{
		admin.GET("/config", s.handleGetConfig)
		admin.POST("/config", s.handleSetConfig)
	}

	r.NoRoute(s.handleNotFound)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

func (s *Server) handleRegister(c *gin.Context) {
	id := s.registry.Register()
	s.metrics.IncRegistrations()
	s.log.Infof("player registered: id=%d", id)
	c.JSON(http.StatusOK, protocol.RegisterResponse{Message: "registration successful", ID: id})
}

func (s *Server) handleListPlayers(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.PlayersResponse{Players: s.registry.List()})
}

func (s *Server) handleUpdatePlayer(c *gin.Context) {
	var req protocol.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.badRequest(c, err)
		return
	}
	state := req.State()
	if err := s.registry.Update(state); err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			s.metrics.IncUpdatesNotFound()
			s.log.Debugf("update for unknown player id=%d", state.ID)
			c.JSON(http.StatusNotFound, protocol.ErrorResponse{Error: protocol.ErrCodePlayerNotFound})
			return
		}
		s.log.Errorf("update player id=%d: %v", state.ID, err)
		c.JSON(http.StatusInternalServerError, protocol.ErrorResponse{Error: "internal_error"})
		return
	}
	s.metrics.IncUpdatesAccepted()
	c.JSON(http.StatusOK, protocol.SuccessResponse{Success: true})
}

func (s *Server) handleListChat(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.ChatResponse{Messages: s.chat.Recent()})
}

func (s *Server) handlePostChat(c *gin.Context) {
	var req protocol.ChatPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.postChat(*req.ID, *req.Text)
	c.JSON(http.StatusOK, protocol.SuccessResponse{Success: true})
}

// postChat HTTP 与 WebSocket 共用的发言入口
func (s *Server) postChat(from protocol.PlayerID, text string) protocol.ChatMessage {
	msg, evicted := s.chat.Post(from, text)
	s.metrics.IncChatPosted()
	if evicted {
		s.metrics.IncChatEvicted()
	}
	s.log.Debugf("chat posted: id=%d from=%d", msg.ID, from)
	return msg
}

func (s *Server) handleSchema(c *gin.Context) {
	c.JSON(http.StatusOK, s.schemas)
}

// handleNotFound 先读完请求体再返回 404，避免破坏 keep-alive 连接上的后续请求
func (s *Server) handleNotFound(c *gin.Context) {
	if c.Request.Body != nil {
		_, _ = io.Copy(io.Discard, c.Request.Body)
	}
	c.JSON(http.StatusNotFound, protocol.ErrorResponse{Error: protocol.ErrCodeNotFound})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.metrics.IncBadRequests()
	s.log.Debugf("bad request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusBadRequest, protocol.ErrorResponse{Error: protocol.ErrCodeInvalidJSON})
}
