package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"townsync/protocol"
)

const requestIDHeader = "X-Request-ID"

// requestID 为每个请求分配 id，客户端已携带时沿用
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog 请求日志。客户端 60Hz 轮询，正常请求只记 Debug
func accessLog(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"elapsed", time.Since(start),
			"request_id", c.GetString(requestIDHeader),
		}
		if status >= http.StatusInternalServerError {
			log.Warnw("request failed", fields...)
			return
		}
		log.Debugw("request", fields...)
	}
}

// recovery 处理器 panic 时记录日志并返回 500
func recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		log.Errorw("handler panic", "path", c.Request.URL.Path, "error", err, "request_id", c.GetString(requestIDHeader))
		c.AbortWithStatusJSON(http.StatusInternalServerError, protocol.ErrorResponse{Error: "internal_error"})
	})
}
