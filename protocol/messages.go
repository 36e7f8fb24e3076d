package protocol

import (
	"errors"
	"fmt"
)

// HTTP 请求/响应载荷。必填字段使用指针，以区分“缺失”和“零值”。

// UpdateRequest POST /players
// 示例：{"id":1,"x":64,"y":128,"map":"town","direction":"left","is_moving":true}
type UpdateRequest struct {
	ID        *PlayerID `json:"id" binding:"required"`
	X         *float64  `json:"x" binding:"required"`
	Y         *float64  `json:"y" binding:"required"`
	Map       *string   `json:"map" binding:"required"`
	Direction string    `json:"direction,omitempty"`
	IsMoving  *bool     `json:"is_moving,omitempty"`
}

// NewUpdateRequest 由完整状态构造请求体
func NewUpdateRequest(s PlayerState) UpdateRequest {
	id, x, y, m, moving := s.ID, s.X, s.Y, s.Map, s.IsMoving
	return UpdateRequest{
		ID:        &id,
		X:         &x,
		Y:         &y,
		Map:       &m,
		Direction: string(s.Direction),
		IsMoving:  &moving,
	}
}

// ErrBadDirection 朝向无法识别
var ErrBadDirection = errors.New("unknown direction")

// Validate 检查 binding 之外的字段约束；朝向与 ParseDirection 接受同样的写法
func (r UpdateRequest) Validate() error {
	if _, ok := ParseDirection(r.Direction); !ok {
		return fmt.Errorf("%w: %q", ErrBadDirection, r.Direction)
	}
	return nil
}

// State 转换为完整状态，缺省字段按默认值填充。调用前需已通过 binding 与 Validate 校验。
func (r UpdateRequest) State() PlayerState {
	dir, _ := ParseDirection(r.Direction)
	s := PlayerState{
		ID:        *r.ID,
		X:         *r.X,
		Y:         *r.Y,
		Map:       *r.Map,
		Direction: dir,
	}
	if r.IsMoving != nil {
		s.IsMoving = *r.IsMoving
	}
	return s
}

// ChatPostRequest POST /chat
type ChatPostRequest struct {
	ID   *PlayerID `json:"id" binding:"required"`
	Text *string   `json:"text" binding:"required"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type RegisterResponse struct {
	Message string   `json:"message"`
	ID      PlayerID `json:"id"`
}

type PlayersResponse struct {
	Players map[PlayerID]PlayerState `json:"players"`
}

type ChatResponse struct {
	Messages []ChatMessage `json:"messages"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// 错误码
const (
	ErrCodeNotFound       = "not_found"
	ErrCodeInvalidJSON    = "invalid_json"
	ErrCodePlayerNotFound = "player_not_found"
)
