package server

import "errors"

// 通用错误
var (
	ErrPlayerNotFound = errors.New("player not found")
)
