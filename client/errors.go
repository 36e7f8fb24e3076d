package client

import "errors"

// 传输层调用的结果分类，调用方用 errors.Is 区分处理
var (
	ErrTimeout          = errors.New("request timed out")
	ErrNotFound         = errors.New("not found")
	ErrMalformed        = errors.New("malformed payload")
	ErrUnavailable      = errors.New("server unavailable")
	ErrUnexpectedStatus = errors.New("unexpected status")
)
