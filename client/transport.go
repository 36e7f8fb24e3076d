package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"townsync/protocol"
)

// Transport 注册中心的 HTTP 调用封装。并发安全，两个工作协程共用同一连接池
// 每个方法返回 nil 或包装了 ErrTimeout/ErrNotFound/ErrMalformed/ErrUnavailable/ErrUnexpectedStatus 的错误
type Transport struct {
	base string
	http *http.Client
}

// NewTransport base 形如 http://localhost:8989
func NewTransport(base string) *Transport {
	return &Transport{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Register GET /register
func (t *Transport) Register(ctx context.Context) (protocol.PlayerID, error) {
	var resp protocol.RegisterResponse
	if err := t.do(ctx, http.MethodGet, "/register", nil, &resp); err != nil {
		return protocol.Unregistered, err
	}
	if resp.ID <= 0 {
		return protocol.Unregistered, fmt.Errorf("register returned id %d: %w", resp.ID, ErrMalformed)
	}
	return resp.ID, nil
}

// ListPlayers GET /players
func (t *Transport) ListPlayers(ctx context.Context) (map[protocol.PlayerID]protocol.PlayerState, error) {
	var resp protocol.PlayersResponse
	if err := t.do(ctx, http.MethodGet, "/players", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Players, nil
}

// SubmitState POST /players；id 未知时返回 ErrNotFound
func (t *Transport) SubmitState(ctx context.Context, s protocol.PlayerState) error {
	return t.do(ctx, http.MethodPost, "/players", protocol.NewUpdateRequest(s), &protocol.SuccessResponse{})
}

// FetchChat GET /chat
func (t *Transport) FetchChat(ctx context.Context) ([]protocol.ChatMessage, error) {
	var resp protocol.ChatResponse
	if err := t.do(ctx, http.MethodGet, "/chat", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PostChat POST /chat
func (t *Transport) PostChat(ctx context.Context, from protocol.PlayerID, text string) error {
	req := protocol.ChatPostRequest{ID: &from, Text: &text}
	return t.do(ctx, http.MethodPost, "/chat", req, &protocol.SuccessResponse{})
}

func (t *Transport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return classify(method, path, err)
	}
	defer func() {
		// 读完响应体才能复用 keep-alive 连接
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%s %s rejected: %w", method, path, ErrMalformed)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s %s status %d: %w", method, path, resp.StatusCode, ErrUnexpectedStatus)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrTimeout)
		}
		return fmt.Errorf("decode %s %s: %v: %w", method, path, err, ErrMalformed)
	}
	return nil
}

// classify 将网络层错误归为超时或不可达
func classify(method, path string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrTimeout)
	}
	return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
