package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// 默认值
const (
	DefaultAddr          = ":8989"
	DefaultServerURL     = "http://localhost:8989"
	DefaultPlayerTTL     = 30 * time.Second
	DefaultSweepInterval = 5 * time.Second
	DefaultFeedHz        = 20

	// 60Hz 位置同步
	DefaultPollInterval = 16 * time.Millisecond
	DefaultSendInterval = 16 * time.Millisecond
	// 聊天每 10 次轮询拉取一次（约 6 次/秒）
	DefaultChatEvery       = 10
	DefaultRequestTimeout  = time.Second
	DefaultRegisterTimeout = 5 * time.Second
	DefaultHeartbeat       = 5 * time.Second
)

// Log 日志相关配置（服务端与客户端共用）
type Log struct {
	File  string
	Level string
}

// Server 注册中心服务配置
type Server struct {
	Addr          string
	PlayerTTL     time.Duration // 0 表示不过期
	SweepInterval time.Duration
	FeedHz        int
	Log           Log
}

// Client 同步代理配置
type Client struct {
	ServerURL       string
	PollInterval    time.Duration
	SendInterval    time.Duration
	ChatEvery       int
	RequestTimeout  time.Duration
	RegisterTimeout time.Duration
	Heartbeat       time.Duration // 0 表示关闭心跳
	Log             Log
}

// DefaultServer 返回默认服务端配置
func DefaultServer() Server {
	return Server{
		Addr:          DefaultAddr,
		PlayerTTL:     DefaultPlayerTTL,
		SweepInterval: DefaultSweepInterval,
		FeedHz:        DefaultFeedHz,
		Log:           Log{Level: "info"},
	}
}

// DefaultClient 返回默认客户端配置
func DefaultClient() Client {
	return Client{
		ServerURL:       DefaultServerURL,
		PollInterval:    DefaultPollInterval,
		SendInterval:    DefaultSendInterval,
		ChatEvery:       DefaultChatEvery,
		RequestTimeout:  DefaultRequestTimeout,
		RegisterTimeout: DefaultRegisterTimeout,
		Heartbeat:       DefaultHeartbeat,
		Log:             Log{Level: "info"},
	}
}

// LoadServer 解析命令行参数；环境变量作为参数的默认值
func LoadServer(fs *flag.FlagSet, args []string) (Server, error) {
	cfg := DefaultServer()
	fs.StringVar(&cfg.Addr, "addr", envString("TOWNSYNC_ADDR", cfg.Addr), "server listen address, e.g. :8989")
	fs.DurationVar(&cfg.PlayerTTL, "player-ttl", envDuration("TOWNSYNC_PLAYER_TTL", cfg.PlayerTTL), "evict players silent for longer than this (0 disables)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often stale players are swept")
	fs.IntVar(&cfg.FeedHz, "feed-hz", cfg.FeedHz, "websocket feed broadcast rate")
	bindLog(fs, &cfg.Log)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadClient 解析客户端（bot）命令行参数
func LoadClient(fs *flag.FlagSet, args []string) (Client, error) {
	cfg := DefaultClient()
	fs.StringVar(&cfg.ServerURL, "server", envString("TOWNSYNC_SERVER", cfg.ServerURL), "registry base url")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "player list poll interval")
	fs.DurationVar(&cfg.SendInterval, "send", cfg.SendInterval, "state flush interval")
	fs.IntVar(&cfg.ChatEvery, "chat-every", cfg.ChatEvery, "fetch chat once every N polls")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "resend last state after this much silence (0 disables)")
	bindLog(fs, &cfg.Log)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func bindLog(fs *flag.FlagSet, l *Log) {
	fs.StringVar(&l.File, "log-file", envString("TOWNSYNC_LOG_FILE", l.File), "log file path (empty logs to stderr)")
	fs.StringVar(&l.Level, "log-level", envString("LOG_LEVEL", l.Level), "debug, info, warn or error")
}

// Validate 检查服务端配置
func (c Server) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.PlayerTTL < 0 {
		return fmt.Errorf("player-ttl must be >= 0, got %s", c.PlayerTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be > 0, got %s", c.SweepInterval)
	}
	if c.FeedHz <= 0 || c.FeedHz > 120 {
		return fmt.Errorf("feed-hz must be in 1..120, got %d", c.FeedHz)
	}
	return nil
}

// Validate 检查客户端配置
func (c Client) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url must be http(s), got %q", c.ServerURL)
	}
	if c.PollInterval <= 0 || c.SendInterval <= 0 {
		return errors.New("poll and send intervals must be > 0")
	}
	if c.ChatEvery < 1 {
		return fmt.Errorf("chat-every must be >= 1, got %d", c.ChatEvery)
	}
	if c.RequestTimeout <= 0 || c.RegisterTimeout <= 0 {
		return errors.New("request timeouts must be > 0")
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be >= 0, got %s", c.Heartbeat)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// 兼容纯数字（秒）
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
