package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志输出配置
type Options struct {
	// File 为空时输出到 stderr，否则写入滚动文件
	File  string
	Level string
}

// New 创建 SugaredLogger：控制台风格编码，文件输出时由 lumberjack 负责滚动
func New(opts Options) (*zap.SugaredLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var ws zapcore.WriteSyncer
	if opts.File != "" {
		// 文件滚动策略：10MB 每文件，保留3个备份
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   false,
		}
		ws = zapcore.AddSync(lj)
	} else {
		ws = zapcore.Lock(os.Stderr)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)

	logger := zap.New(core, zap.AddCaller())
	return logger.Sugar(), nil
}

// ParseLevel 解析 debug/info/warn/error，空字符串视为 info
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// Sync 清理和同步缓冲
func Sync(log *zap.SugaredLogger) {
	if log != nil {
		_ = log.Sync()
	}
}
