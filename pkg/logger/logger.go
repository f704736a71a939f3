// Package logger 基于zap的结构化日志
//
// 输出目标：
//   - stdout / stderr：容器环境，交给日志采集器
//   - 文件路径：使用lumberjack按大小切割、按天数清理
//
// 业务日志统一使用的字段名：case_id、aftersales_no、action、error，
// 方便按售后单聚合检索。
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志配置
type Options struct {
	Level        string // debug | info | warn | error
	Format       string // console | json
	Output       string // stdout | stderr | /path/to/file
	EnableCaller bool

	// 以下仅在输出到文件时生效
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New 按配置创建*zap.Logger
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(defaultString(opts.Level, "info")))
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别: %s", opts.Level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(defaultString(opts.Format, "json")) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("无效的日志格式: %s", opts.Format)
	}

	core := zapcore.NewCore(encoder, writerFor(opts), level)

	zapOpts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.EnableCaller {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	return zap.New(core, zapOpts...), nil
}

// MustNew 创建失败时panic，仅用于main启动阶段
func MustNew(opts Options) *zap.Logger {
	l, err := New(opts)
	if err != nil {
		panic(err)
	}
	return l
}

func writerFor(opts Options) zapcore.WriteSyncer {
	switch strings.ToLower(defaultString(opts.Output, "stdout")) {
	case "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.Output,
		MaxSize:    defaultInt(opts.MaxSizeMB, 100),
		MaxBackups: defaultInt(opts.MaxBackups, 7),
		MaxAge:     defaultInt(opts.MaxAgeDays, 30),
		Compress:   opts.Compress,
	})
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
