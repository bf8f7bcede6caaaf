package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and minimum level.
type Config struct {
	Env   string // "dev" (console) or "prod" (JSON)
	Level string // debug, info, warn, error
}

var (
	mu       sync.RWMutex
	instance = zap.NewNop()
)

// Init builds the process logger. Calling it again replaces the previous one.
func Init(cfg Config) {
	l, err := build(cfg)
	if err != nil {
		l, _ = zap.NewProduction()
	}

	mu.Lock()
	instance = l
	mu.Unlock()

	Info("logger initialized", map[string]any{"env": cfg.Env, "level": cfg.Level})
}

func build(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	var zcfg zap.Config
	if strings.ToLower(cfg.Env) == "prod" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Sync flushes buffered entries.
func Sync() error {
	return L().Sync()
}

func Debug(msg string, fields map[string]any) {
	L().Debug(msg, toFields(fields)...)
}

func Info(msg string, fields map[string]any) {
	L().Info(msg, toFields(fields)...)
}

func Warn(msg string, fields map[string]any) {
	L().Warn(msg, toFields(fields)...)
}

func Error(msg string, fields map[string]any) {
	L().Error(msg, toFields(fields)...)
}

// Fatal logs and exits the process with status 1.
func Fatal(msg string, fields map[string]any) {
	L().Fatal(msg, toFields(fields)...)
}

func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
