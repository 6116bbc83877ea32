// Package log wraps zap the way the rest of the corpus does: a package-level
// sugared logger, reconfigurable at runtime, stdout-only (the engine never
// writes its own logs to disk — see SPEC_FULL.md's ambient-stack notes).
package log

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func toZapLevel(l string) zapcore.Level {
	levels := map[Level]zapcore.Level{
		LevelDebug: zapcore.DebugLevel,
		LevelInfo:  zapcore.InfoLevel,
		LevelWarn:  zapcore.WarnLevel,
		LevelError: zapcore.ErrorLevel,
	}
	if level, ok := levels[Level(l)]; ok {
		return level
	}
	return zapcore.InfoLevel
}

// Options configures the package-level logger (spec §6 config keys).
type Options struct {
	Level string `config:"level"`
}

type Logger struct {
	sugared *zap.SugaredLogger
}

func (l Logger) Debugf(template string, args ...any) { l.sugared.Debugf(template, args...) }
func (l Logger) Infof(template string, args ...any)  { l.sugared.Infof(template, args...) }
func (l Logger) Warnf(template string, args ...any)  { l.sugared.Warnf(template, args...) }
func (l Logger) Errorf(template string, args ...any) { l.sugared.Errorf(template, args...) }

// New builds a Logger writing console-formatted entries to stdout.
func New(opt Options) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), toZapLevel(opt.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return Logger{sugared: logger.Sugar()}
}

var (
	stdOpt = Options{Level: string(LevelInfo)}
	std    = New(stdOpt)
)

// SetOptions replaces the package-level logger's configuration.
func SetOptions(opt Options) {
	stdOpt = opt
	std = New(opt)
}

// SetLevel changes only the level, keeping everything else as configured.
func SetLevel(s string) {
	stdOpt.Level = strings.ToLower(strings.TrimSpace(s))
	std = New(stdOpt)
}

func Debugf(template string, args ...any) { std.Debugf(template, args...) }
func Infof(template string, args ...any)  { std.Infof(template, args...) }
func Warnf(template string, args ...any)  { std.Warnf(template, args...) }
func Errorf(template string, args ...any) { std.Errorf(template, args...) }
