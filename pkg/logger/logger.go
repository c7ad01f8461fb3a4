package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/goid"
)

type Logger = zap.Logger

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	mu            sync.RWMutex
	baseLogger    = zap.NewNop()
	defaultModule string
)

// InitLogger 按配置构建进程日志并设为全局日志
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	SetLogger(l)
	return l, nil
}

// New 构建日志：标准输出（console/json）+ 可选的按天切割 JSON 文件
func New(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var stdoutEncoder zapcore.Encoder
	if cfg.Format == "json" {
		stdoutEncoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	} else {
		stdoutEncoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}
	cores := []zapcore.Core{zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level)}

	// 1，Path 非空时追加文件输出
	if cfg.Path != "" {
		writer, err := newRotateWriter(cfg)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(writer), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// newRotateWriter 按天切割，超过 MaxSize(MB) 提前切割，保留 MaxAge 天
func newRotateWriter(cfg *config.ZapLogConfig) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", cfg.Path, err)
	}
	opts := []rotatelogs.Option{rotatelogs.WithRotationTime(24 * time.Hour)}
	if cfg.MaxAge > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(cfg.MaxAge)*24*time.Hour))
	} else if cfg.MaxBackup > 0 {
		opts = append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	}
	if cfg.MaxSize > 0 {
		opts = append(opts, rotatelogs.WithRotationSize(int64(cfg.MaxSize)*1024*1024))
	}
	writer, err := rotatelogs.New(filepath.Join(cfg.Path, "agent-%Y%m%d.log"), opts...)
	if err != nil {
		return nil, fmt.Errorf("open rotate log: %w", err)
	}
	return writer, nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.ConsoleSeparator = " "
	encCfg.EncodeLevel = coloredLevelEncoder
	// 控制台彩色时间
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\033[34m" + t.Format(timeLayout) + "\033[0m")
	}
	// Caller 两级路径
	encCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(rel + ":" + strconv.Itoa(c.Line))
	}
	return encCfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return encCfg
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}

// SetLogger 替换全局日志（测试注入 observer 使用）
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	baseLogger = l
}

// GetGlobalLogger 全局日志，未初始化时为 Nop
func GetGlobalLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// SetDefaultModule 设置包级日志函数附带的 module 字段
func SetDefaultModule(module string) {
	mu.Lock()
	defer mu.Unlock()
	defaultModule = module
}

func GetDefaultModule() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultModule
}

func log(level zapcore.Level, msg string, fields ...zap.Field) {
	mu.RLock()
	l, module := baseLogger, defaultModule
	mu.RUnlock()

	merged := make([]zap.Field, 0, len(fields)+2)
	if module != "" {
		merged = append(merged, zap.String("module", module))
	}
	merged = append(merged, goid.Field())
	merged = append(merged, fields...)

	if ce := l.WithOptions(zap.AddCallerSkip(2)).Check(level, msg); ce != nil {
		ce.Write(merged...)
	}
}

func Debug(msg string, fields ...zap.Field) { log(zapcore.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log(zapcore.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log(zapcore.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zap.Field) { log(zapcore.ErrorLevel, msg, fields...) }
func Panic(msg string, fields ...zap.Field) { log(zapcore.PanicLevel, msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { log(zapcore.FatalLevel, msg, fields...) }

// Sync 刷新全局日志缓冲
func Sync() error {
	return GetGlobalLogger().Sync()
}
