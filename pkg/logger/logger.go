package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	// currentLogFile 当前日志文件路径
	currentLogFile string
	// logMu 初始化锁
	logMu sync.Mutex

	// diagnostics 诊断日志（原始响应体等），与普通日志分开存放
	diagnostics   io.Writer
	diagnosticsMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
	// DiagnosticsFile 诊断日志路径，例如 /data/logs/betfair-errors.log（可选）
	DiagnosticsFile string
}

func newFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
	}
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(newFormatter())

	writers := []io.Writer{os.Stdout}

	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		currentLogFile = config.OutputFile
	}

	multiWriter := io.MultiWriter(writers...)
	logger.SetOutput(multiWriter)

	// 全局 logrus 也指向同一输出，库内 logrus.WithField() 的日志同样落盘
	logrus.SetOutput(multiWriter)
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter())

	if config.DiagnosticsFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.DiagnosticsFile), 0o755); err != nil {
			return err
		}
		diagnosticsMu.Lock()
		diagnostics = &lumberjack.Logger{
			Filename:   config.DiagnosticsFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		diagnosticsMu.Unlock()
	}

	Logger = logger
	return nil
}

// InitDefault 使用默认配置初始化日志系统（仅控制台）
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		MaxSize:    100, // 100MB
		MaxBackups: 3,
		MaxAge:     7, // 7天
		Compress:   true,
	})
}

// SetDiagnosticsOutput 替换诊断日志输出（测试用）
func SetDiagnosticsOutput(w io.Writer) {
	diagnosticsMu.Lock()
	defer diagnosticsMu.Unlock()
	diagnostics = w
}

// Diagnose 写入一条诊断记录。永远不会返回错误或 panic：诊断失败不能影响调用方。
func Diagnose(message string) {
	defer func() { _ = recover() }()

	diagnosticsMu.Lock()
	defer diagnosticsMu.Unlock()
	if diagnostics == nil {
		if Logger != nil {
			Logger.Debugf("[diagnostics] %s", message)
		}
		return
	}

	var sb strings.Builder
	sb.WriteString("========================================\n")
	sb.WriteString(time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	sb.WriteString("\n")
	sb.WriteString(message)
	sb.WriteString("\n\n")
	_, _ = io.WriteString(diagnostics, sb.String())
}

// Diagnosef 格式化的 Diagnose
func Diagnosef(format string, args ...interface{}) {
	Diagnose(fmt.Sprintf(format, args...))
}

// Debugf 记录格式化的 DEBUG 级别日志
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Info 记录 INFO 级别日志
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.NewEntry(logrus.StandardLogger()).WithField(key, value)
}

// WithFields 添加多个字段到日志上下文
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.NewEntry(logrus.StandardLogger()).WithFields(fields)
}

// Redact 只保留前几位，用于在日志中标识 token 而不泄露它
func Redact(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "(empty)"
	}
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:4] + "***"
}

// GetCurrentLogFile 获取当前日志文件路径
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}
