package logger

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// LLMRequest 描述一次补全请求中值得记录的参数。
type LLMRequest struct {
	SessionID string
	Model     string
	Prompt    string
	MaxTokens int64
}

// LLMLogger 负责输出与补全服务交互的请求、分片、完成与错误信息。
type LLMLogger interface {
	Request(req LLMRequest)
	StreamChunk(sessionID string, chunk string, index int)
	StreamComplete(sessionID string, chunks int, length int)
	Error(sessionID string, err error)
}

// DefaultLLMLogPath 是 LLM 交互日志的默认路径。
const DefaultLLMLogPath = "logs/llm.log"

// LLMLog 是全局唯一的 LLM 日志器实例。
var LLMLog LLMLogger = NewLLMLogger(nil)

// SetGlobalLLMLogger 覆盖全局 LLM 日志实例，传入 nil 将重置为默认实现。
func SetGlobalLLMLogger(l LLMLogger) {
	if l == nil {
		l = NewLLMLogger(nil)
	}
	LLMLog = l
}

// SetupLLMLog writes LLM traffic to its own file and installs the logger as
// LLMLog.
func SetupLLMLog(path string) (io.Closer, string, error) {
	if path == "" {
		path = DefaultLLMLogPath
	}
	entry, closer, resolved, err := SetupComponentFile("", path)
	if err != nil {
		return nil, "", err
	}
	SetGlobalLLMLogger(NewLLMLogger(entry.Logger))
	return closer, resolved, nil
}

// StdLLMLogger 使用 logrus 输出日志。
type StdLLMLogger struct {
	logger *logrus.Entry
}

// NewLLMLogger 构造默认的 LLM 日志记录器。
func NewLLMLogger(l *Logger) *StdLLMLogger {
	if l == nil {
		l = root()
	}
	return &StdLLMLogger{logger: logrus.NewEntry(l).WithField("component", "llm")}
}

// Request 记录一次请求的上下文。
func (l *StdLLMLogger) Request(req LLMRequest) {
	l.printf(logrus.InfoLevel, "-> request session=%s model=%s max_tokens=%d prompt=%s", req.SessionID, req.Model, req.MaxTokens, sanitize(req.Prompt))
}

// StreamChunk 记录流式响应的单个分片，仅在 debug 级别输出。
func (l *StdLLMLogger) StreamChunk(sessionID string, chunk string, index int) {
	l.printf(logrus.DebugLevel, "<- chunk session=%s seq=%d text=%s", sessionID, index, sanitize(chunk))
}

// StreamComplete 记录流式响应完成。
func (l *StdLLMLogger) StreamComplete(sessionID string, chunks int, length int) {
	l.printf(logrus.InfoLevel, "<- stream completed session=%s chunks=%d length=%d", sessionID, chunks, length)
}

// Error 记录请求错误。
func (l *StdLLMLogger) Error(sessionID string, err error) {
	l.printf(logrus.ErrorLevel, "!! error session=%s err=%v", sessionID, err)
}

// NoopLLMLogger 忽略所有日志输出。
type NoopLLMLogger struct{}

func (NoopLLMLogger) Request(LLMRequest)              {}
func (NoopLLMLogger) StreamChunk(string, string, int) {}
func (NoopLLMLogger) StreamComplete(string, int, int) {}
func (NoopLLMLogger) Error(string, error)             {}

func (l *StdLLMLogger) printf(level logrus.Level, format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	if !l.logger.Logger.IsLevelEnabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	caller := findCaller()
	entry := l.logger
	if caller != "" {
		entry = entry.WithField("caller", caller)
	}
	entry.Log(level, msg)
}

func sanitize(text string) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\r`)
	return text
}

func findCaller() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.Contains(frame.File, "llm.go") {
			return fmt.Sprintf("%s:%d", shortenFilePath(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}
	return ""
}
