package events

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"gpt-relay/internal/logger"
)

// DefaultLogPath 是事件总线的默认日志文件路径。
const DefaultLogPath = "logs/events.log"

// log 复用全局 logger，标记事件组件。
var log = logger.Named("events")

// NewFileLogger 返回写入独立文件的事件 logger；path 为空或打开失败时退回全局 logger。
func NewFileLogger(path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return logger.Named("events"), nil
	}
	entry, closer, _, err := logger.SetupComponentFile("events", path)
	if err != nil {
		log.Warnf("failed to set up events log file (%s): %v", path, err)
		return logger.Named("events"), nil
	}
	return entry, closer
}

func logEvent(entry *logger.LogEntry, event Event) {
	if entry == nil {
		return
	}
	fields := logger.Fields{
		"type": string(event.Type),
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if payload := encodePayload(event.Payload); payload != "" {
		fields["payload"] = payload
	}
	if len(event.Metadata) > 0 {
		fields["metadata"] = event.Metadata
	}
	entry.WithFields(fields).Info("published relay event")
}

// encodePayload 把 payload 编码成便于阅读的文本：字符串原样输出（若为 JSON 则美化），其余编码为缩进 JSON。
func encodePayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return prettyJSONString(v)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func prettyJSONString(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return raw
	}
	candidate := trimmed
	if !json.Valid([]byte(candidate)) {
		candidate = strings.ReplaceAll(candidate, `\n`, "\n")
		if !json.Valid([]byte(candidate)) {
			return raw
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(candidate), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
