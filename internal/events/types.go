package events

import "time"

// EventType 描述总线上分发的事件类型。
type EventType string

const (
	EventSessionStarted   EventType = "session.started"
	EventPageAdded        EventType = "page.added"
	EventSessionCompleted EventType = "session.completed"
	// EventSessionFailed 在流错误、投递失败或取消时发出，Payload 为 SessionResult。
	EventSessionFailed EventType = "session.failed"
)

// SessionStart 描述一次 relay 的请求参数。
type SessionStart struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int64  `json:"max_tokens,omitempty"`
	Surface   string `json:"surface,omitempty"`
}

// PageAdded 表示一个新页被作为 follow-up 发送出去。
type PageAdded struct {
	Index     int    `json:"index"`
	PageCount int    `json:"page_count"`
	MessageID string `json:"message_id,omitempty"`
}

// SessionResult 描述 relay 的终态。
type SessionResult struct {
	Status     string `json:"status"` // done|failed
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message,omitempty"`
	Pages      int    `json:"pages"`
	Runes      int    `json:"runes"`
	DurationMs int64  `json:"duration_ms"`
}

// Event 是总线上传递的唯一消息格式，Payload 的具体结构由 Type 决定。
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
