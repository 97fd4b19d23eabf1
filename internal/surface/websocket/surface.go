// Package websocket relays pages to a browser over a websocket connection as
// JSON frames.
package websocket

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"gpt-relay/internal/relay"

	gorilla "github.com/gorilla/websocket"
)

// Frame ops.
const (
	OpSend   = "send"
	OpEdit   = "edit"
	OpResult = "result"
	OpError  = "error"
)

// WriteTimeout bounds each frame write.
const WriteTimeout = 10 * time.Second

// Frame 是发往浏览器的一条 JSON 消息。
type Frame struct {
	Op        string      `json:"op"`
	SessionID string      `json:"session_id,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Page      *PageFrame  `json:"page,omitempty"`
	Info      *relay.Info `json:"info,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type PageFrame struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Conn is the part of *gorilla.Conn the surface writes through.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
}

var _ Conn = (*gorilla.Conn)(nil)

// Surface writes frames to one connection. Writes are serialized so the
// relay loop and the connection owner can share it.
type Surface struct {
	conn      Conn
	sessionID string

	mu  sync.Mutex
	seq int
	now func() time.Time
}

var _ relay.Surface = (*Surface)(nil)

func New(conn Conn, sessionID string) *Surface {
	return &Surface{conn: conn, sessionID: sessionID, now: time.Now}
}

func (s *Surface) SendInitial(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	return s.send(ctx, page)
}

func (s *Surface) SendFollowup(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	return s.send(ctx, page)
}

func (s *Surface) EditInPlace(ctx context.Context, ref relay.MessageRef, page relay.Page) error {
	if ref.ID == "" {
		return errors.New("websocket: edit without message id")
	}
	return s.write(ctx, Frame{Op: OpEdit, MessageID: ref.ID, Page: pageFrame(page)})
}

// WriteResult sends the terminal summary of the relay.
func (s *Surface) WriteResult(ctx context.Context, info relay.Info) error {
	return s.write(ctx, Frame{Op: OpResult, Info: &info})
}

// WriteError 发送一条错误帧，用于请求被拒绝的情况。
func (s *Surface) WriteError(ctx context.Context, msg string) error {
	return s.write(ctx, Frame{Op: OpError, Error: msg})
}

func (s *Surface) send(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	s.mu.Lock()
	s.seq++
	id := strconv.Itoa(s.seq)
	s.mu.Unlock()
	if err := s.write(ctx, Frame{Op: OpSend, MessageID: id, Page: pageFrame(page)}); err != nil {
		return relay.MessageRef{}, err
	}
	return relay.MessageRef{ID: id, ChannelID: s.sessionID}, nil
}

func (s *Surface) write(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	frame.SessionID = s.sessionID
	frame.Timestamp = s.now().UnixMilli()
	deadline := s.now().Add(WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}

func pageFrame(page relay.Page) *PageFrame {
	return &PageFrame{
		Index:   page.Index,
		Kind:    page.Kind.String(),
		Title:   page.Title,
		Content: page.Content,
	}
}
