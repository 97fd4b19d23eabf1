package events

import (
	"context"
	"errors"
	"sync"

	"gpt-relay/internal/logger"
)

var (
	// ErrBusClosed 表示事件总线已关闭。
	ErrBusClosed = errors.New("event bus closed")
	// ErrEventDropped 表示事件被慢消费者丢弃。
	ErrEventDropped = errors.New("event dropped by slow subscriber")
)

// Publisher 抽象事件发布，relay 只依赖这一方法。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus 负责把 relay 生命周期事件广播给所有订阅者。
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	buffer int
	closed bool
	log    *logger.LogEntry
}

var _ Publisher = (*Bus)(nil)

// NewBus 创建事件总线，buffer 是每个订阅者的缓存大小。
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer, log: log}
}

// SetLogger 覆盖总线使用的 logger。
func (b *Bus) SetLogger(entry *logger.LogEntry) {
	if entry == nil {
		return
	}
	b.mu.Lock()
	b.log = entry
	b.mu.Unlock()
}

// Subscribe 订阅事件流。通道会在 Close 或 Unsubscribe 时关闭。
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, b.buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe 移除订阅并关闭其通道。
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if (<-chan Event)(ch) == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish 发布事件到所有订阅者。若存在丢弃，则返回 ErrEventDropped。
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	entry := b.log
	// 在锁内发送，避免与 Unsubscribe 关闭通道竞争。
	dropped := false
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			dropped = true
		}
	}
	b.mu.Unlock()

	logEvent(entry, event)
	if err := ctx.Err(); err != nil {
		return err
	}
	if dropped {
		return ErrEventDropped
	}
	return nil
}

// Close 关闭事件总线和所有订阅通道。
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// SubscriberCount 返回当前订阅者数量。
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
