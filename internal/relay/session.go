// Package relay streams a completion into a chat surface as a sequence of
// bounded pages.
//
// A Session runs two goroutines: the producer, which appends fragments from
// the completion stream to an Accumulator, and the render loop, which
// periodically paginates a snapshot of the accumulated text and either edits
// the current message (same page count) or sends follow-up messages (page
// count grew).
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/events"
	"gpt-relay/internal/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log = logger.Named("relay")

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("relay: session already started")

// State 是 Session 的生命周期状态。
type State int32

const (
	StatePending State = iota
	StateStreaming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether the state is Done or Failed.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Option customises a Session.
type Option func(*Session)

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithEvents publishes lifecycle events to pub.
func WithEvents(pub events.Publisher) Option {
	return func(s *Session) { s.events = pub }
}

// WithSurfaceName labels the surface in events and traces.
func WithSurfaceName(name string) Option {
	return func(s *Session) { s.surfaceName = name }
}

// Session relays one completion request into one surface.
type Session struct {
	id          string
	req         completion.Request
	cfg         Config
	client      completion.Client
	surface     Surface
	surfaceName string
	events      events.Publisher
	tracer      trace.Tracer

	acc     *Accumulator
	state   atomic.Int32
	started atomic.Bool

	mu        sync.Mutex
	failure   *Failure
	pages     int
	startedAt time.Time
	endedAt   time.Time
}

// NewSession 创建处于 Pending 状态的 Session。
func NewSession(client completion.Client, surface Surface, req completion.Request, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		req:     req,
		cfg:     cfg.withDefaults(),
		client:  client,
		surface: surface,
		tracer:  otel.Tracer("gpt-relay/relay"),
		acc:     NewAccumulator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.req.SessionID = s.id
	return s
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Request() completion.Request { return s.req }
func (s *Session) Config() Config              { return s.cfg }
func (s *Session) State() State                { return State(s.state.Load()) }
func (s *Session) Snapshot() string            { return s.acc.Snapshot() }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Failure returns why the session failed, or nil.
func (s *Session) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Surface   string    `json:"surface,omitempty"`
	State     string    `json:"state"`
	Pages     int       `json:"pages"`
	Runes     int       `json:"runes"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Failure   string    `json:"failure,omitempty"`
}

// Info 返回当前会话的概要。
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.id,
		Model:     s.req.Model,
		Prompt:    s.req.Prompt,
		Surface:   s.surfaceName,
		State:     s.State().String(),
		Pages:     s.pages,
		Runes:     s.acc.RuneCount(),
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
	if s.failure != nil {
		info.Failure = s.failure.Error()
	}
	return info
}

// Run relays the completion until it finishes, fails or ctx is canceled.
//
// It returns nil when the session ends Done and a *Failure otherwise. Run may
// only be called once.
func (s *Session) Run(ctx context.Context) error {
	if s.surface == nil {
		return ErrNoSurface
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	start := time.Now()
	s.mu.Lock()
	s.startedAt = start
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "relay.session", trace.WithAttributes(
		attribute.String("relay.session_id", s.id),
		attribute.String("relay.model", s.req.Model),
		attribute.String("relay.surface", s.surfaceName),
		attribute.Int("relay.max_page_size", s.cfg.MaxPageSize),
	))
	defer span.End()

	log.Infof("session %s started model=%s surface=%s", s.id, s.req.Model, s.surfaceName)
	s.publish(ctx, events.EventSessionStarted, events.SessionStart{
		Model:     s.req.Model,
		Prompt:    s.req.Prompt,
		MaxTokens: s.req.MaxTokens,
		Surface:   s.surfaceName,
	})

	r := newRenderer(s)
	f := s.loop(ctx, r)
	s.finish(ctx, r, f, start, span)
	if f != nil {
		return f
	}
	return nil
}

func (s *Session) loop(ctx context.Context, r *renderer) *Failure {
	if err := r.start(ctx); err != nil {
		return deliveryFailure(err)
	}

	prodCtx, stop := context.WithCancel(ctx)
	defer stop()
	if s.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		prodCtx, cancel = context.WithTimeout(prodCtx, s.cfg.SessionTimeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go s.produce(prodCtx, done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stop()
			<-done
			return &Failure{Kind: KindCanceled, Message: "relay canceled", Err: ctx.Err()}

		case err := <-done:
			if ctx.Err() != nil {
				return &Failure{Kind: KindCanceled, Message: "relay canceled", Err: ctx.Err()}
			}
			if err != nil {
				f := streamFailure(err)
				if errors.Is(err, context.DeadlineExceeded) {
					f = &Failure{Kind: KindTimeout, Message: fmt.Sprintf("no complete answer within %s", s.cfg.SessionTimeout), Err: err}
				}
				if rerr := r.fail(ctx, f); rerr != nil {
					log.Warnf("session %s: failed to render error page: %v", s.id, rerr)
				}
				return f
			}
			if err := sleep(ctx, s.cfg.GraceDelay); err != nil {
				return &Failure{Kind: KindCanceled, Message: "relay canceled", Err: err}
			}
			if err := r.render(ctx, s.acc.Snapshot()); err != nil {
				return deliveryFailure(err)
			}
			return nil

		case <-ticker.C:
			if err := r.render(ctx, s.acc.Snapshot()); err != nil {
				stop()
				<-done
				return deliveryFailure(err)
			}
			s.setPages(r.lastCount)
		}
	}
}

func (s *Session) setPages(n int) {
	s.mu.Lock()
	s.pages = n
	s.mu.Unlock()
}

func (s *Session) finish(ctx context.Context, r *renderer, f *Failure, start time.Time, span trace.Span) {
	end := time.Now()
	text := s.acc.Snapshot()
	result := events.SessionResult{
		Status:     StateDone.String(),
		Pages:      r.lastCount,
		Runes:      utf8.RuneCountInString(text),
		DurationMs: end.Sub(start).Milliseconds(),
	}

	s.mu.Lock()
	s.pages = r.lastCount
	s.endedAt = end
	s.failure = f
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("relay.pages", result.Pages),
		attribute.Int("relay.runes", result.Runes),
	)

	// 事件在取消后仍需发出，避免订阅者看不到终态。
	pubCtx := context.WithoutCancel(ctx)
	if f == nil {
		s.setState(StateDone)
		span.SetStatus(codes.Ok, "")
		log.Infof("session %s done pages=%d runes=%d in %s", s.id, result.Pages, result.Runes, end.Sub(start))
		s.publish(pubCtx, events.EventSessionCompleted, result)
		return
	}

	s.setState(StateFailed)
	span.RecordError(f)
	span.SetStatus(codes.Error, f.Kind)
	result.Status = StateFailed.String()
	result.Kind = f.Kind
	result.Message = f.Message
	if f.Kind == KindCanceled {
		log.Infof("session %s canceled after %d page(s)", s.id, result.Pages)
	} else {
		log.Warnf("session %s failed: %v", s.id, f)
	}
	s.publish(pubCtx, events.EventSessionFailed, result)
}

func (s *Session) publish(ctx context.Context, typ events.EventType, payload any) {
	if s.events == nil {
		return
	}
	evt := events.Event{
		Type:      typ,
		SessionID: s.id,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if s.surfaceName != "" {
		evt.Metadata = map[string]string{"surface": s.surfaceName}
	}
	if err := s.events.Publish(ctx, evt); err != nil && !errors.Is(err, events.ErrEventDropped) {
		log.Debugf("session %s: publish %s: %v", s.id, typ, err)
	}
}
