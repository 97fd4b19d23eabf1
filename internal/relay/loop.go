package relay

import (
	"context"
	"time"

	"gpt-relay/internal/events"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// renderer owns the relay state: it is the only caller of the Surface, so
// surface calls happen one at a time and in tick order.
type renderer struct {
	s       *Session
	surface Surface
	cfg     Config
	limiter *rate.Limiter

	current   MessageRef
	lastCount int
	shown     Page

	lastText string
	rendered bool
}

func newRenderer(s *Session) *renderer {
	limit := rate.Limit(s.cfg.MaxRenderRate)
	if s.cfg.MaxRenderRate < 0 {
		limit = rate.Inf
	}
	return &renderer{
		s:       s,
		surface: s.surface,
		cfg:     s.cfg,
		limiter: rate.NewLimiter(limit, s.cfg.RenderBurst),
	}
}

// start posts the placeholder message.
func (r *renderer) start(ctx context.Context) error {
	page := Paginate("", r.cfg.MaxPageSize, r.cfg.Placeholder)[0]
	var ref MessageRef
	err := r.deliver(ctx, OpSendInitial, page.Index, func(ctx context.Context) error {
		var err error
		ref, err = r.surface.SendInitial(ctx, page)
		return err
	})
	if err != nil {
		return err
	}
	r.current = ref
	r.shown = page
	r.lastCount = 1
	return nil
}

// render brings the surface up to date with text. Page count alone decides
// between editing the current message and sending follow-ups.
func (r *renderer) render(ctx context.Context, text string) error {
	if r.rendered && text == r.lastText {
		return nil
	}
	pages := Paginate(text, r.cfg.MaxPageSize, r.cfg.Placeholder)
	count := len(pages)

	switch {
	case count == r.lastCount:
		if err := r.edit(ctx, pages[count-1]); err != nil {
			return err
		}
	case count > r.lastCount:
		// Seal the page that used to be last before it stops being editable.
		if err := r.edit(ctx, pages[r.lastCount-1]); err != nil {
			return err
		}
		for _, page := range pages[r.lastCount:] {
			if err := r.followup(ctx, page); err != nil {
				return err
			}
		}
	default:
		log.Warnf("session %s: page count went from %d to %d; keeping the displayed pages", r.s.id, r.lastCount, count)
	}

	r.lastText = text
	r.rendered = true
	return nil
}

func (r *renderer) edit(ctx context.Context, page Page) error {
	if page == r.shown {
		return nil
	}
	ref := r.current
	err := r.deliver(ctx, OpEditInPlace, page.Index, func(ctx context.Context) error {
		return r.surface.EditInPlace(ctx, ref, page)
	})
	if err != nil {
		return err
	}
	r.shown = page
	return nil
}

func (r *renderer) followup(ctx context.Context, page Page) error {
	var ref MessageRef
	err := r.deliver(ctx, OpSendFollowup, page.Index, func(ctx context.Context) error {
		var err error
		ref, err = r.surface.SendFollowup(ctx, page)
		return err
	})
	if err != nil {
		return err
	}
	r.current = ref
	r.shown = page
	r.lastCount = page.Index + 1

	trace.SpanFromContext(ctx).AddEvent("page.followup", trace.WithAttributes(
		attribute.Int("relay.page", page.Index),
	))
	r.s.publish(ctx, events.EventPageAdded, events.PageAdded{
		Index:     page.Index,
		PageCount: r.lastCount,
		MessageID: ref.ID,
	})
	return nil
}

// fail replaces the current message with the error page. It is the only
// render issued after a failure and is attempted once.
func (r *renderer) fail(ctx context.Context, f *Failure) error {
	page := f.Page()
	page.Index = r.lastCount - 1
	ref := r.current
	return r.attempt(ctx, OpEditInPlace, page.Index, 1, func(ctx context.Context) error {
		return r.surface.EditInPlace(ctx, ref, page)
	})
}

// deliver runs op with the render budget and bounded retries.
func (r *renderer) deliver(ctx context.Context, op string, page int, call func(context.Context) error) error {
	return r.attempt(ctx, op, page, r.cfg.DeliveryRetries+1, call)
}

func (r *renderer) attempt(ctx context.Context, op string, page, attempts int, call func(context.Context) error) error {
	backoff := r.cfg.RetryBackoff
	var lastErr error
	for try := 1; try <= attempts; try++ {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if try == attempts {
			break
		}
		log.Warnf("session %s: %s page %d attempt %d/%d failed: %v", r.s.id, op, page, try, attempts, err)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	return &DeliveryError{Op: op, Page: page, Attempts: attempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
