package relay

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSurface is returned by Run when the session has no message surface.
var ErrNoSurface = errors.New("relay: no message surface")

// PageKind 区分页面的渲染方式。
type PageKind int

const (
	PageText PageKind = iota
	PagePlaceholder
	PageError
)

func (k PageKind) String() string {
	switch k {
	case PagePlaceholder:
		return "placeholder"
	case PageError:
		return "error"
	default:
		return "text"
	}
}

// Page is one bounded slice of the generated text, or the placeholder or error
// shown in its place. Title is only set on error pages.
type Page struct {
	Index   int
	Content string
	Title   string
	Kind    PageKind
}

// MessageRef identifies a message previously delivered by a Surface.
type MessageRef struct {
	ID        string
	ChannelID string
}

// Surface is the chat surface that displays pages.
//
// SendInitial posts the first (placeholder) message, EditInPlace replaces the
// content of an existing message and SendFollowup posts a new message after
// the existing ones.
type Surface interface {
	SendInitial(ctx context.Context, page Page) (MessageRef, error)
	EditInPlace(ctx context.Context, ref MessageRef, page Page) error
	SendFollowup(ctx context.Context, page Page) (MessageRef, error)
}

// Surface operation names carried by DeliveryError.
const (
	OpSendInitial  = "send_initial"
	OpEditInPlace  = "edit_in_place"
	OpSendFollowup = "send_followup"
)

// DeliveryError 表示 Surface 调用在重试耗尽后仍然失败。
type DeliveryError struct {
	Op       string
	Page     int
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver page %d (%s) failed after %d attempt(s): %v", e.Page, e.Op, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
