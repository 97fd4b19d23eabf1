package relay

import (
	"context"
	"errors"
	"fmt"

	"gpt-relay/internal/completion"
)

// Failure kinds raised by the relay itself; stream failures carry the
// completion error kind instead.
const (
	KindDelivery = "DeliveryError"
	KindCanceled = "Canceled"
	KindTimeout  = "Timeout"
)

// Failure 是 Session 失败的原因：Kind 作为错误页标题，Message 作为正文。
type Failure struct {
	Kind    string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Kind
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Page returns the error page shown for the failure.
func (f *Failure) Page() Page {
	return Page{Title: f.Kind, Content: f.Message, Kind: PageError}
}

func streamFailure(err error) *Failure {
	if ce, ok := completion.AsError(err); ok {
		return &Failure{Kind: ce.Kind, Message: ce.Message, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Kind: KindCanceled, Message: "relay canceled", Err: err}
	}
	return &Failure{Kind: completion.KindAPI, Message: err.Error(), Err: err}
}

func deliveryFailure(err error) *Failure {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindCanceled, Message: "relay canceled", Err: err}
	}
	return &Failure{Kind: KindDelivery, Message: err.Error(), Err: err}
}
