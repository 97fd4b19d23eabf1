// Package console shows a relay in the terminal with Bubble Tea. Each page
// becomes a block in a scrolling viewport.
package console

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"gpt-relay/internal/relay"

	tea "github.com/charmbracelet/bubbletea"
)

// pageMsg carries one surface operation into the program.
type pageMsg struct {
	id   string
	page relay.Page
	edit bool
}

// finishedMsg 在 relay 进入终态后发送。
type finishedMsg struct {
	info relay.Info
	err  error
}

// Surface forwards pages to a Bubble Tea program. send is usually
// (*tea.Program).Send.
type Surface struct {
	send func(tea.Msg)
	seq  atomic.Int64
}

var _ relay.Surface = (*Surface)(nil)

func NewSurface(send func(tea.Msg)) *Surface {
	return &Surface{send: send}
}

func (s *Surface) SendInitial(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	return s.post(ctx, page)
}

func (s *Surface) SendFollowup(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	return s.post(ctx, page)
}

func (s *Surface) EditInPlace(ctx context.Context, ref relay.MessageRef, page relay.Page) error {
	if ref.ID == "" {
		return errors.New("console: edit without message id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.send(pageMsg{id: ref.ID, page: page, edit: true})
	return nil
}

func (s *Surface) post(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return relay.MessageRef{}, err
	}
	id := strconv.FormatInt(s.seq.Add(1), 10)
	s.send(pageMsg{id: id, page: page})
	return relay.MessageRef{ID: id, ChannelID: "console"}, nil
}
