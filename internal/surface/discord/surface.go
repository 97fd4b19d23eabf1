// Package discord renders relay pages as embeds in interaction follow-up messages.
package discord

import (
	"context"
	"errors"

	"gpt-relay/internal/relay"

	"github.com/bwmarrin/discordgo"
)

// Embed colors.
const (
	ColorText        = 0x10a37f
	ColorPlaceholder = 0x95a5a6
	ColorError       = 0xe74c3c
)

// MaxTitleLength is the embed title limit.
const MaxTitleLength = 256

// InteractionAPI is the part of *discordgo.Session the surface uses.
type InteractionAPI interface {
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageEdit(interaction *discordgo.Interaction, messageID string, data *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Surface 把每一页渲染为一条 follow-up 消息里的单个 embed。
type Surface struct {
	api         InteractionAPI
	interaction *discordgo.Interaction
	ephemeral   bool
}

var _ relay.Surface = (*Surface)(nil)

func New(api InteractionAPI, interaction *discordgo.Interaction, ephemeral bool) *Surface {
	return &Surface{api: api, interaction: interaction, ephemeral: ephemeral}
}

func (s *Surface) SendInitial(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	return s.send(ctx, page)
}

func (s *Surface) SendFollowup(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	return s.send(ctx, page)
}

func (s *Surface) EditInPlace(ctx context.Context, ref relay.MessageRef, page relay.Page) error {
	if ref.ID == "" {
		return errors.New("discord: edit without message id")
	}
	embeds := []*discordgo.MessageEmbed{Embed(page)}
	_, err := s.api.FollowupMessageEdit(s.interaction, ref.ID, &discordgo.WebhookEdit{
		Embeds: &embeds,
	}, discordgo.WithContext(ctx))
	return err
}

func (s *Surface) send(ctx context.Context, page relay.Page) (relay.MessageRef, error) {
	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{Embed(page)},
	}
	if s.ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	msg, err := s.api.FollowupMessageCreate(s.interaction, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return relay.MessageRef{}, err
	}
	if msg == nil {
		return relay.MessageRef{}, errors.New("discord: follow-up returned no message")
	}
	return relay.MessageRef{ID: msg.ID, ChannelID: msg.ChannelID}, nil
}

// Embed converts a page into the embed shown on Discord.
func Embed(page relay.Page) *discordgo.MessageEmbed {
	switch page.Kind {
	case relay.PageError:
		return &discordgo.MessageEmbed{
			Title:       Truncate(page.Title, MaxTitleLength),
			Description: page.Content,
			Color:       ColorError,
		}
	case relay.PagePlaceholder:
		return &discordgo.MessageEmbed{Description: page.Content, Color: ColorPlaceholder}
	default:
		return &discordgo.MessageEmbed{Description: page.Content, Color: ColorText}
	}
}

// Truncate 按字符截断并在末尾加省略号。
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
