// Package bot runs the Discord bot exposing the /chat command.
package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/events"
	"gpt-relay/internal/features"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
	"gpt-relay/internal/session"
	"gpt-relay/internal/surface/discord"

	"github.com/bwmarrin/discordgo"
)

var log = logger.Named("bot")

// Responder is the part of *discordgo.Session used to answer interactions.
type Responder interface {
	discord.InteractionAPI
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

var _ Responder = (*discordgo.Session)(nil)

type Options struct {
	Config   config.Config
	Client   completion.Client
	Models   completion.ModelLister
	Registry *session.Registry
	Events   events.Publisher
	Features features.Set
	// EnginesCache overrides the engine cache path.
	EnginesCache string
}

type Bot struct {
	cfg      config.Config
	client   completion.Client
	models   completion.ModelLister
	registry *session.Registry
	events   events.Publisher
	features features.Set
	relayCfg relay.Config
	cache    string

	mu      sync.RWMutex
	engines []string

	ctx     context.Context
	runMu   sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// ErrShuttingDown is reported to users whose /chat arrives after shutdown began.
var ErrShuttingDown = errors.New("the bot is shutting down, try again in a moment")

func New(opts Options) (*Bot, error) {
	if opts.Client == nil {
		return nil, errors.New("bot: completion client is required")
	}
	reg := opts.Registry
	if reg == nil {
		reg = session.NewRegistry(nil)
	}
	return &Bot{
		cfg:      opts.Config,
		client:   opts.Client,
		models:   opts.Models,
		registry: reg,
		events:   opts.Events,
		features: opts.Features,
		relayCfg: opts.Config.RelayOptions(),
		cache:    opts.EnginesCache,
		ctx:      context.Background(),
	}, nil
}

// Engines returns the engines offered by /chat.
func (b *Bot) Engines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.engines
}

// LoadEngines runs engine discovery and keeps the result.
func (b *Bot) LoadEngines(ctx context.Context) []string {
	engines := DiscoverEngines(ctx, b.cfg.OpenAI.SelectOnlyTheseEngines, b.models, b.cache)
	if def := b.cfg.DefaultModel(); def != "" && len(engines) > 0 && !slices.Contains(engines, def) {
		log.Warnf("default engine %q is not among the %d discovered engines", def, len(engines))
	}
	b.mu.Lock()
	b.engines = engines
	b.mu.Unlock()
	return engines
}

func (b *Bot) defaults() ChatOptions {
	return DefaultChatOptions(b.cfg, b.features.Enabled(features.VerboseEmbeds))
}

// Command returns the /chat definition registered with Discord.
func (b *Bot) Command() *discordgo.ApplicationCommand {
	return ChatCommand(b.defaults(), b.Engines(), b.features.Enabled(features.EngineAutocomplete))
}

// Run connects to Discord and serves interactions until ctx is canceled.
// Running relays are canceled with ctx and awaited before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	token := strings.TrimSpace(b.cfg.Discord.Token)
	if token == "" {
		return errors.New("bot: missing DISCORD_TOKEN")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	b.ctx = ctx
	b.LoadEngines(ctx)

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.onReady(ctx, s, r)
	})
	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.Dispatch(s, i.Interaction)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	<-ctx.Done()
	closeErr := dg.Close()
	log.Infof("shutting down, waiting for %d running relay(s)", b.registry.Len())
	b.Shutdown()
	return closeErr
}

// Shutdown stops accepting /chat and waits for running relays.
func (b *Bot) Shutdown() {
	b.runMu.Lock()
	b.closing = true
	b.runMu.Unlock()
	b.wg.Wait()
}

// track registers a relay unless Shutdown has started.
func (b *Bot) track() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.closing {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *Bot) onReady(ctx context.Context, s *discordgo.Session, r *discordgo.Ready) {
	log.Infof("<Bot: %s - %s>", r.User.Username, r.User.ID)
	log.Infof("<discordgo version: %s>", discordgo.VERSION)

	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	log.Infof("[+] Setting up slash commands...")
	cmds := []*discordgo.ApplicationCommand{b.Command()}
	if _, err := s.ApplicationCommandBulkOverwrite(appID, b.cfg.Discord.GuildID, cmds, discordgo.WithContext(ctx)); err != nil {
		log.Errorf("register slash commands: %v", err)
		return
	}
	log.Infof("[+] Slash commands are ready now.")
}

// Dispatch handles one interaction.
func (b *Bot) Dispatch(api Responder, i *discordgo.Interaction) {
	if i == nil {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == CommandChat {
			b.handleChat(api, i)
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		if i.ApplicationCommandData().Name == CommandChat {
			b.handleAutocomplete(api, i)
		}
	}
}

func (b *Bot) handleChat(api Responder, i *discordgo.Interaction) {
	user := interactionUser(i)
	if !b.track() {
		b.replyError(api, i, user, ErrShuttingDown)
		return
	}
	started := false
	defer func() {
		if !started {
			b.wg.Done()
		}
	}()

	opts, err := ParseChatOptions(i.ApplicationCommandData().Options, b.defaults())
	if err == nil {
		if engines := b.Engines(); len(engines) > 0 && !slices.Contains(engines, opts.Engine) {
			err = fmt.Errorf("unknown engine %q", opts.Engine)
		}
	}
	if err != nil {
		b.replyError(api, i, user, err)
		return
	}

	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{PromptEmbed(opts, user)},
		},
	}
	if opts.Ephemeral {
		resp.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := api.InteractionRespond(i, resp, discordgo.WithContext(b.ctx)); err != nil {
		log.Errorf("respond to /chat: %v", err)
		return
	}

	surface := discord.New(api, i, opts.Ephemeral)
	s := relay.NewSession(b.client, surface, opts.Request(), b.relayCfg,
		relay.WithEvents(b.events),
		relay.WithSurfaceName("discord"),
	)
	started = true
	go func() {
		defer b.wg.Done()
		if err := b.registry.Run(b.ctx, s); err != nil {
			log.Infof("relay %s for %s ended: %v", s.ID(), userName(user), err)
		}
	}()
}

// Wait blocks until every relay started by Dispatch has finished.
func (b *Bot) Wait() { b.wg.Wait() }

func (b *Bot) replyError(api Responder, i *discordgo.Interaction, user *discordgo.User, err error) {
	log.Warnf("[-] Failed to execute command: %s\n    By: %s\n    Exception: %v", CommandChat, userName(user), err)
	content := err.Error()
	if user != nil {
		content = user.Mention() + " " + content
	}
	rerr := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}, discordgo.WithContext(b.ctx))
	if rerr != nil {
		log.Errorf("reply with command error: %v", rerr)
	}
}

func (b *Bot) handleAutocomplete(api Responder, i *discordgo.Interaction) {
	var input string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt != nil && opt.Focused && opt.Name == OptEngine {
			input = opt.StringValue()
		}
	}
	matches := MatchEngines(input, b.Engines())
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(matches))
	for _, id := range matches {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: id, Value: id})
	}
	err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}, discordgo.WithContext(b.ctx))
	if err != nil {
		log.Warnf("autocomplete response: %v", err)
	}
}

func userName(u *discordgo.User) string {
	if u == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s - %s", u.Username, u.ID)
}

// VerifyToken 通过 /users/@me 校验 bot token，返回 bot 用户。
func VerifyToken(ctx context.Context, token string) (*discordgo.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("missing DISCORD_TOKEN")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return dg.User("@me", discordgo.WithContext(ctx))
}
