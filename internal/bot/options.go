package bot

import (
	"fmt"
	"strings"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/surface/discord"

	"github.com/bwmarrin/discordgo"
)

// Option names of the /chat command.
const (
	CommandChat = "chat"

	OptPrompt           = "prompt"
	OptEngine           = "engine"
	OptTemperature      = "temperature"
	OptTopP             = "top_p"
	OptMaxTokens        = "max_tokens"
	OptFrequencyPenalty = "frequency_penalty"
	OptPresencePenalty  = "presence_penalty"
	OptEphemeral        = "ephemeral"
	OptVerbose          = "verbose"
)

// maxChoices is the number of choices Discord accepts for one option.
const maxChoices = 25

const maxDescription = 100

// ChatOptions 是 /chat 的参数；未填写的选项取配置中的默认值。
type ChatOptions struct {
	Prompt           string
	Engine           string
	Temperature      float64
	TopP             float64
	MaxTokens        int64
	FrequencyPenalty float64
	PresencePenalty  float64
	Ephemeral        bool
	Verbose          bool
}

// DefaultChatOptions builds the option defaults from the config.
func DefaultChatOptions(cfg config.Config, verbose bool) ChatOptions {
	return ChatOptions{
		Engine:           cfg.DefaultModel(),
		Temperature:      cfg.OpenAI.Temperature,
		TopP:             cfg.OpenAI.TopP,
		MaxTokens:        cfg.OpenAI.MaxTokens,
		FrequencyPenalty: cfg.OpenAI.FrequencyPenalty,
		PresencePenalty:  cfg.OpenAI.PresencePenalty,
		Verbose:          verbose,
	}
}

// Request converts the options into a completion request.
func (o ChatOptions) Request() completion.Request {
	return completion.Request{
		Model:            o.Engine,
		Prompt:           o.Prompt,
		Temperature:      o.Temperature,
		TopP:             o.TopP,
		MaxTokens:        o.MaxTokens,
		FrequencyPenalty: o.FrequencyPenalty,
		PresencePenalty:  o.PresencePenalty,
	}
}

// ParseChatOptions overlays the options the user filled in on defaults.
func ParseChatOptions(opts []*discordgo.ApplicationCommandInteractionDataOption, defaults ChatOptions) (ChatOptions, error) {
	out := defaults
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		switch opt.Name {
		case OptPrompt:
			out.Prompt = strings.TrimSpace(opt.StringValue())
		case OptEngine:
			if v := strings.TrimSpace(opt.StringValue()); v != "" {
				out.Engine = v
			}
		case OptTemperature:
			out.Temperature = opt.FloatValue()
		case OptTopP:
			out.TopP = opt.FloatValue()
		case OptMaxTokens:
			out.MaxTokens = opt.IntValue()
		case OptFrequencyPenalty:
			out.FrequencyPenalty = opt.FloatValue()
		case OptPresencePenalty:
			out.PresencePenalty = opt.FloatValue()
		case OptEphemeral:
			out.Ephemeral = opt.BoolValue()
		case OptVerbose:
			out.Verbose = opt.BoolValue()
		}
	}
	return out, out.Validate()
}

// Validate 检查参数取值范围。
func (o ChatOptions) Validate() error {
	switch {
	case o.Prompt == "":
		return completion.ErrEmptyPrompt
	case o.Engine == "":
		return fmt.Errorf("no engine selected and no default engine configured")
	case o.Temperature < 0 || o.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2, got %g", o.Temperature)
	case o.TopP < 0 || o.TopP > 1:
		return fmt.Errorf("top_p must be between 0 and 1, got %g", o.TopP)
	case o.MaxTokens < 1:
		return fmt.Errorf("max_tokens must be positive, got %d", o.MaxTokens)
	case o.FrequencyPenalty < -2 || o.FrequencyPenalty > 2:
		return fmt.Errorf("frequency_penalty must be between -2.0 and 2.0, got %g", o.FrequencyPenalty)
	case o.PresencePenalty < -2 || o.PresencePenalty > 2:
		return fmt.Errorf("presence_penalty must be between -2.0 and 2.0, got %g", o.PresencePenalty)
	}
	return nil
}

// ChatCommand describes /chat. With autocomplete the engine option accepts
// any text and suggestions come from the engine list; otherwise the first 25
// engines become fixed choices.
func ChatCommand(defaults ChatOptions, engines []string, autocomplete bool) *discordgo.ApplicationCommand {
	minTemp, minTopP, minPenalty, minTokens := 0.0, 0.0, -2.0, 1.0

	engine := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        OptEngine,
		Description: describe("Default: %s. The engine to use for the chat.", defaults.Engine),
	}
	if autocomplete {
		engine.Autocomplete = true
	} else {
		for i, id := range engines {
			if i == maxChoices {
				break
			}
			engine.Choices = append(engine.Choices, &discordgo.ApplicationCommandOptionChoice{Name: id, Value: id})
		}
	}

	return &discordgo.ApplicationCommand{
		Name:        CommandChat,
		Description: "By using the GPT API, this command will chat with you.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        OptPrompt,
				Description: "Prompt for the chatbot to respond to.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        OptEphemeral,
				Description: "Whether the response should be ephemeral or not.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        OptVerbose,
				Description: "Whether to show the configuration used for the chat.",
			},
			engine,
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        OptFrequencyPenalty,
				Description: describe("Default: %g. Positive values make repeating the same line less likely.", defaults.FrequencyPenalty),
				MinValue:    &minPenalty,
				MaxValue:    2,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        OptMaxTokens,
				Description: describe("Default: %d. The maximum number of tokens to generate.", defaults.MaxTokens),
				MinValue:    &minTokens,
			},
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        OptPresencePenalty,
				Description: describe("Default: %g. Positive values make talking about new topics more likely.", defaults.PresencePenalty),
				MinValue:    &minPenalty,
				MaxValue:    2,
			},
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        OptTemperature,
				Description: describe("Default: %g. Higher values mean the model takes more risks.", defaults.Temperature),
				MinValue:    &minTemp,
				MaxValue:    2,
			},
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        OptTopP,
				Description: describe("Default: %g. Nucleus sampling probability mass.", defaults.TopP),
				MinValue:    &minTopP,
				MaxValue:    1,
			},
		},
	}
}

func describe(format string, args ...any) string {
	return discord.Truncate(fmt.Sprintf(format, args...), maxDescription)
}
