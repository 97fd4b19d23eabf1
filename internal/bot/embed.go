package bot

import (
	"strconv"

	"gpt-relay/internal/surface/discord"

	"github.com/bwmarrin/discordgo"
)

// PromptEmbed is the interaction response echoing the prompt. Verbose adds
// the sampling parameters as fields.
func PromptEmbed(opts ChatOptions, user *discordgo.User) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: discord.Truncate(opts.Prompt, discord.MaxTitleLength),
		Color: discord.ColorText,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Powered by " + opts.Engine,
		},
	}
	if user != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    user.Username,
			IconURL: user.AvatarURL(""),
		}
	}
	if opts.Verbose {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: OptMaxTokens, Value: strconv.FormatInt(opts.MaxTokens, 10), Inline: true},
			{Name: OptTemperature, Value: formatFloat(opts.Temperature), Inline: true},
			{Name: OptTopP, Value: formatFloat(opts.TopP), Inline: true},
			{Name: OptFrequencyPenalty, Value: formatFloat(opts.FrequencyPenalty), Inline: true},
			{Name: OptPresencePenalty, Value: formatFloat(opts.PresencePenalty), Inline: true},
		}
	}
	return embed
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// interactionUser returns the invoking user for guild and DM interactions.
func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
