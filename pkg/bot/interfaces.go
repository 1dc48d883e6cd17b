package bot

import (
	"context"

	"shadybot/pkg/brain"
	"shadybot/pkg/vision"

	"github.com/bwmarrin/discordgo"
)

// Session interface abstracts discordgo.Session for testing
type Session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) (err error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSession adapts discordgo.Session to the Session interface
type DiscordSession struct {
	*discordgo.Session
}

// Generator produces a reply from learned snippets and channel context.
type Generator interface {
	Generate(ctx context.Context, req brain.Request) (string, bool)
}

// ImageFetcher downloads image attachments for the vision model.
type ImageFetcher interface {
	FetchAll(ctx context.Context, attachments []vision.Attachment) []vision.Image
}

// ModelProvisioner makes a model available on the backend.
type ModelProvisioner interface {
	PullModel(ctx context.Context, model string) error
}
