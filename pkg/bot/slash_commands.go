package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"shadybot/pkg/memory"

	"github.com/bwmarrin/discordgo"
)

const statsTopContributors = 3

// SlashCommands defines all available slash commands
var SlashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "allow_learning",
		Description: "Allow or disallow the bot to learn from your messages (for funny responses)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "allow",
				Description: "Set to True to let the bot learn from you, False to stop.",
				Required:    true,
			},
		},
	},
	{
		Name:        "privacy_status",
		Description: "Check if the bot is currently learning from you",
	},
	{
		Name:        "stats",
		Description: "Show bot learning statistics",
	},
	{
		Name:        "clear_all_messages",
		Description: "Owner only: delete every learned message",
	},
	{
		Name:        "clear_messages_before",
		Description: "Owner only: delete learned messages stored before a timestamp",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "timestamp",
				Description: "YYYY-MM-DD or YYYY-MM-DD HH:MM:SS (UTC)",
				Required:    true,
			},
		},
	},
	{
		Name:        "clear_messages_after",
		Description: "Owner only: delete learned messages stored after a timestamp",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "timestamp",
				Description: "YYYY-MM-DD or YYYY-MM-DD HH:MM:SS (UTC)",
				Required:    true,
			},
		},
	},
	{
		Name:        "pull_vision_model",
		Description: "Owner only: download the vision model on the model server",
	},
	{
		Name:        "vision",
		Description: "Owner only: turn image reactions on or off",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "enabled",
				Description: "Whether the bot should react to images",
				Required:    true,
			},
		},
	},
}

// SlashCommandHandlers maps command names to their handler functions
var SlashCommandHandlers = map[string]func(h *Handler, s Session, i *discordgo.InteractionCreate){
	"allow_learning":        handleAllowLearningCommand,
	"privacy_status":        handlePrivacyStatusCommand,
	"stats":                 handleStatsCommand,
	"clear_all_messages":    ownerOnly(handleClearAllCommand),
	"clear_messages_before": ownerOnly(handleClearBeforeCommand),
	"clear_messages_after":  ownerOnly(handleClearAfterCommand),
	"pull_vision_model":     ownerOnly(handlePullVisionModelCommand),
	"vision":                ownerOnly(handleVisionCommand),
}

func handleAllowLearningCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		log.Printf("Error: Could not determine user ID for allow_learning command")
		return
	}

	allow := boolOption(i, "allow")
	if err := h.store.SetOptIn(h.ctx, userID, allow); err != nil {
		log.Printf("Error setting opt-in for %s: %v", userID, err)
		respondEphemeral(s, i, errorResponse)
		return
	}

	msg := "Learning has been **enabled** for your messages! Thank you for contributing to my brain."
	if !allow {
		msg = "I will no longer learn from your messages. Your privacy is respected!"
	}
	respondEphemeral(s, i, msg)
}

func handlePrivacyStatusCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	userID, _, err := getUserFromInteraction(i)
	if err != nil {
		return
	}

	optedIn, err := h.store.IsOptedIn(h.ctx, userID)
	if err != nil {
		log.Printf("Error checking opt-in for %s: %v", userID, err)
		respondEphemeral(s, i, errorResponse)
		return
	}

	status := "Learning is **disabled**"
	if optedIn {
		status = "Learning is **active**"
	}
	respondEphemeral(s, i, "Current status: "+status)
}

func handleStatsCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	_, userName, _ := getUserFromInteraction(i)

	stats, err := h.store.Stats(h.ctx, statsTopContributors)
	if err != nil {
		log.Printf("Error getting stats: %v", err)
		respondEphemeral(s, i, errorResponse)
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{statsEmbed(stats, userName)},
		},
	})
	if err != nil {
		log.Printf("Error responding to stats command: %v", err)
	}
}

func statsEmbed(stats *memory.Stats, requestedBy string) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(stats.TopContributors))
	for n, c := range stats.TopContributors {
		lines = append(lines, fmt.Sprintf("**%d.** <@%s> - `%d msgs`", n+1, c.UserID, c.Messages))
	}
	leaderboard := "No one yet."
	if len(lines) > 0 {
		leaderboard = strings.Join(lines, "\n")
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🧠 Brain Statistics",
		Description: "**Top contributors I've learned from:**\n" + leaderboard,
		Color:       0x3498db,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Opted-in Users", Value: fmt.Sprintf("👤 `%d`", stats.OptedInUsers), Inline: true},
			{Name: "Total Memory", Value: fmt.Sprintf("💬 `%d`", stats.TotalMessages), Inline: true},
		},
	}
	if requestedBy != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Requested by " + requestedBy}
	}
	return embed
}

func handleClearAllCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	deleted, err := h.store.ClearAll(h.ctx)
	if err != nil {
		log.Printf("Error clearing all messages: %v", err)
		respondEphemeral(s, i, errorResponse)
		return
	}
	log.Printf("Owner cleared all learned messages (%d rows)", deleted)
	respondEphemeral(s, i, fmt.Sprintf("Deleted all %d learned messages.", deleted))
}

func handleClearBeforeCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	handleClearRange(h, s, i, "before", h.store.ClearBefore)
}

func handleClearAfterCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	handleClearRange(h, s, i, "after", h.store.ClearAfter)
}

func handleClearRange(h *Handler, s Session, i *discordgo.InteractionCreate, direction string, clear func(ctx context.Context, ts string) (int64, error)) {
	ts := stringOption(i, "timestamp")

	deleted, err := clear(h.ctx, ts)
	if errors.Is(err, memory.ErrInvalidTimestamp) {
		respondEphemeral(s, i, fmt.Sprintf("Invalid timestamp %q. Use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS.", ts))
		return
	}
	if err != nil {
		log.Printf("Error clearing messages %s %s: %v", direction, ts, err)
		respondEphemeral(s, i, errorResponse)
		return
	}

	log.Printf("Owner cleared %d learned messages %s %s", deleted, direction, ts)
	respondEphemeral(s, i, fmt.Sprintf("Deleted %d messages from %s %s.", deleted, direction, ts))
}

func handlePullVisionModelCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	if h.provisioner == nil {
		respondEphemeral(s, i, "Model provisioning is not available with this backend.")
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("Error deferring pull_vision_model response: %v", err)
		return
	}

	model := h.config.VisionModel
	log.Printf("Pulling vision model %s", model)

	content := fmt.Sprintf("Vision model `%s` is ready.", model)
	if err := h.provisioner.PullModel(h.ctx, model); err != nil {
		log.Printf("Error pulling vision model %s: %v", model, err)
		content = fmt.Sprintf("Failed to pull `%s`: %v", model, err)
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		log.Printf("Error editing pull_vision_model response: %v", err)
	}
}

func handleVisionCommand(h *Handler, s Session, i *discordgo.InteractionCreate) {
	enabled := boolOption(i, "enabled")
	if err := h.store.SetSetting(h.ctx, memory.SettingVisionEnabled, strconv.FormatBool(enabled)); err != nil {
		log.Printf("Error saving vision setting: %v", err)
		respondEphemeral(s, i, errorResponse)
		return
	}

	status := "disabled"
	if enabled {
		status = "enabled"
	}
	respondEphemeral(s, i, "Image reactions are now **"+status+"**.")
}

// InteractionCreate handles all slash command interactions
func (h *Handler) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.HandleInteraction(&DiscordSession{s}, i)
}

func (h *Handler) HandleInteraction(s Session, i *discordgo.InteractionCreate) {
	// Only handle application commands (slash commands)
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	commandName := i.ApplicationCommandData().Name

	if handler, ok := SlashCommandHandlers[commandName]; ok {
		handler(h, s, i)
	} else {
		log.Printf("Unknown slash command: %s", commandName)
	}
}

// RegisterSlashCommands registers all slash commands with Discord
func RegisterSlashCommands(s *discordgo.Session, guildID string) ([]*discordgo.ApplicationCommand, error) {
	log.Println("Registering slash commands...")

	registeredCommands := make([]*discordgo.ApplicationCommand, len(SlashCommands))

	for i, cmd := range SlashCommands {
		// Register globally (guildID = "") or for a specific guild
		registeredCmd, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, cmd)
		if err != nil {
			log.Printf("Cannot create '%s' command: %v", cmd.Name, err)
			return nil, err
		}
		registeredCommands[i] = registeredCmd
		log.Printf("Registered command: %s", cmd.Name)
	}

	return registeredCommands, nil
}

// UnregisterSlashCommands removes all registered slash commands
func UnregisterSlashCommands(s *discordgo.Session, guildID string, commands []*discordgo.ApplicationCommand) error {
	log.Println("Unregistering slash commands...")

	for _, cmd := range commands {
		err := s.ApplicationCommandDelete(s.State.User.ID, guildID, cmd.ID)
		if err != nil {
			log.Printf("Cannot delete '%s' command: %v", cmd.Name, err)
			return err
		}
		log.Printf("Unregistered command: %s", cmd.Name)
	}

	return nil
}
