package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

const (
	errorResponse     = "Ugh, something went wrong on my end... Try again later?"
	ownerOnlyResponse = "Only the bot owner can use this command."
)

// getUserFromInteraction extracts the user ID and name from an interaction
// It handles both guild (Member) and DM (User) contexts
// Returns userID, userName, and error if user cannot be determined
func getUserFromInteraction(i *discordgo.InteractionCreate) (string, string, error) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, displayName(i.Member.User), nil
	}

	if i.User != nil {
		return i.User.ID, displayName(i.User), nil
	}

	return "", "", fmt.Errorf("could not determine user from interaction")
}

// ownerOnly rejects callers other than the configured owner before the
// wrapped handler can touch storage.
func ownerOnly(next func(h *Handler, s Session, i *discordgo.InteractionCreate)) func(h *Handler, s Session, i *discordgo.InteractionCreate) {
	return func(h *Handler, s Session, i *discordgo.InteractionCreate) {
		userID, _, err := getUserFromInteraction(i)
		if err != nil || !h.isOwner(userID) {
			log.Printf("Rejected owner-only command %s from %s", i.ApplicationCommandData().Name, userID)
			respondEphemeral(s, i, ownerOnlyResponse)
			return
		}
		next(h, s, i)
	}
}

func (h *Handler) isOwner(userID string) bool {
	return h.config.OwnerID != "" && userID == h.config.OwnerID
}

func respondEphemeral(s Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral, // Only visible to the user who ran the command
		},
	})
	if err != nil {
		log.Printf("Error responding to %s command: %v", i.ApplicationCommandData().Name, err)
	}
}

func findOption(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

func boolOption(i *discordgo.InteractionCreate, name string) bool {
	opt := findOption(i, name)
	if opt == nil || opt.Type != discordgo.ApplicationCommandOptionBoolean {
		return false
	}
	return opt.BoolValue()
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	opt := findOption(i, name)
	if opt == nil || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return opt.StringValue()
}
