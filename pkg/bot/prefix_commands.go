package bot

import (
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const commandPrefix = "!"

// PrefixCommandHandlers maps "!name" commands to their handlers
var PrefixCommandHandlers = map[string]func(h *Handler, s Session, m *discordgo.MessageCreate){
	"help": handleHelpCommand,
}

func (h *Handler) dispatchPrefixCommand(s Session, m *discordgo.MessageCreate) {
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, commandPrefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(content, commandPrefix))
	if len(fields) == 0 {
		return
	}

	if handler, ok := PrefixCommandHandlers[strings.ToLower(fields[0])]; ok {
		handler(h, s, m)
	}
}

func handleHelpCommand(h *Handler, s Session, m *discordgo.MessageCreate) {
	var b strings.Builder
	for _, cmd := range SlashCommands {
		b.WriteString("`/" + cmd.Name + "` " + cmd.Description + "\n")
	}

	embed := &discordgo.MessageEmbed{
		Title:       h.config.Name + " commands",
		Description: b.String(),
		Color:       0x3498db,
	}
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		log.Printf("Error sending help: %v", err)
	}
}
