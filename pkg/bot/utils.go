package bot

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// sendResponse replies to m when the bot was mentioned and posts to the
// channel otherwise.
func (h *Handler) sendResponse(s Session, m *discordgo.MessageCreate, content string, asReply bool) {
	var err error
	if asReply {
		_, err = s.ChannelMessageSendReply(m.ChannelID, content, m.Reference())
	} else {
		_, err = s.ChannelMessageSend(m.ChannelID, content)
	}

	if err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
