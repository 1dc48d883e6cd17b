package bot

import (
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// MessageContext holds the context gathered for one reply
type MessageContext struct {
	Snippets []string
	History  []string
}

// gatherMessageContext samples the archive and reads channel history in
// parallel. It reports false when there is nothing learned to draw from.
func (h *Handler) gatherMessageContext(s Session, m *discordgo.MessageCreate) (MessageContext, bool) {
	var mc MessageContext
	var sampleErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		mc.Snippets, sampleErr = h.store.SampleMessages(h.ctx, h.config.SampleSize)
	}()

	go func() {
		defer wg.Done()
		mc.History = h.recentHistory(s, m)
	}()

	wg.Wait()

	if sampleErr != nil {
		log.Printf("Error sampling learned messages: %v", sampleErr)
		return mc, false
	}
	if len(mc.Snippets) == 0 {
		log.Printf("Nothing learned yet, skipping reply in %s", m.ChannelID)
		return mc, false
	}
	return mc, true
}

// recentHistory returns up to HistorySize messages before m, oldest first,
// rendered as "author: text".
func (h *Handler) recentHistory(s Session, m *discordgo.MessageCreate) []string {
	if h.config.HistorySize <= 0 {
		return nil
	}

	messages, err := s.ChannelMessages(m.ChannelID, h.config.HistorySize, m.ID, "", "")
	if err != nil {
		log.Printf("Error fetching channel history: %v", err)
		return nil
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg == nil || msg.Author == nil || msg.ID == m.ID {
			continue
		}
		content := strings.TrimSpace(msg.ContentWithMentionsReplaced())
		if content == "" {
			continue
		}
		lines = append(lines, displayName(msg.Author)+": "+content)
	}

	// Discord returns newest first
	slices.Reverse(lines)
	return lines
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
