package bot

import (
	"context"
	"log"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"shadybot/pkg/brain"
	"shadybot/pkg/memory"
	"shadybot/pkg/vision"

	"github.com/bwmarrin/discordgo"
)

type Config struct {
	Name           string
	OwnerID        string
	PeerBotIDs     []string
	ResponseChance float64
	SampleSize     int
	HistorySize    int
	VisionModel    string
	VisionDefault  bool
	MaxImageBytes  int64
}

type Handler struct {
	store       memory.Store
	brain       Generator
	fetcher     ImageFetcher
	provisioner ModelProvisioner
	config      Config
	botID       string
	roll        func() float64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// triggers are the reasons a message may get a reply.
type triggers struct {
	mentioned bool
	random    bool
	peerBot   bool
}

func (t triggers) any() bool {
	return t.mentioned || t.random || t.peerBot
}

func NewHandler(store memory.Store, generator Generator, fetcher ImageFetcher, provisioner ModelProvisioner, config Config) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		store:       store,
		brain:       generator,
		fetcher:     fetcher,
		provisioner: provisioner,
		config:      config,
		roll:        rand.Float64,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (h *Handler) SetBotID(id string) {
	h.botID = id
}

func (h *Handler) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	h.HandleMessage(&DiscordSession{s}, m)
}

// HandleMessage runs the learning and reply pipeline for one message.
// Everything up to the trigger decision runs on the caller's goroutine;
// image fetching, generation and sending run in the background.
func (h *Handler) HandleMessage(s Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == h.botID {
		return
	}
	defer h.dispatchPrefixCommand(s, m)

	optedIn := h.isOptedIn(m.Author.ID)

	text := strings.TrimSpace(m.ContentWithMentionsReplaced())
	if optedIn && text != "" {
		h.learn(m.Author.ID, text)
	}

	t := triggers{
		mentioned: h.isMentioned(m),
		random:    h.roll() < h.config.ResponseChance,
		peerBot:   slices.Contains(h.config.PeerBotIDs, m.Author.ID),
	}

	var candidates []vision.Attachment
	if optedIn && h.fetcher != nil {
		candidates = h.imageCandidates(m.Attachments)
		if len(candidates) > 0 && !h.visionEnabled() {
			candidates = nil
		}
	}

	if !t.any() && len(candidates) == 0 {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.respond(s, m, text, t, candidates)
	}()
}

func (h *Handler) respond(s Session, m *discordgo.MessageCreate, text string, t triggers, candidates []vision.Attachment) {
	var images [][]byte
	if len(candidates) > 0 {
		for _, img := range h.fetcher.FetchAll(h.ctx, candidates) {
			images = append(images, img.Data)
		}
	}

	// A message whose only trigger was images needs at least one to survive fetching
	if !t.any() && len(images) == 0 {
		return
	}

	mc, ok := h.gatherMessageContext(s, m)
	if !ok {
		return
	}

	stopTyping := h.startTyping(s, m.ChannelID)
	reply, ok := h.brain.Generate(h.ctx, brain.Request{
		Snippets: mc.Snippets,
		History:  mc.History,
		Trigger:  text,
		Images:   images,
	})
	stopTyping()

	if !ok || h.ctx.Err() != nil {
		return
	}

	h.sendResponse(s, m, reply, t.mentioned)
}

func (h *Handler) isOptedIn(userID string) bool {
	optedIn, err := h.store.IsOptedIn(h.ctx, userID)
	if err != nil {
		log.Printf("Error checking opt-in for %s: %v", userID, err)
		return false
	}
	return optedIn
}

func (h *Handler) learn(userID, text string) {
	logged, err := h.store.LogMessage(h.ctx, userID, text)
	if err != nil {
		log.Printf("Error logging message for %s: %v", userID, err)
		return
	}
	if logged {
		log.Printf("Learned message from %s", userID)
	}
}

// isMentioned is true when the bot is addressed directly, not through @everyone.
func (h *Handler) isMentioned(m *discordgo.MessageCreate) bool {
	if m.MentionEveryone {
		return false
	}
	for _, user := range m.Mentions {
		if user.ID == h.botID {
			return true
		}
	}
	return false
}

// Close cancels in-flight replies and waits for them to finish.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Handler) WaitForReady() {
	h.wg.Wait()
}
