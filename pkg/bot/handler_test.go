package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"shadybot/pkg/brain"
	"shadybot/pkg/memory"
	"shadybot/pkg/vision"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBotID   = "bot_id"
	testOwnerID = "owner_id"
	testPeerBot = "peer_bot_id"
	testChannel = "channel_1"
)

// MockSession implements Session for testing
type MockSession struct {
	mu           sync.Mutex
	SentMessages []string
	Replies      []string
	Embeds       []*discordgo.MessageEmbed
	TypingCalls  int
	Responses    []*discordgo.InteractionResponse
	Edits        []string
	History      []*discordgo.Message
	HistoryErr   error
	SendErr      error
}

func (m *MockSession) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	m.SentMessages = append(m.SentMessages, content)
	return &discordgo.Message{ID: "mock_msg_id", ChannelID: channelID, Content: content}, nil
}

func (m *MockSession) ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	m.Replies = append(m.Replies, content)
	return &discordgo.Message{ID: "mock_msg_id", ChannelID: channelID, Content: content}, nil
}

func (m *MockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Embeds = append(m.Embeds, embed)
	return &discordgo.Message{ID: "mock_msg_id", ChannelID: channelID}, nil
}

func (m *MockSession) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TypingCalls++
	return nil
}

func (m *MockSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HistoryErr != nil {
		return nil, m.HistoryErr
	}
	if len(m.History) > limit {
		return m.History[:limit], nil
	}
	return m.History, nil
}

func (m *MockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return nil
}

func (m *MockSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if newresp.Content != nil {
		m.Edits = append(m.Edits, *newresp.Content)
	}
	return &discordgo.Message{ID: "mock_msg_id"}, nil
}

type mockGenerator struct {
	mu           sync.Mutex
	GenerateFunc func(ctx context.Context, req brain.Request) (string, bool)
	Requests     []brain.Request
}

func (m *mockGenerator) Generate(ctx context.Context, req brain.Request) (string, bool) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "bro what", true
}

type mockFetcher struct {
	mu      sync.Mutex
	Fetched [][]vision.Attachment
	Result  func(attachments []vision.Attachment) []vision.Image
}

func (m *mockFetcher) FetchAll(ctx context.Context, attachments []vision.Attachment) []vision.Image {
	m.mu.Lock()
	m.Fetched = append(m.Fetched, attachments)
	m.mu.Unlock()
	if m.Result != nil {
		return m.Result(attachments)
	}
	images := make([]vision.Image, len(attachments))
	for i, a := range attachments {
		images[i] = vision.Image{Filename: a.Filename, Data: []byte(a.Filename)}
	}
	return images
}

type mockProvisioner struct {
	PullFunc func(ctx context.Context, model string) error
	Pulled   []string
}

func (m *mockProvisioner) PullModel(ctx context.Context, model string) error {
	m.Pulled = append(m.Pulled, model)
	if m.PullFunc != nil {
		return m.PullFunc(ctx, model)
	}
	return nil
}

type testEnv struct {
	handler     *Handler
	store       *memory.SQLiteStore
	session     *MockSession
	generator   *mockGenerator
	fetcher     *mockFetcher
	provisioner *mockProvisioner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := memory.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:       store,
		session:     &MockSession{},
		generator:   &mockGenerator{},
		fetcher:     &mockFetcher{},
		provisioner: &mockProvisioner{},
	}
	env.handler = NewHandler(store, env.generator, env.fetcher, env.provisioner, Config{
		Name:           "Shady",
		OwnerID:        testOwnerID,
		PeerBotIDs:     []string{testPeerBot},
		ResponseChance: 0.05,
		SampleSize:     15,
		HistorySize:    10,
		VisionModel:    "llama3.2-vision",
		VisionDefault:  true,
		MaxImageBytes:  1024 * 1024,
	})
	env.handler.SetBotID(testBotID)
	// Never roll a random reply unless a test asks for one
	env.handler.roll = func() float64 { return 1 }
	t.Cleanup(env.handler.Close)
	return env
}

func (e *testEnv) optIn(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, e.store.SetOptIn(context.Background(), userID, true))
}

func (e *testEnv) seedArchive(t *testing.T, messages ...string) {
	t.Helper()
	e.optIn(t, "seed_user")
	for _, msg := range messages {
		_, err := e.store.LogMessage(context.Background(), "seed_user", msg)
		require.NoError(t, err)
	}
}

func (e *testEnv) totalMessages(t *testing.T) int64 {
	t.Helper()
	stats, err := e.store.Stats(context.Background(), 3)
	require.NoError(t, err)
	return stats.TotalMessages
}

func (e *testEnv) send(m *discordgo.MessageCreate) {
	e.handler.HandleMessage(e.session, m)
	e.handler.WaitForReady()
}

var messageCounter int

func newMessage(authorID, content string) *discordgo.MessageCreate {
	messageCounter++
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        fmt.Sprintf("msg_%d", messageCounter),
			ChannelID: testChannel,
			GuildID:   "guild_1",
			Content:   content,
			Author:    &discordgo.User{ID: authorID, Username: authorID},
		},
	}
}

func mentionBot(m *discordgo.MessageCreate) *discordgo.MessageCreate {
	m.Mentions = append(m.Mentions, &discordgo.User{ID: testBotID, Username: "Shady"})
	m.Content = "<@" + testBotID + "> " + m.Content
	return m
}

func TestHandleMessage_NeverOptedInIsNeverArchived(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 50; i++ {
		env.send(newMessage("user_a", "hello world"))
	}

	assert.Equal(t, int64(0), env.totalMessages(t))
	assert.Empty(t, env.generator.Requests)
}

func TestHandleMessage_OptedInMessageIsArchived(t *testing.T) {
	env := newTestEnv(t)

	env.handler.HandleInteraction(env.session, newInteraction("user_a", "allow_learning", boolOpt("allow", true)))
	env.send(newMessage("user_a", "the sky is blue"))

	stats, err := env.store.Stats(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMessages)
	require.Len(t, stats.TopContributors, 1)
	assert.Equal(t, memory.Contributor{UserID: "user_a", Messages: 1}, stats.TopContributors[0])

	sample, err := env.store.SampleMessages(context.Background(), 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"the sky is blue"}, sample)
}

func TestHandleMessage_MentionMarkupIsReplacedBeforeArchiving(t *testing.T) {
	env := newTestEnv(t)
	env.optIn(t, "user_a")

	m := newMessage("user_a", "hi <@friend>")
	m.Mentions = []*discordgo.User{{ID: "friend", Username: "friend_name"}}
	env.send(m)

	sample, err := env.store.SampleMessages(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi @friend_name"}, sample)
}

func TestHandleMessage_BlankMessageIsNotArchived(t *testing.T) {
	env := newTestEnv(t)
	env.optIn(t, "user_a")

	env.send(newMessage("user_a", "   "))
	assert.Equal(t, int64(0), env.totalMessages(t))
}

func TestHandleMessage_IgnoresOwnMessages(t *testing.T) {
	env := newTestEnv(t)
	env.optIn(t, testBotID)
	env.seedArchive(t, "vibe")
	env.handler.roll = func() float64 { return 0 }

	env.send(newMessage(testBotID, "i am the bot"))

	assert.Equal(t, int64(1), env.totalMessages(t))
	assert.Empty(t, env.generator.Requests)
	assert.Empty(t, env.session.SentMessages)
}

func TestHandleMessage_MentionRepliesToMessage(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "the sky is blue")

	env.send(mentionBot(newMessage("user_a", "what color is the sky")))

	require.Len(t, env.session.Replies, 1)
	assert.Equal(t, "bro what", env.session.Replies[0])
	assert.Empty(t, env.session.SentMessages)
	assert.GreaterOrEqual(t, env.session.TypingCalls, 1)

	require.Len(t, env.generator.Requests, 1)
	req := env.generator.Requests[0]
	assert.Equal(t, []string{"the sky is blue"}, req.Snippets)
	assert.Equal(t, "@Shady what color is the sky", req.Trigger)
	assert.Empty(t, req.Images)
}

func TestHandleMessage_EveryoneMentionIsNotAMention(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")

	m := mentionBot(newMessage("user_a", "@everyone hi"))
	m.MentionEveryone = true
	env.send(m)

	assert.Empty(t, env.generator.Requests)
	assert.Empty(t, env.session.Replies)
}

func TestHandleMessage_RandomTriggerPostsToChannel(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.handler.roll = func() float64 { return 0.01 }

	env.send(newMessage("user_a", "anyone here"))

	require.Len(t, env.session.SentMessages, 1)
	assert.Empty(t, env.session.Replies)
}

func TestHandleMessage_RandomRollAboveChanceStaysQuiet(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.handler.roll = func() float64 { return 0.05 }

	env.send(newMessage("user_a", "anyone here"))

	assert.Empty(t, env.generator.Requests)
}

func TestHandleMessage_PeerBotTriggersReply(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")

	env.send(newMessage(testPeerBot, "beep boop"))

	require.Len(t, env.session.SentMessages, 1)
	assert.Empty(t, env.session.Replies)
}

func TestHandleMessage_EmptyArchiveNeverReplies(t *testing.T) {
	env := newTestEnv(t)

	env.send(mentionBot(newMessage("user_a", "say something")))

	assert.Empty(t, env.generator.Requests)
	assert.Empty(t, env.session.Replies)
	assert.Empty(t, env.session.SentMessages)
}

func TestHandleMessage_ModelFailureSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.generator.GenerateFunc = func(ctx context.Context, req brain.Request) (string, bool) {
		return "", false
	}

	env.send(mentionBot(newMessage("user_a", "hello?")))

	assert.Len(t, env.generator.Requests, 1)
	assert.Empty(t, env.session.Replies)
	assert.Empty(t, env.session.SentMessages)
}

func TestHandleMessage_SendFailureIsLogged(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.session.SendErr = errors.New("missing permissions")

	assert.NotPanics(t, func() {
		env.send(mentionBot(newMessage("user_a", "hello?")))
	})
}

func TestHandleMessage_HistoryIsOldestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.session.History = []*discordgo.Message{
		{ID: "3", Content: "third", Author: &discordgo.User{ID: "u3", Username: "carol"}},
		{ID: "2", Content: "", Author: &discordgo.User{ID: "u2", Username: "bob"}},
		{ID: "1", Content: "first", Author: &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"}},
	}

	env.send(mentionBot(newMessage("user_a", "recap?")))

	require.Len(t, env.generator.Requests, 1)
	assert.Equal(t, []string{"Alice: first", "carol: third"}, env.generator.Requests[0].History)
}

func TestHandleMessage_HistoryFailureStillReplies(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.session.HistoryErr = errors.New("no access")

	env.send(mentionBot(newMessage("user_a", "hi")))

	require.Len(t, env.generator.Requests, 1)
	assert.Empty(t, env.generator.Requests[0].History)
	assert.Len(t, env.session.Replies, 1)
}

func imageAttachment(name string, size int) *discordgo.MessageAttachment {
	return &discordgo.MessageAttachment{
		ID:          name,
		URL:         "https://cdn.discordapp.com/attachments/" + name,
		Filename:    name,
		ContentType: "image/png",
		Size:        size,
	}
}

func TestHandleMessage_ImageFromOptedInUserTriggersVision(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.optIn(t, "user_a")

	m := newMessage("user_a", "look")
	m.Attachments = []*discordgo.MessageAttachment{
		imageAttachment("cat.png", 200*1024),
		{ID: "doc", Filename: "notes.txt", ContentType: "text/plain", Size: 10},
	}
	env.send(m)

	require.Len(t, env.fetcher.Fetched, 1)
	require.Len(t, env.fetcher.Fetched[0], 1)
	assert.Equal(t, "cat.png", env.fetcher.Fetched[0][0].Filename)

	require.Len(t, env.generator.Requests, 1)
	assert.Equal(t, [][]byte{[]byte("cat.png")}, env.generator.Requests[0].Images)
	assert.Len(t, env.session.SentMessages, 1)
}

func TestHandleMessage_OversizedImageIsSkippedAndDoesNotTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.optIn(t, "user_a")

	m := newMessage("user_a", "huge pic")
	m.Attachments = []*discordgo.MessageAttachment{imageAttachment("huge.png", 2*1024*1024)}
	env.send(m)

	assert.Empty(t, env.fetcher.Fetched)
	assert.Empty(t, env.generator.Requests)
	assert.Empty(t, env.session.SentMessages)
}

func TestHandleMessage_OversizedImageWithMentionRepliesWithoutImages(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.optIn(t, "user_a")

	m := mentionBot(newMessage("user_a", "rate this"))
	m.Attachments = []*discordgo.MessageAttachment{
		imageAttachment("huge.png", 2*1024*1024),
		imageAttachment("small.png", 1024),
	}
	env.send(m)

	require.Len(t, env.fetcher.Fetched, 1)
	require.Len(t, env.fetcher.Fetched[0], 1)
	assert.Equal(t, "small.png", env.fetcher.Fetched[0][0].Filename)
	require.Len(t, env.generator.Requests, 1)
	assert.Len(t, env.generator.Requests[0].Images, 1)
	assert.Len(t, env.session.Replies, 1)
}

func TestHandleMessage_FailedFetchDoesNotTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.optIn(t, "user_a")
	env.fetcher.Result = func(attachments []vision.Attachment) []vision.Image { return nil }

	m := newMessage("user_a", "look")
	m.Attachments = []*discordgo.MessageAttachment{imageAttachment("cat.png", 1024)}
	env.send(m)

	assert.Len(t, env.fetcher.Fetched, 1)
	assert.Empty(t, env.generator.Requests)
}

func TestHandleMessage_ImageFromNonOptedInUserIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")

	m := newMessage("user_a", "look")
	m.Attachments = []*discordgo.MessageAttachment{imageAttachment("cat.png", 1024)}
	env.send(m)

	assert.Empty(t, env.fetcher.Fetched)
	assert.Empty(t, env.generator.Requests)
}

func TestHandleMessage_VisionDisabledIgnoresImages(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")
	env.optIn(t, "user_a")
	require.NoError(t, env.store.SetSetting(context.Background(), memory.SettingVisionEnabled, "False"))

	m := newMessage("user_a", "look")
	m.Attachments = []*discordgo.MessageAttachment{imageAttachment("cat.png", 1024)}
	env.send(m)

	assert.Empty(t, env.fetcher.Fetched)
	assert.Empty(t, env.generator.Requests)
}

func TestHandleMessage_CloseAbandonsPendingGeneration(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchive(t, "vibe")

	started := make(chan struct{})
	env.generator.GenerateFunc = func(ctx context.Context, req brain.Request) (string, bool) {
		close(started)
		<-ctx.Done()
		return "too late", true
	}

	env.handler.HandleMessage(env.session, mentionBot(newMessage("user_a", "hi")))
	<-started

	done := make(chan struct{})
	go func() {
		env.handler.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Empty(t, env.session.Replies)
}

func TestHandleMessage_HelpCommand(t *testing.T) {
	env := newTestEnv(t)

	env.send(newMessage("user_a", "!help"))

	require.Len(t, env.session.Embeds, 1)
	assert.Contains(t, env.session.Embeds[0].Description, "/allow_learning")
	assert.Contains(t, env.session.Embeds[0].Description, "/pull_vision_model")
	assert.Empty(t, env.generator.Requests)
}

func TestHandleMessage_UnknownPrefixIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.send(newMessage("user_a", "!dance"))
	env.send(newMessage("user_a", "!"))

	assert.Empty(t, env.session.Embeds)
	assert.Empty(t, env.session.SentMessages)
}

func TestIsImageAttachment(t *testing.T) {
	tests := []struct {
		name       string
		attachment *discordgo.MessageAttachment
		want       bool
	}{
		{"PNG", &discordgo.MessageAttachment{ContentType: "image/png"}, true},
		{"JPEG", &discordgo.MessageAttachment{ContentType: "image/jpeg"}, true},
		{"WebP with params", &discordgo.MessageAttachment{ContentType: "image/webp; charset=binary"}, true},
		{"GIF", &discordgo.MessageAttachment{ContentType: "image/gif"}, true},
		{"SVG", &discordgo.MessageAttachment{ContentType: "image/svg+xml"}, false},
		{"Video", &discordgo.MessageAttachment{ContentType: "video/mp4"}, false},
		{"Extension fallback", &discordgo.MessageAttachment{Filename: "Photo.JPG"}, true},
		{"Unknown extension", &discordgo.MessageAttachment{Filename: "notes.txt"}, false},
		{"No hints", &discordgo.MessageAttachment{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isImageAttachment(tt.attachment))
		})
	}
}
