package brain

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// ChatRequest is a single system + user exchange with an optional set of
// encoded images attached to the user turn.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Images      [][]byte
	Temperature float64
}

// Model is a chat-completion backend.
type Model interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

type Config struct {
	Name        string
	Creator     string
	TextModel   string
	VisionModel string
	Temperature float64
	Timeout     time.Duration
}

// Request carries everything one generation needs. History lines are
// already rendered as "author: text", oldest first.
type Request struct {
	Snippets []string
	History  []string
	Trigger  string
	Images   [][]byte
}

type Brain struct {
	model  Model
	config Config
}

func New(model Model, config Config) *Brain {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Brain{
		model:  model,
		config: config,
	}
}

// Generate returns the cleaned reply and true, or "" and false when the
// model failed or produced nothing usable.
func (b *Brain) Generate(ctx context.Context, req Request) (string, bool) {
	chat := ChatRequest{
		Model:       b.config.TextModel,
		System:      b.SystemPrompt(req.Snippets, req.History),
		User:        userPrompt(req.Trigger, len(req.Images)),
		Temperature: b.config.Temperature,
	}
	if len(req.Images) > 0 {
		chat.Model = b.config.VisionModel
		chat.Images = req.Images
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := b.model.Chat(ctx, chat)
	if err != nil {
		log.Printf("Error generating response with %s: %v", chat.Model, err)
		return "", false
	}

	reply := Clean(raw, b.config.Name)
	if reply == "" {
		log.Printf("Model %s returned an empty response", chat.Model)
		return "", false
	}

	log.Printf("Generated response with %s in %v", chat.Model, time.Since(start).Round(time.Millisecond))
	return reply, true
}

// SystemPrompt renders the persona instructions for the given context.
func (b *Brain) SystemPrompt(snippets, history []string) string {
	vibe := make([]string, len(snippets))
	for i, s := range snippets {
		vibe[i] = "- " + s
	}

	creator := ""
	if b.config.Creator != "" {
		creator = "You were created by: " + b.config.Creator
	}

	emojiRule := emojiForbidden
	if containsEmoji(snippets) {
		emojiRule = emojiAllowed
	}

	return fmt.Sprintf(SystemPrompt,
		b.config.Name,
		creator,
		strings.Join(vibe, "\n"),
		strings.Join(history, "\n"),
		emojiRule,
	)
}

func userPrompt(trigger string, images int) string {
	trigger = strings.TrimSpace(trigger)

	if images > 0 {
		what := "an image"
		if images > 1 {
			what = fmt.Sprintf("%d images", images)
		}
		prompt := fmt.Sprintf(promptImages, what)
		if trigger != "" {
			prompt += fmt.Sprintf(promptImageMsg, trigger)
		}
		return prompt
	}

	if trigger != "" {
		return fmt.Sprintf(promptTrigger, trigger)
	}
	return promptOnVibe
}

// thinkRegex matches <think>...</think> content, including newlines.
var thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// customEmojiRegex matches Discord custom emoji markup such as <:pog:1234> or <a:dance:1234>.
var customEmojiRegex = regexp.MustCompile(`<a?:\w+:\d+>`)

// Clean strips reasoning blocks, surrounding whitespace, one layer of
// matching quotes and a leading "<name>:" prefix from model output.
func Clean(text, name string) string {
	text = thinkRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' || first == '\'') && first == last {
			text = strings.TrimSpace(text[1 : len(text)-1])
		}
	}

	if name != "" {
		for _, prefix := range []string{"@" + name + ":", name + ":"} {
			if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
				text = strings.TrimSpace(text[len(prefix):])
				break
			}
		}
	}

	return text
}

func containsEmoji(snippets []string) bool {
	for _, s := range snippets {
		if customEmojiRegex.MatchString(s) {
			return true
		}
		for _, r := range s {
			if isEmoji(r) {
				return true
			}
		}
	}
	return false
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}
