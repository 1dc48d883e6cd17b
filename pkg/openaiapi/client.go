package openaiapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultMaxTokens = 256

// Client talks to any OpenAI-compatible chat/completions endpoint.
type Client struct {
	client    openai.Client
	maxTokens int64
}

func NewClient(baseURL, apiKey string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey == "" {
		log.Println("Warning: No OpenAI API key provided")
	}

	return &Client{
		client:    openai.NewClient(opts...),
		maxTokens: defaultMaxTokens,
	}
}

// Chat sends a system and user turn. Images are attached to the user turn as data URLs.
func (c *Client) Chat(ctx context.Context, model, system, user string, images [][]byte, temperature float64) (string, error) {
	userMessage := openai.UserMessage(user)
	if len(images) > 0 {
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
		parts = append(parts, openai.TextContentPart(user))
		for _, img := range images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(img),
			}))
		}
		userMessage = openai.UserMessage(parts)
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			userMessage,
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return resp.Choices[0].Message.Content, nil
}

func dataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
