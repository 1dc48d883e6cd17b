package openaiapi

import (
	"context"
	"errors"

	"shadybot/pkg/brain"
)

var ErrPullUnsupported = errors.New("model pulls are not supported by the openai provider")

// Adapter wraps Client to implement brain.Model and bot.ModelProvisioner
type Adapter struct {
	client *Client
}

func NewAdapter(baseURL, apiKey string) *Adapter {
	return &Adapter{
		client: NewClient(baseURL, apiKey),
	}
}

// Chat implements brain.Model
func (a *Adapter) Chat(ctx context.Context, req brain.ChatRequest) (string, error) {
	return a.client.Chat(ctx, req.Model, req.System, req.User, req.Images, req.Temperature)
}

// PullModel implements bot.ModelProvisioner
func (a *Adapter) PullModel(ctx context.Context, model string) error {
	return ErrPullUnsupported
}
