package ollama

import (
	"context"
	"encoding/base64"

	"shadybot/pkg/brain"
)

// Adapter wraps Client to implement brain.Model and bot.ModelProvisioner
type Adapter struct {
	client *Client
}

func NewAdapter(baseURL string) *Adapter {
	return &Adapter{
		client: NewClient(baseURL),
	}
}

// Chat implements brain.Model
func (a *Adapter) Chat(ctx context.Context, req brain.ChatRequest) (string, error) {
	user := Message{Role: "user", Content: req.User}
	for _, img := range req.Images {
		user.Images = append(user.Images, base64.StdEncoding.EncodeToString(img))
	}

	return a.client.Chat(ctx, ChatRequest{
		Model: req.Model,
		Messages: []Message{
			{Role: "system", Content: req.System},
			user,
		},
		Options: &Options{Temperature: req.Temperature},
	})
}

// PullModel implements bot.ModelProvisioner
func (a *Adapter) PullModel(ctx context.Context, model string) error {
	return a.client.Pull(ctx, model)
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
