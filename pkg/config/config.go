package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bot struct {
		Name           string   `yaml:"name"`
		Creator        string   `yaml:"creator"`
		ResponseChance float64  `yaml:"response_chance"`
		OwnerID        string   `yaml:"owner_id"`
		PeerBotIDs     []string `yaml:"peer_bot_ids"`
	} `yaml:"bot"`
	Context struct {
		SampleSize  int `yaml:"sample_size"`
		HistorySize int `yaml:"history_size"`
	} `yaml:"context"`
	Model struct {
		Provider       string  `yaml:"provider"`
		BaseURL        string  `yaml:"base_url"`
		TextModel      string  `yaml:"text_model"`
		VisionModel    string  `yaml:"vision_model"`
		Temperature    float64 `yaml:"temperature"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"model"`
	Vision struct {
		DefaultEnabled       bool  `yaml:"default_enabled"`
		MaxImageBytes        int64 `yaml:"max_image_bytes"`
		MaxDimension         int   `yaml:"max_dimension"`
		MaxConcurrentFetches int   `yaml:"max_concurrent_fetches"`
	} `yaml:"vision"`
	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`
}

// Defaults returns the configuration used when no config.yml is present.
func Defaults() *Config {
	config := &Config{}
	config.Bot.Name = "Shady"
	config.Bot.ResponseChance = 0.05
	config.Context.SampleSize = 15
	config.Context.HistorySize = 10
	config.Model.Provider = "ollama"
	config.Model.BaseURL = "http://localhost:11434"
	config.Model.TextModel = "llama3.2:3b"
	config.Model.VisionModel = "llama3.2-vision"
	config.Model.Temperature = 0.9
	config.Model.TimeoutSeconds = 60
	config.Vision.DefaultEnabled = true
	config.Vision.MaxImageBytes = 1024 * 1024
	config.Vision.MaxDimension = 1024
	config.Vision.MaxConcurrentFetches = 4
	config.Storage.Driver = "sqlite"
	config.Storage.Path = "bot_data.db"
	return config
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := Defaults()

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return config, nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(file, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides config values with deployment environment variables.
// Only variables that are set take effect.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("RESPONSE_CHANCE"); v != "" {
		chance, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RESPONSE_CHANCE %q: %w", v, err)
		}
		c.Bot.ResponseChance = chance
	}
	if v := getenv("OWNER_ID"); v != "" {
		c.Bot.OwnerID = v
	}
	if v := getenv("PEER_BOT_IDS"); v != "" {
		c.Bot.PeerBotIDs = splitList(v)
	}
	if v := getenv("MODEL_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := getenv("OLLAMA_HOST"); v != "" {
		c.Model.BaseURL = v
	}
	if v := getenv("OLLAMA_MODEL"); v != "" {
		c.Model.TextModel = v
	}
	if v := getenv("OLLAMA_VISION_MODEL"); v != "" {
		c.Model.VisionModel = v
	}
	if v := getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv("DATABASE_PATH"); v != "" {
		c.Storage.Path = v
	}

	return nil
}

// Validate rejects values the bot cannot run with.
func (c *Config) Validate() error {
	if c.Bot.ResponseChance < 0 || c.Bot.ResponseChance > 1 {
		return fmt.Errorf("response_chance must be between 0 and 1, got %v", c.Bot.ResponseChance)
	}
	if c.Context.SampleSize <= 0 {
		return fmt.Errorf("context.sample_size must be positive")
	}
	if c.Context.HistorySize < 0 {
		return fmt.Errorf("context.history_size must not be negative")
	}
	if c.Vision.MaxImageBytes <= 0 {
		return fmt.Errorf("vision.max_image_bytes must be positive")
	}
	switch c.Model.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown model provider: %s", c.Model.Provider)
	}
	switch c.Storage.Driver {
	case "sqlite", "surreal":
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
