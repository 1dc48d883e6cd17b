package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shadybot/pkg/bot"
	"shadybot/pkg/brain"
	"shadybot/pkg/config"
	"shadybot/pkg/memory"
	"shadybot/pkg/ollama"
	"shadybot/pkg/openaiapi"
	"shadybot/pkg/vision"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
)

func main() {
	// Load config.yml
	cfg, err := config.LoadConfig("config.yml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load .env for secrets
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" || token == "YOUR_BOT_TOKEN_HERE" {
		log.Fatal("Missing required environment variable: DISCORD_TOKEN")
	}
	if cfg.Bot.OwnerID == "" {
		log.Println("OWNER_ID not set, owner-only commands are disabled")
	}

	ctx := context.Background()

	// Initialize Store
	store, err := memory.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// Initialize Model Backend
	model, provisioner := newModelBackend(ctx, cfg)

	generator := brain.New(model, brain.Config{
		Name:        cfg.Bot.Name,
		Creator:     cfg.Bot.Creator,
		TextModel:   cfg.Model.TextModel,
		VisionModel: cfg.Model.VisionModel,
		Temperature: cfg.Model.Temperature,
		Timeout:     time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
	})

	fetcher := vision.NewFetcher(cfg.Vision.MaxImageBytes, cfg.Vision.MaxDimension, cfg.Vision.MaxConcurrentFetches)

	// Initialize Bot Handler
	handler := bot.NewHandler(store, generator, fetcher, provisioner, bot.Config{
		Name:           cfg.Bot.Name,
		OwnerID:        cfg.Bot.OwnerID,
		PeerBotIDs:     cfg.Bot.PeerBotIDs,
		ResponseChance: cfg.Bot.ResponseChance,
		SampleSize:     cfg.Context.SampleSize,
		HistorySize:    cfg.Context.HistorySize,
		VisionModel:    cfg.Model.VisionModel,
		VisionDefault:  cfg.Vision.DefaultEnabled,
		MaxImageBytes:  cfg.Vision.MaxImageBytes,
	})

	// Create Discord Session
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		log.Fatalf("Error creating Discord session: %v", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	// Register Handlers
	dg.AddHandler(handler.MessageCreate)
	dg.AddHandler(handler.InteractionCreate)
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Logged in as %s (ID: %s)", r.User.Username, r.User.ID)
	})

	// Open Connection
	if err := dg.Open(); err != nil {
		log.Fatalf("Error opening connection: %v", err)
	}

	// Set Bot ID in handler (so it can ignore itself)
	handler.SetBotID(dg.State.User.ID)

	// Register slash commands (empty string = global, or specify guild ID for faster testing)
	guildID := os.Getenv("DISCORD_GUILD_ID")
	registeredCommands, err := bot.RegisterSlashCommands(dg, guildID)
	if err != nil {
		log.Fatalf("Error registering slash commands: %v", err)
	}

	// Cleanup function to unregister commands on shutdown
	defer func() {
		if err := bot.UnregisterSlashCommands(dg, guildID, registeredCommands); err != nil {
			log.Printf("Error unregistering slash commands: %v", err)
		}
	}()

	log.Printf("%s is now running. Press CTRL-C to exit.", cfg.Bot.Name)

	// Set Custom Status
	err = dg.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{
			{
				Name:  "Custom Status",
				Type:  discordgo.ActivityTypeCustom,
				State: "learning how you talk",
			},
		},
		Status: "online",
	})
	if err != nil {
		log.Printf("Error setting custom status: %v", err)
	}

	// Wait for signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Println("Shutting down...")
	handler.Close()
	dg.Close()
}

func newModelBackend(ctx context.Context, cfg *config.Config) (brain.Model, bot.ModelProvisioner) {
	switch cfg.Model.Provider {
	case "openai":
		baseURL := os.Getenv("OPENAI_BASE_URL")
		adapter := openaiapi.NewAdapter(baseURL, os.Getenv("OPENAI_API_KEY"))
		log.Printf("Using OpenAI-compatible backend (text: %s, vision: %s)", cfg.Model.TextModel, cfg.Model.VisionModel)
		return adapter, adapter
	default:
		adapter := ollama.NewAdapter(cfg.Model.BaseURL)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := adapter.Ping(pingCtx); err != nil {
			log.Printf("Warning: Ollama at %s is not reachable: %v", cfg.Model.BaseURL, err)
		}
		log.Printf("Using Ollama backend at %s (text: %s, vision: %s)", cfg.Model.BaseURL, cfg.Model.TextModel, cfg.Model.VisionModel)
		return adapter, adapter
	}
}
