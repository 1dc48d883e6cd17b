package memory

import "context"

// Setting keys understood by the bot.
const (
	SettingVisionEnabled = "vision_enabled"
)

// Store is the bot's persistent state: consent flags, the learned message
// archive and feature settings.
//
// Consent is never cached by implementations. LogMessage re-reads it in the
// same transaction as the insert.
type Store interface {
	SetOptIn(ctx context.Context, userID string, enabled bool) error
	IsOptedIn(ctx context.Context, userID string) (bool, error)

	// LogMessage appends content for userID if, at write time, the user is
	// opted in and content is not blank. It reports whether a row was written.
	LogMessage(ctx context.Context, userID, content string) (bool, error)
	SampleMessages(ctx context.Context, limit int) ([]string, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearBefore(ctx context.Context, ts string) (int64, error)
	ClearAfter(ctx context.Context, ts string) (int64, error)
	Stats(ctx context.Context, top int) (*Stats, error)

	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}

// Stats summarises the archive for the /stats command.
type Stats struct {
	OptedInUsers    int64
	TotalMessages   int64
	TopContributors []Contributor
}

type Contributor struct {
	UserID   string
	Messages int64
}
