package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"shadybot/pkg/surreal"
)

// SurrealStore keeps the same three tables as SQLiteStore in SurrealDB.
type SurrealStore struct {
	client *surreal.Client
}

func NewSurrealStore(ctx context.Context, client *surreal.Client) *SurrealStore {
	store := &SurrealStore{
		client: client,
	}
	if err := store.Init(ctx); err != nil {
		// Schema may already exist or the DB may come back later
		log.Printf("Warning: Failed to initialize SurrealDB schema: %v", err)
	}
	return store
}

func (s *SurrealStore) Init(ctx context.Context) error {
	query := `
		DEFINE TABLE IF NOT EXISTS user_prefs SCHEMAFULL;
		DEFINE FIELD IF NOT EXISTS user_id ON user_prefs TYPE string;
		DEFINE FIELD IF NOT EXISTS opt_in ON user_prefs TYPE bool;

		DEFINE TABLE IF NOT EXISTS learned_messages SCHEMAFULL;
		DEFINE FIELD IF NOT EXISTS user_id ON learned_messages TYPE string;
		DEFINE FIELD IF NOT EXISTS content ON learned_messages TYPE string;
		DEFINE FIELD IF NOT EXISTS timestamp ON learned_messages TYPE datetime DEFAULT time::now();
		DEFINE INDEX IF NOT EXISTS idx_learned_user_id ON learned_messages FIELDS user_id;
		DEFINE INDEX IF NOT EXISTS idx_learned_timestamp ON learned_messages FIELDS timestamp;

		DEFINE TABLE IF NOT EXISTS bot_settings SCHEMAFULL;
		DEFINE FIELD IF NOT EXISTS value ON bot_settings TYPE string;
	`
	_, err := s.client.Query(ctx, query, nil)
	return err
}

func (s *SurrealStore) Close() error {
	s.client.Close()
	return nil
}

func (s *SurrealStore) SetOptIn(ctx context.Context, userID string, enabled bool) error {
	query := `
		INSERT INTO user_prefs (id, user_id, opt_in)
		VALUES (type::thing("user_prefs", $user_id), $user_id, $opt_in)
		ON DUPLICATE KEY UPDATE opt_in = $opt_in;
	`
	_, err := s.client.Query(ctx, query, map[string]interface{}{
		"user_id": userID,
		"opt_in":  enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to set opt-in: %w", err)
	}
	return nil
}

func (s *SurrealStore) IsOptedIn(ctx context.Context, userID string) (bool, error) {
	result, err := s.client.Query(ctx, `SELECT VALUE opt_in FROM type::thing("user_prefs", $user_id);`, map[string]interface{}{
		"user_id": userID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to read opt-in: %w", err)
	}
	return firstBool(result), nil
}

func (s *SurrealStore) LogMessage(ctx context.Context, userID, content string) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, nil
	}

	// Consent check and insert run in one transaction.
	query := `
		BEGIN TRANSACTION;
		LET $opted = (SELECT VALUE opt_in FROM type::thing("user_prefs", $user_id))[0] ?? false;
		IF $opted {
			CREATE learned_messages SET user_id = $user_id, content = $content, timestamp = time::now();
		};
		RETURN $opted;
		COMMIT TRANSACTION;
	`
	result, err := s.client.Query(ctx, query, map[string]interface{}{
		"user_id": userID,
		"content": content,
	})
	if err != nil {
		return false, fmt.Errorf("failed to log message: %w", err)
	}
	return firstBool(result), nil
}

func (s *SurrealStore) SampleMessages(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	result, err := s.client.Query(ctx, `SELECT VALUE content FROM learned_messages ORDER BY rand() LIMIT $limit;`, map[string]interface{}{
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample messages: %w", err)
	}

	messages := make([]string, 0, limit)
	for _, v := range surreal.Values(result) {
		if str, ok := v.(string); ok {
			messages = append(messages, str)
		}
	}
	return messages, nil
}

func (s *SurrealStore) ClearAll(ctx context.Context) (int64, error) {
	result, err := s.client.Query(ctx, `DELETE learned_messages RETURN BEFORE;`, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return int64(len(surreal.Rows(result))), nil
}

func (s *SurrealStore) ClearBefore(ctx context.Context, ts string) (int64, error) {
	return s.clearWhere(ctx, "<", ts)
}

func (s *SurrealStore) ClearAfter(ctx context.Context, ts string) (int64, error) {
	return s.clearWhere(ctx, ">", ts)
}

func (s *SurrealStore) clearWhere(ctx context.Context, op, ts string) (int64, error) {
	bound, err := ParseTimestamp(ts)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`DELETE learned_messages WHERE timestamp %s <datetime>$bound RETURN BEFORE;`, op)
	result, err := s.client.Query(ctx, query, map[string]interface{}{
		"bound": bound.Format(time.RFC3339),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return int64(len(surreal.Rows(result))), nil
}

func (s *SurrealStore) Stats(ctx context.Context, top int) (*Stats, error) {
	stats := &Stats{}
	var err error

	stats.OptedInUsers, err = s.client.Count(ctx, "user_prefs", map[string]interface{}{"opt_in": true})
	if err != nil {
		return nil, fmt.Errorf("failed to count opted-in users: %w", err)
	}
	stats.TotalMessages, err = s.client.Count(ctx, "learned_messages", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	if top <= 0 {
		return stats, nil
	}

	result, err := s.client.Query(ctx, `SELECT user_id, count() AS msg_count FROM learned_messages GROUP BY user_id;`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to rank contributors: %w", err)
	}
	stats.TopContributors = rankContributors(surreal.Rows(result), top)
	return stats, nil
}

// rankContributors orders grouped rows by message count. Groups arrive sorted
// by user_id, which is the tie-break here.
func rankContributors(rows []map[string]interface{}, top int) []Contributor {
	contributors := make([]Contributor, 0, len(rows))
	for _, row := range rows {
		userID, _ := row["user_id"].(string)
		if userID == "" {
			continue
		}
		contributors = append(contributors, Contributor{
			UserID:   userID,
			Messages: surreal.ToInt64(row["msg_count"]),
		})
	}
	sort.SliceStable(contributors, func(i, j int) bool {
		return contributors[i].Messages > contributors[j].Messages
	})
	if len(contributors) > top {
		contributors = contributors[:top]
	}
	return contributors
}

func (s *SurrealStore) GetSetting(ctx context.Context, key, def string) (string, error) {
	result, err := s.client.Query(ctx, `SELECT VALUE value FROM type::thing("bot_settings", $key);`, map[string]interface{}{
		"key": key,
	})
	if err != nil {
		return def, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	values := surreal.Values(result)
	if len(values) == 0 {
		return def, nil
	}
	if str, ok := values[0].(string); ok {
		return str, nil
	}
	return def, nil
}

func (s *SurrealStore) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO bot_settings (id, value)
		VALUES (type::thing("bot_settings", $key), $value)
		ON DUPLICATE KEY UPDATE value = $value;
	`
	_, err := s.client.Query(ctx, query, map[string]interface{}{
		"key":   key,
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// firstBool reads a boolean from either a bare value or a one-element list.
func firstBool(result interface{}) bool {
	switch v := result.(type) {
	case bool:
		return v
	case []interface{}:
		if len(v) > 0 {
			b, _ := v[0].(bool)
			return b
		}
	}
	return false
}
