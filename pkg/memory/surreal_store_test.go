package memory

import (
	"context"
	"os"
	"testing"

	"shadybot/pkg/surreal"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankContributors(t *testing.T) {
	rows := []map[string]interface{}{
		{"user_id": "a", "msg_count": uint64(1)},
		{"user_id": "b", "msg_count": uint64(4)},
		{"user_id": "c", "msg_count": uint64(4)},
		{"user_id": "d", "msg_count": uint64(2)},
		{"msg_count": uint64(9)},
	}

	top := rankContributors(rows, 3)
	require.Len(t, top, 3)
	assert.Equal(t, Contributor{UserID: "b", Messages: 4}, top[0])
	assert.Equal(t, Contributor{UserID: "c", Messages: 4}, top[1])
	assert.Equal(t, Contributor{UserID: "d", Messages: 2}, top[2])
}

func TestFirstBool(t *testing.T) {
	assert.True(t, firstBool(true))
	assert.True(t, firstBool([]interface{}{true}))
	assert.False(t, firstBool([]interface{}{}))
	assert.False(t, firstBool([]interface{}{"true"}))
	assert.False(t, firstBool(nil))
}

func TestSurrealStore_Integration(t *testing.T) {
	// Load .env from project root
	if err := godotenv.Load("../../.env"); err != nil {
		t.Log("Warning: Error loading .env file")
	}

	surrealHost := os.Getenv("SURREAL_DB_HOST")
	surrealUser := os.Getenv("SURREAL_DB_USER")
	surrealPass := os.Getenv("SURREAL_DB_PASS")
	if surrealHost == "" || surrealUser == "" || surrealPass == "" {
		t.Skip("Skipping SurrealDB test: Missing environment variables")
	}

	ctx := context.Background()
	client, err := surreal.NewClient(ctx, surrealHost, surrealUser, surrealPass, "shadybot_test", "archive_test")
	require.NoError(t, err)
	defer client.Close()

	store := NewSurrealStore(ctx, client)
	_, err = store.ClearAll(ctx)
	require.NoError(t, err)

	t.Run("Default deny", func(t *testing.T) {
		logged, err := store.LogMessage(ctx, "surreal_stranger", "hello world")
		require.NoError(t, err)
		assert.False(t, logged)
	})

	t.Run("Opted in user is archived", func(t *testing.T) {
		require.NoError(t, store.SetOptIn(ctx, "surreal_user", true))
		optedIn, err := store.IsOptedIn(ctx, "surreal_user")
		require.NoError(t, err)
		assert.True(t, optedIn)

		logged, err := store.LogMessage(ctx, "surreal_user", "the sky is blue")
		require.NoError(t, err)
		assert.True(t, logged)

		sample, err := store.SampleMessages(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"the sky is blue"}, sample)
	})

	t.Run("Settings", func(t *testing.T) {
		require.NoError(t, store.SetSetting(ctx, SettingVisionEnabled, "false"))
		v, err := store.GetSetting(ctx, SettingVisionEnabled, "true")
		require.NoError(t, err)
		assert.Equal(t, "false", v)
	})

	t.Run("Invalid purge bound", func(t *testing.T) {
		_, err := store.ClearBefore(ctx, "soon")
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})

	deleted, err := store.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
