package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/shafeequrrehman007/wagpt/pkg/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	s, err := NewSQLiteStorageWithDB(db, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"file":   NewFileStorage(filepath.Join(t.TempDir(), "chat_history.json"), testLogger()),
		"sqlite": setupSQLite(t),
	}
}

func TestAppendKeepsMostRecentMessages(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManagerWithStorage(backend, 5, testLogger(), nil)

			for i := 0; i < 12; i++ {
				require.NoError(t, m.AppendMessage(ctx, "alice", models.RoleUser, fmt.Sprintf("msg %d", i)))

				history, err := m.History(ctx, "alice")
				require.NoError(t, err)
				assert.LessOrEqual(t, len(history), 5)
			}

			history, err := m.History(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, history, 5)
			assert.Equal(t, "msg 7", history[0].Text())
			assert.Equal(t, "msg 11", history[4].Text())
		})
	}
}

func TestAppendPairIsSingleWrite(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManagerWithStorage(backend, 50, testLogger(), nil)
			at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			m.SetClock(clock.NewMock(at))

			require.NoError(t, m.Append(ctx, "alice",
				models.NewTurn(models.RoleUser, "hi", time.Time{}),
				models.NewTurn(models.RoleModel, "hello!", time.Time{}),
			))

			history, err := m.History(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, models.RoleUser, history[0].Role)
			assert.Equal(t, models.RoleModel, history[1].Role)
			assert.Equal(t, at.UnixMilli(), history[1].Timestamp)
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManagerWithStorage(backend, 50, testLogger(), nil)

			existed, err := m.Clear(ctx, "alice")
			require.NoError(t, err)
			assert.False(t, existed)

			require.NoError(t, m.AppendMessage(ctx, "alice", models.RoleUser, "hi"))
			require.NoError(t, m.AppendMessage(ctx, "bob", models.RoleUser, "yo"))

			existed, err = m.Clear(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, existed)

			history, err := m.History(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, history)

			// other users are untouched
			history, err = m.History(ctx, "bob")
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestConcurrentAppendsForDifferentUsers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat_history.json")
	m := NewManagerWithStorage(NewFileStorage(path, testLogger()), 50, testLogger(), nil)

	users := []string{"alice", "bob", "carol", "dave"}
	done := make(chan struct{})
	for _, u := range users {
		go func(user string) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 5; i++ {
				m.AppendMessage(ctx, user, models.RoleUser, "hi")
			}
		}(u)
	}
	for range users {
		<-done
	}

	for _, u := range users {
		history, err := m.History(ctx, u)
		require.NoError(t, err)
		assert.Len(t, history, 5, u)
	}
}

func TestNewManagerSelectsBackend(t *testing.T) {
	cfg := &config.Config{
		History: config.HistoryConfig{
			Backend:     "memory",
			MaxMessages: 50,
		},
	}

	m, err := NewManager(cfg, testLogger(), nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, m.storage)

	cfg.History.Backend = "cassandra"
	_, err = NewManager(cfg, testLogger(), nil)
	assert.Error(t, err)
}

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	r, err := NewRedisStorage(&config.RedisConfig{Addr: addr}, testLogger())
	require.NoError(t, err)
	defer r.Close()

	user := fmt.Sprintf("test-%d", time.Now().UnixNano())
	m := NewManagerWithStorage(r, 3, testLogger(), nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.AppendMessage(ctx, user, models.RoleUser, fmt.Sprintf("msg %d", i)))
	}
	history, err := m.History(ctx, user)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "msg 1", history[0].Text())

	existed, err := m.Clear(ctx, user)
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No chat history available.", FormatHistory(nil, 10))

	history := []models.Turn{
		models.NewTurn(models.RoleUser, "first", time.Time{}),
		models.NewTurn(models.RoleModel, "second", time.Time{}),
		models.NewTurn(models.RoleUser, "third", time.Time{}),
	}

	assert.Equal(t,
		"1. 👤 You:\nfirst\n\n2. 🤖 Bot:\nsecond\n\n3. 👤 You:\nthird\n",
		FormatHistory(history, 10))

	assert.Equal(t,
		"1. 🤖 Bot:\nsecond\n\n2. 👤 You:\nthird\n",
		FormatHistory(history, 2))
}
