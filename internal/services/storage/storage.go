package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/middleware"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/shafeequrrehman007/wagpt/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Storage is a chat history backend.
type Storage interface {
	GetHistory(ctx context.Context, userID string) ([]models.Turn, error)
	SaveHistory(ctx context.Context, userID string, turns []models.Turn) error
	// DeleteHistory removes the user's log and reports whether one existed.
	DeleteHistory(ctx context.Context, userID string) (bool, error)
	Close() error
}

// Manager owns the configured backend. Every access goes through a single
// lock, so concurrent updates for different users cannot overwrite each
// other in a shared document.
type Manager struct {
	storage     Storage
	logger      *logrus.Logger
	metrics     *middleware.Metrics
	clock       clock.Clock
	maxMessages int

	mu sync.Mutex
}

// NewManager creates the backend selected by history.backend.
func NewManager(cfg *config.Config, logger *logrus.Logger, metrics *middleware.Metrics) (*Manager, error) {
	var storage Storage

	switch cfg.History.Backend {
	case "file":
		storage = NewFileStorage(cfg.History.Path, logger)
	case "memory":
		storage = NewMemoryStorage()
	case "redis":
		redisStorage, err := NewRedisStorage(&cfg.History.Redis, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
	case "sqlite":
		sqliteStorage, err := NewSQLiteStorage(cfg.History.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		storage = sqliteStorage
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.History.Backend)
	}

	logger.WithField("backend", cfg.History.Backend).Info("History storage initialized")

	return NewManagerWithStorage(storage, cfg.History.MaxMessages, logger, metrics), nil
}

// NewManagerWithStorage wraps an existing backend.
func NewManagerWithStorage(storage Storage, maxMessages int, logger *logrus.Logger, metrics *middleware.Metrics) *Manager {
	return &Manager{
		storage:     storage,
		logger:      logger,
		metrics:     metrics,
		clock:       clock.Real{},
		maxMessages: maxMessages,
	}
}

// SetClock replaces the clock used to stamp appended turns.
func (m *Manager) SetClock(c clock.Clock) {
	m.clock = c
}

func (m *Manager) record(operation string, start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordStorageOperation(operation, status, time.Since(start))
}

// History returns the user's log in chronological order.
func (m *Manager) History(ctx context.Context, userID string) (turns []models.Turn, err error) {
	defer func(start time.Time) { m.record("get", start, err) }(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	turns, err = m.storage.GetHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return turns, nil
}

// Append adds turns to the user's log in one write, stamping turns without
// a timestamp, and keeps only the most recent maxMessages entries.
func (m *Manager) Append(ctx context.Context, userID string, turns ...models.Turn) (err error) {
	defer func(start time.Time) { m.record("append", start, err) }(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.storage.GetHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	now := m.clock.Now().UnixMilli()
	for _, t := range turns {
		if t.Timestamp == 0 {
			t.Timestamp = now
		}
		history = append(history, t)
	}

	if len(history) > m.maxMessages {
		history = history[len(history)-m.maxMessages:]
	}

	if err := m.storage.SaveHistory(ctx, userID, history); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// AppendMessage appends a single turn with the given role.
func (m *Manager) AppendMessage(ctx context.Context, userID, role, text string) error {
	return m.Append(ctx, userID, models.NewTurn(role, text, m.clock.Now()))
}

// Clear deletes the user's log and reports whether it existed.
func (m *Manager) Clear(ctx context.Context, userID string) (existed bool, err error) {
	defer func(start time.Time) { m.record("clear", start, err) }(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	existed, err = m.storage.DeleteHistory(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to clear history: %w", err)
	}
	return existed, nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.storage.Close()
}

// FormatHistory renders the last limit turns as a numbered list.
func FormatHistory(history []models.Turn, limit int) string {
	if len(history) == 0 {
		return "No chat history available."
	}

	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	entries := make([]string, 0, len(history))
	for i, turn := range history {
		speaker := "🤖 Bot"
		if turn.Role == models.RoleUser {
			speaker = "👤 You"
		}
		entries = append(entries, fmt.Sprintf("%d. %s:\n%s\n", i+1, speaker, turn.Text()))
	}
	return strings.Join(entries, "\n")
}
