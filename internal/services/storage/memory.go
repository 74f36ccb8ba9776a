package storage

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/shafeequrrehman007/wagpt/internal/models"
)

// MemoryStorage keeps logs in process memory. Logs never expire but are
// lost on restart.
type MemoryStorage struct {
	histories *cache.Cache
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		histories: cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

func historyKey(userID string) string {
	return fmt.Sprintf("history:%s", userID)
}

func (m *MemoryStorage) GetHistory(ctx context.Context, userID string) ([]models.Turn, error) {
	if val, found := m.histories.Get(historyKey(userID)); found {
		turns := val.([]models.Turn)
		return append([]models.Turn(nil), turns...), nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveHistory(ctx context.Context, userID string, turns []models.Turn) error {
	stored := append([]models.Turn(nil), turns...)
	m.histories.Set(historyKey(userID), stored, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) DeleteHistory(ctx context.Context, userID string) (bool, error) {
	key := historyKey(userID)
	if _, found := m.histories.Get(key); !found {
		return false, nil
	}
	m.histories.Delete(key)
	return true, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
