package storage

import (
	"context"

	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
)

// FileStorage keeps every user's log in one JSON document on disk. The
// document is re-read on each access; callers serialize access through
// the Manager.
type FileStorage struct {
	path   string
	logger *logrus.Logger
}

func NewFileStorage(path string, logger *logrus.Logger) *FileStorage {
	return &FileStorage{
		path:   path,
		logger: logger,
	}
}

func (f *FileStorage) GetHistory(ctx context.Context, userID string) ([]models.Turn, error) {
	doc := ReadDocument(f.path, f.logger)
	turns := doc.Histories[userID]
	return append([]models.Turn(nil), turns...), nil
}

func (f *FileStorage) SaveHistory(ctx context.Context, userID string, turns []models.Turn) error {
	doc := ReadDocument(f.path, f.logger)
	doc.Histories[userID] = turns
	WriteDocument(f.path, doc, f.logger)
	return nil
}

func (f *FileStorage) DeleteHistory(ctx context.Context, userID string) (bool, error) {
	doc := ReadDocument(f.path, f.logger)
	if _, ok := doc.Histories[userID]; !ok {
		return false, nil
	}
	delete(doc.Histories, userID)
	WriteDocument(f.path, doc, f.logger)
	return true, nil
}

func (f *FileStorage) Close() error {
	return nil
}
