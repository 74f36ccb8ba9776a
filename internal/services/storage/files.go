package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
)

// ReadDocument loads the history document at path. A missing, empty,
// unreadable or malformed file is replaced by an empty document, which is
// written back and returned.
func ReadDocument(path string, logger *logrus.Logger) *models.HistoryDocument {
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		var doc models.HistoryDocument
		if err = json.Unmarshal(data, &doc); err == nil {
			if doc.Histories == nil {
				doc.Histories = make(map[string][]models.Turn)
			}
			if doc.Version == "" {
				doc.Version = models.DocumentVersion
			}
			return &doc
		}
	}

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).WithField("path", path).Warn("Resetting unreadable history file")
	}

	doc := models.NewHistoryDocument()
	WriteDocument(path, doc, logger)
	return doc
}

// ReadText returns the content of path, or "" when it does not exist.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteDocument overwrites path with the indented document. Failures are
// logged and otherwise ignored.
func WriteDocument(path string, doc *models.HistoryDocument, logger *logrus.Logger) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logger.WithError(err).Error("Failed to encode history document")
		return
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.WithError(err).WithField("path", path).Error("Failed to create history directory")
			return
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.WithError(err).WithField("path", path).Error("Failed to write history file")
	}
}
