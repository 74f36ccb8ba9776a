package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// HistoryEntry is one stored turn.
type HistoryEntry struct {
	gorm.Model
	UserID    string `gorm:"index;not null"`
	Role      string `gorm:"not null"`
	Text      string
	Timestamp int64
}

// SQLiteStorage keeps one row per turn.
type SQLiteStorage struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewSQLiteStorage(path string, logger *logrus.Logger) (*SQLiteStorage, error) {
	newLogger := gormlogger.New(
		log.New(logger.Writer(), "", 0),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Warn,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewSQLiteStorageWithDB(db, logger)
}

// NewSQLiteStorageWithDB migrates the schema on an open database.
func NewSQLiteStorageWithDB(db *gorm.DB, logger *logrus.Logger) (*SQLiteStorage, error) {
	if err := db.AutoMigrate(&HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	// sqlite allows a single writer
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLiteStorage{
		db:     db,
		logger: logger,
	}, nil
}

func (s *SQLiteStorage) GetHistory(ctx context.Context, userID string) ([]models.Turn, error) {
	var entries []HistoryEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	turns := make([]models.Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, models.Turn{
			Role:      e.Role,
			Parts:     []models.Part{{Text: e.Text}},
			Timestamp: e.Timestamp,
		})
	}
	return turns, nil
}

func (s *SQLiteStorage) SaveHistory(ctx context.Context, userID string, turns []models.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&HistoryEntry{}).Error; err != nil {
			return err
		}
		if len(turns) == 0 {
			return nil
		}

		entries := make([]HistoryEntry, 0, len(turns))
		for _, t := range turns {
			entries = append(entries, HistoryEntry{
				UserID:    userID,
				Role:      t.Role,
				Text:      t.Text(),
				Timestamp: t.Timestamp,
			})
		}
		return tx.Create(&entries).Error
	})
}

func (s *SQLiteStorage) DeleteHistory(ctx context.Context, userID string) (bool, error) {
	result := s.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(&HistoryEntry{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
