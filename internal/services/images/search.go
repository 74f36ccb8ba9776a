package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// ErrSearchNotConfigured is returned when the search key or engine ID is missing.
var ErrSearchNotConfigured = errors.New("google search engine ID or API key not configured")

// Searcher finds images for a text query.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]models.ImageResult, error)
}

// GoogleSearch queries the Custom Search JSON API in image mode.
type GoogleSearch struct {
	service  *customsearch.Service
	engineID string
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewGoogleSearch creates a searcher. Missing credentials are reported on
// each Search call rather than here.
func NewGoogleSearch(ctx context.Context, cfg *config.SearchConfig, logger *logrus.Logger) (*GoogleSearch, error) {
	g := &GoogleSearch{
		engineID: cfg.EngineID,
		timeout:  cfg.Timeout,
		logger:   logger,
	}

	if cfg.APIKey == "" || cfg.EngineID == "" {
		logger.Warn("Image search is not configured")
		return g, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}
	g.service = service

	return g, nil
}

// Search returns up to count images with both a link and a title.
func (g *GoogleSearch) Search(ctx context.Context, query string, count int) ([]models.ImageResult, error) {
	if g.service == nil {
		return nil, ErrSearchNotConfigured
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.service.Cse.List().
		Cx(g.engineID).
		Q(query).
		SearchType("image").
		Num(int64(count)).
		Safe("active").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("image search failed: %w", err)
	}

	results := make([]models.ImageResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		result := models.ImageResult{
			URL:   item.Link,
			Title: item.Title,
		}
		if item.Image != nil {
			result.Thumbnail = item.Image.ThumbnailLink
		}
		results = append(results, result)
	}

	g.logger.WithFields(logrus.Fields{
		"query":   query,
		"results": len(results),
	}).Debug("Image search completed")

	return results, nil
}
