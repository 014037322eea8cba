package comic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service wraps an image generator with artifact management and a
// bounded retry loop. Image backends fail often enough on busy days
// that a fixed short delay between attempts beats exponential backoff.
type Service struct {
	generator  interfaces.ImageGenerator
	dir        string
	maxRetries int
	retryDelay time.Duration
	logger     arbor.ILogger
}

// NewService creates the comic artifact service
func NewService(generator interfaces.ImageGenerator, config *common.ComicConfig, logger arbor.ILogger) (*Service, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create comic directory: %w", err)
	}

	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Service{
		generator:  generator,
		dir:        config.Dir,
		maxRetries: maxRetries,
		retryDelay: common.Duration(config.RetryDelay, 3*time.Second),
		logger:     logger,
	}, nil
}

// ArtifactFor returns the existing comic for a paper, probing the
// formats the image model emits. The bool reports whether one exists.
func (s *Service) ArtifactFor(paperID string) (string, bool) {
	for _, ext := range []string{".png", ".jpg"} {
		path := filepath.Join(s.dir, paperID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Generate runs the bounded retry loop around the image backend.
func (s *Service) Generate(ctx context.Context, prompt string) *models.GenerateResult {
	result := &models.GenerateResult{}
	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				result.Failure = &models.FailureReason{Kind: models.FailureTransient, Message: ctx.Err().Error()}
				return result
			case <-time.After(s.retryDelay):
			}
		}
		result.Attempts = attempt + 1

		data, mimeType, err := s.generator.Generate(ctx, prompt)
		if err == nil {
			result.Data = data
			result.MIMEType = mimeType
			return result
		}
		lastErr = err
		s.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", s.maxRetries).
			Err(err).
			Msg("Comic generation attempt failed")
	}

	result.Failure = &models.FailureReason{
		Kind:    models.FailureTransient,
		Message: fmt.Sprintf("image generation failed after %d attempts: %v", s.maxRetries, lastErr),
	}
	return result
}

// Save writes generated image bytes next to the paper's other
// artifacts and returns the stored path.
func (s *Service) Save(paperID string, data []byte, mimeType string) (string, error) {
	path := filepath.Join(s.dir, paperID+extensionFor(mimeType))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write comic artifact: %w", err)
	}
	return path, nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	default:
		return ".png"
	}
}
