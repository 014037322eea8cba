// -----------------------------------------------------------------------
// Last Modified: Tuesday, 10th February 2026 3:12:44 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// pdfMagic is the header every valid PDF body starts with.
var pdfMagic = []byte("%PDF-")

// Downloader fetches paper PDFs with a bounded retry loop. Responses
// that are not PDFs (arXiv serves HTML error pages with status 200)
// abort immediately instead of burning retries.
type Downloader struct {
	dir         string
	maxRetries  int
	minInterval time.Duration
	client      *http.Client
	logger      arbor.ILogger

	// backoff is replaceable in tests.
	backoff func(attempt int) time.Duration
}

// Compile-time interface assertion
var _ interfaces.PDFDownloader = (*Downloader)(nil)

// NewDownloader creates a PDF downloader from configuration
func NewDownloader(config *common.PDFConfig, logger arbor.ILogger) (*Downloader, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pdf directory: %w", err)
	}

	minInterval := common.Duration(config.MinInterval, 10*time.Second)
	d := &Downloader{
		dir:         config.Dir,
		maxRetries:  config.MaxRetries,
		minInterval: minInterval,
		client: &http.Client{
			Timeout: common.Duration(config.Timeout, 30*time.Second),
		},
		logger: logger,
	}
	if d.maxRetries <= 0 {
		d.maxRetries = 3
	}
	d.backoff = func(attempt int) time.Duration {
		wait := time.Duration(1<<uint(attempt)) * time.Second
		if wait < d.minInterval {
			wait = d.minInterval
		}
		return wait
	}
	return d, nil
}

// PathFor returns the on-disk location for a paper's PDF.
func (d *Downloader) PathFor(key string) string {
	return filepath.Join(d.dir, key+".pdf")
}

// Download fetches the PDF at url into the artifact directory. An
// existing file short-circuits without a network call. Network and
// server errors are retried up to the configured limit; a body that is
// not a PDF is treated as permanent and aborts the loop.
func (d *Downloader) Download(ctx context.Context, url, key string) *models.DownloadResult {
	dest := d.PathFor(key)

	if _, err := os.Stat(dest); err == nil {
		d.logger.Debug().Str("path", dest).Msg("PDF already on disk, skipping download")
		return &models.DownloadResult{Path: dest, Skipped: true}
	}

	result := &models.DownloadResult{}
	var lastErr error

	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			wait := d.backoff(attempt)
			d.logger.Warn().
				Str("key", key).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Err(lastErr).
				Msg("Retrying PDF download")
			select {
			case <-ctx.Done():
				result.Failure = &models.FailureReason{Kind: models.FailureTransient, Message: ctx.Err().Error()}
				return result
			case <-time.After(wait):
			}
		}
		result.Attempts = attempt + 1

		permanent, err := d.fetch(ctx, url, dest)
		if err == nil {
			result.Path = dest
			return result
		}
		if permanent {
			result.Failure = &models.FailureReason{Kind: models.FailurePermanent, Message: err.Error()}
			return result
		}
		lastErr = err
	}

	result.Failure = &models.FailureReason{
		Kind:    models.FailureTransient,
		Message: fmt.Sprintf("download failed after %d attempts: %v", d.maxRetries, lastErr),
	}
	return result
}

// fetch performs one download attempt. The returned bool marks the
// error as permanent.
func (d *Downloader) fetch(ctx context.Context, url, dest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return true, fmt.Errorf("invalid download url: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}

	if !validPDF(resp.Header.Get("Content-Type"), body) {
		return true, fmt.Errorf("response is not a PDF (content-type %q, %d bytes)", resp.Header.Get("Content-Type"), len(body))
	}

	// Write to a temp file first so a partial write never looks like a
	// finished artifact.
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return false, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to move PDF into place: %w", err)
	}
	return false, nil
}

func validPDF(contentType string, body []byte) bool {
	if bytes.HasPrefix(body, pdfMagic) {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "application/pdf")
}
