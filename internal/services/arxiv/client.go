// -----------------------------------------------------------------------
// Last Modified: Thursday, 12th February 2026 8:05:31 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"golang.org/x/time/rate"
)

// versionSuffix strips trailing "v3" style revision markers from ids.
var versionSuffix = regexp.MustCompile(`v\d+$`)

// Client queries the arXiv Atom API. The arXiv terms of use ask for no
// more than one request every three seconds, enforced here with a
// shared limiter across all callers.
type Client struct {
	baseURL  string
	pageSize int
	client   *http.Client
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.ArxivClient = (*Client)(nil)

// NewClient creates an arXiv API client from configuration
func NewClient(config *common.ArxivConfig, logger arbor.ILogger) *Client {
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	interval := common.Duration(config.RequestInterval, 3*time.Second)

	return &Client{
		baseURL:  config.BaseURL,
		pageSize: pageSize,
		client: &http.Client{
			Timeout: common.Duration(config.Timeout, 30*time.Second),
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// SearchPapers fetches up to maxResults papers matching the keyword,
// newest submissions first, paging through the feed as needed.
func (c *Client) SearchPapers(ctx context.Context, keyword string, maxResults int) ([]*models.Paper, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	var papers []*models.Paper
	for start := 0; start < maxResults; start += c.pageSize {
		count := c.pageSize
		if remaining := maxResults - start; remaining < count {
			count = remaining
		}

		feed, err := c.fetchPage(ctx, keyword, start, count)
		if err != nil {
			return nil, err
		}
		for i := range feed.Entries {
			paper, err := entryToPaper(&feed.Entries[i], keyword)
			if err != nil {
				c.logger.Warn().Err(err).Str("entry", feed.Entries[i].ID).Msg("Skipping malformed feed entry")
				continue
			}
			papers = append(papers, paper)
		}

		// A short page means the feed is exhausted.
		if len(feed.Entries) < count {
			break
		}
	}

	c.logger.Info().
		Str("keyword", keyword).
		Int("papers", len(papers)).
		Msg("arXiv search complete")
	return papers, nil
}

func (c *Client) fetchPage(ctx context.Context, keyword string, start, count int) (*atomFeed, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search_query", fmt.Sprintf("all:%q", keyword))
	params.Set("start", fmt.Sprintf("%d", start))
	params.Set("max_results", fmt.Sprintf("%d", count))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build arXiv request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arXiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read arXiv response: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse arXiv feed: %w", err)
	}
	return &feed, nil
}

// NormalizeArxivID reduces an arXiv entry id or URL to the bare paper
// identifier: last path segment with any version suffix removed.
// "http://arxiv.org/abs/2401.00001v2" -> "2401.00001".
func NormalizeArxivID(entryID string) string {
	id := entryID
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	return versionSuffix.ReplaceAllString(id, "")
}

func entryToPaper(entry *atomEntry, keyword string) (*models.Paper, error) {
	id := NormalizeArxivID(entry.ID)
	if id == "" {
		return nil, fmt.Errorf("entry has no usable id")
	}

	paper := &models.Paper{
		ID:                   id,
		Title:                collapseWhitespace(entry.Title),
		Abstract:             collapseWhitespace(entry.Summary),
		Keywords:             []string{keyword},
		ArxivEntryID:         entry.ID,
		ArxivComment:         collapseWhitespace(entry.Comment),
		ArxivJournalRef:      collapseWhitespace(entry.JournalRef),
		ArxivDOI:             entry.DOI,
		ArxivPrimaryCategory: entry.PrimaryCategory.Term,
		SummaryStatus:        models.StatePending,
		ComicStatus:          models.StatePending,
	}

	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		paper.ArxivPublished = t
	}
	if t, err := time.Parse(time.RFC3339, entry.Updated); err == nil {
		paper.ArxivUpdated = t
	}

	for _, author := range entry.Authors {
		if name := strings.TrimSpace(author.Name); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	for _, category := range entry.Categories {
		paper.ArxivCategories = append(paper.ArxivCategories, category.Term)
	}
	for _, link := range entry.Links {
		paper.ArxivLinks = append(paper.ArxivLinks, link.Href)
		if link.Title == "pdf" || strings.Contains(link.Href, "/pdf/") {
			paper.PDFURL = link.Href
		}
	}

	return paper, nil
}

// collapseWhitespace normalizes the line-wrapped text arXiv feeds carry.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
