package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/queue"
)

// ComicHandler returns the worker handler for comic jobs.
func (r *Runner) ComicHandler() queue.JobHandler {
	return func(ctx context.Context, msg *models.QueueMessage) error {
		return r.runEnrichment(ctx, models.JobKindComic, msg, r.generateComic)
	}
}

// generateComic renders a one-page comic for the paper. An artifact
// already on disk short-circuits the expensive generation unless force
// was requested.
func (r *Runner) generateComic(ctx context.Context, paper *models.Paper, force bool) (string, error) {
	if !force {
		if path, ok := r.deps.Comics.ArtifactFor(paper.ID); ok {
			if err := r.persistField(ctx, paper.ID, "comic_path", func(p *models.Paper) {
				p.ComicPath = path
			}); err != nil {
				return "", err
			}
			return fmt.Sprintf("reused existing artifact %s", path), nil
		}
	}

	content := paper.BestContent()
	if content == "" {
		return "", fmt.Errorf("paper %s has no content for comic generation", paper.ID)
	}

	result := r.deps.Comics.Generate(ctx, comicPrompt(paper.Title, content))
	if result.Failure != nil {
		return "", errors.New(result.Failure.Message)
	}

	path, err := r.deps.Comics.Save(paper.ID, result.Data, result.MIMEType)
	if err != nil {
		return "", err
	}

	if err := r.persistField(ctx, paper.ID, "comic_path", func(p *models.Paper) {
		p.ComicPath = path
	}); err != nil {
		return "", err
	}

	return fmt.Sprintf("comic stored at %s (%d attempts)", path, result.Attempts), nil
}

func comicPrompt(title, content string) string {
	return fmt.Sprintf(`Draw a single-page comic strip that explains the following research paper
to a curious non-expert. Four to six panels, simple friendly characters, short speech bubbles,
no dense text. Capture the core idea and why it matters.

# %s

%s`, title, content)
}
