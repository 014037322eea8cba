package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// partSeparator joins per-part summaries before the merge pass.
const partSeparator = "\n\n---\n\n"

// Service produces paper summaries and metadata translations on top of
// a completion backend. Long texts are chunked, summarized per part and
// merged with a final pass.
type Service struct {
	completions interfaces.CompletionService
	language    string
	chunkSize   int
	logger      arbor.ILogger
}

// NewService creates the summarization/translation service
func NewService(completions interfaces.CompletionService, llmConfig *common.LLMConfig, logger arbor.ILogger) *Service {
	language := llmConfig.Language
	if language == "" {
		language = "English"
	}
	return &Service{
		completions: completions,
		language:    language,
		chunkSize:   DefaultChunkSize,
		logger:      logger,
	}
}

// Summarize returns a markdown summary of the given text. Texts longer
// than the chunk limit are summarized part by part, then merged.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	chunks := SplitText(text, s.chunkSize)
	if len(chunks) == 0 {
		return "", fmt.Errorf("no text to summarize")
	}

	if len(chunks) == 1 {
		return s.completions.Complete(ctx, summaryPrompt(s.language, chunks[0]))
	}

	s.logger.Info().
		Int("parts", len(chunks)).
		Msg("Summarizing long text in parts")

	partSummaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := s.completions.Complete(ctx, summaryPartPrompt(s.language, i, len(chunks), chunk))
		if err != nil {
			return "", fmt.Errorf("failed to summarize part %d/%d: %w", i+1, len(chunks), err)
		}
		partSummaries = append(partSummaries, strings.TrimSpace(summary))
	}

	merged, err := s.completions.Complete(ctx, mergeSummariesPrompt(s.language, strings.Join(partSummaries, partSeparator)))
	if err != nil {
		return "", fmt.Errorf("failed to merge part summaries: %w", err)
	}
	return merged, nil
}

// TranslateTitle translates a paper title into the configured language.
func (s *Service) TranslateTitle(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("no title to translate")
	}
	result, err := s.completions.Complete(ctx, translateTitlePrompt(s.language, title))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}

// TranslateAbstract translates a paper abstract into the configured
// language.
func (s *Service) TranslateAbstract(ctx context.Context, abstract string) (string, error) {
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return "", fmt.Errorf("no abstract to translate")
	}
	result, err := s.completions.Complete(ctx, translateAbstractPrompt(s.language, abstract))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}
