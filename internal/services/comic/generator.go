// -----------------------------------------------------------------------
// Last Modified: Wednesday, 11th February 2026 9:41:18 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package comic

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/services/llm"
	"google.golang.org/genai"
)

// GeminiImageGenerator produces comic panels through the Gemini image
// model. One call, one image; retries belong to the Service.
type GeminiImageGenerator struct {
	providers *llm.ProviderFactory
	model     string
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.ImageGenerator = (*GeminiImageGenerator)(nil)

// NewGeminiImageGenerator creates an image generator using the shared
// Gemini client.
func NewGeminiImageGenerator(providers *llm.ProviderFactory, config *common.ComicConfig, logger arbor.ILogger) *GeminiImageGenerator {
	return &GeminiImageGenerator{
		providers: providers,
		model:     config.Model,
		logger:    logger,
	}
}

// Generate asks the image model for a single comic rendition of the
// prompt and returns the raw image bytes with their MIME type.
func (g *GeminiImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	client, err := g.providers.GetGeminiClient(ctx)
	if err != nil {
		return nil, "", err
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, "", fmt.Errorf("image generation failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", fmt.Errorf("empty response from image model")
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, part.InlineData.MIMEType, nil
		}
	}
	return nil, "", fmt.Errorf("no image data in response")
}
