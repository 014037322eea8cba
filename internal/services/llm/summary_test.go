package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

type fakeCompletions struct {
	prompts []string
	respond func(prompt string) (string, error)
}

func (f *fakeCompletions) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.respond != nil {
		return f.respond(prompt)
	}
	return "ok", nil
}

func newTestService(fake *fakeCompletions) *Service {
	return NewService(fake, &common.LLMConfig{Model: "gemini-2.5-flash", Language: "Japanese"}, arbor.NewLogger())
}

func TestSummarizeShortTextSingleCall(t *testing.T) {
	fake := &fakeCompletions{respond: func(prompt string) (string, error) {
		return "a summary", nil
	}}
	service := newTestService(fake)

	result, err := service.Summarize(context.Background(), "short paper text")
	require.NoError(t, err)
	assert.Equal(t, "a summary", result)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Japanese")
	assert.Contains(t, fake.prompts[0], "short paper text")
}

func TestSummarizeLongTextPartsThenMerge(t *testing.T) {
	fake := &fakeCompletions{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "separated by") {
			return "merged summary", nil
		}
		return "part summary", nil
	}}
	service := newTestService(fake)
	service.chunkSize = 100

	var paragraphs []string
	for i := 0; i < 5; i++ {
		paragraphs = append(paragraphs, strings.Repeat("w", 80))
	}
	text := strings.Join(paragraphs, "\n\n")

	result, err := service.Summarize(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "merged summary", result)

	// Five chunks of 80 at limit 100 means five part calls plus one merge.
	require.Len(t, fake.prompts, 6)
	merge := fake.prompts[len(fake.prompts)-1]
	assert.Contains(t, merge, "part summary\n\n---\n\npart summary")
}

func TestSummarizePartFailureAborts(t *testing.T) {
	fake := &fakeCompletions{respond: func(prompt string) (string, error) {
		return "", errors.New("backend down")
	}}
	service := newTestService(fake)
	service.chunkSize = 50

	_, err := service.Summarize(context.Background(), strings.Repeat("z", 200))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part 1")
}

func TestSummarizeEmptyText(t *testing.T) {
	service := newTestService(&fakeCompletions{})
	_, err := service.Summarize(context.Background(), "   ")
	assert.Error(t, err)
}

func TestTranslateTitle(t *testing.T) {
	fake := &fakeCompletions{respond: func(prompt string) (string, error) {
		return "  translated title \n", nil
	}}
	service := newTestService(fake)

	result, err := service.TranslateTitle(context.Background(), "Attention Is All You Need")
	require.NoError(t, err)
	assert.Equal(t, "translated title", result)
	assert.Contains(t, fake.prompts[0], "Attention Is All You Need")

	_, err = service.TranslateTitle(context.Background(), " ")
	assert.Error(t, err)
}

func TestTranslateAbstract(t *testing.T) {
	fake := &fakeCompletions{respond: func(prompt string) (string, error) {
		return "translated abstract", nil
	}}
	service := newTestService(fake)

	result, err := service.TranslateAbstract(context.Background(), "We propose a new architecture.")
	require.NoError(t, err)
	assert.Equal(t, "translated abstract", result)

	_, err = service.TranslateAbstract(context.Background(), "")
	assert.Error(t, err)
}
