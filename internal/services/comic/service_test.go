package comic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

type fakeGenerator struct {
	calls    int
	failures int
	data     []byte
	mimeType string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, "", errors.New("model overloaded")
	}
	return f.data, f.mimeType, nil
}

func newTestService(t *testing.T, generator *fakeGenerator) *Service {
	t.Helper()

	service, err := NewService(generator, &common.ComicConfig{
		Dir:        t.TempDir(),
		Model:      "gemini-2.5-flash-image",
		MaxRetries: 3,
		RetryDelay: "1ms",
	}, arbor.NewLogger())
	require.NoError(t, err)
	return service
}

func TestGenerateFirstAttempt(t *testing.T) {
	generator := &fakeGenerator{data: []byte("png-bytes"), mimeType: "image/png"}
	service := newTestService(t, generator)

	result := service.Generate(context.Background(), "draw this paper")
	require.Nil(t, result.Failure)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, []byte("png-bytes"), result.Data)
	assert.Equal(t, "image/png", result.MIMEType)
}

func TestGenerateRetriesUntilSuccess(t *testing.T) {
	generator := &fakeGenerator{failures: 2, data: []byte("img"), mimeType: "image/jpeg"}
	service := newTestService(t, generator)

	result := service.Generate(context.Background(), "draw this paper")
	require.Nil(t, result.Failure)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, generator.calls)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	generator := &fakeGenerator{failures: 100}
	service := newTestService(t, generator)

	result := service.Generate(context.Background(), "draw this paper")
	require.NotNil(t, result.Failure)
	assert.Equal(t, models.FailureTransient, result.Failure.Kind)
	assert.Equal(t, 3, result.Attempts)
	assert.Contains(t, result.Failure.Message, "after 3 attempts")
}

func TestSaveAndArtifactProbe(t *testing.T) {
	service := newTestService(t, &fakeGenerator{})

	_, found := service.ArtifactFor("2401.00002")
	assert.False(t, found)

	path, err := service.Save("2401.00002", []byte("jpg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(path))

	got, found := service.ArtifactFor("2401.00002")
	assert.True(t, found)
	assert.Equal(t, path, got)

	content, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "jpg-bytes", string(content))
}

func TestArtifactProbePrefersPNG(t *testing.T) {
	service := newTestService(t, &fakeGenerator{})

	_, err := service.Save("2401.00003", []byte("jpg"), "image/jpeg")
	require.NoError(t, err)
	pngPath, err := service.Save("2401.00003", []byte("png"), "image/png")
	require.NoError(t, err)

	got, found := service.ArtifactFor("2401.00003")
	assert.True(t, found)
	assert.Equal(t, pngPath, got)
}
