package services

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverLetterTemplateWins(t *testing.T) {
	profile := testProfile()
	profile.CoverLetterTemplate = "Dear team, I would love to join you."
	fake := &fakeCompleter{response: "generated text"}
	svc := NewCoverLetterService(profile, fake)

	text, err := svc.GenerateText("Backend Engineer at Acme")
	require.NoError(t, err)
	assert.Equal(t, profile.CoverLetterTemplate, text)
	assert.Equal(t, 0, fake.calls)
}

func TestCoverLetterUsesCompleter(t *testing.T) {
	fake := &fakeCompleter{response: "  I am thrilled to apply.  "}
	svc := NewCoverLetterService(testProfile(), fake)

	text, err := svc.GenerateText("Backend Engineer at Acme")
	require.NoError(t, err)
	assert.Equal(t, "I am thrilled to apply.", text)
	assert.Equal(t, 1, fake.calls)
}

func TestCoverLetterFallsBackWhenAIFails(t *testing.T) {
	fake := &fakeCompleter{err: fmt.Errorf("quota exceeded")}
	svc := NewCoverLetterService(testProfile(), fake)

	text, err := svc.GenerateText("Backend Engineer at Acme")
	require.NoError(t, err)
	assert.Contains(t, text, "Backend Engineer")
	assert.Contains(t, text, "Ada Lovelace")
}

func TestWriteDocxProducesFile(t *testing.T) {
	svc := NewCoverLetterService(testProfile(), nil)
	path := filepath.Join(t.TempDir(), "cover_letter.docx")

	err := svc.WriteDocx("First paragraph.\n\nSecond paragraph.", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCoverLetterWithoutCompleter(t *testing.T) {
	svc := NewCoverLetterService(testProfile(), nil)

	text, err := svc.GenerateText("any job")
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
