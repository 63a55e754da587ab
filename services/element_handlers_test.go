package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCoverWriter records what the filler asked it to render.
type fakeCoverWriter struct {
	text      string
	docxText  string
	docxPath  string
	docxCalls int
}

func (w *fakeCoverWriter) GenerateText(jobContext string) (string, error) {
	return w.text, nil
}

func (w *fakeCoverWriter) WriteDocx(text, path string) error {
	w.docxText = text
	w.docxPath = path
	w.docxCalls++
	return nil
}

func TestCheckUploadable(t *testing.T) {
	dir := t.TempDir()
	resume := filepath.Join(dir, "resume.pdf")
	require.NoError(t, os.WriteFile(resume, []byte("%PDF-1.4"), 0o644))

	assert.NoError(t, checkUploadable(resume))
	assert.Error(t, checkUploadable(filepath.Join(dir, "missing.pdf")))
	assert.Error(t, checkUploadable(dir), "directories are not uploadable")
	assert.ErrorContains(t, checkUploadable(TokenResumePath), "placeholder",
		"an unresolved token must never reach the browser")
}

func TestCoverLetterUploadRendersDocx(t *testing.T) {
	writer := &fakeCoverWriter{text: "Dear hiring team"}
	f := &FormFiller{CoverText: writer, JobContext: "Backend Engineer at Acme"}

	path, err := f.resolveValue(PlannedAction{
		Kind:       ActionUpload,
		WidgetType: WidgetFileUpload,
		Label:      "Cover letter",
		Value:      TokenGenerateCoverText,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, writer.docxCalls)
	assert.Equal(t, writer.docxPath, path)
	assert.True(t, strings.HasSuffix(path, ".docx"))
	assert.Equal(t, "Dear hiring team", writer.docxText)
}

func TestCoverLetterTextFieldGetsPlainText(t *testing.T) {
	writer := &fakeCoverWriter{text: "Dear hiring team"}
	f := &FormFiller{CoverText: writer, JobContext: "Backend Engineer at Acme"}

	value, err := f.resolveValue(PlannedAction{
		Kind:       ActionFill,
		WidgetType: WidgetTextarea,
		Label:      "Cover letter",
		Value:      TokenGenerateCoverText,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dear hiring team", value)
	assert.Zero(t, writer.docxCalls)
}

func TestResolveValueResumeToken(t *testing.T) {
	f := &FormFiller{ResumePath: "/data/resume.pdf"}

	value, err := f.resolveValue(PlannedAction{Value: TokenResumePath})
	require.NoError(t, err)
	assert.Equal(t, "/data/resume.pdf", value)

	_, err = (&FormFiller{}).resolveValue(PlannedAction{Value: TokenResumePath})
	assert.Error(t, err)
}

func TestResolveValuePassesPlainValuesThrough(t *testing.T) {
	f := &FormFiller{}

	value, err := f.resolveValue(PlannedAction{Value: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", value)
}
