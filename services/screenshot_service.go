package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// ScreenshotService captures full-page evidence of where an attempt ended.
// Files land in a local directory; when S3 is configured they are also
// uploaded and the object URL is returned instead of the local path.
type ScreenshotService struct {
	dir string
	s3  *S3Service
}

// NewScreenshotService creates the local directory. s3 may be nil.
func NewScreenshotService(dir string, s3 *S3Service) (*ScreenshotService, error) {
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot dir %s: %w", dir, err)
	}
	return &ScreenshotService{dir: dir, s3: s3}, nil
}

// CaptureFinal screenshots the page at the end of an attempt. The status tag
// goes into the filename so a directory listing reads as an outcome log.
func (s *ScreenshotService) CaptureFinal(page playwright.Page, status string) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.png",
		time.Now().Format("20060102_150405"),
		strings.ToLower(status),
		uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)

	content, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}

	if s.s3 != nil {
		url, err := s.s3.UploadPNG("screenshots/"+name, content)
		if err != nil {
			log.Printf("Screenshot upload failed, keeping local copy %s: %v", path, err)
			return path, nil
		}
		return url, nil
	}
	return path, nil
}
