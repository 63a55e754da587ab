package services

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// JobEnricher scrapes a job listing page for title, company and description
// text so the answer resolver has real job context even when the stored job
// record is sparse.
type JobEnricher struct {
	client *http.Client
}

func NewJobEnricher() *JobEnricher {
	return &JobEnricher{client: &http.Client{Timeout: 20 * time.Second}}
}

// JobPageDetails is what Enrich could recover from the listing HTML.
type JobPageDetails struct {
	Title       string
	Company     string
	Description string
}

// Enrich fetches and parses the listing. Missing pieces come back empty; the
// caller keeps whatever it already had.
func (e *JobEnricher) Enrich(url string) (*JobPageDetails, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", truncate(url, 100), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing fetch returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing html: %w", err)
	}

	details := &JobPageDetails{}

	details.Title = firstText(doc,
		`h1`, `[data-testid="job-title"]`, `.job-title`, `.posting-headline h2`)
	details.Company = firstText(doc,
		`[data-testid="company-name"]`, `.company-name`, `.posting-categories .sort-by-team`,
		`meta[property="og:site_name"]`)
	if details.Company == "" {
		if content, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
			details.Company = strings.TrimSpace(content)
		}
	}

	desc := firstText(doc,
		`[data-testid="job-description"]`, `.job-description`, `#job-description`,
		`.posting-description`, `.description`, `section`)
	if desc == "" {
		desc = strings.TrimSpace(doc.Find("body").Text())
	}
	details.Description = truncate(collapseWhitespace(desc), 2000)

	return details, nil
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
