package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/playwright-community/playwright-go"

	"autoapply/models"
)

// AttemptResult is the terminal outcome of driving one application.
type AttemptResult struct {
	Status        string
	Detail        string
	PagesVisited  int
	ScreenshotURL string
}

// ApplicationDriver walks a job application from its apply URL to a terminal
// status, one page at a time: scan, classify, dispatch on page type, act,
// repeat. It never retries a page blindly; identical consecutive page states
// end the attempt as STUCK.
type ApplicationDriver struct {
	Session    *BrowserSession
	Classifier *PageClassifier
	Processor  *FormProcessor
	Screenshot *ScreenshotService

	Secrets    SecretSource
	CoverText  CoverTextWriter
	ResumePath string

	MaxPages int
	DryRun   bool
}

// hosts whose application forms are open: no account is ever required, so a
// login wall there means something went wrong.
var openFormATSHosts = []string{
	"greenhouse.io", "lever.co", "ashbyhq.com", "jobvite.com",
	"smartrecruiters.com", "breezy.hr", "applytojob.com", "bamboohr.com",
}

// IsOpenFormATS reports whether a URL belongs to an ATS that accepts
// applications without an account.
func IsOpenFormATS(rawURL string) bool {
	host := strings.ToLower(hostOf(rawURL))
	for _, ats := range openFormATSHosts {
		if host == ats || strings.HasSuffix(host, "."+ats) {
			return true
		}
	}
	return false
}

var alreadyAppliedMarkers = []string{
	"already applied", "you have already applied", "application already received",
	"you've already applied", "previously applied",
}

// Apply drives one application attempt. The context bounds the whole
// attempt; expiry ends it as STUCK so the job lands in the retryable lane.
func (d *ApplicationDriver) Apply(ctx context.Context, job *models.Job) AttemptResult {
	maxPages := d.MaxPages
	if maxPages <= 0 {
		maxPages = 15
	}
	jobContext := fmt.Sprintf("%s at %s. %s", job.Title, job.Company, truncate(job.Description, 600))

	select {
	case <-ctx.Done():
		return d.finish(models.ApplyStuck, "attempt timed out", 0)
	default:
	}

	if err := d.Session.Navigate(job.ApplyURL); err != nil {
		if IsBrowserClosedErr(err) {
			return AttemptResult{Status: models.ApplyBrowserCrash, Detail: err.Error()}
		}
		return d.finish(models.ApplyNotFound, fmt.Sprintf("apply URL unreachable: %v", err), 0)
	}

	var states pageStateTracker
	loginTries := 0
	pagesVisited := 0

	for pageNum := 1; ; pageNum++ {
		select {
		case <-ctx.Done():
			return d.finish(models.ApplyStuck, "attempt timed out", pagesVisited)
		default:
		}
		if pageNum > maxPages {
			return d.finish(models.ApplyFailed, fmt.Sprintf("exceeded %d pages", maxPages), pagesVisited)
		}
		pagesVisited = pageNum

		page := d.Session.Page()
		scope := DetectModalScope(page)
		snapshot := ExtractSnapshot(page, scope)

		if states.repeated(PageStateHash(snapshot)) {
			return d.finish(models.ApplyStuck,
				fmt.Sprintf("page state unchanged on %s", truncate(snapshot.Page.URL, 100)),
				pagesVisited)
		}

		text := pageText(snapshot)
		if m := containsAny(text, alreadyAppliedMarkers); m != "" {
			return d.finish(models.ApplyAlreadyApplied, fmt.Sprintf("marker %q", m), pagesVisited)
		}

		verdict := d.Classifier.Classify(snapshot)
		log.Printf("Page %d/%d: %s (%d%%) %s", pageNum, maxPages, verdict.PageType,
			verdict.Confidence, truncate(snapshot.Page.URL, 100))

		filler := d.newFiller(scope, jobContext)

		switch verdict.PageType {
		case PageCaptcha:
			return d.finish(models.ApplyCaptcha, verdict.Reasoning, pagesVisited)

		case PageConfirmation:
			return d.finish(models.ApplySubmitted, "confirmation page reached", pagesVisited)

		case PageError:
			return d.finish(models.ApplyNotFound, verdict.Reasoning, pagesVisited)

		case PageEmailVerification:
			return d.finish(models.ApplyNeedsHuman, "email verification required", pagesVisited)

		case PageLogin, PageRegistration:
			loginTries++
			if loginTries > 2 {
				return d.finish(models.ApplyLoginFailed, "still on login after 2 attempts", pagesVisited)
			}
			if d.Secrets == nil {
				if IsOpenFormATS(snapshot.Page.URL) {
					return d.finish(models.ApplyNeedsHuman, "unexpected login wall on open ATS", pagesVisited)
				}
				return d.finish(models.ApplyLoginFailed, "no credentials configured", pagesVisited)
			}
			if status, done := d.processFormPage(filler, jobContext, pagesVisited); done {
				return status
			}

		case PageJobListing:
			primary := ChoosePrimaryAction(snapshot)
			if primary == nil {
				return d.finish(models.ApplyNeedsHuman, "job listing with no apply button", pagesVisited)
			}
			if err := filler.Execute(clickActionFor(primary)); err != nil {
				if IsBrowserClosedErr(err) {
					return AttemptResult{Status: models.ApplyBrowserCrash, Detail: err.Error(), PagesVisited: pagesVisited}
				}
				return d.finish(models.ApplyFailed, fmt.Sprintf("apply button click failed: %v", err), pagesVisited)
			}

		case PageForm, PageReview, PageFileUpload:
			if d.DryRun && verdict.PageType == PageReview {
				return d.finish(models.ApplyDryRun, "stopped before final submission", pagesVisited)
			}
			if status, done := d.processFormPage(filler, jobContext, pagesVisited); done {
				return status
			}

		case PageDashboard, PageUnknown:
			if len(snapshot.FormFields()) > 0 {
				if status, done := d.processFormPage(filler, jobContext, pagesVisited); done {
					return status
				}
				break
			}
			primary := ChoosePrimaryAction(snapshot)
			if primary == nil {
				return d.finish(models.ApplyNeedsHuman,
					fmt.Sprintf("%s page with nothing to do", verdict.PageType), pagesVisited)
			}
			if err := filler.Execute(clickActionFor(primary)); err != nil {
				if IsBrowserClosedErr(err) {
					return AttemptResult{Status: models.ApplyBrowserCrash, Detail: err.Error(), PagesVisited: pagesVisited}
				}
				return d.finish(models.ApplyFailed, fmt.Sprintf("navigation click failed: %v", err), pagesVisited)
			}
		}

		d.Session.WaitAfterAction()
	}
}

// processFormPage runs the form processor on the current page. The bool
// result says whether the attempt is over.
func (d *ApplicationDriver) processFormPage(filler *FormFiller, jobContext string, pagesVisited int) (AttemptResult, bool) {
	result, err := d.Processor.Process(filler, jobContext, !d.DryRun)
	if err != nil {
		if IsBrowserClosedErr(err) {
			return AttemptResult{Status: models.ApplyBrowserCrash, Detail: err.Error(), PagesVisited: pagesVisited}, true
		}
		return d.finish(models.ApplyFailed, err.Error(), pagesVisited), true
	}
	if result.RequiresHuman {
		return d.finish(models.ApplyNeedsHuman, strings.Join(result.HumanReasons, "; "), pagesVisited), true
	}
	if d.DryRun {
		// Dry runs fill nothing and never submit; one pass is the whole story.
		return d.finish(models.ApplyDryRun,
			fmt.Sprintf("planned %d actions without executing", result.Filled), pagesVisited), true
	}
	return AttemptResult{}, false
}

func (d *ApplicationDriver) newFiller(scope playwright.Locator, jobContext string) *FormFiller {
	filler := NewFormFiller(d.Session.Page(), scope)
	filler.DryRun = d.DryRun
	filler.Secrets = d.Secrets
	filler.ResumePath = d.ResumePath
	filler.CoverText = d.CoverText
	filler.JobContext = jobContext
	return filler
}

func (d *ApplicationDriver) finish(status, detail string, pagesVisited int) AttemptResult {
	result := AttemptResult{Status: status, Detail: detail, PagesVisited: pagesVisited}
	if d.Screenshot != nil && d.Session != nil {
		url, err := d.Screenshot.CaptureFinal(d.Session.Page(), status)
		if err != nil {
			log.Printf("Final screenshot failed: %v", err)
		} else {
			result.ScreenshotURL = url
		}
	}
	log.Printf("Attempt finished: %s (%s) after %d pages", status, truncate(detail, 120), pagesVisited)
	return result
}

func clickActionFor(el *ElementInfo) PlannedAction {
	label := el.Label
	if label == "" {
		label = el.CurrentValue
	}
	return PlannedAction{
		Kind:         ActionClick,
		ElementIndex: el.Index,
		Selector:     el.Attributes.Selector,
		WidgetType:   el.Type,
		Label:        label,
		TypeOrdinal:  el.TypeOrdinal,
	}
}

// pageStateTracker notices when consecutive page scans produce the same
// state hash. Our actions on the previous pass changed nothing, so the very
// second identical scan ends the attempt.
type pageStateTracker struct {
	prev string
}

func (t *pageStateTracker) repeated(hash string) bool {
	same := hash != "" && hash == t.prev
	t.prev = hash
	return same
}

// PageStateHash fingerprints the interactive state of a page: URL plus input
// name=value pairs plus button labels. Two consecutive identical hashes mean
// our actions are having no effect.
func PageStateHash(snapshot *DomSnapshot) string {
	var b strings.Builder
	b.WriteString(snapshot.Page.URL)
	for _, el := range snapshot.Elements {
		switch el.Type {
		case WidgetButton, WidgetSubmitButton, WidgetLink:
			b.WriteString("|b:")
			b.WriteString(el.Label)
			if el.Label == "" {
				b.WriteString(el.CurrentValue)
			}
		default:
			b.WriteString("|f:")
			b.WriteString(el.Attributes.Name)
			b.WriteByte('=')
			b.WriteString(el.CurrentValue)
		}
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
