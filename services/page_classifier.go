package services

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PageType labels the stage of an application flow a page represents.
type PageType string

const (
	PageLogin             PageType = "login"
	PageRegistration      PageType = "registration"
	PageForm              PageType = "form"
	PageReview            PageType = "review"
	PageConfirmation      PageType = "confirmation"
	PageCaptcha           PageType = "captcha"
	PageError             PageType = "error"
	PageEmailVerification PageType = "email_verification"
	PageFileUpload        PageType = "file_upload"
	PageJobListing        PageType = "job_listing"
	PageDashboard         PageType = "dashboard"
	PageUnknown           PageType = "unknown"
)

// PageClassification is the classifier verdict for one snapshot. The step
// fields come from the page structure, never from the model.
type PageClassification struct {
	PageType      PageType `json:"page_type"`
	Confidence    int      `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	SuggestedNext string   `json:"suggested_next,omitempty"`

	IsMultiStep bool `json:"is_multi_step,omitempty"`
	CurrentStep int  `json:"current_step,omitempty"`
	TotalSteps  int  `json:"total_steps,omitempty"`
}

// PageClassifier decides what kind of page a snapshot represents. Heuristics
// run first; an AI completer is consulted only when heuristics are not
// confident. Verdicts are cached per page structure so revisiting the same
// form step does not re-trigger the model.
type PageClassifier struct {
	completer TextCompleter

	mu    sync.Mutex
	cache map[string]PageClassification
}

// NewPageClassifier builds a classifier. completer may be nil, in which case
// only heuristics apply.
func NewPageClassifier(completer TextCompleter) *PageClassifier {
	return &PageClassifier{
		completer: completer,
		cache:     make(map[string]PageClassification),
	}
}

const heuristicConfidenceFloor = 70

// Classify returns the page type for a snapshot. Results with confidence at
// or above the heuristic floor are returned directly; below it, the AI
// completer is consulted and its verdict cached by page structure.
func (c *PageClassifier) Classify(snapshot *DomSnapshot) PageClassification {
	verdict := c.classify(snapshot)
	if current, total, ok := DetectSteps(snapshot); ok {
		verdict.IsMultiStep = total > 1
		verdict.CurrentStep = current
		verdict.TotalSteps = total
	}
	return verdict
}

func (c *PageClassifier) classify(snapshot *DomSnapshot) PageClassification {
	heuristic := c.classifyHeuristic(snapshot)
	if heuristic.Confidence >= heuristicConfidenceFloor || c.completer == nil {
		return heuristic
	}

	key := c.cacheKey(snapshot)
	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		log.Printf("Page classification cache hit: %s (%d%%)", cached.PageType, cached.Confidence)
		return cached
	}

	verdict, err := c.classifyWithAI(snapshot)
	if err != nil {
		log.Printf("AI page classification failed, keeping heuristic %s: %v", heuristic.PageType, err)
		return heuristic
	}
	if verdict.Confidence < heuristic.Confidence {
		verdict = heuristic
	}

	c.mu.Lock()
	c.cache[key] = verdict
	c.mu.Unlock()
	return verdict
}

// cacheKey hashes the page structure: base URL (no query/fragment) plus the
// ordered element types and labels. Same structure, same verdict.
func (c *PageClassifier) cacheKey(snapshot *DomSnapshot) string {
	base := snapshot.Page.URL
	if u, err := url.Parse(base); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		base = u.String()
	}

	var sig strings.Builder
	for _, el := range snapshot.Elements {
		sig.WriteString(string(el.Type))
		sig.WriteByte(':')
		sig.WriteString(el.Label)
		sig.WriteByte('|')
	}
	sum := md5.Sum([]byte(sig.String()))
	return base + "#" + hex.EncodeToString(sum[:])
}

var (
	captchaMarkers = []string{"captcha", "recaptcha", "hcaptcha", "are you a robot", "i'm not a robot", "verify you are human"}
	loginMarkers   = []string{"sign in", "log in", "login", "forgot password"}
	registerWords  = []string{"create account", "sign up", "register", "create your account", "confirm password"}
	verifyMarkers  = []string{"verification code", "verify your email", "enter the code", "we sent a code", "check your email", "confirmation code", "one-time code", "otp"}
	confirmMarkers = []string{"thank you for applying", "application submitted", "application received", "successfully submitted", "we have received your application", "application complete"}
	errorMarkers   = []string{"something went wrong", "page not found", "error occurred", "no longer available", "position has been filled", "job is no longer"}
	reviewMarkers  = []string{"review your application", "review and submit", "review your answers", "almost done"}
	listingMarkers = []string{"apply now", "apply for this job", "job description", "responsibilities", "qualifications"}
	dashMarkers    = []string{"my applications", "application status", "dashboard", "profile", "saved jobs"}
)

var stepRe = regexp.MustCompile(`(?i)\bstep\s*(\d+)\s*(?:of|/)\s*(\d+)`)

// DetectSteps reads multi-step progress out of the page: explicit
// progressbar value/max pairs first, then "Step N of M" wording in progress
// widgets and headings.
func DetectSteps(snapshot *DomSnapshot) (current, total int, ok bool) {
	for _, p := range snapshot.ProgressIndicators {
		cur, cerr := strconv.Atoi(p.Value)
		max, merr := strconv.Atoi(p.Max)
		if cerr == nil && merr == nil && max > 0 {
			return cur, max, true
		}
		if m := stepRe.FindStringSubmatch(p.Text); m != nil {
			cur, _ := strconv.Atoi(m[1])
			max, _ := strconv.Atoi(m[2])
			return cur, max, true
		}
	}
	for _, h := range snapshot.Page.Headings {
		if m := stepRe.FindStringSubmatch(h.Text); m != nil {
			cur, _ := strconv.Atoi(m[1])
			max, _ := strconv.Atoi(m[2])
			return cur, max, true
		}
	}
	return 0, 0, false
}

func pageText(snapshot *DomSnapshot) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(snapshot.Page.Title))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(snapshot.Page.URL))
	for _, h := range snapshot.Page.Headings {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(h.Text))
	}
	for _, t := range snapshot.Page.TextBlocks {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(t))
	}
	for _, e := range snapshot.Errors {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(e))
	}
	return b.String()
}

func containsAny(text string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return m
		}
	}
	return ""
}

func (c *PageClassifier) classifyHeuristic(snapshot *DomSnapshot) PageClassification {
	text := pageText(snapshot)
	fields := snapshot.FormFields()

	var passwordCount, emailCount, fileCount, textLike int
	var shortCodeField bool
	for _, f := range fields {
		switch f.Type {
		case WidgetPasswordInput:
			passwordCount++
		case WidgetEmailInput:
			emailCount++
		case WidgetFileUpload:
			fileCount++
		default:
			textLike++
		}
		label := strings.ToLower(f.Label)
		if strings.Contains(label, "code") || strings.Contains(label, "otp") {
			shortCodeField = true
		}
	}

	if m := containsAny(text, captchaMarkers); m != "" {
		return PageClassification{PageType: PageCaptcha, Confidence: 90,
			Reasoning: fmt.Sprintf("captcha marker %q", m), SuggestedNext: "stop and flag for human"}
	}

	if passwordCount >= 2 || (passwordCount >= 1 && containsAny(text, registerWords) != "") {
		return PageClassification{PageType: PageRegistration, Confidence: 85,
			Reasoning: "password field with account-creation wording", SuggestedNext: "fill registration form"}
	}

	if passwordCount == 1 && len(fields) <= 4 {
		return PageClassification{PageType: PageLogin, Confidence: 90,
			Reasoning: "single password field on a short form", SuggestedNext: "fill credentials and sign in"}
	}
	if m := containsAny(text, loginMarkers); m != "" && passwordCount >= 1 {
		return PageClassification{PageType: PageLogin, Confidence: 90,
			Reasoning: fmt.Sprintf("login marker %q with password field", m), SuggestedNext: "fill credentials and sign in"}
	}

	if m := containsAny(text, verifyMarkers); m != "" && shortCodeField {
		return PageClassification{PageType: PageEmailVerification, Confidence: 85,
			Reasoning: fmt.Sprintf("verification marker %q with code field", m), SuggestedNext: "fetch code and enter it"}
	}

	if m := containsAny(text, confirmMarkers); m != "" {
		return PageClassification{PageType: PageConfirmation, Confidence: 80,
			Reasoning: fmt.Sprintf("confirmation marker %q", m), SuggestedNext: "record success"}
	}

	if fileCount > 0 && textLike <= 2 {
		return PageClassification{PageType: PageFileUpload, Confidence: 80,
			Reasoning: "file input dominates the form", SuggestedNext: "upload resume"}
	}

	if m := containsAny(text, errorMarkers); m != "" && len(fields) == 0 {
		return PageClassification{PageType: PageError, Confidence: 75,
			Reasoning: fmt.Sprintf("error marker %q with no form", m), SuggestedNext: "abort"}
	}

	if m := containsAny(text, reviewMarkers); m != "" {
		return PageClassification{PageType: PageReview, Confidence: 75,
			Reasoning: fmt.Sprintf("review marker %q", m), SuggestedNext: "verify answers then submit"}
	}

	if len(fields) == 0 {
		if m := containsAny(text, listingMarkers); m != "" {
			return PageClassification{PageType: PageJobListing, Confidence: 70,
				Reasoning: fmt.Sprintf("listing marker %q with no form", m), SuggestedNext: "click apply"}
		}
		if m := containsAny(text, dashMarkers); m != "" {
			return PageClassification{PageType: PageDashboard, Confidence: 65,
				Reasoning: fmt.Sprintf("dashboard marker %q", m), SuggestedNext: "navigate to application"}
		}
	}

	if len(fields) >= 2 {
		return PageClassification{PageType: PageForm, Confidence: 60,
			Reasoning: fmt.Sprintf("%d form fields present", len(fields)), SuggestedNext: "fill form"}
	}

	return PageClassification{PageType: PageUnknown, Confidence: 30,
		Reasoning: "no heuristic matched"}
}

const classifyPromptTemplate = `You are analyzing a web page in a job application flow.

%s

Classify the page as exactly one of:
login, registration, form, review, confirmation, captcha, error, email_verification, file_upload, job_listing, dashboard, unknown

Respond with ONLY a JSON object, no markdown:
{"page_type": "...", "confidence": 0-100, "reasoning": "one sentence", "suggested_next": "one short action"}`

func (c *PageClassifier) classifyWithAI(snapshot *DomSnapshot) (PageClassification, error) {
	prompt := fmt.Sprintf(classifyPromptTemplate, SnapshotToText(snapshot, 40))

	response, err := c.completer.Complete(prompt, 256, 20*time.Second)
	if err != nil {
		return PageClassification{}, fmt.Errorf("completion failed: %w", err)
	}

	var verdict PageClassification
	if err := json.Unmarshal([]byte(extractJSONObject(response)), &verdict); err != nil {
		return PageClassification{}, fmt.Errorf("unparseable classification %q: %w", truncate(response, 120), err)
	}
	if !validPageTypes[verdict.PageType] {
		return PageClassification{}, fmt.Errorf("model returned unknown page type %q", verdict.PageType)
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 100 {
		verdict.Confidence = 100
	}
	log.Printf("AI page classification: %s (%d%%): %s", verdict.PageType, verdict.Confidence, verdict.Reasoning)
	return verdict, nil
}

var validPageTypes = map[PageType]bool{
	PageLogin: true, PageRegistration: true, PageForm: true, PageReview: true,
	PageConfirmation: true, PageCaptcha: true, PageError: true,
	PageEmailVerification: true, PageFileUpload: true, PageJobListing: true,
	PageDashboard: true, PageUnknown: true,
}

// extractJSONObject strips markdown fences and surrounding chatter from a
// model response, returning the outermost {...} block.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
