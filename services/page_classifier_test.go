package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(prompt string, maxTokens int, timeout time.Duration) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func snapshotWith(url, title string, headings []string, elements []ElementInfo) *DomSnapshot {
	s := &DomSnapshot{
		Page:     PageInfo{Title: title, URL: url},
		Elements: elements,
	}
	for _, h := range headings {
		s.Page.Headings = append(s.Page.Headings, Heading{Level: 1, Text: h})
	}
	return s
}

func TestClassifyCaptcha(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://jobs.example.com/apply", "Verify", []string{"Please verify you are human"}, nil)

	verdict := c.Classify(s)
	assert.Equal(t, PageCaptcha, verdict.PageType)
	assert.Equal(t, 90, verdict.Confidence)
}

func TestClassifyLogin(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://careers.example.com/login", "Sign In", nil, []ElementInfo{
		{Index: 0, Type: WidgetEmailInput, Label: "Email"},
		{Index: 1, Type: WidgetPasswordInput, Label: "Password"},
	})

	verdict := c.Classify(s)
	assert.Equal(t, PageLogin, verdict.PageType)
	assert.Equal(t, 90, verdict.Confidence)
}

func TestClassifyRegistration(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://careers.example.com/signup", "Create your account", nil, []ElementInfo{
		{Index: 0, Type: WidgetEmailInput, Label: "Email"},
		{Index: 1, Type: WidgetPasswordInput, Label: "Password"},
		{Index: 2, Type: WidgetPasswordInput, Label: "Confirm Password"},
	})

	verdict := c.Classify(s)
	assert.Equal(t, PageRegistration, verdict.PageType)
	assert.Equal(t, 85, verdict.Confidence)
}

func TestClassifyEmailVerification(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://careers.example.com/verify", "Check your email", []string{"We sent a code to your inbox"}, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "Verification code"},
	})

	verdict := c.Classify(s)
	assert.Equal(t, PageEmailVerification, verdict.PageType)
}

func TestClassifyConfirmation(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://jobs.example.com/done", "Thanks", []string{"Thank you for applying!"}, nil)

	verdict := c.Classify(s)
	assert.Equal(t, PageConfirmation, verdict.PageType)
	assert.Equal(t, 80, verdict.Confidence)
}

func TestClassifyFormByFieldCount(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://jobs.example.com/apply", "Application", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "First Name"},
		{Index: 1, Type: WidgetTextInput, Label: "Last Name"},
		{Index: 2, Type: WidgetTextarea, Label: "Why us?"},
	})

	verdict := c.Classify(s)
	assert.Equal(t, PageForm, verdict.PageType)
}

func TestClassifyUnknownIsLowConfidence(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://example.com/x", "", nil, nil)

	verdict := c.Classify(s)
	assert.Equal(t, PageUnknown, verdict.PageType)
	assert.Less(t, verdict.Confidence, heuristicConfidenceFloor)
}

func TestClassifyConsultsAIOnlyBelowFloor(t *testing.T) {
	fake := &fakeCompleter{response: `{"page_type": "dashboard", "confidence": 75, "reasoning": "nav links"}`}
	c := NewPageClassifier(fake)

	confident := snapshotWith("https://jobs.example.com/done", "Thanks", []string{"Application submitted"}, nil)
	c.Classify(confident)
	assert.Equal(t, 0, fake.calls, "confident heuristic must not call the model")

	vague := snapshotWith("https://example.com/x", "", nil, nil)
	verdict := c.Classify(vague)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, PageDashboard, verdict.PageType)
	assert.Equal(t, 75, verdict.Confidence)
}

func TestClassifyCachesAIVerdictByStructure(t *testing.T) {
	fake := &fakeCompleter{response: `{"page_type": "dashboard", "confidence": 75, "reasoning": "nav links"}`}
	c := NewPageClassifier(fake)

	vague := snapshotWith("https://example.com/x?step=1", "", nil, nil)
	first := c.Classify(vague)

	// Same structure, different query string: must hit the cache.
	again := snapshotWith("https://example.com/x?step=2", "", nil, nil)
	second := c.Classify(again)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, first.PageType, second.PageType)
}

func TestClassifyAIFailureFallsBackToHeuristic(t *testing.T) {
	fake := &fakeCompleter{err: fmt.Errorf("quota exceeded")}
	c := NewPageClassifier(fake)

	vague := snapshotWith("https://example.com/x", "", nil, nil)
	verdict := c.Classify(vague)
	assert.Equal(t, PageUnknown, verdict.PageType)
}

func TestClassifyAIRejectsBogusPageType(t *testing.T) {
	fake := &fakeCompleter{response: `{"page_type": "pizza", "confidence": 99}`}
	c := NewPageClassifier(fake)

	vague := snapshotWith("https://example.com/x", "", nil, nil)
	verdict := c.Classify(vague)
	assert.Equal(t, PageUnknown, verdict.PageType)
}

func TestExtractJSONObjectStripsFences(t *testing.T) {
	raw := "```json\n{\"page_type\": \"form\"}\n```"
	assert.Equal(t, `{"page_type": "form"}`, extractJSONObject(raw))

	chatty := "Here you go: {\"a\": 1} hope that helps"
	assert.Equal(t, `{"a": 1}`, extractJSONObject(chatty))
}

func TestClassifierCacheKeyIgnoresQuery(t *testing.T) {
	c := NewPageClassifier(nil)
	a := snapshotWith("https://example.com/apply?token=1", "t", nil, []ElementInfo{{Type: WidgetTextInput, Label: "Name"}})
	b := snapshotWith("https://example.com/apply?token=2", "t", nil, []ElementInfo{{Type: WidgetTextInput, Label: "Name"}})

	assert.Equal(t, c.cacheKey(a), c.cacheKey(b))

	changed := snapshotWith("https://example.com/apply?token=1", "t", nil, []ElementInfo{{Type: WidgetTextInput, Label: "Other"}})
	assert.NotEqual(t, c.cacheKey(a), c.cacheKey(changed))
}

func TestDetectStepsFromProgressValues(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, nil)
	s.ProgressIndicators = []ProgressIndicator{{Value: "2", Max: "5"}}

	current, total, ok := DetectSteps(s)
	require.True(t, ok)
	assert.Equal(t, 2, current)
	assert.Equal(t, 5, total)
}

func TestDetectStepsFromIndicatorText(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, nil)
	s.ProgressIndicators = []ProgressIndicator{{Text: "Step 3 of 4: Experience"}}

	current, total, ok := DetectSteps(s)
	require.True(t, ok)
	assert.Equal(t, 3, current)
	assert.Equal(t, 4, total)
}

func TestDetectStepsFromHeadings(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply",
		[]string{"Step 1 / 3"}, nil)

	current, total, ok := DetectSteps(s)
	require.True(t, ok)
	assert.Equal(t, 1, current)
	assert.Equal(t, 3, total)
}

func TestDetectStepsAbsent(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply",
		[]string{"Tell us about yourself"}, nil)

	_, _, ok := DetectSteps(s)
	assert.False(t, ok)
}

func TestClassifyAnnotatesMultiStepForms(t *testing.T) {
	c := NewPageClassifier(nil)
	s := snapshotWith("https://jobs.example.com/apply", "Apply",
		[]string{"Step 2 of 5"}, []ElementInfo{
			{Index: 0, Type: WidgetTextInput, Label: "First Name", Required: true},
			{Index: 1, Type: WidgetEmailInput, Label: "Email", Required: true},
			{Index: 2, Type: WidgetPhoneInput, Label: "Phone"},
			{Index: 3, Type: WidgetSubmitButton, Label: "Continue"},
		})

	verdict := c.Classify(s)
	assert.True(t, verdict.IsMultiStep)
	assert.Equal(t, 2, verdict.CurrentStep)
	assert.Equal(t, 5, verdict.TotalSteps)
}
