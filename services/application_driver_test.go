package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"autoapply/models"
)

func TestPageStateHashStable(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "First Name", CurrentValue: "", Attributes: ElementAttributes{Name: "fn"}},
		{Index: 1, Type: WidgetSubmitButton, Label: "Submit"},
	})

	assert.Equal(t, PageStateHash(s), PageStateHash(s))
}

func TestPageStateHashChangesWithValues(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "First Name", CurrentValue: "", Attributes: ElementAttributes{Name: "fn"}},
	})
	before := PageStateHash(s)

	s.Elements[0].CurrentValue = "Ada"
	assert.NotEqual(t, before, PageStateHash(s))
}

func TestPageStateHashChangesWithURL(t *testing.T) {
	a := snapshotWith("https://jobs.example.com/step1", "Apply", nil, nil)
	b := snapshotWith("https://jobs.example.com/step2", "Apply", nil, nil)

	assert.NotEqual(t, PageStateHash(a), PageStateHash(b))
}

func TestStuckOnFirstRepeatedPageState(t *testing.T) {
	var states pageStateTracker

	assert.False(t, states.repeated("aaa"), "first sighting is never a repeat")
	assert.True(t, states.repeated("aaa"), "second consecutive identical hash must end the attempt")

	assert.False(t, states.repeated("bbb"), "a changed hash resets the tracker")
	assert.False(t, states.repeated("aaa"), "non-consecutive repeats do not count")
	assert.True(t, states.repeated("aaa"))
}

func TestEmptyHashNeverCountsAsRepeat(t *testing.T) {
	var states pageStateTracker

	assert.False(t, states.repeated(""))
	assert.False(t, states.repeated(""))
}

func TestTimedOutAttemptEndsStuck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &ApplicationDriver{}
	result := d.Apply(ctx, &models.Job{ApplyURL: "https://jobs.example.com/apply"})

	assert.Equal(t, models.ApplyStuck, result.Status)
	assert.Equal(t, "attempt timed out", result.Detail)
}

func TestIsOpenFormATS(t *testing.T) {
	assert.True(t, IsOpenFormATS("https://boards.greenhouse.io/acme/jobs/1"))
	assert.True(t, IsOpenFormATS("https://jobs.lever.co/acme/123"))
	assert.False(t, IsOpenFormATS("https://careers.workday.example.com/login"))
	assert.False(t, IsOpenFormATS("https://fakegreenhouse.io.evil.com/x"))
}

func TestIsBrowserClosedErr(t *testing.T) {
	assert.True(t, IsBrowserClosedErr(fmt.Errorf("Target page, context or browser has been closed")))
	assert.True(t, IsBrowserClosedErr(fmt.Errorf("playwright: connection closed")))
	assert.False(t, IsBrowserClosedErr(fmt.Errorf("timeout 30000ms exceeded")))
	assert.False(t, IsBrowserClosedErr(nil))
}

func TestJobStatusForOutcome(t *testing.T) {
	status, _ := jobStatusForOutcome(AttemptResult{Status: models.ApplySubmitted})
	assert.Equal(t, models.JobStatusApplied, status)

	status, _ = jobStatusForOutcome(AttemptResult{Status: models.ApplyAlreadyApplied})
	assert.Equal(t, models.JobStatusApplied, status)

	status, _ = jobStatusForOutcome(AttemptResult{Status: models.ApplyStuck})
	assert.Equal(t, models.JobStatusApplyStuck, status)

	status, _ = jobStatusForOutcome(AttemptResult{Status: models.ApplyNeedsHuman})
	assert.Equal(t, models.JobStatusApplyStuck, status)

	status, _ = jobStatusForOutcome(AttemptResult{Status: models.ApplyDryRun})
	assert.Empty(t, status, "dry runs must not move the job")

	status, _ = jobStatusForOutcome(AttemptResult{Status: models.ApplyCaptcha, Detail: "recaptcha"})
	assert.Equal(t, models.JobStatusFailed, status)
}

func TestAlreadyAppliedDetection(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Application",
		[]string{"You have already applied to this position"}, nil)

	assert.NotEmpty(t, containsAny(pageText(s), alreadyAppliedMarkers))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "boards.greenhouse.io", hostOf("https://boards.greenhouse.io/acme/jobs/1?x=1"))
	assert.Equal(t, "example.com", hostOf("http://example.com"))
}
