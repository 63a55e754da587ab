package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"autoapply/config"
	"autoapply/models"
	"autoapply/utils"
)

// hostLimiters spaces out attempts per target host so one batch never
// hammers a single ATS.
type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	minDelay time.Duration
}

func newHostLimiters(minDelay time.Duration) *hostLimiters {
	if minDelay <= 0 {
		minDelay = 5 * time.Second
	}
	return &hostLimiters{
		limiters: make(map[string]*rate.Limiter),
		minDelay: minDelay,
	}
}

func (h *hostLimiters) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.minDelay), 1)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()
	return limiter.Wait(ctx)
}

// BatchResult tallies the outcomes of one batch run.
type BatchResult struct {
	mu     sync.Mutex
	Counts map[string]int
	Total  int
}

func (r *BatchResult) record(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Counts == nil {
		r.Counts = map[string]int{}
	}
	r.Counts[status]++
	r.Total++
}

// BatchOrchestrator runs application attempts over the pending jobs in the
// store. Each worker owns its own browser; workers never share Playwright
// state.
type BatchOrchestrator struct {
	Jobs     *models.JobModel
	Attempts *models.ApplicationAttemptModel

	Profile   *UserProfileData
	Overrides *SiteOverrides
	Answers   *models.AnswerStoreModel
	Completer TextCompleter
	Secrets   SecretSource
	Enricher  *JobEnricher

	Screenshot *ScreenshotService
	Automation config.AutomationConfig
}

// Prepare enriches NEW jobs with listing details and promotes them to
// READY_TO_APPLY. Jobs whose listing cannot be fetched still get promoted;
// enrichment is best effort.
func (o *BatchOrchestrator) Prepare(ctx context.Context, limit int) error {
	jobs, err := o.Jobs.ListByStatus(models.JobStatusNew, limit)
	if err != nil {
		return fmt.Errorf("failed to list new jobs: %w", err)
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if o.Enricher != nil && job.Description == "" {
			details, err := o.Enricher.Enrich(job.ApplyURL)
			if err != nil {
				log.Printf("Enrichment failed for %s: %v", job.ExternalID, err)
			} else {
				title := job.Title
				if title == "" {
					title = details.Title
				}
				company := job.Company
				if company == "" {
					company = details.Company
				}
				if _, err := o.Jobs.Upsert(job.ExternalID, title, company, job.ApplyURL,
					job.Location, details.Description); err != nil {
					log.Printf("Failed to store enrichment for %s: %v", job.ExternalID, err)
				}
			}
		}

		if err := o.Jobs.UpdateStatus(job.ExternalID, models.JobStatusReady, "enriched"); err != nil {
			log.Printf("Failed to promote %s: %v", job.ExternalID, err)
		}
	}
	return nil
}

// Run applies to up to limit READY_TO_APPLY jobs with the given parallelism
// and returns per-status counts. A failing attempt never aborts the batch.
func (o *BatchOrchestrator) Run(ctx context.Context, limit, workers int) (*BatchResult, error) {
	if workers <= 0 {
		workers = 1
	}
	jobs, err := o.Jobs.ListByStatus(models.JobStatusReady, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready jobs: %w", err)
	}
	log.Printf("Batch run: %d jobs, %d workers, dry-run=%v", len(jobs), workers, o.Automation.DryRun)

	result := &BatchResult{}
	limiters := newHostLimiters(o.Automation.MinDelayPerHost)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i := range jobs {
		job := jobs[i]
		group.Go(func() error {
			if err := limiters.wait(groupCtx, hostOf(job.ApplyURL)); err != nil {
				return nil // context cancelled while waiting
			}
			o.applyOne(groupCtx, &job, result)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}
	utils.LogInfo("batch finished", map[string]interface{}{
		"attempts": result.Total,
		"outcomes": result.Counts,
	})
	return result, nil
}

func (o *BatchOrchestrator) applyOne(ctx context.Context, job *models.Job, result *BatchResult) {
	attemptID, err := o.Attempts.Start(job.ExternalID)
	if err != nil {
		log.Printf("Failed to record attempt for %s: %v", job.ExternalID, err)
		return
	}

	attemptCtx := ctx
	var cancel context.CancelFunc
	if o.Automation.ApplyTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, o.Automation.ApplyTimeout)
		defer cancel()
	}

	outcome := o.ApplyJob(attemptCtx, job)

	if err := o.Attempts.Finish(attemptID, outcome.Status, outcome.Detail,
		outcome.PagesVisited, outcome.ScreenshotURL); err != nil {
		log.Printf("Failed to finish attempt %s: %v", attemptID, err)
	}
	if outcome.Status == models.ApplyFailed || outcome.Status == models.ApplyBrowserCrash {
		utils.LogError("application attempt failed", nil, map[string]interface{}{
			"job":     job.ExternalID,
			"attempt": attemptID,
			"status":  outcome.Status,
			"detail":  outcome.Detail,
		})
	}
	result.record(outcome.Status)
}

// ApplyJob runs a single application attempt and moves the job through its
// lifecycle based on the outcome.
func (o *BatchOrchestrator) ApplyJob(ctx context.Context, job *models.Job) AttemptResult {
	outcome := o.drive(ctx, job)

	jobStatus, detail := jobStatusForOutcome(outcome)
	if jobStatus != "" {
		if err := o.Jobs.UpdateStatus(job.ExternalID, jobStatus, detail); err != nil {
			log.Printf("Failed to update job %s: %v", job.ExternalID, err)
		}
	}
	return outcome
}

func (o *BatchOrchestrator) drive(ctx context.Context, job *models.Job) AttemptResult {
	sessionOpts := BrowserSessionOptions{
		Headless:      o.Automation.Headless,
		PageTimeoutMS: float64(o.Automation.PageTimeout.Milliseconds()),
	}
	if o.Automation.Debug {
		sessionOpts.SlowMoMS = 100
	}
	session, err := NewBrowserSession(sessionOpts)
	if err != nil {
		return AttemptResult{Status: models.ApplyBrowserCrash, Detail: err.Error()}
	}
	defer session.Close()

	var store AnswerStore
	if o.Answers != nil {
		store = o.Answers
	}
	resolver := NewAnswerResolver(o.Profile, o.Overrides, store, o.Completer)
	planner := NewActionPlanner(resolver, o.Automation.MaxActionsPage)
	processor := NewFormProcessor(planner, 3)

	run := func() AttemptResult {
		driver := &ApplicationDriver{
			Session:    session,
			Classifier: NewPageClassifier(o.Completer),
			Processor:  processor,
			Screenshot: o.Screenshot,
			Secrets:    o.Secrets,
			CoverText:  NewCoverLetterService(o.Profile, o.Completer),
			ResumePath: o.Automation.ResumePath,
			MaxPages:   o.Automation.MaxPages,
			DryRun:     o.Automation.DryRun,
		}
		return driver.Apply(ctx, job)
	}

	outcome := run()
	for retries := 0; shouldRetryCrash(outcome, retries); retries++ {
		if rerr := session.Restart(); rerr != nil {
			log.Printf("Browser restart failed for %s: %v", job.ExternalID, rerr)
			break
		}
		log.Printf("Browser crashed on %s, retrying once with a fresh browser", job.ExternalID)
		outcome = run()
	}
	return outcome
}

// crashRetryBudget is how many fresh-browser retries one job gets after its
// browser dies mid-attempt.
const crashRetryBudget = 1

func shouldRetryCrash(outcome AttemptResult, retriesUsed int) bool {
	return outcome.Status == models.ApplyBrowserCrash && retriesUsed < crashRetryBudget
}

// jobStatusForOutcome maps an attempt outcome to the job lifecycle. Dry runs
// leave the job untouched.
func jobStatusForOutcome(outcome AttemptResult) (string, string) {
	switch outcome.Status {
	case models.ApplySubmitted, models.ApplyAlreadyApplied:
		return models.JobStatusApplied, outcome.Status
	case models.ApplyStuck, models.ApplyNeedsHuman:
		return models.JobStatusApplyStuck, outcome.Detail
	case models.ApplyDryRun:
		return "", ""
	default:
		return models.JobStatusFailed, outcome.Status + ": " + outcome.Detail
	}
}
