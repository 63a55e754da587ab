package services

import (
	"fmt"
	"log"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// ProcessResult summarizes one pass of the form processor over a page.
type ProcessResult struct {
	Filled        int
	Failed        int
	Skipped       []string
	RequiresHuman bool
	HumanReasons  []string
	ClickedLabel  string
	Advanced      bool
	Errors        []string
}

// FormProcessor fills one page in phases: scan, plan, execute, re-scan for
// revealed fields, press the primary action, then check what the submit did.
// Filling a field never makes the page fail; per-field errors are collected
// and the pass continues.
type FormProcessor struct {
	planner   *ActionPlanner
	maxRounds int
}

// maxValidationRetries bounds the re-fill attempts after a rejected submit.
// The third rejection ends the attempt; there is never a fourth.
const maxValidationRetries = 3

func NewFormProcessor(planner *ActionPlanner, maxRounds int) *FormProcessor {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &FormProcessor{planner: planner, maxRounds: maxRounds}
}

// DetectModalScope returns a locator for a visible dialog overlay, or nil
// when the page itself is the scope. Modals must be processed before the
// page behind them.
func DetectModalScope(page playwright.Page) playwright.Locator {
	for _, sel := range []string{`[role="dialog"]`, `[aria-modal="true"]`, `.modal.show`, `.modal[style*="display: block"]`} {
		loc := page.Locator(sel).First()
		count, err := loc.Count()
		if err != nil || count == 0 {
			continue
		}
		if visible, err := loc.IsVisible(); err == nil && visible {
			log.Printf("Modal scope detected: %s", sel)
			return loc
		}
	}
	return nil
}

// Process fills the current page. Progressive-disclosure forms reveal fields
// as earlier ones are answered, so scanning and filling repeat until a round
// fills nothing or the round cap is hit. When clickPrimary is set, the pass
// ends by pressing the page's primary action.
func (p *FormProcessor) Process(filler *FormFiller, jobContext string, clickPrimary bool) (*ProcessResult, error) {
	result := &ProcessResult{}

	var lastPlan *FormPlan
	for round := 0; round < p.maxRounds; round++ {
		snapshot := ExtractSnapshot(filler.Page, filler.Scope)
		if len(snapshot.Elements) == 0 && len(snapshot.Errors) > 0 && round == 0 {
			return result, fmt.Errorf("page scan failed: %s", snapshot.Errors[0])
		}

		plan := p.planner.PlanForm(snapshot, jobContext)
		lastPlan = plan
		result.Skipped = append(result.Skipped, plan.Skipped...)
		if plan.RequiresHuman {
			result.RequiresHuman = true
			result.HumanReasons = append(result.HumanReasons, plan.HumanReasons...)
		}

		if len(plan.Actions) == 0 {
			break
		}
		log.Printf("Fill round %d: %d planned actions", round+1, len(plan.Actions))

		filledThisRound := 0
		for _, action := range plan.Actions {
			if err := filler.Execute(action); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err.Error())
				log.Printf("Action failed [%d] %q: %v", action.ElementIndex, truncate(action.Label, 50), err)
				continue
			}
			result.Filled++
			filledThisRound++
		}

		if filledThisRound == 0 {
			break
		}
		// Let dependent fields render before the next scan.
		filler.Page.WaitForTimeout(500)
	}

	if result.RequiresHuman {
		log.Printf("Page needs a human: %v", result.HumanReasons)
		return result, nil
	}

	if clickPrimary {
		if lastPlan == nil || lastPlan.PrimaryAction == nil {
			// Re-scan in case filling revealed the button.
			snapshot := ExtractSnapshot(filler.Page, filler.Scope)
			lastPlan = &FormPlan{PrimaryAction: ChoosePrimaryAction(snapshot)}
		}
		if lastPlan.PrimaryAction == nil {
			result.Errors = append(result.Errors, "no primary action found")
			return result, nil
		}

		label, err := p.pressPrimary(filler, lastPlan.PrimaryAction)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result, err
		}
		result.ClickedLabel = label

		if filler.DryRun {
			result.Advanced = true
			return result, nil
		}
		return p.verifySubmit(filler, jobContext, result)
	}

	return result, nil
}

func (p *FormProcessor) pressPrimary(filler *FormFiller, primary *ElementInfo) (string, error) {
	label := primary.Label
	if label == "" {
		label = primary.CurrentValue
	}
	action := PlannedAction{
		Kind:         ActionClick,
		ElementIndex: primary.Index,
		Selector:     primary.Attributes.Selector,
		WidgetType:   primary.Type,
		Label:        label,
		TypeOrdinal:  primary.TypeOrdinal,
	}
	if err := filler.Execute(action); err != nil {
		return label, fmt.Errorf("primary action %q failed: %w", truncate(label, 40), err)
	}
	log.Printf("Pressed primary action: %q", truncate(label, 60))
	return label, nil
}

// verifySubmit re-scans after the primary click. A verification-code prompt
// escalates; validation errors trigger repair passes over the flagged fields,
// bounded by maxValidationRetries; a clean page means the flow advanced.
func (p *FormProcessor) verifySubmit(filler *FormFiller, jobContext string, result *ProcessResult) (*ProcessResult, error) {
	var errs []string
	for retry := 0; ; retry++ {
		filler.Page.WaitForTimeout(1500)
		snapshot := ExtractSnapshot(filler.Page, filler.Scope)

		if HasVerificationPrompt(snapshot) {
			result.RequiresHuman = true
			result.HumanReasons = append(result.HumanReasons, "verification code prompt after submit")
			return result, nil
		}

		errs = CollectValidationErrors(snapshot)
		if len(errs) == 0 {
			result.Advanced = true
			return result, nil
		}
		result.Errors = append(result.Errors, errs...)
		if retry >= maxValidationRetries {
			break
		}

		log.Printf("Submit rejected, repair pass %d/%d: %v", retry+1, maxValidationRetries, errs)
		repair := p.planner.PlanRepairs(snapshot, jobContext)
		if repair.RequiresHuman {
			result.RequiresHuman = true
			result.HumanReasons = append(result.HumanReasons, repair.HumanReasons...)
			return result, nil
		}
		if len(repair.Actions) == 0 {
			break
		}
		for _, action := range repair.Actions {
			if err := filler.Execute(action); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Filled++
		}
		if repair.PrimaryAction == nil {
			break
		}
		if _, err := p.pressPrimary(filler, repair.PrimaryAction); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result, err
		}
	}
	return result, fmt.Errorf("validation errors persist after submit: %s", truncate(strings.Join(errs, "; "), 200))
}

var validationErrorWords = []string{
	"required", "invalid", "must ", "enter ", "select ", "cannot be", "is not valid", "please provide", "missing",
}

// CollectValidationErrors gathers the field-level errors a rejected submit
// left behind: per-field messages plus page-level alerts that read like
// validation failures.
func CollectValidationErrors(snapshot *DomSnapshot) []string {
	var errs []string
	seen := map[string]bool{}
	add := func(msg string) {
		msg = strings.TrimSpace(msg)
		if msg != "" && !seen[msg] {
			seen[msg] = true
			errs = append(errs, msg)
		}
	}

	for _, el := range snapshot.FormFields() {
		if el.NearbyError != "" {
			add(el.Label + ": " + el.NearbyError)
		}
	}
	for _, e := range snapshot.Errors {
		lower := strings.ToLower(e)
		for _, w := range validationErrorWords {
			if strings.Contains(lower, w) {
				add(e)
				break
			}
		}
	}
	return errs
}

// HasVerificationPrompt reports whether the page now asks for an emailed or
// texted code, which no amount of re-filling can answer.
func HasVerificationPrompt(snapshot *DomSnapshot) bool {
	if containsAny(pageText(snapshot), verifyMarkers) == "" {
		return false
	}
	for _, el := range snapshot.FormFields() {
		label := strings.ToLower(el.Label)
		if strings.Contains(label, "code") || strings.Contains(label, "otp") {
			return true
		}
	}
	return false
}
