package services

import (
	"log"
	"strings"
)

// ActionKind says what an action does to its element.
type ActionKind string

const (
	ActionFill   ActionKind = "fill"
	ActionSelect ActionKind = "select"
	ActionCheck  ActionKind = "check"
	ActionUpload ActionKind = "upload"
	ActionClick  ActionKind = "click"
)

// PlannedAction is one step of a form plan. Value may be a reserved
// placeholder token; real secrets never appear in a plan.
type PlannedAction struct {
	Kind         ActionKind
	ElementIndex int
	Selector     string
	WidgetType   WidgetType
	GroupName    string
	Label        string
	Value        string
	Source       string
	Reason       string

	// TypeOrdinal is the element's position among same-type elements in the
	// snapshot, used to locate unhinted fields structurally.
	TypeOrdinal int

	// ToggleViaLabel marks styled checkboxes whose input is hidden; only the
	// visible label takes clicks.
	ToggleViaLabel bool
}

// DisplayValue is what gets logged for an action. Password values are always
// masked, even though plans only ever carry the placeholder token.
func (a PlannedAction) DisplayValue() string {
	if a.WidgetType == WidgetPasswordInput || a.Value == TokenCredentialPassword {
		return "[redacted]"
	}
	return truncate(a.Value, 60)
}

// FormPlan is the ordered set of actions for one scan of a page, plus the
// button to press afterwards.
type FormPlan struct {
	Actions       []PlannedAction
	PrimaryAction *ElementInfo
	Skipped       []string
	RequiresHuman bool
	HumanReasons  []string
}

// ActionPlanner converts a snapshot plus resolved answers into an executable
// plan. It never invents selectors: every action references a snapshot
// element by index with the extractor's locator hint attached.
type ActionPlanner struct {
	resolver   *AnswerResolver
	maxActions int
}

func NewActionPlanner(resolver *AnswerResolver, maxActions int) *ActionPlanner {
	if maxActions <= 0 {
		maxActions = 40
	}
	return &ActionPlanner{resolver: resolver, maxActions: maxActions}
}

var verificationWords = []string{"verification code", "security code", "one-time", "otp", "code sent", "enter the code"}

// IsHoneypotField flags trap fields that must never be filled.
func IsHoneypotField(el ElementInfo) bool {
	for _, s := range []string{el.Label, el.Attributes.ID, el.Attributes.Name} {
		if strings.Contains(strings.ToLower(s), "honey") {
			return true
		}
	}
	return false
}

func isVerificationField(el ElementInfo) bool {
	label := strings.ToLower(el.Label)
	for _, w := range verificationWords {
		if strings.Contains(label, w) {
			return true
		}
	}
	return false
}

// PlanForm resolves every unfilled field of the snapshot into an action.
// Unanswerable required fields make the plan require a human instead of
// being guessed at; unanswerable optional fields are skipped.
func (p *ActionPlanner) PlanForm(snapshot *DomSnapshot, jobContext string) *FormPlan {
	plan := &FormPlan{}

	// Radio groups produce one element per option; plan at most one action
	// per group.
	plannedGroups := map[string]bool{}
	hasCountrySelector := HasCountryCodeSelector(snapshot)

	for _, el := range snapshot.UnfilledFields() {
		if len(plan.Actions) >= p.maxActions {
			plan.Skipped = append(plan.Skipped, "action cap reached")
			break
		}

		if IsHoneypotField(el) {
			plan.Skipped = append(plan.Skipped, "honeypot: "+el.Label)
			continue
		}
		if isVerificationField(el) {
			plan.RequiresHuman = true
			plan.HumanReasons = append(plan.HumanReasons, "verification code field: "+el.Label)
			continue
		}
		if el.Type == WidgetRadio && el.Attributes.GroupName != "" {
			if plannedGroups[el.Attributes.GroupName] {
				continue
			}
		}

		p.planField(plan, el, snapshot.Page.URL, jobContext, hasCountrySelector)
		if el.Type == WidgetRadio && el.Attributes.GroupName != "" {
			plannedGroups[el.Attributes.GroupName] = true
		}
	}

	plan.PrimaryAction = ChoosePrimaryAction(snapshot)
	return plan
}

// PlanRepairs plans fresh actions for fields flagged with a validation error
// after a submit, regardless of whether they already hold a value.
func (p *ActionPlanner) PlanRepairs(snapshot *DomSnapshot, jobContext string) *FormPlan {
	plan := &FormPlan{}
	hasCountrySelector := HasCountryCodeSelector(snapshot)

	for _, el := range snapshot.FormFields() {
		if el.NearbyError == "" || IsHoneypotField(el) {
			continue
		}
		if len(plan.Actions) >= p.maxActions {
			break
		}
		p.planField(plan, el, snapshot.Page.URL, jobContext, hasCountrySelector)
	}

	plan.PrimaryAction = ChoosePrimaryAction(snapshot)
	return plan
}

func (p *ActionPlanner) planField(plan *FormPlan, el ElementInfo, pageURL, jobContext string, hasCountrySelector bool) {
	resolved := p.resolver.Resolve(FieldQuestion{
		Label:              el.Label,
		Type:               el.Type,
		Options:            el.Options,
		Required:           el.Required,
		PageURL:            pageURL,
		HasCountrySelector: hasCountrySelector,
		JobContext:         jobContext,
	})

	if resolved.RequiresHuman {
		plan.RequiresHuman = true
		plan.HumanReasons = append(plan.HumanReasons, resolved.Reason+": "+el.Label)
		return
	}
	if resolved.Value == "" {
		plan.Skipped = append(plan.Skipped, "no answer: "+el.Label)
		return
	}

	action := PlannedAction{
		Kind:           kindForWidget(el.Type),
		ElementIndex:   el.Index,
		Selector:       el.Attributes.Selector,
		WidgetType:     el.Type,
		GroupName:      el.Attributes.GroupName,
		Label:          el.Label,
		Value:          resolved.Value,
		Source:         resolved.Source,
		Reason:         resolved.Reason,
		TypeOrdinal:    el.TypeOrdinal,
		ToggleViaLabel: el.Attributes.ToggleViaLabel,
	}
	plan.Actions = append(plan.Actions, action)
	log.Printf("Planned %s [%d] %q <- %s (%s)", action.Kind, action.ElementIndex,
		truncate(action.Label, 60), action.DisplayValue(), action.Source)
}

var countrySelectorWords = []string{"country code", "dial code", "calling code", "phone country"}

// HasCountryCodeSelector reports whether the page carries a dropdown for the
// phone country code; phone values then get their code stripped.
func HasCountryCodeSelector(snapshot *DomSnapshot) bool {
	for _, el := range snapshot.Elements {
		if el.Type != WidgetSelect && el.Type != WidgetCombobox {
			continue
		}
		label := strings.ToLower(el.Label)
		for _, w := range countrySelectorWords {
			if strings.Contains(label, w) {
				return true
			}
		}
		for _, o := range el.Options {
			if strings.HasPrefix(strings.TrimSpace(o.Text), "+") {
				return true
			}
		}
	}
	return false
}

func kindForWidget(t WidgetType) ActionKind {
	switch t {
	case WidgetSelect, WidgetCombobox, WidgetListbox:
		return ActionSelect
	case WidgetCheckbox, WidgetRadio:
		return ActionCheck
	case WidgetFileUpload:
		return ActionUpload
	default:
		return ActionFill
	}
}

// Primary action scoring. Submit-like wording wins; destructive or
// backwards wording is never picked.
var primaryActionWords = []string{
	"submit", "apply", "next", "continue", "register", "sign up",
	"create account", "sign in", "login", "log in", "save", "confirm", "review",
}

var avoidActionWords = []string{
	"cancel", "back", "close", "skip", "withdraw", "delete", "remove",
	"discard", "logout", "sign out",
}

// ChoosePrimaryAction picks the button most likely to advance the flow, or
// nil when no safe candidate exists.
func ChoosePrimaryAction(snapshot *DomSnapshot) *ElementInfo {
	var best *ElementInfo
	bestScore := 0

	for i := range snapshot.Elements {
		el := &snapshot.Elements[i]
		if el.Type != WidgetButton && el.Type != WidgetSubmitButton && el.Type != WidgetLink {
			continue
		}
		label := strings.ToLower(el.Label)
		if label == "" {
			label = strings.ToLower(el.CurrentValue)
		}
		if label == "" {
			continue
		}

		avoided := false
		for _, w := range avoidActionWords {
			if strings.Contains(label, w) {
				avoided = true
				break
			}
		}
		if avoided {
			continue
		}

		score := 0
		// Earlier keywords indicate stronger intent.
		for rank, w := range primaryActionWords {
			if strings.Contains(label, w) {
				score = 100 - rank
				break
			}
		}
		if score == 0 {
			continue
		}
		if el.Type == WidgetSubmitButton {
			score += 20
		}
		if el.Type == WidgetLink {
			score -= 10
		}
		if el.InViewport {
			score += 5
		}

		if score > bestScore {
			bestScore = score
			best = el
		}
	}
	return best
}
