package services

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"autoapply/models"
)

// Answer sources, in resolution order. SourceHuman is never produced by the
// resolver itself; it marks answers supplied through the API after an
// escalation.
const (
	SourceProfile      = "profile"
	SourceSiteOverride = "site_override"
	SourceCache        = "cache"
	SourceSemantic     = "semantic_match"
	SourceAI           = "ai"
	SourceDefault      = "default"
	SourceHuman        = "human"
)

// FieldQuestion is one form field the resolver must produce a value for.
type FieldQuestion struct {
	Label    string
	Type     WidgetType
	Options  []ElementOption
	Required bool
	PageURL  string

	// HasCountrySelector is set when the form carries a separate
	// country-code dropdown next to the phone field, so the phone value
	// itself must not repeat the code.
	HasCountrySelector bool

	// JobContext is a short description of the job being applied to, used
	// in AI prompts.
	JobContext string
}

// ResolvedAnswer is the resolver verdict for one question.
type ResolvedAnswer struct {
	Value         string
	Source        string
	Confidence    int
	RequiresHuman bool
	Reason        string
}

// AnswerStore persists resolved answers keyed by the normalized question and
// widget type, so a free-text answer is never replayed into a dropdown.
// models.AnswerStoreModel is the Postgres implementation.
type AnswerStore interface {
	Lookup(question, fieldType string) (*models.QuestionResponse, error)
	Save(question, fieldType, answer, source string) error
}

// AnswerResolver turns a form question into a value using, in order: the
// applicant profile, per-site overrides, the persistent answer cache, AI
// matching against profile fields, AI generation, and finally type-based safe
// defaults. Optional fields with no answer are skipped; required fields with
// no answer are flagged for a human rather than guessed.
type AnswerResolver struct {
	profile   *UserProfileData
	overrides *SiteOverrides
	store     AnswerStore
	completer TextCompleter
}

// NewAnswerResolver builds a resolver. overrides, store and completer may
// each be nil; the corresponding tier is then skipped.
func NewAnswerResolver(profile *UserProfileData, overrides *SiteOverrides, store AnswerStore, completer TextCompleter) *AnswerResolver {
	return &AnswerResolver{
		profile:   profile,
		overrides: overrides,
		store:     store,
		completer: completer,
	}
}

// Resolve runs the tiers in order and returns the first hit. Every answer
// that is neither an escalation nor a reserved token is remembered, so the
// next form asking the same question hits the cache instead of the model.
func (r *AnswerResolver) Resolve(q FieldQuestion) ResolvedAnswer {
	answer := r.resolve(q)
	if answer.Source != SourceCache {
		r.remember(q, answer)
	}
	return answer
}

func (r *AnswerResolver) resolve(q FieldQuestion) ResolvedAnswer {
	if answer, ok := r.resolveFromProfile(q); ok {
		return answer
	}

	if r.overrides != nil {
		if value, ok := r.overrides.Lookup(q.PageURL, q.Label); ok {
			return ResolvedAnswer{
				Value: r.formatForField(value, q), Source: SourceSiteOverride,
				Confidence: 90, Reason: "site override dictionary",
			}
		}
	}

	if r.store != nil {
		cached, err := r.store.Lookup(q.Label, string(q.Type))
		if err != nil {
			log.Printf("Answer cache lookup failed for %q: %v", q.Label, err)
		} else if cached != nil {
			return ResolvedAnswer{
				Value: cached.Answer, Source: SourceCache,
				Confidence: 85, Reason: fmt.Sprintf("cached answer (reused %d times)", cached.ReuseCount),
			}
		}
	}

	if r.completer != nil {
		if answer, ok := r.resolveSemanticMatch(q); ok {
			return answer
		}
		if answer, err := r.resolveWithAI(q); err != nil {
			log.Printf("AI answer resolution failed for %q: %v", q.Label, err)
		} else {
			return answer
		}
	}

	return r.resolveDefault(q)
}

func (r *AnswerResolver) remember(q FieldQuestion, a ResolvedAnswer) {
	if r.store == nil || a.Value == "" || a.RequiresHuman || IsReservedToken(a.Value) {
		return
	}
	if err := r.store.Save(q.Label, string(q.Type), a.Value, a.Source); err != nil {
		log.Printf("Failed to cache answer for %q: %v", q.Label, err)
	}
}

// profileRule maps label keywords to a profile getter. Rules are checked in
// order; more specific keywords come first.
type profileRule struct {
	keywords []string
	getter   func(p *UserProfileData) string
}

var profileRules = []profileRule{
	{[]string{"first name", "given name", "forename"}, func(p *UserProfileData) string { return p.FirstName }},
	{[]string{"last name", "family name", "surname"}, func(p *UserProfileData) string { return p.LastName }},
	{[]string{"full name", "legal name", "your name"}, func(p *UserProfileData) string { return p.FullName() }},
	{[]string{"preferred name"}, func(p *UserProfileData) string { return p.FirstName }},
	{[]string{"linkedin"}, func(p *UserProfileData) string { return p.LinkedIn }},
	{[]string{"github"}, func(p *UserProfileData) string { return p.GitHub }},
	{[]string{"portfolio", "personal website", "website"}, func(p *UserProfileData) string { return p.Portfolio }},
	{[]string{"current company", "current employer", "employer"}, func(p *UserProfileData) string { return p.CurrentCompany }},
	{[]string{"current title", "job title", "current role", "current position"}, func(p *UserProfileData) string { return p.CurrentTitle }},
	{[]string{"years of experience", "years experience", "total experience"}, func(p *UserProfileData) string { return p.YearsExperience }},
	{[]string{"salary", "compensation", "expected ctc", "pay expectation"}, func(p *UserProfileData) string { return p.SalaryExpectation }},
	{[]string{"notice period", "when can you start", "start date", "availability"}, func(p *UserProfileData) string { return p.NoticePeriod }},
	{[]string{"sponsorship", "visa"}, func(p *UserProfileData) string { return p.RequiresSponsorship }},
	{[]string{"authorized to work", "work authorization", "legally authorized", "eligible to work"}, func(p *UserProfileData) string { return p.WorkAuthorized }},
	{[]string{"gender"}, func(p *UserProfileData) string { return p.Gender }},
	{[]string{"race", "ethnicity"}, func(p *UserProfileData) string { return p.Race }},
	{[]string{"veteran"}, func(p *UserProfileData) string { return p.VeteranStatus }},
	{[]string{"disability"}, func(p *UserProfileData) string { return p.DisabilityInfo }},
	{[]string{"zip", "postal"}, func(p *UserProfileData) string { return p.ZipCode }},
	{[]string{"city"}, func(p *UserProfileData) string { return p.City }},
	{[]string{"state", "province"}, func(p *UserProfileData) string { return p.State }},
	{[]string{"country"}, func(p *UserProfileData) string { return p.Country }},
	{[]string{"address"}, func(p *UserProfileData) string { return p.Address }},
	{[]string{"name"}, func(p *UserProfileData) string { return p.FullName() }},
}

var skillYearsRe = regexp.MustCompile(`years?.{0,20}(?:experience|exp).{0,30}(?:with|in|using)\s+(.+)`)

func (r *AnswerResolver) resolveFromProfile(q FieldQuestion) (ResolvedAnswer, bool) {
	label := strings.ToLower(strings.TrimSpace(q.Label))

	hit := func(value, reason string) (ResolvedAnswer, bool) {
		if value == "" {
			return ResolvedAnswer{}, false
		}
		return ResolvedAnswer{
			Value: r.formatForField(value, q), Source: SourceProfile,
			Confidence: 95, Reason: reason,
		}, true
	}

	// Widget type beats label text for the unambiguous cases.
	switch q.Type {
	case WidgetEmailInput:
		return hit(r.profile.Email, "email input")
	case WidgetPasswordInput:
		return ResolvedAnswer{Value: TokenCredentialPassword, Source: SourceProfile, Confidence: 95, Reason: "password input"}, true
	case WidgetPhoneInput:
		return hit(r.profile.Phone, "phone input")
	case WidgetFileUpload:
		if strings.Contains(label, "cover") {
			return ResolvedAnswer{Value: TokenGenerateCoverText, Source: SourceProfile, Confidence: 90, Reason: "cover letter upload"}, true
		}
		return ResolvedAnswer{Value: TokenResumePath, Source: SourceProfile, Confidence: 95, Reason: "resume upload"}, true
	}

	if strings.Contains(label, "email") {
		return hit(r.profile.Email, "email keyword")
	}
	if strings.Contains(label, "password") {
		return ResolvedAnswer{Value: TokenCredentialPassword, Source: SourceProfile, Confidence: 95, Reason: "password keyword"}, true
	}
	if strings.Contains(label, "phone") || strings.Contains(label, "mobile") {
		return hit(r.profile.Phone, "phone keyword")
	}
	if strings.Contains(label, "cover letter") && (q.Type == WidgetTextarea || q.Type == WidgetRichText) {
		if r.profile.CoverLetterTemplate != "" {
			return hit(r.profile.CoverLetterTemplate, "cover letter template")
		}
		return ResolvedAnswer{Value: TokenGenerateCoverText, Source: SourceProfile, Confidence: 90, Reason: "cover letter generation"}, true
	}
	if strings.Contains(label, "resume") || strings.Contains(label, " cv") || strings.HasPrefix(label, "cv") {
		if q.Type == WidgetFileUpload {
			return ResolvedAnswer{Value: TokenResumePath, Source: SourceProfile, Confidence: 95, Reason: "resume keyword"}, true
		}
	}

	// "How many years of experience with Go?" style questions.
	if m := skillYearsRe.FindStringSubmatch(label); m != nil && len(r.profile.SkillYears) > 0 {
		subject := m[1]
		for skill, years := range r.profile.SkillYears {
			if strings.Contains(subject, strings.ToLower(skill)) {
				return hit(years, "skill years table")
			}
		}
	}

	for _, rule := range profileRules {
		for _, kw := range rule.keywords {
			if strings.Contains(label, kw) {
				if answer, ok := hit(rule.getter(r.profile), "profile keyword "+kw); ok {
					return answer, true
				}
				break
			}
		}
	}

	for keyword, answer := range r.profile.DefaultAnswers {
		if strings.Contains(label, strings.ToLower(keyword)) {
			return hit(answer, "profile default answer")
		}
	}

	return ResolvedAnswer{}, false
}

// profileField is one candidate entry offered to the semantic-match tier.
type profileField struct {
	Key   string
	Value string
}

func (r *AnswerResolver) profileFields() []profileField {
	p := r.profile
	all := []profileField{
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
		{"full_name", p.FullName()},
		{"email", p.Email},
		{"phone", p.Phone},
		{"address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"zip_code", p.ZipCode},
		{"country", p.Country},
		{"linkedin", p.LinkedIn},
		{"github", p.GitHub},
		{"portfolio", p.Portfolio},
		{"current_company", p.CurrentCompany},
		{"current_title", p.CurrentTitle},
		{"years_experience", p.YearsExperience},
		{"salary_expectation", p.SalaryExpectation},
		{"notice_period", p.NoticePeriod},
		{"work_authorized", p.WorkAuthorized},
		{"requires_sponsorship", p.RequiresSponsorship},
		{"gender", p.Gender},
		{"race", p.Race},
		{"veteran_status", p.VeteranStatus},
		{"disability_info", p.DisabilityInfo},
	}
	fields := all[:0]
	for _, f := range all {
		if f.Value != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

const semanticMatchPrompt = `A job application form asks the question below. Decide which of the
candidate's profile fields answers it.

Profile fields:
%s

Form question: %q
Field type: %s

Respond with EXACTLY one field name from the list above, nothing else.
If no field answers the question, respond with exactly: NO_MATCH
Never invent a field name and never answer with a value.`

// resolveSemanticMatch asks the model to map the question onto an existing
// profile field. It can only ever surface values the profile already holds;
// a NO_MATCH verdict falls through to generation.
func (r *AnswerResolver) resolveSemanticMatch(q FieldQuestion) (ResolvedAnswer, bool) {
	fields := r.profileFields()
	if len(fields) == 0 {
		return ResolvedAnswer{}, false
	}

	var names []string
	byKey := map[string]string{}
	for _, f := range fields {
		names = append(names, "- "+f.Key)
		byKey[f.Key] = f.Value
	}

	prompt := fmt.Sprintf(semanticMatchPrompt, strings.Join(names, "\n"), q.Label, q.Type)
	response, err := r.completer.Complete(prompt, 32, 15*time.Second)
	if err != nil {
		log.Printf("Semantic match failed for %q: %v", q.Label, err)
		return ResolvedAnswer{}, false
	}

	key := strings.ToLower(strings.Trim(strings.TrimSpace(response), "\"`-* "))
	if key == "" || strings.EqualFold(key, "NO_MATCH") {
		return ResolvedAnswer{}, false
	}
	value, ok := byKey[key]
	if !ok {
		log.Printf("Semantic match for %q returned unknown field %q", q.Label, truncate(key, 40))
		return ResolvedAnswer{}, false
	}

	if len(q.Options) > 0 {
		snapped, ok := SnapToOption(value, q.Options)
		if !ok {
			return ResolvedAnswer{}, false
		}
		value = snapped
	}
	return ResolvedAnswer{
		Value: r.formatForField(value, q), Source: SourceSemantic,
		Confidence: 80, Reason: "profile field " + key,
	}, true
}

const answerPromptTemplate = `You are filling out a job application form on behalf of a candidate.

Candidate summary:
%s

Job context:
%s

Form question: %q
Field type: %s
%s
Rules:
- Answer truthfully from the candidate summary; do not invent credentials or experience.
- Keep the answer short: a single value for inputs, at most 3 sentences for textareas.
- For option fields, answer with EXACTLY one of the listed options.
- If the question cannot be answered from the summary, respond with exactly: UNKNOWN

Answer:`

func (r *AnswerResolver) resolveWithAI(q FieldQuestion) (ResolvedAnswer, error) {
	optionsBlock := ""
	if len(q.Options) > 0 {
		var texts []string
		for i, o := range q.Options {
			if i >= 25 {
				break
			}
			texts = append(texts, o.Text)
		}
		optionsBlock = fmt.Sprintf("Options: %s\n", strings.Join(texts, " | "))
	}

	prompt := fmt.Sprintf(answerPromptTemplate,
		r.profileSummary(), q.JobContext, q.Label, q.Type, optionsBlock)

	response, err := r.completer.Complete(prompt, 256, 20*time.Second)
	if err != nil {
		return ResolvedAnswer{}, fmt.Errorf("completion failed: %w", err)
	}

	answer := strings.TrimSpace(strings.Trim(strings.TrimSpace(response), "\"`"))
	if answer == "" || strings.EqualFold(answer, "UNKNOWN") {
		return ResolvedAnswer{}, fmt.Errorf("model could not answer")
	}

	if len(q.Options) > 0 {
		snapped, ok := SnapToOption(answer, q.Options)
		if !ok {
			return ResolvedAnswer{}, fmt.Errorf("model answer %q matches no option", truncate(answer, 60))
		}
		answer = snapped
	}

	return ResolvedAnswer{
		Value: r.formatForField(answer, q), Source: SourceAI,
		Confidence: 70, Reason: "AI generated",
	}, nil
}

func (r *AnswerResolver) profileSummary() string {
	p := r.profile
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.FullName())
	fmt.Fprintf(&b, "Email: %s, Phone: %s\n", p.Email, p.Phone)
	if p.City != "" || p.Country != "" {
		fmt.Fprintf(&b, "Location: %s %s %s\n", p.City, p.State, p.Country)
	}
	if p.CurrentTitle != "" {
		fmt.Fprintf(&b, "Current role: %s at %s\n", p.CurrentTitle, p.CurrentCompany)
	}
	if p.YearsExperience != "" {
		fmt.Fprintf(&b, "Years of experience: %s\n", p.YearsExperience)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(p.Skills, ", "))
	}
	for _, e := range p.Education {
		fmt.Fprintf(&b, "Education: %s, %s in %s\n", e.School, e.Degree, e.FieldOfStudy)
	}
	if p.WorkAuthorized != "" {
		fmt.Fprintf(&b, "Work authorized: %s, Requires sponsorship: %s\n", p.WorkAuthorized, p.RequiresSponsorship)
	}
	if p.SalaryExpectation != "" {
		fmt.Fprintf(&b, "Salary expectation: %s\n", p.SalaryExpectation)
	}
	if p.NoticePeriod != "" {
		fmt.Fprintf(&b, "Notice period: %s\n", p.NoticePeriod)
	}
	return b.String()
}

// resolveDefault is the last tier: type-based safe values, or a skip /
// needs-human verdict.
func (r *AnswerResolver) resolveDefault(q FieldQuestion) ResolvedAnswer {
	// Agreement boxes are safe to tick whether or not they are marked
	// required; forms reject submission without them either way.
	if q.Type == WidgetCheckbox && isAgreementLabel(q.Label) {
		return ResolvedAnswer{Value: "checked", Source: SourceDefault, Confidence: 80,
			Reason: "agreement checkbox"}
	}

	if !q.Required {
		return ResolvedAnswer{Source: SourceDefault, Confidence: 0, Reason: "optional field skipped"}
	}

	switch q.Type {
	case WidgetSelect, WidgetCombobox, WidgetRadio, WidgetListbox:
		if value, ok := preferNonDecline(q.Options); ok {
			return ResolvedAnswer{Value: value, Source: SourceDefault, Confidence: 40,
				Reason: "first substantive option"}
		}
	}

	return ResolvedAnswer{RequiresHuman: true, Source: SourceDefault,
		Reason: "required field with no resolvable answer"}
}

var declineWords = []string{"decline", "prefer not", "do not wish", "i don't wish"}
var agreementWords = []string{"agree", "terms", "accept", "consent", "acknowledge", "disclaimer", "legal"}

func isAgreementLabel(label string) bool {
	l := strings.ToLower(label)
	for _, w := range agreementWords {
		if strings.Contains(l, w) {
			return true
		}
	}
	return false
}

// preferNonDecline picks "Prefer not to say" style options for demographic
// questions when present, otherwise the first non-placeholder option.
func preferNonDecline(options []ElementOption) (string, bool) {
	for _, o := range options {
		lower := strings.ToLower(o.Text)
		for _, w := range declineWords {
			if strings.Contains(lower, w) {
				return o.Text, true
			}
		}
	}
	for _, o := range options {
		if !isPlaceholderOption(o.Text) {
			return o.Text, true
		}
	}
	return "", false
}

func isPlaceholderOption(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return true
	}
	for _, pw := range selectPlaceholderWords {
		if strings.Contains(lower, pw) {
			return true
		}
	}
	return false
}

// SnapToOption maps a free-text answer onto the closest option text:
// exact (case-insensitive) match first, then prefix, then substring either
// way. Returns false when nothing matches.
func SnapToOption(answer string, options []ElementOption) (string, bool) {
	a := strings.ToLower(strings.TrimSpace(answer))
	if a == "" {
		return "", false
	}

	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o.Text), strings.TrimSpace(answer)) {
			return o.Text, true
		}
	}
	for _, o := range options {
		t := strings.ToLower(strings.TrimSpace(o.Text))
		if t != "" && strings.HasPrefix(t, a) {
			return o.Text, true
		}
	}
	for _, o := range options {
		t := strings.ToLower(strings.TrimSpace(o.Text))
		if t == "" || isPlaceholderOption(o.Text) {
			continue
		}
		if strings.Contains(t, a) || strings.Contains(a, t) {
			return o.Text, true
		}
	}
	return "", false
}

var firstNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
var phoneCountryCodeRe = regexp.MustCompile(`^\+\d{1,3}[\s\-]?`)
var nonPhoneCharsRe = regexp.MustCompile(`[^\d]`)

// formatForField adapts a resolved value to the widget that receives it.
func (r *AnswerResolver) formatForField(value string, q FieldQuestion) string {
	if IsReservedToken(value) {
		return value
	}
	switch q.Type {
	case WidgetNumberInput:
		return FormatNumericAnswer(value)
	case WidgetPhoneInput:
		return FormatPhoneAnswer(value, q.HasCountrySelector)
	}
	if len(q.Options) > 0 {
		if snapped, ok := SnapToOption(value, q.Options); ok {
			return snapped
		}
	}
	return value
}

// FormatNumericAnswer extracts the first number from a phrase: "12 years"
// becomes "12", "5-7" becomes "5".
func FormatNumericAnswer(value string) string {
	if m := firstNumberRe.FindString(value); m != "" {
		return m
	}
	return value
}

// FormatPhoneAnswer reduces a phone value to plain digits for tel inputs.
// The leading +country-code is stripped only when the form carries its own
// country-code selector; otherwise the code stays part of the number.
func FormatPhoneAnswer(value string, stripCountryCode bool) string {
	v := strings.TrimSpace(value)
	if stripCountryCode {
		v = phoneCountryCodeRe.ReplaceAllString(v, "")
	}
	digits := nonPhoneCharsRe.ReplaceAllString(v, "")
	if digits == "" {
		return value
	}
	return digits
}
