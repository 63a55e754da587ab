package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// SecretSource provides credentials at fill time. Implementations must not
// log the returned values.
type SecretSource interface {
	Password(site string) (string, error)
}

// CoverTextWriter produces cover letter text for the job being applied to,
// and renders it as a .docx when the form wants an upload instead of text.
type CoverTextWriter interface {
	GenerateText(jobContext string) (string, error)
	WriteDocx(text, path string) error
}

// ElementHandler executes one planned action against a located element.
type ElementHandler func(f *FormFiller, loc playwright.Locator, action PlannedAction) error

// FormFiller executes planned actions on a live page. One filler is built
// per page scan; Scope is non-nil when filling inside a modal.
type FormFiller struct {
	Page       playwright.Page
	Scope      playwright.Locator
	DryRun     bool
	Secrets    SecretSource
	ResumePath string
	CoverText  CoverTextWriter
	JobContext string

	handlers map[WidgetType]ElementHandler
}

func NewFormFiller(page playwright.Page, scope playwright.Locator) *FormFiller {
	f := &FormFiller{
		Page:     page,
		Scope:    scope,
		handlers: map[WidgetType]ElementHandler{},
	}
	f.registerDefaults()
	return f
}

// RegisterHandler overrides the handler for a widget type. Later
// registrations win, so site-specific strategies can replace the defaults.
func (f *FormFiller) RegisterHandler(t WidgetType, h ElementHandler) {
	f.handlers[t] = h
}

func (f *FormFiller) registerDefaults() {
	for _, t := range []WidgetType{
		WidgetTextInput, WidgetEmailInput, WidgetPasswordInput,
		WidgetNumberInput, WidgetPhoneInput, WidgetURLInput,
		WidgetTextarea,
	} {
		f.handlers[t] = handleTextFill
	}
	f.handlers[WidgetDateInput] = handleDateInput
	f.handlers[WidgetSelect] = handleNativeSelect
	f.handlers[WidgetCombobox] = handleCombobox
	f.handlers[WidgetListbox] = handleCombobox
	f.handlers[WidgetCheckbox] = handleCheckbox
	f.handlers[WidgetRadio] = handleRadio
	f.handlers[WidgetFileUpload] = handleFileUpload
	f.handlers[WidgetRichText] = handleRichText
	f.handlers[WidgetButton] = handleClick
	f.handlers[WidgetSubmitButton] = handleClick
	f.handlers[WidgetLink] = handleClick
}

// Execute runs the handler registered for the action's widget type. Reserved
// tokens are resolved to real values here and nowhere earlier.
func (f *FormFiller) Execute(action PlannedAction) error {
	handler, ok := f.handlers[action.WidgetType]
	if !ok {
		return fmt.Errorf("no handler for widget type %s", action.WidgetType)
	}

	if f.DryRun {
		log.Printf("[dry-run] %s [%d] %q <- %s", action.Kind, action.ElementIndex,
			truncate(action.Label, 60), action.DisplayValue())
		return nil
	}

	resolved, err := f.resolveValue(action)
	if err != nil {
		return fmt.Errorf("failed to resolve value for %q: %w", action.Label, err)
	}
	action.Value = resolved

	loc, err := f.locate(action)
	if err != nil {
		return err
	}
	if err := loc.ScrollIntoViewIfNeeded(); err != nil {
		log.Printf("Scroll failed for [%d] %q: %v", action.ElementIndex, truncate(action.Label, 40), err)
	}
	return handler(f, loc, action)
}

// resolveValue substitutes reserved placeholder tokens at the last moment.
func (f *FormFiller) resolveValue(action PlannedAction) (string, error) {
	switch action.Value {
	case TokenCredentialPassword:
		if f.Secrets == nil {
			return "", fmt.Errorf("no secret source configured")
		}
		host := ""
		if f.Page != nil {
			host = hostOf(f.Page.URL())
		}
		return f.Secrets.Password(host)
	case TokenResumePath:
		if f.ResumePath == "" {
			return "", fmt.Errorf("no resume path configured")
		}
		return f.ResumePath, nil
	case TokenGenerateCoverText:
		if f.CoverText == nil {
			return "", fmt.Errorf("no cover letter writer configured")
		}
		text, err := f.CoverText.GenerateText(f.JobContext)
		if err != nil {
			return "", err
		}
		if action.WidgetType != WidgetFileUpload {
			return text, nil
		}
		// Upload fields get the letter as a rendered .docx.
		path := filepath.Join(os.TempDir(), fmt.Sprintf("cover_letter_%d.docx", time.Now().UnixNano()))
		if err := f.CoverText.WriteDocx(text, path); err != nil {
			return "", err
		}
		return path, nil
	}
	return action.Value, nil
}

// locatorIn scopes a selector to the modal when one is active. Page.Locator
// and Locator.Locator take different option types, hence the split.
func locatorIn(page playwright.Page, scope playwright.Locator, selector string) playwright.Locator {
	if scope != nil {
		return scope.Locator(selector)
	}
	return page.Locator(selector)
}

// structural fallback selectors when the extractor found no id/name/test-id.
var fallbackSelectors = map[WidgetType]string{
	WidgetTextInput:     `input[type="text"], input:not([type])`,
	WidgetEmailInput:    `input[type="email"]`,
	WidgetPasswordInput: `input[type="password"]`,
	WidgetNumberInput:   `input[type="number"]`,
	WidgetPhoneInput:    `input[type="tel"]`,
	WidgetURLInput:      `input[type="url"]`,
	WidgetDateInput:     `input[type="date"]`,
	WidgetFileUpload:    `input[type="file"]`,
	WidgetTextarea:      `textarea`,
	WidgetSelect:        `select`,
	WidgetCombobox:      `[role="combobox"]`,
	WidgetListbox:       `[role="listbox"]`,
	WidgetCheckbox:      `input[type="checkbox"], [role="checkbox"]`,
	WidgetRadio:         `input[type="radio"], [role="radio"]`,
	WidgetRichText:      `[contenteditable="true"]`,
	WidgetButton:        `button, [role="button"]`,
	WidgetSubmitButton:  `input[type="submit"], button[type="submit"]`,
	WidgetLink:          `a[href]`,
}

func (f *FormFiller) locate(action PlannedAction) (playwright.Locator, error) {
	if action.Selector != "" {
		loc := locatorIn(f.Page, f.Scope, action.Selector).First()
		count, err := loc.Count()
		if err == nil && count > 0 {
			return loc, nil
		}
	}

	// Label lookup covers label[for], aria-label and wrapping labels, so a
	// labeled field is found even without a locator hint.
	if action.Label != "" {
		var labeled playwright.Locator
		if f.Scope != nil {
			labeled = f.Scope.GetByLabel(action.Label)
		} else {
			labeled = f.Page.GetByLabel(action.Label)
		}
		labeled = labeled.First()
		if count, err := labeled.Count(); err == nil && count > 0 {
			return labeled, nil
		}
	}

	fallback, ok := fallbackSelectors[action.WidgetType]
	if !ok {
		return nil, fmt.Errorf("cannot locate element [%d] %q: no selector and no fallback",
			action.ElementIndex, truncate(action.Label, 40))
	}
	loc := locatorIn(f.Page, f.Scope, fallback)
	count, err := loc.Count()
	if err != nil || count == 0 {
		return nil, fmt.Errorf("cannot locate element [%d] %q (%s)",
			action.ElementIndex, truncate(action.Label, 40), action.WidgetType)
	}
	// The bare type selector matches every same-type field on the page; the
	// snapshot ordinal picks this one instead of always the first.
	if action.TypeOrdinal > 0 && action.TypeOrdinal < count {
		return loc.Nth(action.TypeOrdinal), nil
	}
	return loc.First(), nil
}

func handleTextFill(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if err := loc.Fill(action.Value); err == nil {
		if current, verr := loc.InputValue(); verr == nil && current == action.Value {
			return nil
		}
	}

	// React controlled inputs sometimes swallow Fill; retype key by key.
	if err := loc.Click(); err != nil {
		return fmt.Errorf("click before type failed for %q: %w", truncate(action.Label, 40), err)
	}
	if err := loc.Fill(""); err != nil {
		log.Printf("Clear failed for %q: %v", truncate(action.Label, 40), err)
	}
	if err := loc.PressSequentially(action.Value, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(40),
	}); err != nil {
		return fmt.Errorf("typing failed for %q: %w", truncate(action.Label, 40), err)
	}
	return nil
}

func handleNativeSelect(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if _, err := loc.SelectOption(playwright.SelectOptionValues{
		Labels: &[]string{action.Value},
	}); err == nil {
		return nil
	}
	if _, err := loc.SelectOption(playwright.SelectOptionValues{
		Values: &[]string{action.Value},
	}); err != nil {
		return fmt.Errorf("select failed for %q value %q: %w",
			truncate(action.Label, 40), truncate(action.Value, 40), err)
	}
	return nil
}

// handleCombobox drives custom dropdowns (React Select and friends): open,
// type progressively shorter fragments of the value until options filter
// down, then commit with Enter or by clicking the first real option.
func handleCombobox(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if err := loc.Click(); err != nil {
		return fmt.Errorf("failed to open combobox %q: %w", truncate(action.Label, 40), err)
	}
	f.Page.WaitForTimeout(300)

	for _, fragment := range comboboxFragments(action.Value) {
		if err := typeIntoCombobox(f, loc, fragment); err != nil {
			continue
		}
		f.Page.WaitForTimeout(400)

		option := locatorIn(f.Page, nil, `[role="option"]`).First()
		visible, _ := option.IsVisible()
		if visible {
			text, _ := option.InnerText()
			if !isPlaceholderOption(text) {
				if err := option.Click(); err == nil {
					return nil
				}
			}
		}

		if err := loc.Press("Enter"); err == nil {
			f.Page.WaitForTimeout(200)
			committed, ierr := loc.InputValue()
			// contenteditable comboboxes have no input value; trust Enter.
			if ierr != nil || committed != "" {
				return nil
			}
		}
	}

	// Last resort: first substantive option in the open listbox.
	options, err := locatorIn(f.Page, nil, `[role="option"]`).All()
	if err == nil {
		for _, o := range options {
			text, _ := o.InnerText()
			if isPlaceholderOption(text) {
				continue
			}
			if err := o.Click(); err == nil {
				log.Printf("Combobox %q fell back to option %q",
					truncate(action.Label, 40), truncate(strings.TrimSpace(text), 40))
				return nil
			}
		}
	}
	return fmt.Errorf("combobox %q rejected value %q", truncate(action.Label, 40), truncate(action.Value, 40))
}

func typeIntoCombobox(f *FormFiller, loc playwright.Locator, text string) error {
	if err := loc.Fill(""); err != nil {
		// Not every combobox is an input; select-all + retype instead.
		if err := loc.Press("ControlOrMeta+a"); err == nil {
			_ = loc.Press("Backspace")
		}
	}
	return loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(50),
	})
}

// comboboxFragments yields progressively looser search strings: the full
// value, the part before any comma, the first three words, the first word.
func comboboxFragments(value string) []string {
	value = strings.TrimSpace(value)
	seen := map[string]bool{}
	var fragments []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			fragments = append(fragments, s)
		}
	}

	add(value)
	if i := strings.Index(value, ","); i > 0 {
		add(value[:i])
	}
	words := strings.Fields(value)
	if len(words) > 3 {
		add(strings.Join(words[:3], " "))
	}
	if len(words) > 1 {
		add(words[0])
	}
	return fragments
}

func handleCheckbox(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	want := action.Value == "checked" || strings.EqualFold(action.Value, "yes") || strings.EqualFold(action.Value, "true")

	checked, err := loc.IsChecked()
	if err != nil {
		// role="checkbox" divs have no checked property.
		aria, _ := loc.GetAttribute("aria-checked")
		checked = aria == "true"
	}
	if checked == want {
		return nil
	}
	if action.ToggleViaLabel {
		return clickCheckboxLabel(f, loc, action)
	}
	if err := loc.Click(); err != nil {
		return fmt.Errorf("checkbox toggle failed for %q: %w", truncate(action.Label, 40), err)
	}
	return nil
}

// clickCheckboxLabel toggles styled checkboxes whose input is hidden; only
// the visible label receives pointer events.
func clickCheckboxLabel(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	wrapper := loc.Locator("xpath=ancestor::label[1]")
	if count, err := wrapper.Count(); err == nil && count > 0 {
		if err := wrapper.Click(); err == nil {
			return nil
		}
	}
	if id, err := loc.GetAttribute("id"); err == nil && id != "" {
		lab := locatorIn(f.Page, f.Scope, fmt.Sprintf(`label[for=%q]`, id)).First()
		if err := lab.Click(); err == nil {
			return nil
		}
	}
	if err := loc.Click(playwright.LocatorClickOptions{Force: playwright.Bool(true)}); err != nil {
		return fmt.Errorf("hidden checkbox toggle failed for %q: %w", truncate(action.Label, 40), err)
	}
	return nil
}

// handleRadio picks the option within the radio group whose label matches the
// value.
func handleRadio(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if action.GroupName != "" {
		group := locatorIn(f.Page, f.Scope, fmt.Sprintf(`input[type="radio"][name=%q]`, action.GroupName))
		count, err := group.Count()
		if err == nil && count > 0 {
			want := strings.ToLower(strings.TrimSpace(action.Value))
			for i := 0; i < count; i++ {
				radio := group.Nth(i)
				label := radioLabelText(radio)
				if label == "" {
					continue
				}
				l := strings.ToLower(label)
				if l == want || strings.Contains(l, want) || strings.Contains(want, l) {
					if err := radio.Click(); err != nil {
						return fmt.Errorf("radio click failed for %q: %w", truncate(label, 40), err)
					}
					return nil
				}
			}
		}
	}

	if err := loc.Click(); err != nil {
		return fmt.Errorf("radio click failed for %q: %w", truncate(action.Label, 40), err)
	}
	return nil
}

func radioLabelText(radio playwright.Locator) string {
	// label wrapping the input, else the input's value attribute.
	if parent := radio.Locator("xpath=ancestor::label[1]"); parent != nil {
		if text, err := parent.InnerText(); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	if value, err := radio.GetAttribute("value"); err == nil {
		return value
	}
	return ""
}

func handleFileUpload(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if err := checkUploadable(action.Value); err != nil {
		return fmt.Errorf("upload rejected for %q: %w", truncate(action.Label, 40), err)
	}
	if err := loc.SetInputFiles(action.Value); err != nil {
		return fmt.Errorf("file upload failed for %q: %w", truncate(action.Label, 40), err)
	}
	// Give async upload widgets a moment before the next snapshot.
	f.Page.WaitForTimeout(1500)
	return nil
}

// checkUploadable rejects unresolved tokens and missing files before they
// reach the browser.
func checkUploadable(path string) error {
	if IsReservedToken(path) {
		return fmt.Errorf("value is an unresolved placeholder")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// handleDateInput types the value then tabs out so date pickers commit and
// close their overlay.
func handleDateInput(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if err := handleTextFill(f, loc, action); err != nil {
		return err
	}
	if err := loc.Press("Tab"); err != nil {
		log.Printf("Tab-out failed for %q: %v", truncate(action.Label, 40), err)
	}
	return nil
}

func handleRichText(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if err := loc.Click(); err != nil {
		return fmt.Errorf("rich text focus failed for %q: %w", truncate(action.Label, 40), err)
	}
	if err := loc.PressSequentially(action.Value, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(10),
	}); err != nil {
		return fmt.Errorf("rich text typing failed for %q: %w", truncate(action.Label, 40), err)
	}
	return nil
}

func handleClick(f *FormFiller, loc playwright.Locator, action PlannedAction) error {
	if err := loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(10000),
	}); err == nil {
		return nil
	}
	// Overlays sometimes intercept the pointer; force the click.
	if err := loc.Click(playwright.LocatorClickOptions{
		Force:   playwright.Bool(true),
		Timeout: playwright.Float(5000),
	}); err != nil {
		return fmt.Errorf("click failed for %q: %w", truncate(action.Label, 40), err)
	}
	return nil
}

func hostOf(rawURL string) string {
	rawURL = strings.TrimPrefix(rawURL, "https://")
	rawURL = strings.TrimPrefix(rawURL, "http://")
	if i := strings.IndexAny(rawURL, "/?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL
}
