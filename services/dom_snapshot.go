package services

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WidgetType is the semantic category of an interactive element, independent
// of its concrete markup. It fully determines which element handler is
// authoritative for the element.
type WidgetType string

const (
	WidgetTextInput     WidgetType = "text_input"
	WidgetEmailInput    WidgetType = "email_input"
	WidgetPasswordInput WidgetType = "password_input"
	WidgetNumberInput   WidgetType = "number_input"
	WidgetPhoneInput    WidgetType = "phone_input"
	WidgetURLInput      WidgetType = "url_input"
	WidgetDateInput     WidgetType = "date_input"
	WidgetFileUpload    WidgetType = "file_upload"
	WidgetTextarea      WidgetType = "textarea"
	WidgetSelect        WidgetType = "select"
	WidgetCombobox      WidgetType = "combobox"
	WidgetListbox       WidgetType = "listbox"
	WidgetRichText      WidgetType = "rich_text"
	WidgetCheckbox      WidgetType = "checkbox"
	WidgetRadio         WidgetType = "radio"
	WidgetButton        WidgetType = "button"
	WidgetSubmitButton  WidgetType = "submit_button"
	WidgetLink          WidgetType = "link"
	WidgetUnknown       WidgetType = "unknown"
)

// Field categories assigned from the resolved label.
const (
	CategoryCredentials  = "credentials"
	CategoryPersonalInfo = "personal_info"
	CategoryContact      = "contact"
	CategoryEducation    = "education"
	CategoryExperience   = "experience"
	CategoryCompensation = "compensation"
	CategoryDocuments    = "documents"
	CategorySkills       = "skills"
	CategoryAction       = "action"
	CategoryUnknown      = "unknown"
)

type ElementOption struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

type ElementAttributes struct {
	Selector     string `json:"selector,omitempty"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	GroupName    string `json:"group_name,omitempty"`
	Autocomplete string `json:"autocomplete,omitempty"`
	InputMode    string `json:"inputmode,omitempty"`

	// ToggleViaLabel marks checkboxes whose input is hidden behind a styled
	// visible label; the label takes the click.
	ToggleViaLabel bool `json:"toggle_via_label,omitempty"`
}

// ElementInfo describes one interactive element within a snapshot. Index is
// only valid within the snapshot that produced it; indices are not stable
// across snapshots.
type ElementInfo struct {
	Index         int               `json:"index"`
	Type          WidgetType        `json:"type"`
	Tag           string            `json:"tag"`
	Label         string            `json:"label"`
	Required      bool              `json:"required"`
	CurrentValue  string            `json:"current_value"`
	InViewport    bool              `json:"in_viewport"`
	FieldCategory string            `json:"field_category"`
	TypeOrdinal   int               `json:"type_ordinal"`
	Attributes    ElementAttributes `json:"attributes"`
	Options       []ElementOption   `json:"options,omitempty"`
	NearbyError   string            `json:"error,omitempty"`
}

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

type ProgressIndicator struct {
	Text  string `json:"text"`
	Value string `json:"value"`
	Max   string `json:"max"`
}

type PageInfo struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Headings   []Heading `json:"headings"`
	TextBlocks []string  `json:"visible_text_blocks"`
}

// DomSnapshot is a point-in-time structural read of a page. It is produced
// fresh on every scan and never mutated; any DOM-changing action supersedes it.
type DomSnapshot struct {
	Page               PageInfo            `json:"page"`
	Elements           []ElementInfo       `json:"elements"`
	Errors             []string            `json:"errors"`
	ProgressIndicators []ProgressIndicator `json:"progress_indicators"`
}

// snapshotJS enumerates visible interactive elements with labels, attributes
// and nearby error text. It runs against either the document or a scoped
// element (modal) and returns the result as a JSON string.
const snapshotJS = `(root) => {
	if (!root || typeof root.querySelectorAll !== 'function') root = document;

	const result = {
		page: {
			title: document.title,
			url: window.location.href,
			headings: [],
			visible_text_blocks: []
		},
		elements: [],
		errors: [],
		progress_indicators: []
	};

	function isVisible(el) {
		if (!el.offsetParent && el.tagName !== 'BODY') return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	}

	function isInViewport(el) {
		const rect = el.getBoundingClientRect();
		return (
			rect.top >= 0 && rect.left >= 0 &&
			rect.bottom <= (window.innerHeight || document.documentElement.clientHeight) &&
			rect.right <= (window.innerWidth || document.documentElement.clientWidth)
		);
	}

	root.querySelectorAll('h1, h2, h3').forEach(h => {
		const text = h.innerText ? h.innerText.trim() : '';
		if (text && h.offsetParent !== null) {
			result.page.headings.push({ level: parseInt(h.tagName[1], 10), text: text.substring(0, 100) });
		}
	});

	root.querySelectorAll('p, .description, [class*="description"], [class*="info"]').forEach(p => {
		const text = p.innerText ? p.innerText.trim() : '';
		if (text && text.length > 20 && text.length < 500 && p.offsetParent !== null) {
			if (result.page.visible_text_blocks.length < 5) {
				result.page.visible_text_blocks.push(text.substring(0, 200));
			}
		}
	});

	root.querySelectorAll('[role="progressbar"], .progress, [class*="step"], [class*="progress"], [aria-valuenow]').forEach(el => {
		const text = el.innerText ? el.innerText.trim() : '';
		const value = el.getAttribute('aria-valuenow');
		const max = el.getAttribute('aria-valuemax');
		if (text || value) {
			result.progress_indicators.push({
				text: text ? text.substring(0, 50) : '',
				value: value || '',
				max: max || ''
			});
		}
	});

	function getLabel(el) {
		const id = el.id;
		if (id) {
			const escaped = (typeof CSS !== 'undefined' && CSS.escape)
				? CSS.escape(id) : id.replace(/([[\]"])/g, '\\$1');
			try {
				const label = document.querySelector('label[for="' + escaped + '"]');
				if (label && label.innerText) return label.innerText.trim();
			} catch (e) {}
		}
		const ariaLabel = el.getAttribute('aria-label');
		if (ariaLabel) return ariaLabel.trim();
		const labelledBy = el.getAttribute('aria-labelledby');
		if (labelledBy) {
			const labelEl = document.getElementById(labelledBy);
			if (labelEl && labelEl.innerText) return labelEl.innerText.trim();
		}
		const parentLabel = el.closest('label');
		if (parentLabel) {
			const clone = parentLabel.cloneNode(true);
			clone.querySelectorAll('input, select, textarea').forEach(c => c.remove());
			const text = clone.innerText ? clone.innerText.trim() : '';
			if (text) return text;
		}
		const placeholder = el.getAttribute('placeholder');
		if (placeholder) return placeholder.trim();
		const prev = el.previousElementSibling;
		if (prev && (prev.tagName === 'LABEL' || prev.tagName === 'SPAN' || prev.tagName === 'DIV')) {
			const text = prev.innerText ? prev.innerText.trim() : '';
			if (text && text.length < 100) return text;
		}
		const fieldset = el.closest('fieldset');
		if (fieldset) {
			const legend = fieldset.querySelector('legend');
			if (legend && legend.innerText) return legend.innerText.trim();
		}
		return '';
	}

	function getNearbyError(el) {
		const parent = el.parentElement;
		if (!parent) return '';
		const errorSelectors = [
			'[role="alert"]',
			'.error', '.error-message', '.field-error',
			'[class*="error"]', '[class*="invalid"]'
		];
		for (const sel of errorSelectors) {
			let error = null;
			try { error = parent.querySelector(sel); } catch (e) { continue; }
			if (error && isVisible(error) && error.innerText) {
				return error.innerText.trim();
			}
		}
		return '';
	}

	const interactiveSelectors = [
		'input:not([type="hidden"])',
		'textarea',
		'select',
		'[role="combobox"]',
		'[role="listbox"]',
		'[contenteditable="true"]',
		'button',
		'a[href]',
		'[role="button"]',
		'[role="checkbox"]',
		'[role="radio"]'
	];

	let elementIndex = 0;
	root.querySelectorAll(interactiveSelectors.join(', ')).forEach(el => {
		const tagName = el.tagName.toLowerCase();
		const type = el.getAttribute('type') || '';
		const role = el.getAttribute('role') || '';

		// Styled checkboxes hide the input and render the label instead;
		// keep them when their label is visible, drop everything else hidden.
		let hiddenToggle = false;
		if (!isVisible(el)) {
			if (type !== 'checkbox') return;
			let lab = el.closest('label');
			if (!lab && el.id) {
				const escaped = (typeof CSS !== 'undefined' && CSS.escape)
					? CSS.escape(el.id) : el.id.replace(/([[\]"])/g, '\\$1');
				try { lab = document.querySelector('label[for="' + escaped + '"]'); } catch (e) {}
			}
			if (!lab || !isVisible(lab)) return;
			hiddenToggle = true;
		}

		const label = getLabel(el) || '';

		let elementType = 'unknown';
		let currentValue = '';
		let options = [];

		// role="combobox" wins over the input type: React Select renders
		// <input type="text" role="combobox">.
		if (role === 'combobox') {
			elementType = 'combobox';
			currentValue = (el.innerText ? el.innerText.trim() : '') || el.value || '';
		} else if (tagName === 'input') {
			switch (type) {
				case 'text': elementType = 'text_input'; break;
				case 'email': elementType = 'email_input'; break;
				case 'password': elementType = 'password_input'; break;
				case 'number': elementType = 'number_input'; break;
				case 'tel': elementType = 'phone_input'; break;
				case 'url': elementType = 'url_input'; break;
				case 'date': elementType = 'date_input'; break;
				case 'file': elementType = 'file_upload'; break;
				case 'checkbox': elementType = 'checkbox'; break;
				case 'radio': elementType = 'radio'; break;
				case 'submit': elementType = 'submit_button'; break;
				default: elementType = 'text_input';
			}
			currentValue = el.value || '';
			if (type === 'checkbox' || type === 'radio') {
				currentValue = el.checked ? 'checked' : 'unchecked';
			}
			// Never carry typed secrets out of the page.
			if (type === 'password') {
				currentValue = el.value ? '********' : '';
			}
		} else if (tagName === 'textarea') {
			elementType = 'textarea';
			currentValue = el.value || '';
		} else if (tagName === 'select') {
			elementType = 'select';
			currentValue = (el.options[el.selectedIndex] && el.options[el.selectedIndex].text) || '';
			options = Array.from(el.options).map(o => ({
				value: o.value,
				text: o.text ? o.text.trim() : '',
				selected: o.selected
			})).filter(o => o.value && o.text);
		} else if (tagName === 'button' || role === 'button' || type === 'submit') {
			elementType = 'button';
			currentValue = (el.innerText ? el.innerText.trim() : '') || el.value || '';
		} else if (tagName === 'a') {
			elementType = 'link';
			currentValue = el.innerText ? el.innerText.trim() : '';
		} else if (el.getAttribute('contenteditable') === 'true') {
			elementType = 'rich_text';
			currentValue = el.innerText ? el.innerText.trim() : '';
		} else if (role === 'checkbox' || role === 'radio') {
			elementType = role;
			currentValue = el.getAttribute('aria-checked') === 'true' ? 'checked' : 'unchecked';
		} else if (role === 'listbox') {
			elementType = 'listbox';
		}

		// Locator hint: id > name > test-id. Structural fallback happens at
		// locate time from type + index.
		let selector = '';
		if (el.id) {
			selector = (typeof CSS !== 'undefined' && CSS.escape)
				? '#' + CSS.escape(el.id)
				: '[id="' + el.id.replace(/"/g, '\\"') + '"]';
		} else if (el.getAttribute('name')) {
			selector = tagName + '[name="' + el.getAttribute('name') + '"]';
		} else if (el.getAttribute('data-testid')) {
			selector = '[data-testid="' + el.getAttribute('data-testid') + '"]';
		}

		const data = {
			index: elementIndex++,
			type: elementType,
			tag: tagName,
			label: label.substring(0, 150),
			required: el.hasAttribute('required') || el.getAttribute('aria-required') === 'true',
			current_value: currentValue.substring(0, 200),
			in_viewport: isInViewport(el),
			field_category: '',
			attributes: {}
		};

		if (selector) data.attributes.selector = selector;
		if (el.id) data.attributes.id = el.id;
		if (el.getAttribute('name')) data.attributes.name = el.getAttribute('name');
		if (el.getAttribute('autocomplete')) data.attributes.autocomplete = el.getAttribute('autocomplete');
		if (el.getAttribute('inputmode')) data.attributes.inputmode = el.getAttribute('inputmode');
		if ((type === 'radio' || type === 'checkbox') && el.getAttribute('name')) {
			data.attributes.group_name = el.getAttribute('name');
		}
		if (hiddenToggle) data.attributes.toggle_via_label = true;
		if (options.length > 0) data.options = options;
		const error = getNearbyError(el);
		if (error) data.error = error;

		result.elements.push(data);
	});

	root.querySelectorAll('[role="alert"], .alert-danger, .error-summary, .form-error, [class*="error-message"]').forEach(el => {
		if (isVisible(el) && el.innerText) {
			const text = el.innerText.trim();
			if (text && text.length > 5 && text.length < 500) {
				result.errors.push(text);
			}
		}
	});

	return JSON.stringify(result);
}`

var (
	personalInfoRe = regexp.MustCompile(`\b(name|first|last|middle)\b`)
	phoneLabelRe   = regexp.MustCompile(`\b(phone|mobile|tel)\b`)
	emailLabelRe   = regexp.MustCompile(`\bemail\b`)
	educationRe    = regexp.MustCompile(`\b(education|degree|university|college|school|gpa)\b`)
	experienceRe   = regexp.MustCompile(`\b(experience|years|company|role|title|position)\b`)
	compensationRe = regexp.MustCompile(`\b(salary|ctc|compensation|pay|lpa)\b`)
	documentsRe    = regexp.MustCompile(`\b(resume|cv|cover.letter|portfolio)\b`)
	skillsRe       = regexp.MustCompile(`\b(skill|proficien|technolog|language)\b`)

	labelTitleCaser = cases.Title(language.English)
	wordSplitRe     = regexp.MustCompile(`[_\-]+`)
	camelBoundaryRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// ExtractSnapshot reads the live page (or a scoped modal) and returns a
// structural snapshot. It is a pure read: extraction failures are recorded in
// the snapshot's Errors slice and an empty snapshot is returned, never an
// error. Callers must treat an empty snapshot as an unknown page with low
// confidence.
func ExtractSnapshot(page playwright.Page, scope playwright.Locator) *DomSnapshot {
	var raw interface{}
	var err error

	if scope != nil {
		raw, err = scope.Evaluate(snapshotJS, nil)
	} else {
		raw, err = page.Evaluate(snapshotJS)
	}
	if err != nil {
		return emptySnapshot(fmt.Sprintf("extraction failed: %v", err))
	}

	encoded, ok := raw.(string)
	if !ok {
		return emptySnapshot("extraction returned unexpected payload")
	}

	snapshot := &DomSnapshot{}
	if err := json.Unmarshal([]byte(encoded), snapshot); err != nil {
		return emptySnapshot(fmt.Sprintf("snapshot decode failed: %v", err))
	}

	finalizeSnapshot(snapshot)

	log.Printf("DOM snapshot: %d elements, %d errors, URL: %s",
		len(snapshot.Elements), len(snapshot.Errors), truncate(snapshot.Page.URL, 80))
	return snapshot
}

// finalizeSnapshot fills the derived fields the page script cannot compute:
// label fallbacks from name attributes, field categories, and each element's
// ordinal among same-type elements (the structural locate fallback).
func finalizeSnapshot(s *DomSnapshot) {
	ordinals := map[WidgetType]int{}
	for i := range s.Elements {
		el := &s.Elements[i]
		if el.Label == "" && el.Attributes.Name != "" {
			el.Label = HumanizeAttributeName(el.Attributes.Name)
		}
		el.FieldCategory = CategorizeField(el.Type, el.Label)
		el.TypeOrdinal = ordinals[el.Type]
		ordinals[el.Type]++
	}
}

func emptySnapshot(reason string) *DomSnapshot {
	log.Printf("DOM snapshot extraction failed: %s", reason)
	return &DomSnapshot{
		Page:               PageInfo{Headings: []Heading{}, TextBlocks: []string{}},
		Elements:           []ElementInfo{},
		Errors:             []string{reason},
		ProgressIndicators: []ProgressIndicator{},
	}
}

// HumanizeAttributeName turns a name attribute like "first_name" or
// "firstName" into a readable label ("First Name").
func HumanizeAttributeName(name string) string {
	s := camelBoundaryRe.ReplaceAllString(name, "$1 $2")
	s = wordSplitRe.ReplaceAllString(s, " ")
	return labelTitleCaser.String(strings.TrimSpace(s))
}

// CategorizeField assigns a field category from the widget type and the
// resolved label.
func CategorizeField(widget WidgetType, label string) string {
	switch widget {
	case WidgetEmailInput, WidgetPasswordInput:
		return CategoryCredentials
	case WidgetButton, WidgetSubmitButton, WidgetLink:
		return CategoryAction
	}

	l := strings.ToLower(label)
	switch {
	case personalInfoRe.MatchString(l):
		return CategoryPersonalInfo
	case phoneLabelRe.MatchString(l), emailLabelRe.MatchString(l):
		return CategoryContact
	case educationRe.MatchString(l):
		return CategoryEducation
	case experienceRe.MatchString(l):
		return CategoryExperience
	case compensationRe.MatchString(l):
		return CategoryCompensation
	case documentsRe.MatchString(l):
		return CategoryDocuments
	case skillsRe.MatchString(l):
		return CategorySkills
	}
	return CategoryUnknown
}

var fillableTypes = map[WidgetType]bool{
	WidgetTextInput: true, WidgetEmailInput: true, WidgetPasswordInput: true,
	WidgetNumberInput: true, WidgetPhoneInput: true, WidgetURLInput: true,
	WidgetDateInput: true, WidgetFileUpload: true, WidgetTextarea: true,
	WidgetSelect: true, WidgetCombobox: true, WidgetCheckbox: true,
	WidgetRadio: true, WidgetRichText: true, WidgetListbox: true,
}

// FormFields returns the fillable fields of the snapshot (no buttons/links).
func (s *DomSnapshot) FormFields() []ElementInfo {
	var fields []ElementInfo
	for _, el := range s.Elements {
		if fillableTypes[el.Type] {
			fields = append(fields, el)
		}
	}
	return fields
}

// Buttons returns the action elements (buttons, submit buttons, links).
func (s *DomSnapshot) Buttons() []ElementInfo {
	var buttons []ElementInfo
	for _, el := range s.Elements {
		if el.Type == WidgetButton || el.Type == WidgetSubmitButton || el.Type == WidgetLink ||
			el.FieldCategory == CategoryAction {
			buttons = append(buttons, el)
		}
	}
	return buttons
}

var selectPlaceholderWords = []string{"select", "choose", "please", "--", "..."}

// UnfilledFields returns form fields that still need a value. Select elements
// showing a placeholder option ("Select...", "-- choose --") count as
// unfilled.
func (s *DomSnapshot) UnfilledFields() []ElementInfo {
	var unfilled []ElementInfo
	for _, el := range s.FormFields() {
		value := strings.TrimSpace(el.CurrentValue)
		if value != "" && value != "unchecked" {
			if el.Type == WidgetSelect {
				lower := strings.ToLower(value)
				placeholder := false
				for _, pw := range selectPlaceholderWords {
					if strings.Contains(lower, pw) {
						placeholder = true
						break
					}
				}
				if placeholder {
					unfilled = append(unfilled, el)
				}
			}
			continue
		}
		unfilled = append(unfilled, el)
	}
	return unfilled
}

// SnapshotToText renders a snapshot as compact text for AI prompts, bounded
// to maxElements to respect model context limits.
func SnapshotToText(s *DomSnapshot, maxElements int) string {
	var b strings.Builder

	title := s.Page.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "Page: %s\n", title)
	fmt.Fprintf(&b, "URL: %s\n", s.Page.URL)

	for i, h := range s.Page.Headings {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "%s %s\n", strings.Repeat("#", h.Level), h.Text)
	}

	for i, p := range s.ProgressIndicators {
		if i >= 3 {
			break
		}
		if p.Text != "" || p.Value != "" {
			max := p.Max
			if max == "" {
				max = "?"
			}
			fmt.Fprintf(&b, "Progress: %s %s/%s\n", p.Text, p.Value, max)
		}
	}

	if len(s.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for i, e := range s.Errors {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "  ! %s\n", e)
		}
	}

	var fields, buttons []ElementInfo
	for i, el := range s.Elements {
		if i >= maxElements {
			break
		}
		if el.Type == WidgetButton || el.Type == WidgetSubmitButton || el.Type == WidgetLink ||
			el.FieldCategory == CategoryAction {
			buttons = append(buttons, el)
		} else {
			fields = append(fields, el)
		}
	}

	if len(s.Elements) > 0 {
		fmt.Fprintf(&b, "\nInteractive Elements (%d total):\n", len(s.Elements))
	}

	if len(fields) > 0 {
		b.WriteString("\n  Form Fields:\n")
		for _, el := range fields {
			line := fmt.Sprintf("  [%d] %s: %s", el.Index, el.Type, el.Label)
			if el.Required {
				line += "*"
			}
			if el.CurrentValue != "" {
				line += fmt.Sprintf(" = %q", el.CurrentValue)
			}
			if !el.InViewport {
				line += " [below fold]"
			}
			if el.NearbyError != "" {
				line += " ERROR: " + el.NearbyError
			}
			if len(el.Options) > 0 {
				var opts []string
				for i, o := range el.Options {
					if i >= 10 {
						break
					}
					opts = append(opts, o.Text)
				}
				line += fmt.Sprintf(" Options: [%s]", strings.Join(opts, ", "))
			}
			b.WriteString(line + "\n")
		}
	}

	if len(buttons) > 0 {
		b.WriteString("\n  Buttons/Actions:\n")
		for _, el := range buttons {
			label := el.Label
			if label == "" {
				label = el.CurrentValue
			}
			if label == "" {
				label = "unlabeled"
			}
			fold := ""
			if !el.InViewport {
				fold = " [below fold]"
			}
			fmt.Fprintf(&b, "  [%d] %s: %s%s\n", el.Index, el.Type, label, fold)
		}
	}

	if len(s.Page.TextBlocks) > 0 {
		b.WriteString("\nPage Context:\n")
		for i, block := range s.Page.TextBlocks {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "  %s\n", truncate(block, 150))
		}
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
