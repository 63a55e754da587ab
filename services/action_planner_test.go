package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plannerForTest(maxActions int) *ActionPlanner {
	resolver := NewAnswerResolver(testProfile(), nil, nil, nil)
	return NewActionPlanner(resolver, maxActions)
}

func TestPlanFillsKnownFields(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "First Name", Required: true, Attributes: ElementAttributes{Selector: "#fn"}},
		{Index: 1, Type: WidgetEmailInput, Label: "Email", Required: true},
		{Index: 2, Type: WidgetSubmitButton, Label: "Submit Application"},
	})

	plan := p.PlanForm(s, "")
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "Ada", plan.Actions[0].Value)
	assert.Equal(t, ActionFill, plan.Actions[0].Kind)
	assert.Equal(t, "#fn", plan.Actions[0].Selector)
	assert.Equal(t, "ada@example.com", plan.Actions[1].Value)
	assert.False(t, plan.RequiresHuman)
}

func TestPlanSkipsHoneypots(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "Email", Attributes: ElementAttributes{Name: "honeypot_email"}},
		{Index: 1, Type: WidgetTextInput, Label: "First Name"},
	})

	plan := p.PlanForm(s, "")
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, 1, plan.Actions[0].ElementIndex)
	require.Len(t, plan.Skipped, 1)
	assert.Contains(t, plan.Skipped[0], "honeypot")
}

func TestIsHoneypotField(t *testing.T) {
	assert.True(t, IsHoneypotField(ElementInfo{Attributes: ElementAttributes{ID: "Honey_trap"}}))
	assert.True(t, IsHoneypotField(ElementInfo{Label: "honeypot"}))
	assert.False(t, IsHoneypotField(ElementInfo{Label: "First Name", Attributes: ElementAttributes{Name: "fname"}}))
}

func TestPlanFlagsVerificationFields(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/verify", "Verify", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "Enter the code we emailed you", Required: true},
	})

	plan := p.PlanForm(s, "")
	assert.Empty(t, plan.Actions)
	assert.True(t, plan.RequiresHuman)
	require.Len(t, plan.HumanReasons, 1)
	assert.Contains(t, plan.HumanReasons[0], "verification")
}

func TestPlanRequiredUnanswerableNeedsHuman(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "Internal requisition number", Required: true},
	})

	plan := p.PlanForm(s, "")
	assert.Empty(t, plan.Actions)
	assert.True(t, plan.RequiresHuman)
}

func TestPlanOneActionPerRadioGroup(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetRadio, Label: "Are you authorized to work?", Required: true,
			CurrentValue: "unchecked", Attributes: ElementAttributes{GroupName: "auth"}},
		{Index: 1, Type: WidgetRadio, Label: "Are you authorized to work?", Required: true,
			CurrentValue: "unchecked", Attributes: ElementAttributes{GroupName: "auth"}},
	})

	plan := p.PlanForm(s, "")
	assert.Len(t, plan.Actions, 1)
	assert.Equal(t, "auth", plan.Actions[0].GroupName)
}

func TestPlanRespectsActionCap(t *testing.T) {
	p := plannerForTest(3)
	var elements []ElementInfo
	for i := 0; i < 10; i++ {
		elements = append(elements, ElementInfo{
			Index: i, Type: WidgetTextInput, Label: fmt.Sprintf("First Name %d", i),
		})
	}
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, elements)

	plan := p.PlanForm(s, "")
	assert.Len(t, plan.Actions, 3)
	assert.Contains(t, plan.Skipped, "action cap reached")
}

func TestPlanPhoneKeepsCountryCodeWithoutSelector(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetPhoneInput, Label: "Phone", Required: true},
	})

	plan := p.PlanForm(s, "")
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "15551234567", plan.Actions[0].Value)
}

func TestPlanPhoneStripsCountryCodeWithSelector(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetSelect, Label: "Country code", CurrentValue: "+1", Options: []ElementOption{
			{Value: "1", Text: "+1 (US)"},
			{Value: "44", Text: "+44 (UK)"},
		}},
		{Index: 1, Type: WidgetPhoneInput, Label: "Phone", Required: true},
	})

	plan := p.PlanForm(s, "")
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "5551234567", plan.Actions[0].Value)
}

func TestHasCountryCodeSelector(t *testing.T) {
	withOptions := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetSelect, Label: "Region", Options: []ElementOption{{Value: "1", Text: "+1"}}},
	})
	assert.True(t, HasCountryCodeSelector(withOptions))

	plain := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetSelect, Label: "Country", Options: []ElementOption{{Value: "us", Text: "United States"}}},
	})
	assert.False(t, HasCountryCodeSelector(plain))
}

func TestPlanCarriesLocatorHints(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "First Name", TypeOrdinal: 2},
		{Index: 1, Type: WidgetCheckbox, Label: "I agree to the terms", Required: true,
			CurrentValue: "unchecked", TypeOrdinal: 0,
			Attributes: ElementAttributes{ToggleViaLabel: true}},
	})

	plan := p.PlanForm(s, "")
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, 2, plan.Actions[0].TypeOrdinal)
	assert.False(t, plan.Actions[0].ToggleViaLabel)
	assert.True(t, plan.Actions[1].ToggleViaLabel)
}

func TestPlanRepairsTargetsOnlyFlaggedFields(t *testing.T) {
	p := plannerForTest(0)
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetTextInput, Label: "First Name", CurrentValue: "Ada"},
		{Index: 1, Type: WidgetEmailInput, Label: "Email", CurrentValue: "ada@example",
			NearbyError: "Please enter a valid email address"},
		{Index: 2, Type: WidgetSubmitButton, Label: "Submit Application"},
	})

	plan := p.PlanRepairs(s, "")
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, 1, plan.Actions[0].ElementIndex)
	assert.Equal(t, "ada@example.com", plan.Actions[0].Value)
	require.NotNil(t, plan.PrimaryAction)
	assert.Equal(t, 2, plan.PrimaryAction.Index)
}

func TestPasswordValueNeverDisplayed(t *testing.T) {
	action := PlannedAction{WidgetType: WidgetPasswordInput, Value: TokenCredentialPassword}
	assert.Equal(t, "[redacted]", action.DisplayValue())

	plain := PlannedAction{WidgetType: WidgetTextInput, Value: "Ada"}
	assert.Equal(t, "Ada", plain.DisplayValue())
}

func TestChoosePrimaryActionPrefersSubmit(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetButton, Label: "Back"},
		{Index: 1, Type: WidgetButton, Label: "Save draft"},
		{Index: 2, Type: WidgetSubmitButton, Label: "Submit Application"},
	})

	primary := ChoosePrimaryAction(s)
	require.NotNil(t, primary)
	assert.Equal(t, 2, primary.Index)
}

func TestChoosePrimaryActionAvoidsDestructive(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetButton, Label: "Cancel"},
		{Index: 1, Type: WidgetButton, Label: "Withdraw application"},
		{Index: 2, Type: WidgetLink, Label: "Sign out"},
	})

	assert.Nil(t, ChoosePrimaryAction(s))
}

func TestChoosePrimaryActionKeywordPriority(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetButton, Label: "Review later"},
		{Index: 1, Type: WidgetButton, Label: "Continue"},
	})

	primary := ChoosePrimaryAction(s)
	require.NotNil(t, primary)
	assert.Equal(t, "Continue", primary.Label)
}

func TestChoosePrimaryActionUsesButtonText(t *testing.T) {
	s := snapshotWith("https://jobs.example.com/apply", "Apply", nil, []ElementInfo{
		{Index: 0, Type: WidgetButton, Label: "", CurrentValue: "Apply now"},
	})

	primary := ChoosePrimaryAction(s)
	require.NotNil(t, primary)
	assert.Equal(t, 0, primary.Index)
}
