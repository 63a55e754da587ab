package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "how many years of experience",
		NormalizeQuestion("  How many YEARS of experience?  "))
	assert.Equal(t, "are you authorized to work",
		NormalizeQuestion("Are you authorized to work*?!"))
	assert.Equal(t, "a b c", NormalizeQuestion("a   b\t c"))
}

func TestQuestionHashIgnoresCosmeticDifferences(t *testing.T) {
	a := QuestionHash("How many years of experience?")
	b := QuestionHash("  how many YEARS of experience ")
	assert.Equal(t, a, b)

	c := QuestionHash("How many years of Go experience?")
	assert.NotEqual(t, a, c)
}

func TestJobTransitionRules(t *testing.T) {
	assert.True(t, transitionAllowed(JobStatusNew, JobStatusReady))
	assert.True(t, transitionAllowed(JobStatusReady, JobStatusApplied))
	assert.True(t, transitionAllowed(JobStatusReady, JobStatusApplyStuck))
	assert.True(t, transitionAllowed(JobStatusApplyStuck, JobStatusReady))
	assert.True(t, transitionAllowed(JobStatusFailed, JobStatusReady))

	assert.False(t, transitionAllowed(JobStatusApplied, JobStatusReady))
	assert.False(t, transitionAllowed(JobStatusNew, JobStatusApplied))
	assert.False(t, transitionAllowed(JobStatusApplied, JobStatusFailed))
}
