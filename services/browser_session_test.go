package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionDelayStaysInWindow(t *testing.T) {
	seen := map[float64]bool{}
	for i := 0; i < 200; i++ {
		d := actionDelayMS()
		assert.GreaterOrEqual(t, d, float64(actionDelayMinMS))
		assert.LessOrEqual(t, d, float64(actionDelayMaxMS))
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1, "delays must vary between actions")
}
