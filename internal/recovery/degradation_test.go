package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGracefulDegradationDisablesAfterThreshold(t *testing.T) {
	deg := NewGracefulDegradation(2)

	assert.True(t, deg.IsFeatureEnabled("metrics"))
	assert.True(t, deg.IsFeatureEnabled("logging"))

	deg.RecordFeatureFailure("metrics")
	assert.True(t, deg.IsFeatureEnabled("metrics"))
	assert.Equal(t, 1, deg.FeatureFailureCount("metrics"))

	deg.RecordFeatureFailure("metrics")
	assert.False(t, deg.IsFeatureEnabled("metrics"))
	assert.Equal(t, 2, deg.FeatureFailureCount("metrics"))

	assert.True(t, deg.IsFeatureEnabled("logging"))

	deg.RecordFeatureSuccess("metrics")
	assert.True(t, deg.IsFeatureEnabled("metrics"))
	assert.Equal(t, 0, deg.FeatureFailureCount("metrics"))

	deg.RecordFeatureFailure("logging")
	deg.RecordFeatureFailure("logging")
	assert.Contains(t, deg.DisabledFeatures(), "logging")
}
