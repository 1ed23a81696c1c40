package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrize(t *testing.T) {
	assert.NoError(t, ValidatePrize("Nitro"))
	assert.NoError(t, ValidatePrize(strings.Repeat("🎉", MaxPrizeLength)))
	assert.Error(t, ValidatePrize("   "))
	assert.Error(t, ValidatePrize(strings.Repeat("a", MaxPrizeLength+1)))
}

func TestValidatePresetName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"default", true},
		{"chatty_2", true},
		{"weekly-drop", true},
		{"", false},
		{"Default", false},
		{"two words", false},
		{strings.Repeat("a", MaxPresetNameLength+1), false},
	}
	for _, tt := range tests {
		err := ValidatePresetName(tt.name)
		if tt.valid {
			assert.NoError(t, err, tt.name)
		} else {
			assert.Error(t, err, tt.name)
		}
	}
}

func TestValidateInts(t *testing.T) {
	assert.NoError(t, ValidatePositiveInt(1, "winner_count"))
	assert.EqualError(t, ValidatePositiveInt(0, "winner_count"), "winner_count must be positive")
	assert.NoError(t, ValidateNonNegativeInt(0, "entries"))
	assert.Error(t, ValidateNonNegativeInt(-1, "entries"))
}
