package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// Telegram caps a message at 4096 characters; the rest of the post
	// needs room.
	MaxPrizeLength      = 256
	MaxPresetNameLength = 32
)

var presetNameRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidatePrize checks the free-text prize shown in the post.
func ValidatePrize(prize string) error {
	prize = strings.TrimSpace(prize)
	if prize == "" {
		return fmt.Errorf("prize cannot be empty")
	}
	if utf8.RuneCountInString(prize) > MaxPrizeLength {
		return fmt.Errorf("prize must not exceed %d characters", MaxPrizeLength)
	}
	return nil
}

// ValidatePresetName checks a preset name: lowercase letters, digits, '_' and '-'.
func ValidatePresetName(name string) error {
	if name == "" {
		return fmt.Errorf("preset name cannot be empty")
	}
	if len(name) > MaxPresetNameLength {
		return fmt.Errorf("preset name must not exceed %d characters", MaxPresetNameLength)
	}
	if !presetNameRegex.MatchString(name) {
		return fmt.Errorf("preset name %q contains invalid characters", name)
	}
	return nil
}

func ValidatePositiveInt(value int64, fieldName string) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive", fieldName)
	}
	return nil
}

func ValidateNonNegativeInt(value int64, fieldName string) error {
	if value < 0 {
		return fmt.Errorf("%s cannot be negative", fieldName)
	}
	return nil
}
