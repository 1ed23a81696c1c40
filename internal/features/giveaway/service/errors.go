package service

import (
	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
)

// Typed failures. They match under errors.Is by code, so errors returned by a
// Platform adapter with the same code compare equal to these.
var (
	ErrNotFound          = apperrors.New(apperrors.ErrCodeNotFound, "giveaway not found")
	ErrPostNotFound      = apperrors.New(apperrors.ErrCodeNotFound, "post not found")
	ErrQuotaExceeded     = apperrors.New(apperrors.ErrCodeQuotaExceeded, "community giveaway quota exceeded")
	ErrPermissionDenied  = apperrors.New(apperrors.ErrCodePermissionDenied, "missing channel permissions")
	ErrUnknownPreset     = apperrors.New(apperrors.ErrCodeUnknownPreset, "unknown preset")
	ErrUnknownAffordance = apperrors.New(apperrors.ErrCodeUnknownEntryAffordance, "unknown entry affordance")
	ErrRateLimited       = apperrors.New(apperrors.ErrCodeRateLimit, "platform rate limit")
	ErrInvalidRequest    = apperrors.New(apperrors.ErrCodeValidation, "invalid request")
	ErrPresetInUse       = apperrors.New(apperrors.ErrCodeConflict, "preset is used by a running or scheduled giveaway")
	ErrScheduleConflict  = apperrors.New(apperrors.ErrCodeQuotaExceeded, "community quota is taken during that window")
	ErrDraining          = apperrors.New(apperrors.ErrCodeInternal, "controller is shutting down")
)
