package service

import "context"

// Platform is the chat platform the giveaway posts live on. Post ids are
// opaque strings. Implementations report a missing post as ErrPostNotFound,
// throttling as ErrRateLimited, missing rights as ErrPermissionDenied and an
// unusable reaction as ErrUnknownAffordance.
type Platform interface {
	PublishPost(ctx context.Context, channelID int64, text string) (string, error)
	EditPost(ctx context.Context, postID, text string) error
	// RetrievePost reports whether the post still exists.
	RetrievePost(ctx context.Context, postID string) (bool, error)
	AddEntryAffordance(ctx context.Context, postID, emoji string) error
	DeletePost(ctx context.Context, postID string) error
	CheckPermissions(ctx context.Context, channelID int64) error
}

// LatencyProbe reports whether outbound platform calls are currently acceptable.
type LatencyProbe interface {
	Usable() bool
}
