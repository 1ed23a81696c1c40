package service

import "time"

const (
	maxRetries    = 3                // attempts to persist a finished snapshot
	retryInterval = time.Second      // delay between snapshot attempts
	expiryRetry   = 30 * time.Second // delay before retrying an expiry the platform refused

	historyLimit = 50
)

// Refresh buckets: the longer a giveaway has left, the fewer ticks refresh it.
const (
	week = 7 * 24 * time.Hour
	day  = 24 * time.Hour

	weekRefreshTicks     = 2880
	dayRefreshTicks      = 480
	hourRefreshTicks     = 30
	halfHourRefreshTicks = 10
	fiveMinRefreshTicks  = 4
)
