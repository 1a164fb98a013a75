package domain

import "context"

// CredentialProvider hands out the cookie bundle used by the extraction tool
type CredentialProvider interface {
	// Acquire returns a path to a fresh cookie file. force skips the freshness check.
	// isFallback is true when the returned file is stale or missing and the caller
	// should continue best-effort.
	Acquire(ctx context.Context, force bool) (path string, isFallback bool, err error)

	// Invalidate marks the current bundle as rejected by the remote side
	Invalidate()
}

// ProxyProvider yields an optional outbound proxy per attempt
type ProxyProvider interface {
	// Next returns the next endpoint, ok is false when no proxy should be used
	Next() (endpoint string, ok bool)
}

// RateGate is a yes/no admission check keyed by client identity
type RateGate interface {
	Allow(clientID string) bool
}

// Notifier receives terminal fetch notifications
type Notifier interface {
	NotifyFetchCompleted(req DownloadRequest)
	NotifyFetchFailed(req DownloadRequest, err error)
}
