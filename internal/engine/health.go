package engine

import (
	"time"

	"github.com/nhle/inboxsync/internal/model"
)

// Connection health is a small state machine per connection:
//
//	Created --(first successful sync)--> Validated
//	Validated --(threshold consecutive transient failures)--> Failing
//	Failing --(one success)--> Validated
//
// Each stream keeps its own failure streak, because a connection can
// serve notifications correctly while its task stream is broken by a
// missing scope.

// recordSyncSuccess resets a stream's failure streak and validates the
// connection.
func recordSyncSuccess(conn *model.IntegrationConnection, stream model.SyncStream, now time.Time) {
	st := conn.StreamState(stream)
	st.FailureCount = 0
	st.FirstFailedAt = nil
	st.FailureMessage = ""
	st.LastSyncCompletedAt = &now

	conn.Status = model.ConnectionValidated
}

// recordSyncFailure advances a stream's failure streak. Transient
// failures only tip the connection into Failing once the streak
// reaches the threshold; a permanent failure does so immediately.
func recordSyncFailure(conn *model.IntegrationConnection, stream model.SyncStream, message string, permanent bool, threshold int, now time.Time) {
	st := conn.StreamState(stream)
	st.FailureCount++
	st.FailureMessage = message
	if st.FirstFailedAt == nil {
		t := now
		st.FirstFailedAt = &t
	}

	if permanent || st.FailureCount >= threshold {
		conn.Status = model.ConnectionFailing
	}
}

// backoffDelay computes the delay before a stream's next eligible sync
// from its consecutive-failure count: base doubles per failure, capped
// at max. Zero failures yield zero backoff (the min interval alone
// decides eligibility).
func backoffDelay(failures int, base, max time.Duration) time.Duration {
	if failures <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// nextEligibleAt computes when a stream may sync again, combining the
// minimum spacing with the failure-streak backoff.
func nextEligibleAt(conn *model.IntegrationConnection, stream model.SyncStream, minInterval, backoffBase, backoffMax time.Duration) time.Time {
	st := conn.StreamState(stream)

	var last time.Time
	if st.LastSyncScheduledAt != nil {
		last = *st.LastSyncScheduledAt
	}

	delay := minInterval
	if backoff := backoffDelay(st.FailureCount, backoffBase, backoffMax); backoff > delay {
		delay = backoff
	}
	return last.Add(delay)
}
