package model

import "time"

// DefaultMaxFailures is the consecutive-failure threshold that deactivates
// a sync policy when no explicit threshold was configured.
const DefaultMaxFailures = 3

// backoffBase is the delay after the first failure; each further failure
// doubles it.
const backoffBase = 5 * time.Minute

// SyncPolicy holds the scheduling and retry state for one connection's
// synchronization. A policy is deactivated when FailureCount reaches
// MaxFailures; it is never deleted automatically.
type SyncPolicy struct {
	ConnectionID string
	Cadence      Cadence
	NextRunAt    time.Time
	LastRunAt    time.Time
	Active       bool
	FailureCount int
	MaxFailures  int
}

// Due reports whether the policy is active and scheduled to run at or
// before now.
func (p *SyncPolicy) Due(now time.Time) bool {
	return p.Active && !p.NextRunAt.After(now)
}

// Exhausted reports whether the policy has been disabled by reaching its
// failure threshold.
func (p *SyncPolicy) Exhausted() bool {
	return !p.Active && p.FailureCount >= p.MaxFailures
}

// RecordSuccess resets the failure count and advances NextRunAt according
// to the policy's cadence.
func (p *SyncPolicy) RecordSuccess(now time.Time) {
	p.FailureCount = 0
	p.LastRunAt = now
	p.NextRunAt = NextRunAfter(p.Cadence, now)
}

// RecordFailure increments the failure count. Once the count reaches
// MaxFailures the policy is deactivated and stays deactivated until an
// explicit reactivation; otherwise the next run is pushed out by an
// exponential backoff of 5min * 2^failures.
func (p *SyncPolicy) RecordFailure(now time.Time) {
	p.FailureCount++
	p.LastRunAt = now
	if p.FailureCount >= p.MaxFailures {
		p.Active = false
		return
	}
	p.NextRunAt = now.Add(BackoffDelay(p.FailureCount))
}

// BackoffDelay returns the retry delay after the given consecutive-failure
// count: 5min * 2^failures.
func BackoffDelay(failures int) time.Duration {
	return backoffBase * time.Duration(1<<failures)
}

// syncHour is the fixed UTC hour used for daily and weekly cadences.
const syncHour = 6

// NextRunAfter computes the next scheduled run strictly after now for the
// given cadence. Manual cadence is effectively never: one year out.
func NextRunAfter(c Cadence, now time.Time) time.Time {
	switch c {
	case CadenceRealtime:
		return now.Add(5 * time.Minute)
	case CadenceHourly:
		return now.Add(time.Hour)
	case CadenceDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), syncHour, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		return next
	case CadenceWeekly:
		next := time.Date(now.Year(), now.Month(), now.Day(), syncHour, 0, 0, 0, time.UTC).AddDate(0, 0, 7)
		return next
	default: // manual
		return now.AddDate(1, 0, 0)
	}
}
