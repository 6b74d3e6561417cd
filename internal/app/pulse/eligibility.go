package pulse

import "time"

// IsEligible reports whether rec may be presented at now. A PENDING record past its
// expiry is ineligible even before the sweeper has marked it EXPIRED.
func IsEligible(rec Record, now time.Time) bool {
	if rec.Status != StatusPending {
		return false
	}
	if now.Before(rec.NextEligibleAt) {
		return false
	}
	return now.Before(rec.ExpiresAt)
}

// IsExpired reports whether rec has passed its expiry, regardless of stored status.
func IsExpired(rec Record, now time.Time) bool {
	return rec.Status == StatusExpired || !now.Before(rec.ExpiresAt)
}
