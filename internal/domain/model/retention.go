package model

import "time"

// ExpiryFrom is the retention rule shared by identities and sessions.
func ExpiryFrom(t time.Time, retentionDays int) time.Time {
	return t.Add(time.Duration(retentionDays) * 24 * time.Hour)
}
