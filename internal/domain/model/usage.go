package model

import "math"

// QuotaState drives the dashboard banner for scan usage.
type QuotaState string

const (
	QuotaOK       QuotaState = "ok"
	QuotaWarning  QuotaState = "warning"
	QuotaExceeded QuotaState = "exceeded"
)

// WarningThreshold is the usage percentage at which users are warned ahead
// of running out.
const WarningThreshold = 80

type Usage struct {
	Tier       Tier       `json:"tier"`
	ScansUsed  int        `json:"scans_used"`
	ScansLimit int        `json:"scans_limit"`
	Percent    int        `json:"usage_percent"`
	State      QuotaState `json:"state"`
	ScansLeft  int        `json:"scans_left"`
}

// ComputeUsage derives the usage percentage and quota state. A non-positive
// limit counts as exhausted.
func ComputeUsage(t Tier, used, limit int) Usage {
	u := Usage{Tier: t, ScansUsed: used, ScansLimit: limit}
	if limit <= 0 {
		u.Percent = 100
		u.State = QuotaExceeded
		return u
	}
	u.Percent = int(math.Floor(float64(used) / float64(limit) * 100))
	switch {
	case used >= limit:
		u.State = QuotaExceeded
	case u.Percent >= WarningThreshold:
		u.State = QuotaWarning
	default:
		u.State = QuotaOK
	}
	if left := limit - used; left > 0 {
		u.ScansLeft = left
	}
	return u
}
