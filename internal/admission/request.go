package admission

import "time"

// Request describes one operation to admit. TrialToken, Resource and Tool are optional.
type Request struct {
	TenantID   string
	TrialToken string
	Operation  string
	Resource   string
	Tool       string
	ClientIP   string
	RequestID  string
}

// Decision carries the remaining budgets of an admitted request. Quota fields are -1 when the
// resource is unlimited or was not checked; rate fields are zero when no policy applied.
type Decision struct {
	QuotaLimit     int64
	QuotaRemaining int64
	RateLimit      int
	RateRemaining  int
	RateResetAt    time.Time
}
