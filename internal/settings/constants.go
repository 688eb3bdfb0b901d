package settings

import "sort"

// DB config keys and defaults for settings.
const (
	// UsagePeriodRetentionDaysKey controls how many days of usage periods are kept. 0 disables cleanup.
	UsagePeriodRetentionDaysKey = "USAGE_PERIOD_RETENTION_DAYS"
	// DefaultUsagePeriodRetentionDays is the fallback retention.
	DefaultUsagePeriodRetentionDays = 400
	// QuotaCacheTTLSecondsKey controls how long usage snapshots stay cached.
	QuotaCacheTTLSecondsKey = "QUOTA_CACHE_TTL_SECONDS"
	// TrialDaysKey overrides the trial length of newly provisioned tenants.
	TrialDaysKey = "TRIAL_DAYS"
)

// knownKeys lists the keys accepted by the admin settings API.
var knownKeys = map[string]struct{}{
	UsagePeriodRetentionDaysKey: {},
	QuotaCacheTTLSecondsKey:     {},
	TrialDaysKey:                {},
}

// IsKnownKey reports whether key is a recognised setting.
func IsKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// KnownKeys returns the recognised setting keys in sorted order.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for key := range knownKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
