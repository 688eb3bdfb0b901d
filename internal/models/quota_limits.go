package models

// ResourceKind names a metered resource.
type ResourceKind string

// Metered resources.
const (
	ResourceQueries            ResourceKind = "queries_per_day"
	ResourceAPICalls           ResourceKind = "api_calls_per_day"
	ResourceStorageMB          ResourceKind = "storage_mb"
	ResourceEmbeddings         ResourceKind = "embeddings_count"
	ResourceConcurrentSessions ResourceKind = "concurrent_sessions"
	ResourceUploads            ResourceKind = "uploads_per_day"
)

// Unlimited marks a limit that is never enforced.
const Unlimited int64 = -1

// QuotaLimits holds the per-resource limits of a plan.
type QuotaLimits struct {
	QueriesPerDay      int64 `json:"queries_per_day"`
	APICallsPerDay     int64 `json:"api_calls_per_day"`
	StorageMB          int64 `json:"storage_mb"`
	EmbeddingsCount    int64 `json:"embeddings_count"`
	ConcurrentSessions int64 `json:"concurrent_sessions"`
	UploadsPerDay      int64 `json:"uploads_per_day"`
}

// LimitFor returns the limit for kind; ok is false for unknown kinds.
func (q QuotaLimits) LimitFor(kind ResourceKind) (int64, bool) {
	switch kind {
	case ResourceQueries:
		return q.QueriesPerDay, true
	case ResourceAPICalls:
		return q.APICallsPerDay, true
	case ResourceStorageMB:
		return q.StorageMB, true
	case ResourceEmbeddings:
		return q.EmbeddingsCount, true
	case ResourceConcurrentSessions:
		return q.ConcurrentSessions, true
	case ResourceUploads:
		return q.UploadsPerDay, true
	default:
		return 0, false
	}
}
