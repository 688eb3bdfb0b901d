package audit

// EventType is a member of the closed audit taxonomy.
type EventType string

// Audit event types.
const (
	EventQueryExecuted            EventType = "QUERY_EXECUTED"
	EventQueryFailed              EventType = "QUERY_FAILED"
	EventDocumentIngested         EventType = "DOCUMENT_INGESTED"
	EventDocumentDeleted          EventType = "DOCUMENT_DELETED"
	EventIngestionFailed          EventType = "INGESTION_FAILED"
	EventTrialStarted             EventType = "TRIAL_STARTED"
	EventTrialExpired             EventType = "TRIAL_EXPIRED"
	EventTrialConverted           EventType = "TRIAL_CONVERTED"
	EventTrialTokenIssued         EventType = "TRIAL_TOKEN_ISSUED"
	EventTrialTokenRejected       EventType = "TRIAL_TOKEN_REJECTED"
	EventSettingsChanged          EventType = "SETTINGS_CHANGED"
	EventPlanChanged              EventType = "PLAN_CHANGED"
	EventTenantSuspended          EventType = "TENANT_SUSPENDED"
	EventTenantActivated          EventType = "TENANT_ACTIVATED"
	EventTenantStatusChanged      EventType = "TENANT_STATUS_CHANGED"
	EventUnauthorizedAccess       EventType = "UNAUTHORIZED_ACCESS"
	EventCrossTenantAccessAttempt EventType = "CROSS_TENANT_ACCESS_ATTEMPT"
	EventInvalidTenantFormat      EventType = "INVALID_TENANT_FORMAT"
	EventRateLimitExceeded        EventType = "RATE_LIMIT_EXCEEDED"
	EventQuotaExceeded            EventType = "QUOTA_EXCEEDED"
	EventToolInvoked              EventType = "TOOL_INVOKED"
	EventToolFailed               EventType = "TOOL_FAILED"
	EventStoreUnavailable         EventType = "STORE_UNAVAILABLE"
)

var knownEvents = map[EventType]struct{}{
	EventQueryExecuted: {}, EventQueryFailed: {}, EventDocumentIngested: {}, EventDocumentDeleted: {},
	EventIngestionFailed: {}, EventTrialStarted: {}, EventTrialExpired: {}, EventTrialConverted: {},
	EventTrialTokenIssued: {}, EventTrialTokenRejected: {}, EventSettingsChanged: {}, EventPlanChanged: {},
	EventTenantSuspended: {}, EventTenantActivated: {}, EventTenantStatusChanged: {}, EventUnauthorizedAccess: {},
	EventCrossTenantAccessAttempt: {}, EventInvalidTenantFormat: {}, EventRateLimitExceeded: {},
	EventQuotaExceeded: {}, EventToolInvoked: {}, EventToolFailed: {}, EventStoreUnavailable: {},
}

// Valid reports whether t belongs to the taxonomy.
func (t EventType) Valid() bool {
	_, ok := knownEvents[t]
	return ok
}

// Severity grades an audit event.
type Severity string

// Audit severities.
const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Entry is one event handed to a Sink.
type Entry struct {
	TenantID string
	Type     EventType
	Severity Severity
	// Data must only carry identifiers, counts and limits.
	Data map[string]any
	// Sensitive values are replaced by a keyed hash and a length before they leave the caller.
	Sensitive map[string]string
	Metadata  map[string]any
}

// Sink receives audit events. Implementations must not block the caller.
type Sink interface {
	LogEvent(entry Entry)
}

// Discard is a Sink that drops every event.
type Discard struct{}

// LogEvent implements Sink.
func (Discard) LogEvent(Entry) {}
