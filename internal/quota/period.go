package quota

import (
	"fmt"
	"time"

	"github.com/storechat/admission/internal/models"
)

const periodKeyLayout = "2006-01-02"

// PeriodStart returns the start of the UTC day containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodKey returns the YYYY-MM-DD key of the UTC day containing t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(periodKeyLayout)
}

// usageColumn maps per-period resources to their counter columns.
func usageColumn(kind models.ResourceKind) (string, error) {
	switch kind {
	case models.ResourceQueries:
		return "queries", nil
	case models.ResourceAPICalls:
		return "api_calls", nil
	case models.ResourceUploads:
		return "uploads", nil
	case models.ResourceStorageMB:
		return "storage_mb", nil
	case models.ResourceEmbeddings:
		return "embeddings", nil
	default:
		return "", fmt.Errorf("quota: resource %q has no period counter", kind)
	}
}
