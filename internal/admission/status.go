package admission

import (
	"errors"
	"net/http"
)

// HTTPStatus maps err to the status code returned to clients. Non-denial errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		state       *StateError
		violation   *AccessViolation
		rateLimited *RateLimitExceeded
		quota       *QuotaExceeded
		unavailable *StoreUnavailable
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &state), errors.As(err, &violation):
		return http.StatusForbidden
	case errors.As(err, &rateLimited), errors.As(err, &quota):
		return http.StatusTooManyRequests
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
