package api

import (
	"errors"
	"net/http"

	"github.com/ignite/campaign-core/internal/pkg/httputil"
	"github.com/ignite/campaign-core/internal/recurrence"
	"github.com/ignite/campaign-core/internal/service/analytics"
	"github.com/ignite/campaign-core/internal/service/schedule"
	"github.com/ignite/campaign-core/internal/tracking"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	schedules *schedule.Service
	analytics *analytics.Service
	tracking  *tracking.Handler
	health    *HealthChecker
}

// NewHandlers creates the handler set. tracking and health may be nil, in
// which case their routes are not mounted.
func NewHandlers(schedules *schedule.Service, reports *analytics.Service, tr *tracking.Handler, health *HealthChecker) *Handlers {
	return &Handlers{
		schedules: schedules,
		analytics: reports,
		tracking:  tr,
		health:    health,
	}
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *recurrence.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.Unprocessable(w, "invalid recurrence rule", verr.Errors)
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, analytics.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, schedule.ErrMissingOwner), errors.Is(err, analytics.ErrInvalidEvent):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
