package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/api/middleware"
	"github.com/breatheroute/runcoach/internal/api/models"
	"github.com/breatheroute/runcoach/internal/api/response"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/internal/timing"
	"github.com/breatheroute/runcoach/internal/weather"
)

// RetryAfterUnavailable is suggested to clients when a provider or field is
// temporarily unavailable.
const RetryAfterUnavailable = time.Minute

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// writeError maps engine errors to problem responses. Unknown errors are
// logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, airquality.ErrUnknownRegion):
		response.NotFound(w, r, err.Error())

	case errors.Is(err, routing.ErrInvalidCandidate),
		errors.Is(err, routing.ErrInvalidCoordinates),
		errors.Is(err, timing.ErrInvalidRequest),
		errors.Is(err, weather.ErrInvalidCoordinates),
		errors.Is(err, health.ErrUserIDRequired),
		errors.Is(err, health.ErrInvalidScore):
		response.BadRequest(w, r, err.Error(), nil)

	case errors.Is(err, routing.ErrNoCandidates),
		errors.Is(err, routing.ErrNoRouteFound):
		response.Unprocessable(w, r, err.Error())

	case errors.Is(err, airquality.ErrProviderUnavailable),
		errors.Is(err, airquality.ErrInsufficientReadings),
		errors.Is(err, airquality.ErrNoData),
		errors.Is(err, airquality.ErrRegionLimit),
		errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, routing.ErrRateLimitExceeded),
		errors.Is(err, weather.ErrProviderUnavailable),
		errors.Is(err, timing.ErrNoData):
		response.Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), err.Error()).
			WithRetryAfter(RetryAfterUnavailable))

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request cancelled or timed out")

	default:
		log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
