package middleware

import (
	"mime"
	"net/http"
	"slices"

	"github.com/breatheroute/runcoach/internal/api/models"
)

// RequireContentType rejects POST, PUT and PATCH requests whose body is not
// one of the allowed media types with 415. A missing Content-Type is accepted.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || !slices.Contains(allowed, mediaType) {
					problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()), allowed)
					problem.Instance = r.URL.Path
					problem.Write(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON is RequireContentType for application/json.
func RequireJSON(next http.Handler) http.Handler {
	return RequireContentType("application/json")(next)
}
