package httpapi

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	brewauth "github.com/purebrew/brewauth"
)

// requestLogger writes one structured line per request. The actor is
// the tagged identity, never a raw string, so anonymous traffic is
// logged as "anonymous" rather than a guessed username.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		ctx, observedIdentity := brewauth.TrackIdentity(r.Context())
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("identity", observedIdentity().String()).
			Msg("request")
	})
}
