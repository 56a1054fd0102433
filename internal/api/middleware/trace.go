package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const maxTraceIDLength = 128

var traceHeaders = []string{"X-Trace-ID", "X-Request-ID"}

// TraceMiddleware tags every request with a trace id, echoed back in
// X-Trace-ID. Caller supplied ids are only trusted when short and printable.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		w.Header().Set("X-Trace-ID", traceID)
		ctx := context.WithValue(r.Context(), traceContextKey, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func incomingTraceID(r *http.Request) string {
	for _, h := range traceHeaders {
		if v := r.Header.Get(h); v != "" && printableTraceID(v) {
			return v
		}
	}
	return uuid.NewString()
}

func printableTraceID(v string) bool {
	if len(v) > maxTraceIDLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return false
		}
	}
	return true
}
