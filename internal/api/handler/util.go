package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/token-ledger/internal/api/middleware"
	"github.com/ayo6706/token-ledger/internal/api/problem"
	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondServiceError maps a service failure onto a problem response.
// Ledger rejections keep their code; anything else is logged and hidden.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := statusForKind(de.Kind)
		p := problem.New(r, status, problem.Type("ledger/"+strings.ReplaceAll(de.Code, "_", "-")), "", err.Error()).
			WithCode(de.Code)
		var early *domain.TooEarlyError
		if errors.As(err, &early) {
			p.WithRemainingDays(early.RemainingDays)
		}
		p.Send(w)
		return
	}
	if status, problemType, message, ok := mapDBError(err); ok {
		RespondError(w, r, status, problemType, message)
		return
	}
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
		zap.Error(err),
	)
	RespondError(w, r, http.StatusInternalServerError, "internal", "unexpected server error")
}

func statusForKind(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState, domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Serializable transactions that lose a race surface as 40001; the caller
// may retry with the same idempotency key.
func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "40001": // serialization_failure
		return http.StatusConflict, "db/serialization-failure", "concurrent update, retry the request", true
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	default:
		return 0, "", "", false
	}
}

// decodeJSON reads a bounded JSON body into dst and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			RespondServiceError(w, r, err)
			return false
		}
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func requestAuth(r *http.Request) domain.Authorization {
	return middleware.AuthorizationFromContext(r.Context())
}

func nameParam(r *http.Request, param string) (domain.Name, error) {
	n := domain.Name(chi.URLParam(r, param))
	if err := n.Validate(); err != nil {
		return "", err
	}
	return n, nil
}

func parseServiceID(raw string) (uint32, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, domain.Validationf("invalid_service_id", "invalid service id %q", raw)
	}
	return uint32(v), nil
}

func symbolCodeParam(r *http.Request) (string, error) {
	code := chi.URLParam(r, "code")
	if err := domain.ValidateSymbolCode(code); err != nil {
		return "", err
	}
	return code, nil
}
