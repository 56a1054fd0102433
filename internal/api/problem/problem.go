package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.token-ledger.dev/"
	traceHeader = "X-Trace-ID"
)

// Details is an RFC 7807 problem. Code and RemainingDays are extension
// members set for ledger rejections.
type Details struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	Code          string `json:"code,omitempty"`
	RemainingDays *int64 `json:"remaining_days,omitempty"`
	Instance      string `json:"instance"`
	RequestID     string `json:"request_id"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// New builds a problem for r. An empty problemType becomes about:blank and
// an empty title the status text.
func New(r *http.Request, status int, problemType, title, detail string) *Details {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	d := &Details{Type: problemType, Title: title, Status: status, Detail: detail}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get(traceHeader)
	}
	return d
}

func (d *Details) WithCode(code string) *Details {
	d.Code = code
	return d
}

func (d *Details) WithRemainingDays(days int64) *Details {
	d.RemainingDays = &days
	return d
}

// Send writes the problem. The trace id falls back to the one the trace
// middleware already put on the response.
func (d *Details) Send(w http.ResponseWriter) {
	if d.RequestID == "" {
		d.RequestID = w.Header().Get(traceHeader)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

// Write sends a problem without extension members.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	New(r, status, problemType, title, detail).Send(w)
}
