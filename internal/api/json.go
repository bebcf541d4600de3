package api

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// extension members
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		// Problem always marshals.
		b, _ = json.Marshal(Problem{
			Type:   "about:blank",
			Title:  "Internal error",
			Status: http.StatusInternalServerError,
			Detail: "encode response: " + err.Error(),
			Code:   codeInternal,
		})
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(append(b, '\n'))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps a solve error to its problem document.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := classify(err)
	w.Header().Set("Content-Type", "application/problem+json")
	if c.retryable {
		w.Header().Set("Retry-After", "5")
	}
	w.WriteHeader(c.status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:      "about:blank",
		Title:     c.title,
		Status:    c.status,
		Detail:    err.Error(),
		Instance:  r.URL.Path,
		Code:      c.code,
		Retryable: c.retryable,
	})
}
