// Package endpoints implements the discovery HTTP API. Each endpoint is
// both a route and a CLI command.
package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
)

// ErrorResponse is the error body every endpoint returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeKindError maps an error kind to an HTTP status.
func writeKindError(w http.ResponseWriter, err error) {
	writeError(w, statusForKind(types.KindOf(err)), err.Error())
}

func statusForKind(kind types.ErrorKind) int {
	switch kind {
	case types.ErrKindInputInvalid:
		return http.StatusBadRequest
	case types.ErrKindAccessDenied:
		return http.StatusForbidden
	case types.ErrKindNotFound:
		return http.StatusNotFound
	case types.ErrKindTransient, types.ErrKindBackendUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrKindCancelled:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// caseHeader is the header carrying the caller's case identity.
const caseHeader = "X-Case-Id"

// userHeader identifies the caller to the access oracle.
const userHeader = "X-User-Id"

// requireCase extracts the case id from the header, checks it against the
// case named in the request (body or path), and consults the access oracle
// when one is configured. Returns false after writing the error response.
func requireCase(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	caseID := r.Header.Get(caseHeader)
	if caseID == "" {
		writeError(w, http.StatusForbidden, "missing "+caseHeader+" header")
		return "", false
	}
	if requested != "" && requested != caseID {
		writeError(w, http.StatusConflict, "case name does not match "+caseHeader+" header")
		return "", false
	}
	if oracle := svcctx.AccessFrom(r.Context()); oracle != nil {
		perm := types.PermWrite
		if r.Method == http.MethodGet {
			perm = types.PermRead
		}
		if !oracle.CanAccess(r.Context(), caseID, r.Header.Get(userHeader), perm) {
			if lg := svcctx.LoggerFrom(r.Context()); lg != nil {
				lg.Warn("case access denied",
					"case", caseID, "user", r.Header.Get(userHeader),
					"perm", perm, "path", r.URL.Path)
			}
			writeError(w, http.StatusForbidden, "access denied for case "+caseID)
			return "", false
		}
	}
	return caseID, true
}
