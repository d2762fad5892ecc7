package api

import (
	"encoding/json"
	"net/http"

	"github.com/lzjever/mbos-dash/internal/core"
)

// ErrorResponse is the body of every error reply. RPCCode and Data are
// passed through from the remote service.
type ErrorResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	RPCCode int             `json:"rpc_code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func errorResponse(err *core.AppError) *ErrorResponse {
	if err == nil {
		return nil
	}
	return &ErrorResponse{
		Code:    string(err.Code),
		Message: err.Message,
		RPCCode: err.RPCCode,
		Data:    err.Data,
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, err *core.AppError) {
	WriteJSON(w, err.Code.HTTPStatus(), errorResponse(err))
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteAccepted writes a 202 for work that continues in the background,
// pointing at where its progress can be read.
func WriteAccepted(w http.ResponseWriter, v interface{}, href string) {
	w.Header().Set("Location", href)
	WriteJSON(w, http.StatusAccepted, v)
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v interface{}) *core.AppError {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.NewAppError(core.ErrBadRequest, "invalid request body")
	}
	return nil
}
