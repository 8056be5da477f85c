package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
// Only application/json bodies are accepted; cross-site HTML forms cannot send them.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnsupportedMediaType,
			ErrCode: "unsupported_media_type",
			Err:     errors.New("request body must be application/json"),
		})
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

const maxBodyBytes = 64 << 10

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error()})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeAuthError renders an auth failure with the status for its kind.
// Causes stay in the logs; only the typed message reaches the client.
func writeAuthError(w http.ResponseWriter, err error) {
	ae := domainauth.AsError(err)
	msg := ae.Message
	if msg == "" {
		msg = string(ae.Kind)
	}
	WriteJSON(w, statusForKind(ae.Kind), errorBody{Error: string(ae.Kind), Message: msg})
}

func statusForKind(kind domainauth.Kind) int {
	switch kind {
	case domainauth.KindValidation, domainauth.KindMalformedCallback, domainauth.KindMalformedSession:
		return http.StatusBadRequest
	case domainauth.KindInvalidCredentials, domainauth.KindSessionExpired:
		return http.StatusUnauthorized
	case domainauth.KindUnauthorized:
		return http.StatusForbidden
	case domainauth.KindSuperseded:
		return http.StatusConflict
	case domainauth.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
