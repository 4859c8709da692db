package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors for the upload lifecycle. Handlers map these onto HTTP
// status codes; everything else surfaces as a 500.
var (
	// Client input errors.
	ErrSizeExceeded      = errors.New("declared size exceeds maximum file size")
	ErrExtensionRejected = errors.New("file extension not allowed")

	// Session state errors. The client must restart from /api/init.
	ErrUnknownSession  = errors.New("unknown upload session")
	ErrIndexOutOfRange = errors.New("chunk index out of range")
	ErrSessionMismatch = errors.New("file id does not match upload session")

	// Retriable without restarting: resend the missing chunks, call finish again.
	ErrIncompleteUpload = errors.New("upload incomplete")

	// Oversized chunk body.
	ErrPayloadTooLarge = errors.New("chunk exceeds configured chunk size")

	// Bad or missing download password.
	ErrAccessDenied = errors.New("access denied")
)

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

// writeUploadError translates an upload-lifecycle error into a response.
func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSizeExceeded), errors.Is(err, ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrExtensionRejected), errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrSessionMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrIncompleteUpload):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
