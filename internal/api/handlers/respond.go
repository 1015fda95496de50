package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/apperr"
	"github.com/amaumene/privatecinema/internal/controllers"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code name and a caller-safe message
type ErrorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// jsonBodyLimit bounds the small JSON bodies of every endpoint but ingest
const jsonBodyLimit = 64 * 1024

var errPayloadTooLarge = apperr.New(apperr.InvalidArgument, "Payload too large.")

// StatusFor maps an error onto its HTTP status
func StatusFor(err error) int {
	if errors.Is(err, errPayloadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, controllers.ErrClaimExpired) {
		return http.StatusGone
	}

	switch apperr.CodeOf(err) {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.PermissionDenied:
		return http.StatusForbidden
	case apperr.AlreadyExists:
		return http.StatusConflict
	case apperr.FailedPrecondition:
		return http.StatusPreconditionFailed
	case apperr.ResourceExhausted:
		return http.StatusTooManyRequests
	case apperr.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorWriter returns a function writing err as a JSON error response
func ErrorWriter(logger *logrus.Logger) func(w http.ResponseWriter, err error) {
	return func(w http.ResponseWriter, err error) {
		writeError(w, logger, err)
	}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Status:  apperr.CodeOf(err).String(),
		Message: apperr.MessageOf(err),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeBody reads a JSON request body of at most maxBytes into dst
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errPayloadTooLarge
	}
	if errors.Is(err, io.EOF) {
		return apperr.New(apperr.InvalidArgument, "Request body is required.")
	}
	return apperr.Wrap(apperr.InvalidArgument, "Request body is not valid JSON.", err)
}
