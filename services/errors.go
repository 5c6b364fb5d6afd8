package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// Codes for failures that are not protocol error kinds.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal"
)

// errInvalidRequest marks request bodies that could not be decoded or validated.
var errInvalidRequest = errors.New("invalid request")

var validate = validator.New()

var statusByCode = map[string]int{
	protocol.CodeUsernameTaken:       http.StatusConflict,
	protocol.CodePermissionDenied:    http.StatusForbidden,
	protocol.CodeInvalidToken:        http.StatusBadRequest,
	protocol.CodeSubmissionsClosed:   http.StatusGone,
	protocol.CodeRegistryUnreachable: http.StatusBadGateway,
	CodeInvalidRequest:               http.StatusBadRequest,
	CodeNotFound:                     http.StatusNotFound,
}

// errorCode classifies err for the wire.
func errorCode(err error) string {
	if code := protocol.Code(err); code != "" {
		return code
	}
	if errors.Is(err, errInvalidRequest) || errors.Is(err, identity.ErrEmptyName) {
		return CodeInvalidRequest
	}
	return CodeInternal
}

// resultLabel is the metrics label for the outcome of an operation.
func resultLabel(err error) string {
	if err == nil {
		return ""
	}
	return errorCode(err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and code. Internal failures are logged
// and their details are not returned.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	code := errorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: CodeInternal, Message: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: err.Error()})
}

// decodeRequest reads and validates a JSON request body.
func decodeRequest[T any](r *http.Request) (*T, error) {
	msg, err := protocol.DecodeMessage[T](r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	return msg, nil
}

// APIError is a failure reported by a service.
// It unwraps to the protocol error kind named by Code, when there is one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if kind, ok := protocol.ErrorFromCode(e.Code); ok {
		return kind
	}
	return nil
}

// decodeError builds an APIError from a failed response body.
func decodeError(status int, body io.Reader) *APIError {
	var resp ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil || resp.Error == "" {
		return &APIError{Status: status, Code: CodeInternal, Message: http.StatusText(status)}
	}
	return &APIError{Status: status, Code: resp.Error, Message: resp.Message}
}
