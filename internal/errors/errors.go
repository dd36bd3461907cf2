// Package errors maps the domain error kinds from api.ErrorCode onto HTTP
// responses. Internal callers only ever construct an *Error; nothing
// upstream of WriteHTTPError inspects a raw status code (spec.md §7).
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sevenquiz-backend/api"
)

// Error pairs a domain kind with the underlying cause, which is logged but
// never sent to the client — verification errors must not leak the
// cryptographic cause.
type Error struct {
	Code  api.ErrorCode
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code api.ErrorCode, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

var publicMessage = map[api.ErrorCode]string{
	api.ErrInvalidChallenge:    "invalid challenge",
	api.ErrInvalidSignature:    "invalid signature",
	api.ErrInvalidToken:        "invalid token",
	api.ErrNotInWhitelist:      "not in whitelist",
	api.ErrNotOwner:            "not lobby owner",
	api.ErrAlreadyInLobby:      "already in a lobby",
	api.ErrLobbyNotFound:       "lobby not found",
	api.ErrInternalIssueFailed: "internal error",
}

// WriteHTTPError maps err to a status code via api.HTTPStatus and writes a
// uniform {"error": "..."} body. Unrecognized errors surface as 500 without
// leaking their cause.
func WriteHTTPError(ctx context.Context, w http.ResponseWriter, err error) {
	code := api.ErrInternalIssueFailed

	var domainErr *Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}

	status, ok := api.HTTPStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	slog.ErrorContext(ctx, "http error",
		slog.Any("error", err),
		slog.String("code", string(code)),
		slog.Int("status", status))

	msg, ok := publicMessage[code]
	if !ok {
		msg = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(api.HTTPError{Error: msg}); encErr != nil {
		slog.ErrorContext(ctx, "http error: failed to encode response", slog.Any("error", encErr))
	}
}
