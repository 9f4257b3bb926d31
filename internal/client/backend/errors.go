package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

var (
	ErrUnauthorized      = common.ErrUnauthorized
	ErrUnavailable       = common.ErrUnavailable
	ErrNoSession         = common.ErrNoSession
	ErrMalformedResponse = common.ErrMalformedResponse
)

// APIError is a non-2xx answer from the auth API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth api %d: %s", e.Status, e.Message)
}

// Unwrap maps the status onto the shared taxonomy so callers can use
// errors.Is(err, common.ErrUnauthorized) and friends.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusBadRequest && (e.Code == "invalid_grant" || e.Code == "refresh_token_not_found" ||
		e.Code == "invalid_credentials" || e.Code == "session_not_found"):
		return ErrUnauthorized
	case e.Status == http.StatusTooManyRequests, e.Status >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}

type apiErrorBody struct {
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

func (b apiErrorBody) toAPIError(status int) *APIError {
	e := &APIError{Status: status, Code: b.ErrorCode}
	if e.Code == "" {
		e.Code = b.Error
	}
	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// statusPrefix starts every non-2xx error auth-go returns. The response
// body follows the status code after a colon.
const statusPrefix = "response status code "

// mapError turns an auth-go error into the shared taxonomy. Transport
// failures surface as *url.Error, API rejections as a status line, and
// anything else is a body that did not decode.
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return mapTransportError(err)
	}
	if apiErr, ok := parseStatusError(err); ok {
		return apiErr
	}
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}

func parseStatusError(err error) (*APIError, bool) {
	msg := err.Error()
	i := strings.Index(msg, statusPrefix)
	if i < 0 {
		return nil, false
	}
	code, body, _ := strings.Cut(msg[i+len(statusPrefix):], ":")
	status, convErr := strconv.Atoi(strings.TrimSpace(code))
	if convErr != nil {
		return nil, false
	}

	var eb apiErrorBody
	_ = json.Unmarshal([]byte(strings.TrimSpace(body)), &eb)
	return eb.toAPIError(status), true
}

// mapTransportError classifies errors from http.Client.Do.
func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
