package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/debemdeboas/folio/internal/config"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionExpired means the refresh token was rejected and the user must sign in again.
	ErrSessionExpired = errors.New("session expired")
)

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Detail     string
	Message    string
	// Compiler output, set by the latex endpoint.
	Log string
	// Per-field validation messages.
	Fields map[string][]string
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	case len(e.Fields) > 0:
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("%s: %s", keys[0], strings.Join(e.Fields[keys[0]], " "))
	case e.Log != "":
		return "compilation failed"
	}
	return fmt.Sprintf("API request failed (%d %s)", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// FieldError returns the first message for field, or "".
func (e *Error) FieldError(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func decodeError(resp *http.Response) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return e
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return e
	}

	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			switch k {
			case "detail":
				e.Detail = s
				continue
			case "message":
				e.Message = s
				continue
			case "log":
				e.Log = s
				continue
			}
		}

		var list []string
		if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			if e.Fields == nil {
				e.Fields = make(map[string][]string)
			}
			e.Fields[k] = list
		}
	}
	return e
}

// Message returns the text to show a user for err.
func Message(err error) string {
	if errors.Is(err, ErrSessionExpired) {
		return config.ErrSessionExpired
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return config.ErrBackendUnavailable
}
