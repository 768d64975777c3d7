// Package server provides the session, WebSocket and command handling behind
// the player's control surface.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/moafunk/player/internal/types"
)

var errPlaybackFailed = errors.New("playback failed to start")

// validate is the shared request validator.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names, not Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// result is the reply to a command.
type result struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// DecodeAndValidate decodes cmd.Data into data and validates it. It reports
// false after sending the error reply itself.
func DecodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if err := json.Unmarshal(cmd.Data, data); err != nil {
		SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	if err := validate.Struct(data); err != nil {
		SendValidationErrors(send, cmd.Type, err)
		return false
	}
	return true
}

// HandleCommand decodes and validates the request, runs process and replies
// with success or the returned error.
func HandleCommand[T any](h *CommandHandler, cmd WSCommand, send chan<- any, process func(*T) error) {
	var data T
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}
	if err := process(&data); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// SendSuccess sends a success reply for a command.
func SendSuccess(send chan<- any, cmdType string, data any) {
	trySend(send, cmdType, result{Type: cmdType + "_result", Success: true, Data: data})
}

// SendError sends an error reply for a command.
func SendError(send chan<- any, cmdType string, err error) {
	trySend(send, cmdType, result{Type: cmdType + "_result", Error: err.Error()})
}

// SendValidationErrors converts validator errors into a ValidationError reply.
func SendValidationErrors(send chan<- any, cmdType string, err error) {
	verr := types.NewValidationError()

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, e := range fieldErrs {
			verr.Add(e.Field(), formatValidationMessage(e), e.Value())
		}
	} else {
		verr.Add("", err.Error(), nil)
	}
	trySend(send, cmdType, result{Type: cmdType + "_result", Error: verr})
}

// trySend queues msg without blocking; a full queue drops it.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full or closed", "type", cmdType)
	}
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "http_url", "url":
		return "must be a valid http(s) URL"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
