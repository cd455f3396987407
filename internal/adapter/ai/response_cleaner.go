// Package ai holds provider adapters and helpers for model output.
package ai

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ResponseCleaner turns structured model output into a value. It removes a
// markdown code fence around the whole answer and nothing else: prose around
// the object, trailing commas or a second object are rejected.
type ResponseCleaner struct{}

// NewResponseCleaner creates a ResponseCleaner.
func NewResponseCleaner() *ResponseCleaner { return &ResponseCleaner{} }

// StripFence removes a ```json or ``` fence wrapping the whole response.
func (rc *ResponseCleaner) StripFence(response string) string {
	s := strings.TrimSpace(response)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body, ok := strings.CutSuffix(s, "```")
	if !ok || len(body) < 3 {
		return s
	}
	body = strings.TrimPrefix(body[3:], "json")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && strings.TrimSpace(body[:nl]) == "" {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

// DecodeObject strips the fence and decodes exactly one JSON object into v.
// Failures are *JSONValidationError.
func (rc *ResponseCleaner) DecodeObject(response string, v any) error {
	cleaned := rc.StripFence(response)
	fail := func(msg string) error {
		return &JSONValidationError{Original: response, Cleaned: cleaned, Message: msg}
	}
	if !strings.HasPrefix(cleaned, "{") {
		return fail("output is not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(v); err != nil {
		return fail("invalid JSON: " + err.Error())
	}
	if dec.More() {
		return fail("trailing data after JSON object")
	}
	return nil
}

// JSONValidationError reports output that is not a single JSON object.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string { return e.Message }
