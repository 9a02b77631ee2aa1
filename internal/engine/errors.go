package engine

// errors.go defines the error taxonomy for ingestion:
//
//   - FatalParseError: the whole batch is unusable (empty file, unreadable
//     structure). Nothing is processed.
//   - RowError: one row is bad (malformed line, missing required field).
//     Recorded per row, never aborts the batch.
//   - ConfigError: invalid mappings or rules. Raised when configuration is
//     validated, before any ingestion run can use it; Ingest re-checks so a
//     bad configuration can never fail mid-batch.
//
// A routing miss (no rule matched) is not an error and has no type here.

import (
	"fmt"
	"strings"
)

// FatalParseError aborts an entire batch before any row is processed.
type FatalParseError struct {
	Reason string
}

func (e *FatalParseError) Error() string {
	return "fatal parse error: " + e.Reason
}

// RowError records a problem with a single row. Row is 1-based and counts
// data rows, not physical lines.
type RowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ValidationError is a single configuration problem, tied to the field or
// rule element it concerns.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// ValidationResult is the outcome of validating a mapping set or a rule.
type ValidationResult struct {
	Valid  bool              `json:"ok"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ConfigError wraps validation failures when invalid configuration reaches
// an operation that requires it to be valid.
type ConfigError struct {
	Errors []ValidationError
}

func (e *ConfigError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid configuration"
	}
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// UserMessage is a user-facing rendering of a technical error, with a stable
// code operators can quote to support staff.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// errorPattern maps a substring of a technical error to a user message.
// Patterns are checked in order; first match wins.
type errorPattern struct {
	substr string
	msg    UserMessage
}

var errorPatterns = []errorPattern{
	{"empty file", UserMessage{
		Code:    "PARSE001",
		Message: "The file is empty",
		Action:  "Check that the upload contains data",
	}},
	{"no data rows", UserMessage{
		Code:    "PARSE002",
		Message: "No data rows were found",
		Action:  "Check the header and skip-row settings against the file",
	}},
	{"unreadable structure", UserMessage{
		Code:    "PARSE003",
		Message: "The file structure could not be read",
		Action:  "Verify the file matches the declared format",
	}},
	{"unsupported format", UserMessage{
		Code:    "PARSE004",
		Message: "The declared format is not supported",
		Action:  "Use csv, json, or jsonl",
	}},
	{"required field", UserMessage{
		Code:    "MAP001",
		Message: "A required field is empty",
		Action:  "Fill the value or remove the required flag from the mapping",
	}},
	{"primary identifier", UserMessage{
		Code:    "MAP002",
		Message: "The mapping set needs exactly one primary identifier",
		Action:  "Flag exactly one mapping as the primary ID",
	}},
	{"duplicate source field", UserMessage{
		Code:    "MAP003",
		Message: "Two mappings reference the same source field",
		Action:  "Remove or rename the duplicate mapping",
	}},
	{"unknown field", UserMessage{
		Code:    "RULE001",
		Message: "A rule condition references a field that is not in the schema",
		Action:  "Update the rule to use a mapped field",
	}},
	{"not legal for type", UserMessage{
		Code:    "RULE002",
		Message: "A rule condition uses an operator that is not valid for the field's type",
		Action:  "Pick an operator offered for the field's current type",
	}},
	{"invalid configuration", UserMessage{
		Code:    "CFG001",
		Message: "The saved configuration is invalid",
		Action:  "Re-validate the mappings and rules before ingesting",
	}},
}

// MapError translates a technical error into a user-facing message.
// Unmatched errors get a generic message with code GEN001; the technical
// detail stays in the server logs.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Code: "GEN000", Message: "OK"}
	}
	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.substr) {
			return p.msg
		}
	}
	return UserMessage{
		Code:    "GEN001",
		Message: "An unexpected error occurred",
		Action:  "Try again, and quote this code if the problem persists",
	}
}
