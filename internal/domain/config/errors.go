package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Error codes for categorization.
const (
	ErrCodeConfigNotFound   = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeConfigParse      = "CONFIG_PARSE"
	ErrCodePlanInvalid      = "PLAN_INVALID"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeFilePermission   = "FILE_PERMISSION"
)

// UserError represents a user-friendly error with actionable suggestions.
type UserError struct {
	Code       string // Error code for categorization (e.g., "CONFIG_NOT_FOUND")
	Message    string // User-friendly error message
	Context    string // File path, line number, or flag name
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, " (at %s)", e.Context)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain support.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is() for comparing error codes.
func (e *UserError) Is(target error) bool {
	if t, ok := target.(*UserError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewUserError creates a new UserError with the given code and message.
func NewUserError(code, message string) *UserError {
	return &UserError{Code: code, Message: message}
}

// WithContext returns a new UserError with context set.
func (e *UserError) WithContext(ctx string) *UserError {
	c := *e
	c.Context = ctx
	return &c
}

// WithSuggestion returns a new UserError with suggestion set.
func (e *UserError) WithSuggestion(suggestion string) *UserError {
	c := *e
	c.Suggestion = suggestion
	return &c
}

// WithUnderlying returns a new UserError wrapping another error.
func (e *UserError) WithUnderlying(err error) *UserError {
	c := *e
	c.Underlying = err
	return &c
}

// ErrorList accumulates multiple errors for comprehensive reporting.
type ErrorList struct {
	errors []*UserError
}

// NewErrorList creates an empty ErrorList.
func NewErrorList() *ErrorList {
	return &ErrorList{errors: make([]*UserError, 0)}
}

// Add adds an error to the list.
func (l *ErrorList) Add(err *UserError) {
	if err != nil {
		l.errors = append(l.errors, err)
	}
}

// AddValidation adds a validation error to the list.
func (l *ErrorList) AddValidation(field, message, suggestion string) {
	l.Add(&UserError{
		Code:       ErrCodeValidationFailed,
		Message:    fmt.Sprintf("%s: %s", field, message),
		Context:    field,
		Suggestion: suggestion,
	})
}

// HasErrors returns true if there are any errors.
func (l *ErrorList) HasErrors() bool {
	return len(l.errors) > 0
}

// Len returns the number of errors.
func (l *ErrorList) Len() int {
	return len(l.errors)
}

// Errors returns the list of errors.
func (l *ErrorList) Errors() []*UserError {
	result := make([]*UserError, len(l.errors))
	copy(result, l.errors)
	return result
}

// Error lists every problem, one per line.
func (l *ErrorList) Error() string {
	switch len(l.errors) {
	case 0:
		return ""
	case 1:
		return l.errors[0].Error()
	}
	lines := make([]string, 0, len(l.errors)+1)
	lines = append(lines, fmt.Sprintf("%d problems found:", len(l.errors)))
	for _, err := range l.errors {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// AsError returns the ErrorList as an error, or nil if empty.
func (l *ErrorList) AsError() error {
	if !l.HasErrors() {
		return nil
	}
	return l
}

// NewConfigNotFoundError creates an error for a missing plan file.
func NewConfigNotFoundError(path string) *UserError {
	return &UserError{
		Code:       ErrCodeConfigNotFound,
		Message:    fmt.Sprintf("plan file not found: %s", path),
		Context:    path,
		Suggestion: "Check the --plan path, or omit --plan to use the built-in node plan.",
	}
}

// NewValidationFailedError creates a validation error.
func NewValidationFailedError(field, message string) *UserError {
	return &UserError{
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("validation failed for '%s': %s", field, message),
		Context: field,
	}
}

// NewPlanInvalidError creates an error for a plan that parses but cannot run.
func NewPlanInvalidError(context, message string) *UserError {
	return &UserError{
		Code:    ErrCodePlanInvalid,
		Message: message,
		Context: context,
	}
}

// IsUserError checks if an error is a UserError with a specific code.
func IsUserError(err error, code string) bool {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}

// GetUserError extracts a UserError from an error chain, if present.
func GetUserError(err error) *UserError {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}

const stepFieldsHint = "Step fields are name, description, critical, timeout, check, unless, run, script and verify."

// yamlHints maps fragments of yaml.v3 error text to a message and a
// suggestion. The first match wins.
var yamlHints = []struct {
	match      []string
	message    string
	suggestion string
}{
	{
		match:   []string{"cannot unmarshal !!map", "into []string"},
		message: "expected a command list but found an object",
		suggestion: `Commands are argv lists, one element per argument:
  run: [apt-get, install, -y, curl]
Use 'script' for shell pipelines.`,
	},
	{
		match:      []string{"cannot unmarshal !!str", "into []string"},
		message:    "expected a command list but found a string",
		suggestion: "Write commands as lists (run: [ufw, allow, 4133/tcp]) or move shell syntax to 'script'.",
	},
	{
		match:      []string{"cannot unmarshal !!seq", "into config.PlanFile"},
		message:    "expected a plan but found a list",
		suggestion: "A plan file is a mapping with name, vars and steps keys; the steps go under 'steps:'.",
	},
	{
		match:      []string{"not found in type"},
		message:    "unknown field",
		suggestion: stepFieldsHint,
	},
	{
		match:      []string{"cannot unmarshal"},
		message:    "field has the wrong type",
		suggestion: "critical is true or false, timeout is a duration such as 10m, vars are strings.",
	},
	{
		match:      []string{"did not find expected"},
		message:    "bad indentation or missing key",
		suggestion: "Indent each level with 2 spaces, never tabs.",
	},
	{
		match:      []string{"found character that cannot start"},
		message:    "invalid character in YAML",
		suggestion: "Quote values that start with special characters such as '@', '`' or '%'.",
	},
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// NewYAMLParseError turns a yaml.v3 decode error into a CONFIG_PARSE error
// with the line in its context.
func NewYAMLParseError(path string, err error) *UserError {
	errStr := err.Error()
	ue := &UserError{
		Code:       ErrCodeConfigParse,
		Message:    "invalid YAML syntax",
		Context:    path,
		Suggestion: "Check indentation and quote values containing ':' or '#'.",
		Underlying: err,
	}
	for _, hint := range yamlHints {
		if containsAll(errStr, hint.match) {
			ue.Message, ue.Suggestion = hint.message, hint.suggestion
			break
		}
	}
	if m := yamlLine.FindStringSubmatch(errStr); m != nil {
		ue.Context = fmt.Sprintf("%s (line %s)", path, m[1])
	}
	return ue
}

func containsAll(s string, parts []string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}

// NewTOMLParseError translates go-toml decode errors into user-friendly messages.
func NewTOMLParseError(path string, err error) *UserError {
	ue := &UserError{
		Code:       ErrCodeConfigParse,
		Message:    "invalid TOML syntax",
		Context:    path,
		Suggestion: "Steps are [[steps]] tables; commands are arrays of strings such as run = [\"ufw\", \"allow\", \"4133/tcp\"].",
		Underlying: err,
	}

	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		ue.Context = fmt.Sprintf("%s (line %d, column %d)", path, row, col)
		return ue
	}

	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		ue.Message = "unknown field"
		ue.Suggestion = stepFieldsHint
		return ue
	}

	if strings.Contains(err.Error(), "cannot decode") || strings.Contains(err.Error(), "cannot store") {
		ue.Message = "field has the wrong type"
	}
	return ue
}
