package step

import (
	"errors"
	"regexp"
	"strings"
)

// Errors for step name validation.
var (
	ErrEmptyStepName   = errors.New("step name cannot be empty")
	ErrInvalidStepName = errors.New("step name invalid: must be alphanumeric segments with hyphens, underscores, dots or slashes, separated by colons")
)

// namePattern matches names such as "apt:packages:build-deps".
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_./-]*(?::[a-zA-Z0-9][a-zA-Z0-9_./-]*)*$`)

// ValidateName checks that name is usable as a step name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyStepName
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidStepName
	}
	return nil
}

// Provider returns the first segment of a step name ("apt" for "apt:update").
func Provider(name string) string {
	provider, _, _ := strings.Cut(name, ":")
	return provider
}
