package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Git source errors.
var (
	ErrInvalidBranch = errors.New("invalid branch name")
	ErrInvalidGitURL = errors.New("invalid git remote URL")
)

var (
	branchRegex = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)

	// gitURLRegexes accept the three remote forms cargo install --git takes:
	// https://host/org/repo(.git), git@host:org/repo(.git), ssh://user@host/org/repo(.git)
	gitURLRegexes = []*regexp.Regexp{
		regexp.MustCompile(`^https://[a-zA-Z0-9.-]+/[a-zA-Z0-9_./-]+$`),
		regexp.MustCompile(`^git@[a-zA-Z0-9.-]+:[a-zA-Z0-9_./-]+$`),
		regexp.MustCompile(`^ssh://[a-zA-Z0-9@.-]+/[a-zA-Z0-9_./-]+$`),
	}
)

// ValidateGitBranch validates a branch for cargo install --branch.
// Empty means the remote's default branch.
func ValidateGitBranch(branch string) error {
	switch {
	case branch == "":
		return nil
	case len(branch) > 255:
		return fmt.Errorf("%w: too long (max 255 characters)", ErrInvalidBranch)
	case strings.ContainsRune(branch, '\x00'):
		return fmt.Errorf("%w: contains null byte", ErrInvalidBranch)
	}
	if char, ok := firstShellMeta(branch); ok {
		return fmt.Errorf("%w: %q contains invalid character %q", ErrCommandInjection, branch, char)
	}
	switch {
	case strings.HasPrefix(branch, "-"):
		// would be read as a git option
		return fmt.Errorf("%w: %q cannot start with '-'", ErrInvalidBranch, branch)
	case strings.Contains(branch, ".."):
		return fmt.Errorf("%w: %q cannot contain '..'", ErrInvalidBranch, branch)
	case !branchRegex.MatchString(branch):
		return fmt.Errorf("%w: invalid branch name format %q", ErrInvalidBranch, branch)
	}
	return nil
}

// ValidateGitRemoteURL validates a repository URL for cargo install --git.
func ValidateGitRemoteURL(url string) error {
	if url == "" {
		return ErrEmptyInput
	}
	if len(url) > 2048 {
		return fmt.Errorf("%w: too long (max 2048 characters)", ErrInvalidGitURL)
	}
	if char, ok := firstShellMeta(url); ok {
		return fmt.Errorf("%w: %q contains invalid character %q", ErrCommandInjection, url, char)
	}
	for _, re := range gitURLRegexes {
		if re.MatchString(url) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q must be an HTTPS or SSH URL", ErrInvalidGitURL, url)
}
