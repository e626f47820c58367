// Package versionutil compares tool versions printed by "--version" flags.
package versionutil

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// versionPattern finds the first dotted version in a line such as
// "rustc 1.75.0 (82e1608df 2023-12-21)" or "cargo 1.77.0-nightly".
var versionPattern = regexp.MustCompile(`\bv?(\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?)\b`)

// Normalize returns v in the "vMAJOR.MINOR.PATCH" form semver expects.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	return v
}

// Extract returns the first version found in output.
func Extract(output string) (string, bool) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Valid reports whether v is a semantic version, with or without "v".
func Valid(v string) bool {
	return semver.IsValid(Normalize(v))
}

// AtLeast reports whether have >= min. Invalid versions never satisfy.
// Pre-releases sort before their release ("1.77.0-nightly" < "1.77.0").
func AtLeast(have, min string) bool {
	h, m := Normalize(have), Normalize(min)
	if !semver.IsValid(h) || !semver.IsValid(m) {
		return false
	}
	return semver.Compare(h, m) >= 0
}
