// Package scrub detects and redacts credential material that leaks into
// free-text device data (incident descriptions, RMA references) using the
// Gitleaks SDK.
package scrub

import "errors"

var (
	// ErrInvalidRegex marks an allowlist pattern that does not compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML marks an allowlist file that does not parse.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
