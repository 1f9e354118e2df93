package core

import (
	"fmt"
	"strings"
)

// Platform identifies the source-control platform a session targets.
// Procedures may carry platform-specific variants; PlatformGitHub is the
// default and never triggers a variant lookup.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// DefaultPlatform is assumed when no platform is configured.
const DefaultPlatform = PlatformGitHub

// ParsePlatform parses a string into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformGitHub, "":
		return PlatformGitHub, nil
	case PlatformGitLab:
		return PlatformGitLab, nil
	default:
		return "", fmt.Errorf("invalid platform: %q", s)
	}
}

// PlatformOrDefault parses a string into a Platform, falling back to the
// default for empty or unknown values. Callers that already validated their
// config use this to skip a second error path.
func PlatformOrDefault(s string) Platform {
	p, err := ParsePlatform(s)
	if err != nil {
		return DefaultPlatform
	}
	return p
}

// IsDefault reports whether the platform is the default one.
func (p Platform) IsDefault() bool {
	return p == DefaultPlatform || p == ""
}

// String returns the string representation.
func (p Platform) String() string {
	return string(p)
}
