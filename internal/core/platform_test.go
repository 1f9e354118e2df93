package core

import "testing"

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		input   string
		want    Platform
		wantErr bool
	}{
		{"github", PlatformGitHub, false},
		{"GitLab", PlatformGitLab, false},
		{"", PlatformGitHub, false},
		{"  github  ", PlatformGitHub, false},
		{"bitbucket", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePlatform(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePlatform(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePlatform(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePlatform(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestPlatformOrDefault(t *testing.T) {
	if got := PlatformOrDefault("gitlab"); got != PlatformGitLab {
		t.Errorf("PlatformOrDefault(gitlab) = %s, want gitlab", got)
	}
	if got := PlatformOrDefault("bitbucket"); got != DefaultPlatform {
		t.Errorf("PlatformOrDefault(bitbucket) = %s, want the default", got)
	}
	if got := PlatformOrDefault(""); got != DefaultPlatform {
		t.Errorf("PlatformOrDefault(\"\") = %s, want the default", got)
	}
}

func TestPlatform_IsDefault(t *testing.T) {
	if !PlatformGitHub.IsDefault() {
		t.Errorf("github must be the default platform")
	}
	if !Platform("").IsDefault() {
		t.Errorf("empty platform must count as default")
	}
	if PlatformGitLab.IsDefault() {
		t.Errorf("gitlab must not be the default platform")
	}
}
