package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, version, commit, date, builtBy, build string) {
	t.Helper()
	prev := []string{Version, Commit, Date, BuiltBy, BuildNumber}
	Version, Commit, Date, BuiltBy, BuildNumber = version, commit, date, builtBy, build
	t.Cleanup(func() {
		Version, Commit, Date, BuiltBy, BuildNumber = prev[0], prev[1], prev[2], prev[3], prev[4]
	})
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		buildNumber string
		expected    string
	}{
		{"version with build number", "1.0.0", "123", "1.0.0+build.123"},
		{"version without build number", "1.0.0", "0", "1.0.0"},
		{"version with empty build number", "1.0.0", "", "1.0.0"},
		{"dev version", "dev", "0", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, UnknownValue, UnknownValue, UnknownValue, tt.buildNumber)
			assert.Equal(t, tt.expected, GetVersion())
		})
	}
}

func TestGetFullVersionInfo(t *testing.T) {
	withBuild(t, "1.0.0", "abcdef123456789", "2025_03_01_10_30_00", "ci", "0")

	info := GetFullVersionInfo()
	lines := strings.Split(info, "\n")

	assert.Len(t, lines, 2)
	assert.Equal(t, "metric-alert-engine 1.0.0 (abcdef1)", lines[0])
	assert.Contains(t, lines[1], "built 2025 03 01 10 30 00")
	assert.Contains(t, lines[1], "by ci")
	assert.Contains(t, lines[1], runtime.Version())
}

func TestGetFullVersionInfo_UnknownFieldsOmitted(t *testing.T) {
	withBuild(t, "dev", UnknownValue, "", UnknownValue, "0")

	info := GetFullVersionInfo()

	assert.True(t, strings.HasPrefix(info, "metric-alert-engine dev\n"))
	assert.NotContains(t, info, "built")
	assert.NotContains(t, info, "by ")
}

func TestGet(t *testing.T) {
	withBuild(t, "2.1.0", "0123456789", "today", "me", "7")

	bi := Get()

	assert.Equal(t, "2.1.0+build.7", bi.Version)
	assert.Equal(t, "0123456", bi.Commit)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, bi.Platform)
}
