// Package version provides version information and build details for the application.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	// AppName is the binary and User-Agent product name
	AppName = "metric-alert-engine"
	// ShortCommitHashLength defines the length for shortened commit hashes
	ShortCommitHashLength = 7
	// UnknownValue represents unknown build information
	UnknownValue = "unknown"
)

// Build-time variables set by linker flags
var (
	Version     = "dev"
	Commit      = UnknownValue
	Date        = UnknownValue
	BuiltBy     = UnknownValue
	BuildNumber = "0"
)

// GetVersion returns the version string, with the build number when set
func GetVersion() string {
	if BuildNumber != "0" && BuildNumber != "" {
		return fmt.Sprintf("%s+build.%s", Version, BuildNumber)
	}
	return Version
}

// ShortCommit returns the commit hash truncated to ShortCommitHashLength
func ShortCommit() string {
	if len(Commit) > ShortCommitHashLength {
		return Commit[:ShortCommitHashLength]
	}
	return Commit
}

// GetFullVersionInfo returns the multi-line banner printed by -version
func GetFullVersionInfo() string {
	head := AppName + " " + GetVersion()
	if known(Commit) {
		head += " (" + ShortCommit() + ")"
	}

	var build []string
	if known(Date) {
		build = append(build, "built "+strings.ReplaceAll(Date, "_", " "))
	}
	if known(BuiltBy) {
		build = append(build, "by "+BuiltBy)
	}
	build = append(build, "with "+runtime.Version(), "for "+runtime.GOOS+"/"+runtime.GOARCH)

	return head + "\n" + strings.Join(build, " ")
}

// BuildInfo is the JSON shape reported by the health endpoint
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information
func Get() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		Commit:    ShortCommit(),
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func known(v string) bool {
	return v != "" && v != UnknownValue
}
