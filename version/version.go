// Package version reports build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// These variables are populated by the Go linker during the build process.
var (
	Version   = "dev"     // Overridden by the Git tag or dev version string
	Commit    = "none"    // Overridden by the Git commit hash
	Branch    = "unknown" // Overridden by the Git branch name
	BuildDate = "unknown" // Overridden by the build timestamp
)

// Info holds all the versioning information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns a struct populated with the version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Branch:    Branch,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Short is "nicepick <version> (<commit>)", with the commit abbreviated.
func (i Info) Short() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("nicepick %s (%s)", i.Version, commit)
}

// String returns a multi-line report of the version information.
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Short())
	b.WriteString("\n")
	for _, row := range [][2]string{
		{"Branch", i.Branch},
		{"Built", i.BuildDate},
		{"Go", i.GoVersion},
		{"Platform", i.Platform},
	} {
		fmt.Fprintf(&b, "  %-9s %s\n", row[0]+":", row[1])
	}
	return strings.TrimRight(b.String(), "\n")
}
