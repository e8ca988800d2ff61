// Package version carries build metadata.
package version

import "fmt"

// Set at build time with -ldflags "-X github.com/chmdznr/oldmaps/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info formats the build metadata for the version command.
func Info() string {
	return fmt.Sprintf("Version:    %s\nGit commit: %s\nBuilt:      %s\n", Version, GitCommit, BuildTime)
}
