// Package version holds the agent version. Release builds override it with
// -ldflags "-X github.com/nmslite/hwmon/internal/version.Version=...".
package version

// Version is the running agent version.
var Version = "1.0.0"
