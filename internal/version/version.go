// Package version holds the build version string for voxterm.
package version

// Version is the semantic version of this build. Overridden at link time
// via -ldflags "-X voxterm/internal/version.Version=...".
var Version = "0.1.0"
