// Package version exposes the build-time version of the mirror.
package version

// Version is the current version of the Windlass client. It is overridden at
// link time for release builds.
var Version = "dev"
