// Package buildinfo carries version metadata injected at link time:
//
//	go build -ldflags "-X github.com/modoterra/gatewatch/internal/buildinfo.Version=v0.3.0"
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version line printed by both binaries.
func String(name string) string {
	return name + " " + Version + " (" + Commit + ") built " + Date
}
