// Package buildinfo carries version metadata injected at link time and
// reported by the /version endpoint.
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the build metadata as a flat map for JSON responses.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

