// Package version carries build metadata injected at link time.
package version

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
)

// String renders the version for CLI output. An untagged build reports
// "dev"; a known commit is appended in short form.
func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit == "" {
		return v
	}
	c := Commit
	if len(c) > 12 {
		c = c[:12]
	}
	return v + " (" + c + ")"
}
