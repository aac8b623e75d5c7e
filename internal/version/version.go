package version

// Version is the radx build version, set with
// -ldflags "-X github.com/rxtech-lab/radx/internal/version.Version=1.2.3".
var Version = "main"

// GetVersion returns the current build version.
func GetVersion() string {
	return Version
}
