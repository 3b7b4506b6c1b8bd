// Package version holds the build identity, set with -ldflags "-X".
package version

var (
	version = "0.0.0"
	commit  = ""
)

func GetVersion() string {
	return version
}

// String returns the version followed by the short commit when it is known.
func String() string {
	if commit == "" {
		return version
	}
	c := commit
	if len(c) > 7 {
		c = c[:7]
	}
	return version + " (" + c + ")"
}
