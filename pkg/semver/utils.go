package semver

import (
	"regexp"
	"strconv"
	"strings"
)

// Image labels that commonly carry an application version, in lookup order.
var versionLabels = []string{
	"org.opencontainers.image.version",
	"org.label-schema.version",
	"version",
}

var semverPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?(?:[-+][0-9A-Za-z.\-]+)?$`)

// GetNumericVersion folds a dotted version into one comparable integer.
func GetNumericVersion(semVer string) int {
	parts := strings.Split(strings.TrimPrefix(semVer, "v"), ".")
	result := 0
	for _, part := range parts {
		num, _ := strconv.Atoi(part)
		result = result*1000 + num
	}
	return result
}

// IsSemver reports whether s looks like a semantic version.
func IsSemver(s string) bool {
	return semverPattern.MatchString(s)
}

// Label returns a best-effort display version for an image: the first
// version label found, else the tag of reference when it looks like a
// version, else "". The result is never meant to be pulled.
func Label(labels map[string]string, reference string) string {
	for _, key := range versionLabels {
		if v := strings.TrimSpace(labels[key]); v != "" {
			return v
		}
	}
	if tag := Tag(reference); IsSemver(tag) {
		return strings.TrimPrefix(tag, "v")
	}
	return ""
}

// Tag returns the tag part of an image reference, "latest" when it has none
// and "" for digest-only references.
func Tag(reference string) string {
	if i := strings.Index(reference, "@"); i >= 0 {
		reference = reference[:i]
		if !strings.Contains(reference[strings.LastIndex(reference, "/")+1:], ":") {
			return ""
		}
	}
	name := reference[strings.LastIndex(reference, "/")+1:]
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return "latest"
}
