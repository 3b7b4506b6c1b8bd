package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// ArtifactPrefix starts every backup artifact name.
	ArtifactPrefix = "backup_"
	// FailedPrefix marks the identifier of an item that failed before any
	// artifact was produced.
	FailedPrefix = "FAILED_"
	// SafetyPrefix starts pre-restore safety dumps.
	SafetyPrefix = "prerestore_"
	// ArtifactDateLayout is the ISO date embedded in artifact names.
	ArtifactDateLayout = "2006-01-02"
)

var (
	identifierInvalid = regexp.MustCompile(`[^A-Za-z0-9.\-]+`)
	artifactPattern   = regexp.MustCompile(`^(` + FailedPrefix + `)?` + ArtifactPrefix + `(.+)_(\d{4}-\d{2}-\d{2})\.([A-Za-z0-9.]+)$`)
)

// Identifier builds the per-item identifier embedded in artifact names from
// its parts. Parts are joined with "." and characters outside [A-Za-z0-9.-]
// are replaced, so two different items of one run never share a name.
func Identifier(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(identifierInvalid.ReplaceAllString(p, "-"), "-.")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, ".")
}

// ArtifactName returns backup_<identifier>_<ISO date>.<ext>.
func ArtifactName(identifier string, date time.Time, ext string) string {
	return fmt.Sprintf("%s%s_%s.%s", ArtifactPrefix, identifier, date.UTC().Format(ArtifactDateLayout), strings.TrimPrefix(ext, "."))
}

// FailedArtifactName returns the name recorded for an item that failed before
// producing bytes. It can never collide with a successful artifact name.
func FailedArtifactName(identifier string, date time.Time, ext string) string {
	return FailedPrefix + ArtifactName(identifier, date, ext)
}

// ArtifactInfo is what can be recovered from an artifact name.
type ArtifactInfo struct {
	Identifier string
	Date       time.Time
	Ext        string
	Failed     bool
}

// ParseArtifactName is the inverse of ArtifactName and FailedArtifactName.
func ParseArtifactName(name string) (ArtifactInfo, bool) {
	m := artifactPattern.FindStringSubmatch(name)
	if m == nil {
		return ArtifactInfo{}, false
	}
	date, err := time.Parse(ArtifactDateLayout, m[3])
	if err != nil {
		return ArtifactInfo{}, false
	}
	return ArtifactInfo{
		Identifier: m[2],
		Date:       date,
		Ext:        m[4],
		Failed:     m[1] != "",
	}, true
}

// Artifact is a stored backup archive or database dump.
type Artifact struct {
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Verified bool      `json:"verified"`
}
