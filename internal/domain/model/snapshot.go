package model

import "time"

// SnapshotRecord is the single-generation pre-update state of one unit. A new
// record for the same unit replaces the previous one.
type SnapshotRecord struct {
	Unit       string          `json:"unit"`
	CapturedAt time.Time       `json:"captured_at"`
	Images     []ImageSnapshot `json:"images"`

	// Definition is the unit's compose definition before the update, when
	// the update replaced it.
	Definition string `json:"definition,omitempty"`
}

// ImageSnapshot records what one member container ran before an update.
//
// Reference is the pull reference the container was created from and is the
// only field used as a pull target. ImageID is the resolved local image
// identity used for the local re-tag path. VersionLabel is a best-effort
// display value and is never used to construct a reference.
type ImageSnapshot struct {
	Container    string `json:"container"`
	Service      string `json:"service,omitempty"`
	Reference    string `json:"reference"`
	ImageID      string `json:"image_id"`
	RepoDigest   string `json:"repo_digest,omitempty"`
	VersionLabel string `json:"version_label,omitempty"`
}

// Image returns the snapshot entry for a container, if present.
func (r SnapshotRecord) Image(container string) (ImageSnapshot, bool) {
	for _, img := range r.Images {
		if img.Container == container {
			return img, true
		}
	}
	return ImageSnapshot{}, false
}

// VersionSummary joins the version labels for display.
func (r SnapshotRecord) VersionSummary() string {
	out := ""
	for _, img := range r.Images {
		label := img.VersionLabel
		if label == "" {
			label = "unknown"
		}
		if out != "" {
			out += ", "
		}
		out += img.Container + "=" + label
	}
	return out
}
