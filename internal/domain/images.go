package domain

import "time"

// ImageType classifies an image present on the local daemon.
type ImageType int

const (
	// ImageTypeUserOwned is an image built or imported by a user; only these may be pushed.
	ImageTypeUserOwned ImageType = 1
	// ImageTypePublicPulled is an image pulled from the hub.
	ImageTypePublicPulled ImageType = 2
)

func (t ImageType) String() string {
	switch t {
	case ImageTypeUserOwned:
		return "user"
	case ImageTypePublicPulled:
		return "public"
	default:
		return "unknown"
	}
}

// CatalogEntry is a known image on the remote registry.
// FullName is always Repo + "/" + Name + ":" + Tag.
type CatalogEntry struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Repo     string `json:"repo"`
	// Name is "<ownerId>/<imageName>".
	Name string `json:"name"`
	Tag  string `json:"tag"`
	// Digest is empty when the registry lookup failed at insert time.
	Digest string `json:"digest,omitempty"`
	UserID string `json:"userId"`
}

// Deletable reports whether the entry carries what a registry delete needs.
func (e *CatalogEntry) Deletable() bool {
	return !isBlank(e.Name) && !isBlank(e.Digest)
}

// LocalImage is an image actually present on the local daemon.
type LocalImage struct {
	ID       string    `json:"id"`
	FullName string    `json:"fullName"`
	Name     string    `json:"name"`
	Tag      string    `json:"tag"`
	Repo     string    `json:"repo"`
	Type     ImageType `json:"type"`
	UserID   string    `json:"userId,omitempty"`

	// Daemon-observed facts, filled best-effort.
	ImageID     string            `json:"imageId,omitempty"`
	Size        int64             `json:"size,omitempty"`
	VirtualSize int64             `json:"virtualSize,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	ParentID    string            `json:"parentId,omitempty"`
	// Cmd is the JSON-serialized command vector.
	Cmd        string     `json:"cmd,omitempty"`
	CreateDate *time.Time `json:"createDate,omitempty"`
}

// SyncReport counts what a reconciliation pass changed.
type SyncReport struct {
	Added   int `json:"add"`
	Deleted int `json:"delete"`
	Errored int `json:"error"`
}
