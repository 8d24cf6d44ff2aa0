// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Docker, the registry, the catalog database, the cache).
package out

import (
	"context"
	"time"
)

// DaemonClient defines the image operations the catalog needs from the local container engine.
type DaemonClient interface {
	// TagImage adds targetRef as a new reference to the image known as sourceRef.
	TagImage(ctx context.Context, sourceRef, targetRef string) error
	// PushImage uploads imageRef to the registry encoded in its name.
	PushImage(ctx context.Context, imageRef string) error
	// PullImage downloads imageRef from its registry.
	PullImage(ctx context.Context, imageRef string) error
	// RemoveImage removes imageRef. When the image has other references only this one is dropped.
	RemoveImage(ctx context.Context, imageRef string) error
	// ListImages returns the images matching the reference filter.
	ListImages(ctx context.Context, reference string) ([]ImageFacts, error)
	// InspectImage returns low-level details for imageRef.
	InspectImage(ctx context.Context, imageRef string) (*ImageDetail, error)
}

// ImageFacts is what the daemon reports for one image in a listing.
type ImageFacts struct {
	ID          string
	Size        int64
	VirtualSize int64
	Labels      map[string]string
	ParentID    string
	Created     time.Time
}

// ImageDetail is what the daemon reports when inspecting one image.
type ImageDetail struct {
	ID  string
	Cmd []string
}
