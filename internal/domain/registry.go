package domain

import (
	"fmt"
	"strings"
)

// DefaultTag is used when a coordinate carries no tag.
const DefaultTag = "latest"

// Coordinate is the structured form of "host[:port]/ownerId/imageName[:tag]".
type Coordinate struct {
	Repo    string
	Name    string
	Tag     string
	OwnerID string
}

// ParseCoordinate splits a raw coordinate into its parts.
//
// The registry host is everything before the first "/". The remaining body may hold
// at most one ":" separating the tag; a body with more than one is rejected with
// ErrInvalidCoordinate. Name keeps the owner prefix and OwnerID is the part of
// Name before its first "/"; a name without an owner segment is rejected.
func ParseCoordinate(raw string) (Coordinate, error) {
	i := strings.Index(raw, "/")
	if i <= 0 || i == len(raw)-1 {
		return Coordinate{}, fmt.Errorf("%w: %q has no repository host", ErrInvalidCoordinate, raw)
	}
	repo, body := raw[:i], raw[i+1:]

	parts := strings.Split(body, ":")
	var nameAndOwner, tag string
	switch len(parts) {
	case 1:
		nameAndOwner, tag = parts[0], DefaultTag
	case 2:
		nameAndOwner, tag = parts[0], parts[1]
	default:
		return Coordinate{}, fmt.Errorf("%w: %q has more than one tag separator", ErrInvalidCoordinate, raw)
	}
	if nameAndOwner == "" || tag == "" {
		return Coordinate{}, fmt.Errorf("%w: %q has an empty name or tag", ErrInvalidCoordinate, raw)
	}

	j := strings.Index(nameAndOwner, "/")
	if j <= 0 {
		return Coordinate{}, fmt.Errorf("%w: %q has no owner segment", ErrInvalidCoordinate, raw)
	}

	return Coordinate{Repo: repo, Name: nameAndOwner, Tag: tag, OwnerID: nameAndOwner[:j]}, nil
}

// String formats the coordinate as repo/name:tag.
func (c Coordinate) String() string {
	return FullName(c.Repo, c.Name, c.Tag)
}

// Entry builds a catalog entry for the coordinate. ID and Digest are left to the caller.
func (c Coordinate) Entry() *CatalogEntry {
	return &CatalogEntry{
		FullName: c.String(),
		Repo:     c.Repo,
		Name:     c.Name,
		Tag:      c.Tag,
		UserID:   c.OwnerID,
	}
}

// FullName joins the coordinate parts.
func FullName(repo, name, tag string) string {
	return repo + "/" + name + ":" + tag
}

// StripDigestScheme removes a content-addressing prefix such as "sha256:".
func StripDigestScheme(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) == 1 {
		return id
	}
	return parts[1]
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
