package out

import "context"

// RegistryClient defines the contract the catalog needs from the remote image registry.
// Repository names are relative to the registry host, e.g. "alice/foo".
type RegistryClient interface {
	// ListRepositories returns every repository name in the registry catalog.
	ListRepositories(ctx context.Context) ([]string, error)
	// ListTags returns the tags of one repository.
	ListTags(ctx context.Context, name string) ([]string, error)
	// GetDigest resolves the manifest digest of name:tag.
	GetDigest(ctx context.Context, name, tag string) (string, error)
	// DeleteImage deletes the manifest addressed by name@digest.
	DeleteImage(ctx context.Context, name, digest string) error
	// Host returns the registry host[:port] used to build coordinates.
	Host() string
}
