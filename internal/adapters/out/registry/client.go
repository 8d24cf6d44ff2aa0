// Package registry talks to an OCI distribution registry through go-containerregistry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/bnema/zerowrap"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// Config describes the registry and how hard to try reaching it.
type Config struct {
	// URL is host[:port], optionally prefixed with http:// or https://.
	URL      string
	Insecure bool
	Username string
	Password string
	// Timeout bounds each HTTP attempt.
	Timeout         time.Duration
	MaxRetries      uint
	RetryMaxElapsed time.Duration
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Client implements out.RegistryClient.
type Client struct {
	host     string
	nameOpts []name.Option
	auth     authn.Authenticator
	cfg      Config
}

var _ out.RegistryClient = (*Client)(nil)

// NewClient validates the registry address. It does not contact the registry.
func NewClient(cfg Config) (*Client, error) {
	host := cfg.URL
	insecure := cfg.Insecure
	switch {
	case strings.HasPrefix(host, "http://"):
		host = strings.TrimPrefix(host, "http://")
		insecure = true
	case strings.HasPrefix(host, "https://"):
		host = strings.TrimPrefix(host, "https://")
	}
	host = strings.TrimSuffix(host, "/")

	var nameOpts []name.Option
	if insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	if _, err := name.NewRegistry(host, nameOpts...); err != nil {
		return nil, fmt.Errorf("invalid registry url %q: %w", cfg.URL, err)
	}

	var auth authn.Authenticator = authn.Anonymous
	if cfg.Username != "" {
		auth = &authn.Basic{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = time.Minute
	}

	return &Client{host: host, nameOpts: nameOpts, auth: auth, cfg: cfg}, nil
}

// Host is the registry address used as the repo segment of image coordinates.
func (c *Client) Host() string {
	return c.host
}

func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	reg, err := name.NewRegistry(c.host, c.nameOpts...)
	if err != nil {
		return nil, err
	}
	return retry(ctx, c, "ListRepositories", func(ctx context.Context) ([]string, error) {
		return remote.Catalog(ctx, reg, c.remoteOptions(ctx)...)
	})
}

func (c *Client) ListTags(ctx context.Context, repository string) ([]string, error) {
	repo, err := name.NewRepository(c.host+"/"+repository, c.nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %q: %w", repository, err)
	}
	return retry(ctx, c, "ListTags", func(ctx context.Context) ([]string, error) {
		return remote.List(repo, c.remoteOptions(ctx)...)
	})
}

// GetDigest resolves the manifest digest of repository:tag with a HEAD request.
func (c *Client) GetDigest(ctx context.Context, repository, tag string) (string, error) {
	ref, err := name.NewTag(c.host+"/"+repository+":"+tag, c.nameOpts...)
	if err != nil {
		return "", fmt.Errorf("invalid tag %s:%s: %w", repository, tag, err)
	}
	return retry(ctx, c, "GetDigest", func(ctx context.Context) (string, error) {
		desc, err := remote.Head(ref, c.remoteOptions(ctx)...)
		if err != nil {
			return "", err
		}
		return desc.Digest.String(), nil
	})
}

// DeleteImage deletes the manifest repository@digest.
func (c *Client) DeleteImage(ctx context.Context, repository, digest string) error {
	ref, err := name.NewDigest(c.host+"/"+repository+"@"+digest, c.nameOpts...)
	if err != nil {
		return fmt.Errorf("invalid digest reference %s@%s: %w", repository, digest, err)
	}
	_, err = retry(ctx, c, "DeleteImage", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, remote.Delete(ref, c.remoteOptions(ctx)...)
	})
	return err
}

func (c *Client) remoteOptions(ctx context.Context) []remote.Option {
	opts := []remote.Option{remote.WithContext(ctx), remote.WithAuth(c.auth)}
	if c.cfg.Transport != nil {
		opts = append(opts, remote.WithTransport(c.cfg.Transport))
	}
	return opts
}

// retry runs call with a per-attempt timeout and exponential backoff. Client
// errors other than throttling stop the loop. The final error wraps domain.ErrNetwork.
func retry[T any](ctx context.Context, c *Client, action string, call func(ctx context.Context) (T, error)) (T, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "registry",
		zerowrap.FieldAction:  action,
	})
	log := zerowrap.FromCtx(ctx)

	op := func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		res, err := call(attemptCtx)
		if err != nil && permanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
		backoff.WithMaxElapsedTime(c.cfg.RetryMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("next", next).Msg("registry call failed, retrying")
		}),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w: %v", action, domain.ErrNetwork, err)
	}
	return res, nil
}

// permanent reports whether retrying err cannot help.
func permanent(err error) bool {
	var terr *transport.Error
	if errors.As(err, &terr) {
		code := terr.StatusCode
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
	}
	var nerr *name.ErrBadName
	return errors.As(err, &nerr)
}
