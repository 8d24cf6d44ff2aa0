// Package docker implements the daemon client adapter using the Docker engine API.
package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bnema/zerowrap"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// Config tunes the runtime.
type Config struct {
	// Host overrides DOCKER_HOST when set.
	Host string
	// Timeout bounds every daemon call, including whole pushes and pulls.
	Timeout time.Duration
	// Registry credentials sent with push and pull. Empty means anonymous.
	Username string
	Password string
}

// Runtime implements out.DaemonClient using Docker API.
type Runtime struct {
	client  *client.Client
	timeout time.Duration
	auth    string
}

var _ out.DaemonClient = (*Runtime)(nil)

// NewRuntime creates a new Docker runtime instance.
func NewRuntime(cfg Config) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return NewRuntimeWithClient(cli, cfg)
}

// NewRuntimeWithClient creates a new Docker runtime instance with a custom client (for testing).
func NewRuntimeWithClient(cli *client.Client, cfg Config) (*Runtime, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	var auth string
	if cfg.Username != "" {
		data, err := json.Marshal(registry.AuthConfig{Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry credentials: %w", err)
		}
		auth = base64.StdEncoding.EncodeToString(data)
	}

	return &Runtime{client: cli, timeout: timeout, auth: auth}, nil
}

// Close releases the client's connections.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// begin scopes ctx to one daemon call and bounds it by the configured timeout.
func (r *Runtime) begin(ctx context.Context, action string, fields map[string]any) (context.Context, context.CancelFunc, zerowrap.Logger) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  action,
	})
	if len(fields) > 0 {
		ctx = zerowrap.CtxWithFields(ctx, fields)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return ctx, cancel, zerowrap.FromCtx(ctx)
}

func daemonErr(action string, err error) error {
	return fmt.Errorf("%s: %w: %v", action, domain.ErrNetwork, err)
}

// TagImage adds targetRef as a tag of sourceRef.
func (r *Runtime) TagImage(ctx context.Context, sourceRef, targetRef string) error {
	ctx, cancel, log := r.begin(ctx, "TagImage", map[string]any{"source": sourceRef, "target": targetRef})
	defer cancel()

	if err := r.client.ImageTag(ctx, sourceRef, targetRef); err != nil {
		return daemonErr("failed to tag image", err)
	}

	log.Debug().Msg("image tagged")
	return nil
}

// PushImage pushes imageRef and waits for the daemon to finish.
func (r *Runtime) PushImage(ctx context.Context, imageRef string) error {
	ctx, cancel, log := r.begin(ctx, "PushImage", map[string]any{"image": imageRef})
	defer cancel()

	log.Info().Msg("pushing image")

	// The daemon requires an auth header on push even for anonymous registries.
	auth := r.auth
	if auth == "" {
		auth = base64.StdEncoding.EncodeToString([]byte("{}"))
	}
	reader, err := r.client.ImagePush(ctx, imageRef, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return daemonErr("failed to push image", err)
	}
	defer reader.Close()

	if err := drain(reader); err != nil {
		return daemonErr("push stream reported an error", err)
	}

	log.Info().Msg("image pushed")
	return nil
}

// PullImage pulls imageRef and waits for the daemon to finish.
func (r *Runtime) PullImage(ctx context.Context, imageRef string) error {
	ctx, cancel, log := r.begin(ctx, "PullImage", map[string]any{"image": imageRef})
	defer cancel()

	log.Info().Msg("pulling image")

	reader, err := r.client.ImagePull(ctx, imageRef, image.PullOptions{RegistryAuth: r.auth})
	if err != nil {
		return daemonErr("failed to pull image", err)
	}
	defer reader.Close()

	if err := drain(reader); err != nil {
		return daemonErr("pull stream reported an error", err)
	}

	log.Info().Msg("image pulled")
	return nil
}

// RemoveImage removes one reference. A reference the daemon does not know is not an error.
func (r *Runtime) RemoveImage(ctx context.Context, imageRef string) error {
	ctx, cancel, log := r.begin(ctx, "RemoveImage", map[string]any{"image": imageRef})
	defer cancel()

	_, err := r.client.ImageRemove(ctx, imageRef, image.RemoveOptions{})
	if cerrdefs.IsNotFound(err) {
		log.Debug().Msg("image already absent")
		return nil
	}
	if err != nil {
		return daemonErr("failed to remove image", err)
	}

	log.Debug().Msg("image removed")
	return nil
}

// ListImages returns the images matching reference.
func (r *Runtime) ListImages(ctx context.Context, reference string) ([]out.ImageFacts, error) {
	ctx, cancel, _ := r.begin(ctx, "ListImages", map[string]any{"reference": reference})
	defer cancel()

	summaries, err := r.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", reference)),
	})
	if err != nil {
		return nil, daemonErr("failed to list images", err)
	}

	facts := make([]out.ImageFacts, 0, len(summaries))
	for _, s := range summaries {
		// API 1.44 and later report the same value for size and virtual size.
		f := out.ImageFacts{
			ID:          s.ID,
			Size:        s.Size,
			VirtualSize: s.Size,
			Labels:      s.Labels,
			ParentID:    s.ParentID,
		}
		if s.Created > 0 {
			f.Created = time.Unix(s.Created, 0).UTC()
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// InspectImage returns the id and default command of imageRef.
func (r *Runtime) InspectImage(ctx context.Context, imageRef string) (*out.ImageDetail, error) {
	ctx, cancel, _ := r.begin(ctx, "InspectImage", map[string]any{"image": imageRef})
	defer cancel()

	resp, err := r.client.ImageInspect(ctx, imageRef)
	if err != nil {
		return nil, daemonErr("failed to inspect image", err)
	}

	detail := &out.ImageDetail{ID: resp.ID}
	if resp.Config != nil {
		detail.Cmd = append([]string(nil), resp.Config.Cmd...)
	}
	return detail, nil
}

// Ping checks if Docker is responsive.
func (r *Runtime) Ping(ctx context.Context) error {
	ctx, cancel, _ := r.begin(ctx, "Ping", nil)
	defer cancel()

	if _, err := r.client.Ping(ctx); err != nil {
		return daemonErr("docker daemon not responding", err)
	}
	return nil
}

// drain reads a push or pull progress stream to the end. Failures the daemon
// reports inside the stream surface as errors.
func drain(reader io.Reader) error {
	return jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil)
}
