// Package pod exposes the four file operations an agent needs against a
// Solid pod: create a container, publish, read and append token data.
//
// Operations never return errors. Every action and its outcome is logged and
// failures leave the pod untouched as far as the client can tell; use package
// podclient when the caller needs to react to failures.
package pod

import (
	"context"

	"go.uber.org/zap"

	"github.com/podfs/podfs-go/internal/tokens"
	"github.com/podfs/podfs-go/pkg/podclient"
)

// Pod is a best-effort client bound to one pod.
type Pod struct {
	client podclient.Interface
	logger *zap.Logger
}

// locator is implemented by clients that can name the URLs they act on.
type locator interface {
	ContainerURL(name string) string
	ResourceURL(container, file string) string
}

// New creates a Pod for baseURL. Options are passed to podclient.NewClient;
// the logger is used for the per-operation log lines.
func New(baseURL string, logger *zap.Logger, opts ...podclient.Option) (*Pod, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := podclient.NewClient(baseURL, append([]podclient.Option{podclient.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	logger.Info("pod client initialized", zap.String("url", c.BaseURL()))
	return NewWithClient(c, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client podclient.Interface, logger *zap.Logger) *Pod {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pod{client: client, logger: logger}
}

// CreateContainer makes sure the named container exists.
func (p *Pod) CreateContainer(ctx context.Context, name string) {
	log := p.logger.With(zap.String("container", name))
	if l, ok := p.client.(locator); ok {
		log = log.With(zap.String("url", l.ContainerURL(name)))
	}
	log.Info("creating container")

	created, err := p.client.CreateContainer(ctx, name)
	switch {
	case err != nil:
		log.Error("failed to create container", zap.Error(err))
	case created:
		log.Info("container created")
	default:
		log.Info("container already exists")
	}
}

// PublishData writes data to container/file, replacing any previous content.
func (p *Pod) PublishData(ctx context.Context, container, file string, data []any) {
	log := p.resourceLogger(container, file)
	log.Info("publishing data")

	if err := p.client.PublishData(ctx, container, file, data); err != nil {
		log.Error("failed to publish data", zap.Error(err))
		return
	}
	log.Info("data published", zap.Int("tokens", len(data)))
}

// ReadData returns the tokens stored in container/file. On failure the
// result is the decoding of an empty payload, a single empty token.
func (p *Pod) ReadData(ctx context.Context, container, file string) []string {
	log := p.resourceLogger(container, file)
	log.Info("reading data")

	data, err := p.client.ReadData(ctx, container, file)
	if err != nil {
		log.Error("failed to read data", zap.Error(err))
		return tokens.Decode("")
	}
	log.Info("data read", zap.Int("tokens", len(data)))
	return data
}

// UpdateData appends data after the tokens already stored in container/file.
// A missing resource is created holding only data, so a following ReadData
// returns exactly the new tokens even though ReadData on the missing resource
// returned [""].
func (p *Pod) UpdateData(ctx context.Context, container, file string, data []any) {
	log := p.resourceLogger(container, file)
	log.Info("updating data")

	if err := p.client.UpdateData(ctx, container, file, data); err != nil {
		log.Error("failed to update data", zap.Error(err))
		return
	}
	log.Info("data updated", zap.Int("tokens", len(data)))
}

func (p *Pod) resourceLogger(container, file string) *zap.Logger {
	log := p.logger.With(zap.String("container", container), zap.String("file", file))
	if l, ok := p.client.(locator); ok {
		log = log.With(zap.String("url", l.ResourceURL(container, file)))
	}
	return log
}
