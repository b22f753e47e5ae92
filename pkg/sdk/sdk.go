// Package sdk assembles the formsync components from a Config: the local
// key-value provider, the REST client, blob storage, the pending queue,
// the draft synchronizer, the submission service and the background agent.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/agent"
	"github.com/marmos91/formsync/pkg/apiclient"
	"github.com/marmos91/formsync/pkg/auth"
	"github.com/marmos91/formsync/pkg/config"
	"github.com/marmos91/formsync/pkg/drafts"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/metrics"
	"github.com/marmos91/formsync/pkg/metrics/prometheus"
	"github.com/marmos91/formsync/pkg/objectstore"
	"github.com/marmos91/formsync/pkg/pendingqueue"
	"github.com/marmos91/formsync/pkg/submission"
)

// Option customizes Open.
type Option func(*options)

type options struct {
	session *auth.Session
	probe   environment.Probe
	factory objectstore.ClientFactory
}

// WithSession sets the identity requests are made with. Without it the
// client is logged out.
func WithSession(s *auth.Session) Option {
	return func(o *options) { o.session = s }
}

// WithProbe replaces the HTTP connectivity probe built from the config.
func WithProbe(p environment.Probe) Option {
	return func(o *options) { o.probe = p }
}

// WithClientFactory replaces the S3 client factory built from the config.
func WithClientFactory(f objectstore.ClientFactory) Option {
	return func(o *options) { o.factory = f }
}

// Client is a fully wired formsync instance.
type Client struct {
	Config     *config.Config
	Session    *auth.Session
	Probe      environment.Probe
	API        *apiclient.Client
	Queue      *pendingqueue.Queue
	Drafts     *drafts.Synchronizer
	Submission *submission.Service

	provider kvstore.Provider
	stores   []*kvstore.Store
}

// Open builds a Client from cfg. The caller must Close it.
func Open(cfg *config.Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.session == nil {
		o.session = auth.NewSession("")
	}
	if o.probe == nil {
		o.probe = cfg.Probe()
	}
	if o.factory == nil {
		o.factory = objectstore.NewS3ClientFactory(cfg.S3ClientConfig())
	}

	if cfg.Metrics.Enabled && !metrics.IsEnabled() {
		metrics.InitRegistry()
	}

	provider, err := config.OpenStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	c := &Client{
		Config:   cfg,
		Session:  o.session,
		Probe:    o.probe,
		provider: provider,
	}

	queueStore, err := c.store(pendingqueue.Namespace)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	draftStore, err := c.store(drafts.Namespace)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	submissionStore, err := c.store(submission.Namespace)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.API = apiclient.New(cfg.API.BaseURL).
		WithSession(o.session).
		WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout})

	uploadMetrics := prometheus.NewUploadMetrics()
	uploader := objectstore.NewUploader(o.factory, o.probe,
		objectstore.WithPartSize(cfg.Upload.PartSize.Int()),
		objectstore.WithUploadMetrics(uploadMetrics))
	downloader := objectstore.NewDownloader(o.factory, uploadMetrics)

	c.Queue = pendingqueue.New(queueStore,
		pendingqueue.WithProbe(o.probe),
		pendingqueue.WithSession(o.session),
		pendingqueue.WithMetrics(prometheus.NewQueueMetrics()))

	c.Drafts = drafts.New(draftStore, drafts.NewRemote(c.API, uploader, downloader),
		drafts.WithProbe(o.probe),
		drafts.WithMetrics(prometheus.NewSyncMetrics()))

	c.Submission = submission.New(submission.Dependencies{
		API:      c.API,
		Uploader: uploader,
		Queue:    c.Queue,
		Drafts:   c.Drafts,
		Probe:    o.probe,
		Identity: o.session,
		Store:    submissionStore,
	})
	c.Queue.SetSubmitter(c.Submission)

	logger.Debug("formsync client opened",
		logger.KeyBackend, provider.Name(),
		"base_url", cfg.API.BaseURL)
	return c, nil
}

func (c *Client) store(namespace string) (*kvstore.Store, error) {
	backend, err := c.provider.Backend(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open namespace %s: %w", namespace, err)
	}
	s := kvstore.New(backend,
		kvstore.WithName(namespace),
		kvstore.WithThreshold(c.Config.Storage.ChunkThreshold))
	c.stores = append(c.stores, s)
	return s, nil
}

// NewAgent returns the background agent for this client.
func (c *Client) NewAgent() *agent.Agent {
	return agent.New(c.Queue, c.Drafts, c.Probe, agent.Config{
		Interval:      c.Config.Sync.Interval,
		ProbeInterval: c.Config.Sync.ProbeInterval,
		FormsAppIDs:   c.Config.Sync.FormsAppIDs,
		Server:        c.Config.Agent,
	})
}

// Wait blocks until background draft syncs started by saves finish.
func (c *Client) Wait() {
	if c.Drafts != nil {
		c.Drafts.Wait()
	}
}

// Close waits for background work and releases the storage.
func (c *Client) Close() error {
	c.Wait()
	var errs []error
	for _, s := range c.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Drain processes the pending queue once.
func (c *Client) Drain(ctx context.Context) (pendingqueue.DrainReport, error) {
	return c.Queue.Process(ctx)
}
