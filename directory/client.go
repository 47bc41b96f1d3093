// Package directory is the client for the cluster directory: clusters, channels, service
// account credentials and a few secret-store passthroughs, kept in Vault, Redis, DynamoDB or
// memory.
package directory

import (
	"clusterdir/internal/backends"
	"clusterdir/internal/metrics"
	"clusterdir/internal/ports"
	"clusterdir/internal/pub"
	"clusterdir/internal/registry"
	"clusterdir/internal/snapshot"
	"clusterdir/internal/types"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type (
	Cluster        = types.Cluster
	Props          = types.Props
	ServiceAccount = types.ServiceAccount
	Certificate    = types.Certificate
	Config         = types.Config
	ClusterUpdate  = registry.Update
	ImportSummary  = snapshot.Summary
)

var (
	ErrNotFound        = types.ErrNotFound
	ErrInvalidArgument = types.ErrInvalidArgument
	ErrUpstream        = types.ErrUpstream
	ErrClosed          = types.ErrClosed
	ErrUnsupported     = types.ErrUnsupported
)

// Options wires a client from already opened stores.
type Options struct {
	// Registry stores clusters and channels. Required.
	Registry ports.KV
	// Secrets stores secret props, service accounts and common config. Defaults to Registry.
	Secrets ports.KV
	// Issuer issues certificates; IssueCertificate fails with ErrUnsupported when nil.
	Issuer ports.CertificateIssuer
	// Publisher and EventsTopic enable change events.
	Publisher   ports.Publisher
	EventsTopic string
	// CommonCacheTTL caches common config reads. Zero disables the cache.
	CommonCacheTTL time.Duration
	// Close is called once by Client.Close.
	Close func() error
}

// Client exposes every directory operation. It is safe for concurrent use. After Close every
// method fails with ErrClosed without touching storage.
type Client struct {
	closed atomic.Bool
	close  func() error

	channels   *registry.Channels
	membership *registry.Membership
	clusters   *registry.Clusters
	accounts   *registry.ServiceAccounts
	common     *registry.Common
	issuer     ports.CertificateIssuer
}

// New builds a client over the given stores.
func New(opts Options) (*Client, error) {
	if opts.Registry == nil {
		return nil, types.InvalidArgument("a registry store is required")
	}
	secretsKV := opts.Secrets
	if secretsKV == nil {
		secretsKV = opts.Registry
	}
	var events *pub.Notifier
	if opts.Publisher != nil && opts.EventsTopic != "" {
		events = pub.NewNotifier(opts.Publisher, opts.EventsTopic)
	}
	secrets := registry.NewSecretFacade(secretsKV)
	channels := registry.NewChannels(opts.Registry, events)
	return &Client{
		close:      opts.Close,
		channels:   channels,
		membership: registry.NewMembership(opts.Registry, channels, events),
		clusters:   registry.NewClusters(opts.Registry, secrets, channels, events),
		accounts:   registry.NewServiceAccounts(secretsKV),
		common:     registry.NewCommon(secrets, opts.CommonCacheTTL),
		issuer:     opts.Issuer,
	}, nil
}

// Open connects to the backends described by cfg, authenticating against Vault when used,
// and returns a ready client.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	b, err := backends.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := backends.PublisherFromConfig(ctx, cfg.Events)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return New(Options{
		Registry:       b.Registry,
		Secrets:        b.Secrets,
		Issuer:         b.Issuer,
		Publisher:      publisher,
		EventsTopic:    cfg.Events.TopicARN,
		CommonCacheTTL: time.Duration(cfg.CommonCacheTTLSeconds) * time.Second,
		Close:          b.Close,
	})
}

// Close releases the backends. It is safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	log.Debug("directory client closed")
	if c.close != nil {
		return c.close()
	}
	return nil
}

func (c *Client) CreateChannel(ctx context.Context, name string) (err error) {
	defer observe("create_channel", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.channels.Create(ctx, name)
}

func (c *Client) DeleteChannel(ctx context.Context, name string) (err error) {
	defer observe("delete_channel", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.channels.Delete(ctx, name)
}

func (c *Client) ListChannels(ctx context.Context) (names []string, err error) {
	defer observe("list_channels", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.channels.List(ctx)
}

// RegisterCluster stores a new cluster and joins it to channels, which must all exist.
func (c *Client) RegisterCluster(ctx context.Context, slug, environment string, props, secretProps Props, channels []string) (err error) {
	defer observe("register_cluster", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.clusters.Register(ctx, slug, environment, props, secretProps, channels)
}

func (c *Client) UpdateCluster(ctx context.Context, slug string, u ClusterUpdate) (err error) {
	defer observe("update_cluster", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.clusters.Update(ctx, slug, u)
}

func (c *Client) UnregisterCluster(ctx context.Context, slug string) (err error) {
	defer observe("unregister_cluster", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.clusters.Unregister(ctx, slug)
}

func (c *Client) ListClusters(ctx context.Context) (slugs []string, err error) {
	defer observe("list_clusters", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.clusters.List(ctx)
}

func (c *Client) GetCluster(ctx context.Context, slug string) (cl Cluster, err error) {
	defer observe("get_cluster", time.Now(), &err)
	if err = c.ready(); err != nil {
		return Cluster{}, err
	}
	return c.clusters.Get(ctx, slug)
}

// AllClusters returns every cluster, secret props included.
func (c *Client) AllClusters(ctx context.Context) (all []Cluster, err error) {
	defer observe("all_clusters", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.clusters.All(ctx)
}

// FindClusters returns the slugs of clusters matching a JMESPath expression.
func (c *Client) FindClusters(ctx context.Context, expr string) (slugs []string, err error) {
	defer observe("find_clusters", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.clusters.Find(ctx, expr)
}

func (c *Client) AddClusterToChannel(ctx context.Context, slug, channel string) (err error) {
	defer observe("add_cluster_to_channel", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.membership.Add(ctx, slug, channel)
}

func (c *Client) RemoveClusterFromChannel(ctx context.Context, slug, channel string) (err error) {
	defer observe("remove_cluster_from_channel", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.membership.Remove(ctx, slug, channel)
}

func (c *Client) ListClustersByChannel(ctx context.Context, channel string) (slugs []string, err error) {
	defer observe("list_clusters_by_channel", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.clusters.ListByChannel(ctx, channel)
}

func (c *Client) AddServiceAccount(ctx context.Context, doc ServiceAccount) (err error) {
	defer observe("add_service_account", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.accounts.Add(ctx, doc)
}

func (c *Client) GetServiceAccount(ctx context.Context, email string) (doc ServiceAccount, err error) {
	defer observe("get_service_account", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.accounts.Get(ctx, email)
}

func (c *Client) RemoveServiceAccount(ctx context.Context, email string) (err error) {
	defer observe("remove_service_account", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return c.accounts.Remove(ctx, email)
}

func (c *Client) ListServiceAccounts(ctx context.Context) (emails []string, err error) {
	defer observe("list_service_accounts", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.accounts.List(ctx)
}

// GetCommon returns the shared config of a provider; "GKE" when provider is empty.
func (c *Client) GetCommon(ctx context.Context, provider string) (props Props, err error) {
	defer observe("get_common", time.Now(), &err)
	if err = c.ready(); err != nil {
		return nil, err
	}
	return c.common.Get(ctx, provider)
}

// IssueCertificate issues a certificate for domain from a PKI role. A zero ttl means five
// minutes.
func (c *Client) IssueCertificate(ctx context.Context, role, domain string, ttl time.Duration) (cert Certificate, err error) {
	defer observe("issue_certificate", time.Now(), &err)
	if err = c.ready(); err != nil {
		return Certificate{}, err
	}
	if c.issuer == nil {
		return Certificate{}, types.Err(types.ErrUnsupported, nil, "no certificate issuer configured")
	}
	if ttl <= 0 {
		ttl = types.DefaultCertificateTTL
	}
	return c.issuer.IssueCertificate(ctx, role, domain, ttl)
}

// Export writes a compressed snapshot of the whole directory, secrets included.
func (c *Client) Export(ctx context.Context, w io.Writer) (err error) {
	defer observe("export", time.Now(), &err)
	if err = c.ready(); err != nil {
		return err
	}
	return snapshot.Export(ctx, w, c)
}

// Import applies a snapshot written by Export.
func (c *Client) Import(ctx context.Context, r io.Reader) (sum ImportSummary, err error) {
	defer observe("import", time.Now(), &err)
	if err = c.ready(); err != nil {
		return ImportSummary{}, err
	}
	return snapshot.Import(ctx, r, c)
}

func (c *Client) ready() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func observe(operation string, start time.Time, err *error) {
	metrics.Observe(operation, start, *err, ErrorKind)
}

// ErrorKind classifies an error for metrics and HTTP status mapping.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	}
	return "other"
}
