package registry

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/pub"
	"clusterdir/internal/query"
	"clusterdir/internal/types"
	"context"
	"errors"
	"slices"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads bounds the fan-out of whole-directory reads.
const maxConcurrentLoads = 8

// Clusters owns the cluster lifecycle. Non-secret records and the slug index live in the
// registry KV; secret properties live behind the secret facade, which may be another backend.
type Clusters struct {
	kv       ports.KV
	secrets  *SecretFacade
	channels *Channels
	events   *pub.Notifier
}

func NewClusters(kv ports.KV, secrets *SecretFacade, channels *Channels, events *pub.Notifier) *Clusters {
	return &Clusters{kv: kv, secrets: secrets, channels: channels, events: events}
}

// Update describes a change to a registered cluster.
type Update struct {
	// Environment moves the cluster when it differs from the current one. Empty keeps it.
	Environment string
	// Props replaces the stored props when non-nil.
	Props types.Props
	// SecretProps replaces the stored secret props. Empty deletes them.
	SecretProps types.Props
}

// Register stores a cluster and joins it to channels. Every channel must exist; nothing is
// written otherwise. An empty environment means types.DefaultEnvironment.
// Registering a slug again overwrites it and reconciles its channel membership.
func (c *Clusters) Register(ctx context.Context, slug, environment string, props, secretProps types.Props, channels []string) error {
	if err := validateName("slug", slug); err != nil {
		return err
	}
	if environment == "" {
		environment = types.DefaultEnvironment
	}
	if err := validateEnvironment(environment); err != nil {
		return err
	}
	channels = types.SortedSet(channels)
	for _, ch := range channels {
		if ch == types.AllChannels {
			return types.InvalidArgument("channel '%s' is reserved", ch)
		}
	}

	c.channels.mu.Lock()
	defer c.channels.mu.Unlock()

	var idx clusterIndex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.channels.Exists(gctx, channels...) })
	g.Go(func() error {
		var err error
		idx, err = readClusterIndex(gctx, c.kv)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	var previous *clusterRecord
	if _, ok := idx[slug]; ok {
		prev, err := loadIndexedCluster(ctx, c.kv, idx, slug)
		switch {
		case err == nil:
			previous = &prev
		case !errors.Is(err, types.ErrNotFound):
			return err
		}
	}

	next := clusterRecord{slug: slug, environment: environment, props: props, channels: channels}
	var left []string
	if previous != nil {
		for _, ch := range previous.channels {
			if !slices.Contains(channels, ch) {
				left = append(left, ch)
			}
		}
	}
	members, err := c.readMembers(ctx, append(slices.Clone(channels), left...))
	if err != nil {
		return err
	}

	var recordOps, indexOps, channelOps, cleanupOps []ports.Op
	if previous == nil || !recordsMatch(*previous, next) {
		op, err := next.writeOp()
		if err != nil {
			return err
		}
		recordOps = append(recordOps, op)
	}
	if idx[slug] != next.path() {
		updated := idx.clone()
		updated[slug] = next.path()
		indexOps = append(indexOps, updated.writeOp())
	}
	var joined []string
	for _, ch := range channels {
		if set, changed := addName(members[ch], slug); changed {
			channelOps = append(channelOps, ports.WriteOp(channelPath(ch), nameListRecord(set)))
			joined = append(joined, ch)
		}
	}
	for _, ch := range left {
		if set, changed := removeName(members[ch], slug); changed {
			channelOps = append(channelOps, ports.WriteOp(channelPath(ch), nameListRecord(set)))
		}
	}
	if previous != nil && previous.path() != next.path() {
		cleanupOps = append(cleanupOps, ports.DeleteOp(previous.path()))
	}

	if err := apply(ctx, c.kv, recordOps, indexOps, channelOps, cleanupOps); err != nil {
		return err
	}

	var prevEnv string
	if previous != nil {
		prevEnv = previous.environment
	}
	if err := c.storeSecrets(ctx, slug, prevEnv, environment, secretProps, previous != nil); err != nil {
		return err
	}

	log.WithFields(log.Fields{"slug": slug, "environment": environment, "channels": channels}).Info("cluster registered")
	c.events.Notify(ctx, types.EventClusterRegistered, slug, "", environment)
	for _, ch := range joined {
		c.events.Notify(ctx, types.EventChannelJoined, slug, ch, environment)
	}
	return nil
}

// Update changes a registered cluster. Channel membership is left alone.
func (c *Clusters) Update(ctx context.Context, slug string, u Update) error {
	if err := validateName("slug", slug); err != nil {
		return err
	}
	c.channels.mu.Lock()
	defer c.channels.mu.Unlock()

	idx, err := readClusterIndex(ctx, c.kv)
	if err != nil {
		return err
	}
	current, err := loadIndexedCluster(ctx, c.kv, idx, slug)
	if err != nil {
		return err
	}
	env := u.Environment
	if env == "" {
		env = current.environment
	}
	if err := validateEnvironment(env); err != nil {
		return err
	}

	next := current
	next.environment = env
	if u.Props != nil {
		next.props = u.Props
	}
	moved := next.path() != current.path()

	var recordOps, indexOps, cleanupOps []ports.Op
	if moved || !recordsMatch(current, next) {
		op, err := next.writeOp()
		if err != nil {
			return err
		}
		recordOps = append(recordOps, op)
	}
	if moved {
		updated := idx.clone()
		updated[slug] = next.path()
		indexOps = append(indexOps, updated.writeOp())
		cleanupOps = append(cleanupOps, ports.DeleteOp(current.path()))
	}
	if err := apply(ctx, c.kv, recordOps, indexOps, cleanupOps); err != nil {
		return err
	}
	if err := c.storeSecrets(ctx, slug, current.environment, env, u.SecretProps, true); err != nil {
		return err
	}

	log.WithFields(log.Fields{"slug": slug, "environment": env, "moved": moved}).Info("cluster updated")
	c.events.Notify(ctx, types.EventClusterUpdated, slug, "", env)
	return nil
}

// Unregister removes the cluster from all of its channels, the index, and deletes its record
// and secret properties.
func (c *Clusters) Unregister(ctx context.Context, slug string) error {
	if err := validateName("slug", slug); err != nil {
		return err
	}
	c.channels.mu.Lock()
	defer c.channels.mu.Unlock()

	idx, err := readClusterIndex(ctx, c.kv)
	if err != nil {
		return err
	}
	cluster, err := loadIndexedCluster(ctx, c.kv, idx, slug)
	if err != nil {
		return err
	}
	members, err := c.readMembers(ctx, cluster.channels)
	if err != nil {
		return err
	}
	var channelOps []ports.Op
	for _, ch := range cluster.channels {
		if set, changed := removeName(members[ch], slug); changed {
			channelOps = append(channelOps, ports.WriteOp(channelPath(ch), nameListRecord(set)))
		}
	}
	updated := idx.clone()
	delete(updated, slug)

	err = apply(ctx, c.kv,
		channelOps,
		[]ports.Op{updated.writeOp()},
		[]ports.Op{ports.DeleteOp(cluster.path())},
	)
	if err != nil {
		return err
	}
	if err := c.secrets.Delete(ctx, secretPath(cluster.environment, slug)); err != nil {
		return err
	}

	log.WithFields(log.Fields{"slug": slug, "channels": cluster.channels}).Info("cluster unregistered")
	c.events.Notify(ctx, types.EventClusterUnregistered, slug, "", cluster.environment)
	return nil
}

// List returns every registered slug, sorted.
func (c *Clusters) List(ctx context.Context) ([]string, error) {
	idx, err := readClusterIndex(ctx, c.kv)
	if err != nil {
		return nil, err
	}
	return idx.slugs(), nil
}

// Get returns the merged view of a cluster, secret props included.
func (c *Clusters) Get(ctx context.Context, slug string) (types.Cluster, error) {
	if err := validateName("slug", slug); err != nil {
		return types.Cluster{}, err
	}
	idx, err := readClusterIndex(ctx, c.kv)
	if err != nil {
		return types.Cluster{}, err
	}
	return c.get(ctx, idx, slug, true)
}

// ListByChannel returns the sorted members of channel; empty when the channel has no record.
func (c *Clusters) ListByChannel(ctx context.Context, channel string) ([]string, error) {
	return c.channels.Members(ctx, channel)
}

// Find returns the sorted slugs whose non-secret view matches a JMESPath expression evaluating
// to true, e.g. "environment == 'production' && contains(channels, 'beta')".
func (c *Clusters) Find(ctx context.Context, expr string) ([]string, error) {
	q, err := query.Compile(expr)
	if err != nil {
		return nil, err
	}
	all, err := c.all(ctx, false)
	if err != nil {
		return nil, err
	}
	matched := make([]string, 0)
	for _, cl := range all {
		if q.Match(cl.View()) {
			matched = append(matched, cl.Slug)
		}
	}
	return matched, nil
}

// All returns every cluster with its secret props, sorted by slug.
func (c *Clusters) All(ctx context.Context) ([]types.Cluster, error) {
	return c.all(ctx, true)
}

func (c *Clusters) all(ctx context.Context, withSecrets bool) ([]types.Cluster, error) {
	idx, err := readClusterIndex(ctx, c.kv)
	if err != nil {
		return nil, err
	}
	slugs := idx.slugs()
	out := make([]types.Cluster, len(slugs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, slug := range slugs {
		g.Go(func() error {
			cl, err := c.get(gctx, idx, slug, withSecrets)
			out[i] = cl
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Clusters) get(ctx context.Context, idx clusterIndex, slug string, withSecrets bool) (types.Cluster, error) {
	_, env, err := idx.locate(slug)
	if err != nil {
		return types.Cluster{}, err
	}
	var (
		record  clusterRecord
		secrets types.Props
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = loadIndexedCluster(gctx, c.kv, idx, slug)
		return err
	})
	if withSecrets {
		g.Go(func() error {
			var err error
			secrets, err = c.secrets.Read(gctx, secretPath(env, slug))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return types.Cluster{}, err
	}
	cl := record.cluster()
	cl.SecretProps = secrets
	return cl, nil
}

// storeSecrets writes secret props for (env, slug), or deletes them when props is empty and a
// previous registration may have left some. Secrets under a previous environment are removed.
func (c *Clusters) storeSecrets(ctx context.Context, slug, prevEnv, env string, props types.Props, existed bool) error {
	if existed && prevEnv != "" && prevEnv != env {
		if err := c.secrets.Delete(ctx, secretPath(prevEnv, slug)); err != nil {
			return err
		}
	}
	if len(props) > 0 {
		_, err := c.secrets.Replace(ctx, secretPath(env, slug), props)
		return err
	}
	if existed {
		return c.secrets.Delete(ctx, secretPath(env, slug))
	}
	return nil
}

// readMembers reads the member lists of the given channels concurrently.
func (c *Clusters) readMembers(ctx context.Context, channels []string) (map[string][]string, error) {
	lists := make([][]string, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		g.Go(func() error {
			var err error
			lists[i], _, err = readNameList(gctx, c.kv, channelPath(ch))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(channels))
	for i, ch := range channels {
		out[ch] = lists[i]
	}
	return out, nil
}

// recordsMatch reports whether two records would be stored identically.
func recordsMatch(a, b clusterRecord) bool {
	ra, errA := a.encode()
	rb, errB := b.encode()
	if errA != nil || errB != nil {
		return false
	}
	return a.path() == b.path() && ra.Equal(rb)
}
