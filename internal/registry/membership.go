package registry

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/pub"
	"clusterdir/internal/types"
	"context"
	"slices"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Membership keeps the two sides of a cluster/channel relation in agreement: the channels
// field of the cluster record and the member record of the channel.
//
// Both sides are read, changed only where needed, and written together. On a transactional
// backend the writes form one transaction; otherwise they are issued concurrently and a failure
// of one side leaves the other one applied until the operation is repeated. Repeating is always
// safe since every mutation is a set insert or removal. Concurrent calls within one process are
// serialized so that racing adds both land.
type Membership struct {
	kv       ports.KV
	channels *Channels
	events   *pub.Notifier
}

func NewMembership(kv ports.KV, channels *Channels, events *pub.Notifier) *Membership {
	return &Membership{kv: kv, channels: channels, events: events}
}

// Add makes slug a member of channel. Both must exist.
func (m *Membership) Add(ctx context.Context, slug, channel string) error {
	changed, env, err := m.update(ctx, slug, channel, addName)
	if err != nil {
		return err
	}
	if changed {
		log.WithFields(log.Fields{"slug": slug, "channel": channel}).Info("cluster joined channel")
		m.events.Notify(ctx, types.EventChannelJoined, slug, channel, env)
	}
	return nil
}

// Remove drops slug from channel. Both must exist. A cluster left without channels has its
// channels field cleared.
func (m *Membership) Remove(ctx context.Context, slug, channel string) error {
	changed, env, err := m.update(ctx, slug, channel, removeName)
	if err != nil {
		return err
	}
	if changed {
		log.WithFields(log.Fields{"slug": slug, "channel": channel}).Info("cluster left channel")
		m.events.Notify(ctx, types.EventChannelLeft, slug, channel, env)
	}
	return nil
}

// update checks both preconditions concurrently, applies mutate to both sides and persists the
// sides that changed.
func (m *Membership) update(ctx context.Context, slug, channel string, mutate func([]string, string) ([]string, bool)) (changed bool, env string, err error) {
	if err := validateName("slug", slug); err != nil {
		return false, "", err
	}
	if err := validateName("channel", channel); err != nil {
		return false, "", err
	}
	if channel == types.AllChannels {
		return false, "", types.InvalidArgument("channel '%s' is reserved", channel)
	}

	m.channels.mu.Lock()
	defer m.channels.mu.Unlock()

	var (
		cluster clusterRecord
		members []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cluster, err = loadCluster(gctx, m.kv, slug)
		return err
	})
	g.Go(func() error {
		if err := m.channels.Exists(gctx, channel); err != nil {
			return err
		}
		var err error
		members, _, err = readNameList(gctx, m.kv, channelPath(channel))
		return err
	})
	if err := g.Wait(); err != nil {
		return false, "", err
	}

	ops, err := membershipOps(&cluster, channel, members, mutate)
	if err != nil {
		return false, "", err
	}
	if len(ops) == 0 {
		return false, cluster.environment, nil
	}
	if err := apply(ctx, m.kv, ops); err != nil {
		return false, "", err
	}
	return true, cluster.environment, nil
}

// membershipOps mutates the cluster's channel list and the channel's member list and returns a
// write for each side that changed.
func membershipOps(cluster *clusterRecord, channel string, members []string, mutate func([]string, string) ([]string, bool)) ([]ports.Op, error) {
	var ops []ports.Op
	if next, changed := mutate(cluster.channels, channel); changed {
		cluster.channels = next
		op, err := cluster.writeOp()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if next, changed := mutate(members, cluster.slug); changed {
		ops = append(ops, ports.WriteOp(channelPath(channel), nameListRecord(next)))
	}
	return ops, nil
}

// addName returns the sorted set with name added, and whether it was absent.
func addName(set []string, name string) ([]string, bool) {
	if slices.Contains(set, name) {
		return set, false
	}
	return types.SortedSet(append(slices.Clone(set), name)), true
}

// removeName returns the set without name, and whether it was present. An emptied set is nil.
func removeName(set []string, name string) ([]string, bool) {
	i := slices.Index(set, name)
	if i < 0 {
		return set, false
	}
	return types.SortedSet(slices.Delete(slices.Clone(set), i, i+1)), true
}
