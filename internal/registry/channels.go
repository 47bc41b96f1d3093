package registry

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/pub"
	"clusterdir/internal/types"
	"context"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Channels owns the channel set (channels/all) and each channel's member record
// (channels/<name>). Every operation is an idempotent no-op when there is nothing to change.
//
// mu orders every read-modify-write cycle of the registry in this process. Membership and
// Clusters share it through the Channels they are built on, since their writes touch the same
// member lists.
type Channels struct {
	kv     ports.KV
	events *pub.Notifier
	mu     sync.Mutex
}

func NewChannels(kv ports.KV, events *pub.Notifier) *Channels {
	return &Channels{kv: kv, events: events}
}

// Create adds name to the channel set with an empty member list. The reserved name and
// existing channels are ignored. The member record is written before the channel is listed.
func (c *Channels) Create(ctx context.Context, name string) error {
	if name == types.AllChannels {
		return nil
	}
	if err := validateName("channel", name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(list, name) {
		return nil
	}
	list = append(list, name)

	err = apply(ctx, c.kv,
		[]ports.Op{ports.WriteOp(channelPath(name), nameListRecord(nil))},
		[]ports.Op{ports.WriteOp(channelListPath(), nameListRecord(list))},
	)
	if err != nil {
		return err
	}
	log.WithField("channel", name).Info("channel created")
	c.events.Notify(ctx, types.EventChannelCreated, "", name, "")
	return nil
}

// Delete removes name from the channel set and drops its member record. Clusters still
// referencing the channel are not touched.
func (c *Channels) Delete(ctx context.Context, name string) error {
	if name == types.AllChannels {
		return nil
	}
	if err := validateName("channel", name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	var listOps []ports.Op
	if i := slices.Index(list, name); i >= 0 {
		list = slices.Delete(list, i, i+1)
		listOps = append(listOps, ports.WriteOp(channelListPath(), nameListRecord(list)))
	}
	err = apply(ctx, c.kv,
		listOps,
		[]ports.Op{ports.DeleteOp(channelPath(name))},
	)
	if err != nil {
		return err
	}
	if listOps != nil {
		log.WithField("channel", name).Info("channel deleted")
		c.events.Notify(ctx, types.EventChannelDeleted, "", name, "")
	}
	return nil
}

// List returns every channel name, sorted and unique.
func (c *Channels) List(ctx context.Context) ([]string, error) {
	names, _, err := readNameList(ctx, c.kv, channelListPath())
	if err != nil {
		return nil, err
	}
	if names == nil {
		return []string{}, nil
	}
	return names, nil
}

// Exists fails with types.ErrNotFound naming the first channel that does not exist.
func (c *Channels) Exists(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !slices.Contains(list, name) {
			return types.NotFound("channel '%s' must exist", name)
		}
	}
	return nil
}

// Members returns the sorted member slugs of a channel, empty when the channel has no record.
func (c *Channels) Members(ctx context.Context, name string) ([]string, error) {
	if name == types.AllChannels {
		return []string{}, nil
	}
	if err := validateName("channel", name); err != nil {
		return nil, err
	}
	members, _, err := readNameList(ctx, c.kv, channelPath(name))
	if err != nil {
		return nil, err
	}
	if members == nil {
		return []string{}, nil
	}
	return members, nil
}
