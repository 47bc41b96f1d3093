package types

import "time"

type EventType string

const (
	EventClusterRegistered   EventType = "cluster.registered"
	EventClusterUpdated      EventType = "cluster.updated"
	EventClusterUnregistered EventType = "cluster.unregistered"
	EventChannelJoined       EventType = "channel.joined"
	EventChannelLeft         EventType = "channel.left"
	EventChannelCreated      EventType = "channel.created"
	EventChannelDeleted      EventType = "channel.deleted"
)

// Event is published after a successful registry mutation.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Slug        string    `json:"slug,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Environment string    `json:"environment,omitempty"`
	At          time.Time `json:"at"`
}

// Snapshot is the portable dump of a directory, used to migrate between backends.
type Snapshot struct {
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	Channels        []string         `json:"channels"`
	Clusters        []Cluster        `json:"clusters"`
	ServiceAccounts []ServiceAccount `json:"service_accounts,omitempty"`
}

const SnapshotVersion = 1
