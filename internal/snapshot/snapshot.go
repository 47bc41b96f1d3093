package snapshot

import (
	"clusterdir/internal/types"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

// Source is what Export reads from.
type Source interface {
	ListChannels(ctx context.Context) ([]string, error)
	AllClusters(ctx context.Context) ([]types.Cluster, error)
	ListServiceAccounts(ctx context.Context) ([]string, error)
	GetServiceAccount(ctx context.Context, email string) (types.ServiceAccount, error)
}

// Sink is what Import writes to.
type Sink interface {
	CreateChannel(ctx context.Context, name string) error
	RegisterCluster(ctx context.Context, slug, environment string, props, secretProps types.Props, channels []string) error
	AddServiceAccount(ctx context.Context, doc types.ServiceAccount) error
}

// Summary counts what Import applied.
type Summary struct {
	Channels        int `json:"channels"`
	Clusters        int `json:"clusters"`
	ServiceAccounts int `json:"service_accounts"`
}

var timeNow = time.Now

// Take reads the whole directory from src.
func Take(ctx context.Context, src Source) (types.Snapshot, error) {
	channels, err := src.ListChannels(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}
	clusters, err := src.AllClusters(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}
	emails, err := src.ListServiceAccounts(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}
	accounts := make([]types.ServiceAccount, 0, len(emails))
	for _, email := range emails {
		doc, err := src.GetServiceAccount(ctx, email)
		if err != nil {
			return types.Snapshot{}, err
		}
		accounts = append(accounts, doc)
	}
	return types.Snapshot{
		Version:         types.SnapshotVersion,
		CreatedAt:       timeNow().UTC(),
		Channels:        channels,
		Clusters:        clusters,
		ServiceAccounts: accounts,
	}, nil
}

// Export writes a zstd-compressed JSON snapshot of src to w. The snapshot contains secrets.
func Export(ctx context.Context, w io.Writer, src Source) error {
	snap, err := Take(ctx, src)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	log.WithFields(log.Fields{
		"channels":         len(snap.Channels),
		"clusters":         len(snap.Clusters),
		"service_accounts": len(snap.ServiceAccounts),
	}).Info("snapshot exported")
	return nil
}

// Read decodes a snapshot written by Export.
func Read(r io.Reader) (types.Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return types.Snapshot{}, err
	}
	defer dec.Close()
	var snap types.Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return types.Snapshot{}, types.Err(types.ErrInvalidArgument, err, "decode snapshot")
	}
	if snap.Version != types.SnapshotVersion {
		return types.Snapshot{}, types.InvalidArgument("unsupported snapshot version %d", snap.Version)
	}
	return snap, nil
}

// Import applies a snapshot read from r to dst. Channels come first so that cluster
// registrations can reference them; clusters already present are overwritten.
func Import(ctx context.Context, r io.Reader, dst Sink) (Summary, error) {
	snap, err := Read(r)
	if err != nil {
		return Summary{}, err
	}
	return Apply(ctx, snap, dst)
}

// Apply writes snap to dst. A cluster still naming a channel that is not in the snapshot's
// channel set, left behind by a channel delete, is registered without it.
func Apply(ctx context.Context, snap types.Snapshot, dst Sink) (Summary, error) {
	var sum Summary
	for _, ch := range snap.Channels {
		if err := dst.CreateChannel(ctx, ch); err != nil {
			return sum, fmt.Errorf("channel %s: %w", ch, err)
		}
		sum.Channels++
	}
	for _, cl := range snap.Clusters {
		channels := knownChannels(cl, snap.Channels)
		if err := dst.RegisterCluster(ctx, cl.Slug, cl.Environment, cl.Props, cl.SecretProps, channels); err != nil {
			return sum, fmt.Errorf("cluster %s: %w", cl.Slug, err)
		}
		sum.Clusters++
	}
	for _, sa := range snap.ServiceAccounts {
		if err := dst.AddServiceAccount(ctx, sa); err != nil {
			email, _ := sa.Email()
			return sum, fmt.Errorf("service account %s: %w", email, err)
		}
		sum.ServiceAccounts++
	}
	log.WithFields(log.Fields{
		"channels":         sum.Channels,
		"clusters":         sum.Clusters,
		"service_accounts": sum.ServiceAccounts,
	}).Info("snapshot imported")
	return sum, nil
}

func knownChannels(cl types.Cluster, known []string) []string {
	var out []string
	for _, ch := range cl.Channels {
		if slices.Contains(known, ch) {
			out = append(out, ch)
			continue
		}
		log.WithFields(log.Fields{"slug": cl.Slug, "channel": ch}).Warn("dropping deleted channel from cluster")
	}
	return out
}
