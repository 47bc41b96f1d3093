package registry

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

const (
	fieldEnvironment = "environment"
	fieldProps       = "props"
	fieldChannels    = "channels"
)

// clusterRecord is the non-secret part of a cluster as stored at clusters/<env>/<slug>.
type clusterRecord struct {
	slug        string
	environment string
	props       types.Props
	channels    []string
}

func (r clusterRecord) path() string { return clusterPath(r.environment, r.slug) }

// encode renders the record. The channels field is left out entirely when the cluster belongs
// to no channel.
func (r clusterRecord) encode() (types.Record, error) {
	rec := types.Record{fieldEnvironment: r.environment}
	if len(r.props) > 0 {
		s, err := types.MarshalCanonical(r.props)
		if err != nil {
			return nil, types.Err(types.ErrInvalidArgument, err, "props of cluster '%s' are not serialisable", r.slug)
		}
		rec[fieldProps] = s
	}
	if len(r.channels) > 0 {
		s, err := types.MarshalCanonical(r.channels)
		if err != nil {
			return nil, err
		}
		rec[fieldChannels] = s
	}
	return rec, nil
}

func (r clusterRecord) writeOp() (ports.Op, error) {
	rec, err := r.encode()
	if err != nil {
		return ports.Op{}, err
	}
	return ports.WriteOp(r.path(), rec), nil
}

// decodeClusterRecord parses a stored record. Fields other than environment, props and channels
// are folded into props, which keeps records written with a flat layout readable.
func decodeClusterRecord(slug, env string, rec types.Record) clusterRecord {
	out := clusterRecord{slug: slug, environment: env}
	if e := rec[fieldEnvironment]; e != "" {
		out.environment = e
	}
	if s, ok := rec[fieldProps]; ok {
		var props types.Props
		if err := json.Unmarshal([]byte(s), &props); err == nil {
			out.props = props
		}
	}
	if s, ok := rec[fieldChannels]; ok {
		out.channels = decodeNameList(s)
	}
	for k, v := range rec {
		switch k {
		case fieldEnvironment, fieldProps, fieldChannels:
			continue
		}
		if out.props == nil {
			out.props = types.Props{}
		}
		if _, taken := out.props[k]; !taken {
			out.props[k] = types.DecodeValue(v)
		}
	}
	return out
}

func (r clusterRecord) cluster() types.Cluster {
	return types.Cluster{
		Slug:        r.slug,
		Environment: r.environment,
		Channels:    types.SortedSet(r.channels),
		Props:       r.props,
	}
}

// decodeNameList accepts a JSON array of strings or a comma separated list.
func decodeNameList(s string) []string {
	switch v := types.DecodeValue(s).(type) {
	case []any:
		names := make([]string, 0, len(v))
		for _, n := range v {
			if str, ok := n.(string); ok && str != "" {
				names = append(names, str)
			}
		}
		return types.SortedSet(names)
	case string:
		if v == "" {
			return nil
		}
		return types.SortedSet(strings.Split(v, ","))
	}
	return nil
}

// nameListRecord stores a sorted name set under the value field. An empty set is stored as [].
func nameListRecord(names []string) types.Record {
	names = types.SortedSet(names)
	if names == nil {
		names = []string{}
	}
	s, _ := types.MarshalCanonical(names)
	return types.Record{valueField: s}
}

// readNameList reads a name set stored with nameListRecord. found is false when no record exists.
func readNameList(ctx context.Context, kv ports.KV, path string) (names []string, found bool, err error) {
	rec, err := kv.Read(ctx, path)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return decodeNameList(rec[valueField]), true, nil
}

// clusterIndex maps every registered slug to the path of its record.
type clusterIndex map[string]string

func readClusterIndex(ctx context.Context, kv ports.KV) (clusterIndex, error) {
	rec, err := kv.Read(ctx, clusterIndexPath())
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return clusterIndex{}, nil
		}
		return nil, err
	}
	idx := clusterIndex{}
	if s := rec[valueField]; s != "" {
		if err := json.Unmarshal([]byte(s), &idx); err != nil {
			return nil, types.Upstream(err, "corrupt cluster index")
		}
	}
	return idx, nil
}

func (idx clusterIndex) slugs() []string {
	return slices.Sorted(maps.Keys(idx))
}

func (idx clusterIndex) writeOp() ports.Op {
	s, _ := types.MarshalCanonical(map[string]string(idx))
	return ports.WriteOp(clusterIndexPath(), types.Record{valueField: s})
}

func (idx clusterIndex) clone() clusterIndex {
	return maps.Clone(idx)
}

// locate returns the record path and environment of slug.
func (idx clusterIndex) locate(slug string) (path, env string, err error) {
	path, ok := idx[slug]
	if !ok {
		return "", "", types.NotFound("cluster '%s' does not exist", slug)
	}
	env, ok = environmentFromPath(path)
	if !ok {
		return "", "", types.Upstream(errors.New("malformed index entry"), "cluster '%s' indexed at %q", slug, path)
	}
	return path, env, nil
}

// loadCluster resolves slug through the index and reads its record.
func loadCluster(ctx context.Context, kv ports.KV, slug string) (clusterRecord, error) {
	idx, err := readClusterIndex(ctx, kv)
	if err != nil {
		return clusterRecord{}, err
	}
	return loadIndexedCluster(ctx, kv, idx, slug)
}

func loadIndexedCluster(ctx context.Context, kv ports.KV, idx clusterIndex, slug string) (clusterRecord, error) {
	path, env, err := idx.locate(slug)
	if err != nil {
		return clusterRecord{}, err
	}
	rec, err := kv.Read(ctx, path)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return clusterRecord{}, types.NotFound("cluster '%s' does not exist", slug)
		}
		return clusterRecord{}, err
	}
	return decodeClusterRecord(slug, env, rec), nil
}
