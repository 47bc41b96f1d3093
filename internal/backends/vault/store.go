package vault

import (
	"clusterdir/internal/types"
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// Store maps records onto KV v2 secrets below a mount prefix. Every path is an independent
// document with no cross-path transaction, so the store does not implement
// ports.Transactional.
type Store struct {
	cli    *vault.Client
	prefix string
}

// NewStore wraps an authenticated client. prefix is the KV v2 mount, e.g. "kv/".
func NewStore(cli *vault.Client, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = strings.Trim(types.DefaultVaultPrefix, "/")
	}
	return &Store{cli: cli, prefix: prefix + "/"}
}

func (s *Store) Read(ctx context.Context, path string) (types.Record, error) {
	secret, err := s.cli.Logical().ReadWithContext(ctx, s.dataPath(path))
	if err != nil {
		if isNotFound(err) {
			return nil, types.NotFound("%s", path)
		}
		return nil, types.Upstream(err, "vault read %s", path)
	}
	if secret == nil || secret.Data == nil {
		return nil, types.NotFound("%s", path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// A deleted version reads back with null data and its metadata.
		return nil, types.NotFound("%s", path)
	}
	rec := make(types.Record, len(data))
	for k, v := range data {
		enc, err := types.EncodeValue(v)
		if err != nil {
			return nil, types.Upstream(err, "vault decode %s field %s", path, k)
		}
		rec[k] = enc
	}
	return rec, nil
}

func (s *Store) Write(ctx context.Context, path string, rec types.Record) error {
	data := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		data[k] = v
	}
	_, err := s.cli.Logical().WriteWithContext(ctx, s.dataPath(path), map[string]interface{}{
		"data": data,
	})
	return types.Upstream(err, "vault write %s", path)
}

// Delete removes every version and the metadata of the secret, so that it also disappears
// from List.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.cli.Logical().DeleteWithContext(ctx, s.metadataPath(path))
	if err != nil && isNotFound(err) {
		return nil
	}
	return types.Upstream(err, "vault delete %s", path)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	secret, err := s.cli.Logical().ListWithContext(ctx, s.metadataPath(prefix))
	if err != nil {
		if isNotFound(err) {
			return []string{}, nil
		}
		return nil, types.Upstream(err, "vault list %s", prefix)
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}
	raw, _ := secret.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Store) dataPath(path string) string {
	return s.prefix + "data/" + strings.Trim(path, "/")
}

func (s *Store) metadataPath(path string) string {
	return s.prefix + "metadata/" + strings.Trim(path, "/")
}

func isNotFound(err error) bool {
	var re *vault.ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}
