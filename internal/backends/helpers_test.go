package backends

import (
	"clusterdir/internal/backends/memory"
	redisbackend "clusterdir/internal/backends/redis"
	vaultbackend "clusterdir/internal/backends/vault"
	"clusterdir/internal/types"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"
)

type BackendsTestSuite struct {
	suite.Suite
}

func TestBackendsTestSuite(t *testing.T) {
	suite.Run(t, new(BackendsTestSuite))
}

func (s *BackendsTestSuite) TestMemoryServesBothRoles() {
	cfg := types.DefaultConfig()
	cfg.RegistryBackend = types.BackendMemory

	b, err := Open(context.Background(), cfg)
	s.Require().NoError(err)
	defer func() { s.NoError(b.Close()) }()

	s.IsType(&memory.Store{}, b.Registry)
	s.Same(b.Registry, b.Secrets)
	s.Nil(b.Issuer)
}

func (s *BackendsTestSuite) TestRedisRegistryWithVaultSecrets() {
	mr := miniredis.RunT(s.T())
	cfg := types.DefaultConfig()
	cfg.RegistryBackend = types.BackendRedis
	cfg.SecretBackend = types.BackendVault
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mr.Port()
	cfg.Vault.Token = "s.static"

	b, err := Open(context.Background(), cfg)
	s.Require().NoError(err)
	s.IsType(&redisbackend.Store{}, b.Registry)
	s.IsType(&vaultbackend.Store{}, b.Secrets)
	s.IsType(&vaultbackend.Issuer{}, b.Issuer)

	s.NoError(b.Close())
	// closing twice is harmless
	s.NoError(b.Close())
}

func (s *BackendsTestSuite) TestUnreachableRedis() {
	mr := miniredis.RunT(s.T())
	host, port := mr.Host(), mr.Port()
	mr.Close()

	cfg := types.DefaultConfig()
	cfg.RegistryBackend = types.BackendRedis
	cfg.Redis.Host = host
	cfg.Redis.Port = port

	_, err := Open(context.Background(), cfg)
	s.True(errors.Is(err, types.ErrUpstream), "got %v", err)
}

func (s *BackendsTestSuite) TestInvalidBackend() {
	cfg := types.DefaultConfig()
	cfg.RegistryBackend = "etcd"
	_, err := Open(context.Background(), cfg)
	s.True(errors.Is(err, types.ErrInvalidBackend))
}

func (s *BackendsTestSuite) TestNoPublisherWithoutTopic() {
	p, err := PublisherFromConfig(context.Background(), types.EventsConfig{})
	s.NoError(err)
	s.Nil(p)
}
