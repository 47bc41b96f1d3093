package types

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type TypesTestSuite struct {
	suite.Suite
}

func TestTypesTestSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (s *TypesTestSuite) TestPropsRoundTrip() {
	props := Props{
		"region": "europe-west1",
		"nodes":  3,
		"labels": map[string]any{"b": "2", "a": "1"},
	}
	rec, err := props.Encode()
	s.Require().NoError(err)
	s.Equal("europe-west1", rec["region"])
	s.Equal("3", rec["nodes"])
	s.Equal(`{"a":"1","b":"2"}`, rec["labels"])

	back := rec.Decode()
	s.Equal("europe-west1", back["region"])
	s.Equal(float64(3), back["nodes"])
	s.Equal(map[string]any{"a": "1", "b": "2"}, back["labels"])
}

func (s *TypesTestSuite) TestDecodeValueFallsBackToString() {
	s.Equal("not json", DecodeValue("not json"))
	s.Equal(true, DecodeValue("true"))
	s.Nil(Record{}.Decode())
}

func (s *TypesTestSuite) TestEncodeRejectsUnserialisable() {
	_, err := Props{"fn": func() {}}.Encode()
	s.Error(err)
	s.True(errors.Is(err, ErrInvalidArgument))
}

func (s *TypesTestSuite) TestRecordEqual() {
	s.True(Record{}.Equal(nil))
	s.True(Record{"a": "1"}.Equal(Record{"a": "1"}))
	s.False(Record{"a": "1"}.Equal(Record{"a": "2"}))
	s.Equal([]string{"a", "b"}, Record{"b": "", "a": ""}.Keys())
}

func (s *TypesTestSuite) TestErrJoinsSentinelAndCause() {
	cause := errors.New("connection reset")
	err := Upstream(cause, "read %s", "channels/all")
	s.True(errors.Is(err, ErrUpstream))
	s.True(errors.Is(err, cause))
	s.Contains(err.Error(), "read channels/all")

	nf := NotFound("cluster '%s' does not exist", "x")
	s.Same(nf, Upstream(nf, "ignored"))
	s.Nil(Upstream(nil, "ignored"))
}

func (s *TypesTestSuite) TestSortedSet() {
	s.Equal([]string{"a", "b"}, SortedSet([]string{"b", "a", "b"}))
	s.Nil(SortedSet(nil))
	s.Nil(SortedSet([]string{}))
}

func (s *TypesTestSuite) TestServiceAccountEmail() {
	email, ok := ServiceAccount{"client_email": "ci@proj.iam.gserviceaccount.com"}.Email()
	s.True(ok)
	s.Equal("ci@proj.iam.gserviceaccount.com", email)

	_, ok = ServiceAccount{"client_email": 7}.Email()
	s.False(ok)
	_, ok = ServiceAccount{}.Email()
	s.False(ok)
}

func (s *TypesTestSuite) TestLoadConfigFileThenEnv() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "clusterdir.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
registry_backend: redis
secret_backend: vault
vault:
  token: s.file
redis:
  host: redis.internal
  key_prefix: dir
common_cache_ttl_seconds: 5
`), 0o600))

	for _, k := range []string{RegistryBackendEnvKey, SecretBackendEnvKey, VaultAddrEnvKey, RedisHostEnvKey, RedisPortEnvKey, RedisPrefixEnvKey, CommonCacheTTLEnvKey} {
		s.T().Setenv(k, "")
	}
	s.T().Setenv(VaultTokenEnvKey, "s.env")
	s.T().Setenv(RedisDBNumEnvKey, "2")

	cfg, err := LoadConfig(path)
	s.Require().NoError(err)
	s.Equal(BackendRedis, cfg.RegistryBackend)
	s.Equal(BackendVault, cfg.SecretBackendName())
	s.Equal("s.env", cfg.Vault.Token)
	s.Equal(DefaultVaultAddr, cfg.Vault.Address)
	s.Equal("redis.internal", cfg.Redis.Host)
	s.Equal("6379", cfg.Redis.Port)
	s.Equal("dir", cfg.Redis.KeyPrefix)
	s.Equal(2, cfg.Redis.DB)
	s.Equal(5, cfg.CommonCacheTTLSeconds)
}

func (s *TypesTestSuite) TestValidate() {
	cfg := DefaultConfig()
	cfg.RegistryBackend = "etcd"
	err := cfg.Validate()
	s.True(errors.Is(err, ErrInvalidBackend))

	cfg = DefaultConfig()
	s.Error(cfg.Validate(), "vault without credentials")

	cfg.Vault.RoleID = "role"
	cfg.Vault.SecretID = "secret"
	s.NoError(cfg.Validate())

	cfg = DefaultConfig()
	cfg.RegistryBackend = BackendMemory
	s.NoError(cfg.Validate())
	s.Equal(BackendMemory, cfg.SecretBackendName())
}
