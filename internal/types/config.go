package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendDDB    = "ddb"
	BackendVault  = "vault"

	RegistryBackendEnvKey = "REGISTRY_BACKEND"
	SecretBackendEnvKey   = "SECRET_BACKEND"

	VaultAddrEnvKey     = "VAULT_ADDR"
	VaultTokenEnvKey    = "VAULT_TOKEN"
	VaultRoleIDEnvKey   = "VAULT_ROLE_ID"
	VaultSecretIDEnvKey = "VAULT_SECRET_ID"
	VaultPrefixEnvKey   = "VAULT_SECRET_PREFIX"
	VaultPKIEnvKey      = "VAULT_PKI_MOUNT"

	RedisHostEnvKey   = "REDIS_HOST"
	RedisPortEnvKey   = "REDIS_PORT"
	RedisUserEnvKey   = "REDIS_USER"
	RedisPassEnvKey   = "REDIS_PASS"
	RedisTLSEnvKey    = "REDIS_SSL"
	RedisDBNumEnvKey  = "REDIS_DB_NUM"
	RedisPrefixEnvKey = "REDIS_KEY_PREFIX"

	DDBEndpointEnvKey = "DDB_ENDPOINT"
	DDBTableEnvKey    = "DDB_TABLE"
	DDBRegionEnvKey   = "AWS_REGION"

	EventsTopicEnvKey = "EVENTS_TOPIC_ARN"
	SNSEndpointEnvKey = "SNS_ENDPOINT"

	AdminAPIKeyEnvKey    = "ADMIN_API_KEY"
	CommonCacheTTLEnvKey = "COMMON_CACHE_TTL"

	DefaultVaultAddr      = "http://localhost:8200"
	DefaultVaultPrefix    = "kv/"
	DefaultVaultPKIMount  = "pki"
	DefaultDDBTable       = "cluster_directory"
	DefaultCommonCacheTTL = 60
)

// Config drives which backends the directory uses and how to reach them.
// RegistryBackend stores clusters and channels. SecretBackend stores secret properties and
// service accounts; when empty the registry backend is used for both.
type Config struct {
	RegistryBackend string       `yaml:"registry_backend"`
	SecretBackend   string       `yaml:"secret_backend"`
	Vault           VaultConfig  `yaml:"vault"`
	Redis           RedisConfig  `yaml:"redis"`
	DDB             DDBConfig    `yaml:"ddb"`
	Events          EventsConfig `yaml:"events"`
	AdminAPIKey     string       `yaml:"admin_api_key"`
	// CommonCacheTTLSeconds is how long common provider config is cached in-process. 0 disables caching.
	CommonCacheTTLSeconds int `yaml:"common_cache_ttl_seconds"`
}

// VaultConfig authenticates either with a static Token or with an AppRole (RoleID, SecretID) pair.
type VaultConfig struct {
	Address  string `yaml:"address"`
	Token    string `yaml:"token"`
	RoleID   string `yaml:"role_id"`
	SecretID string `yaml:"secret_id"`
	Prefix   string `yaml:"prefix"` // KV v2 mount, e.g. "kv/"
	PKIMount string `yaml:"pki_mount"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	TLS       bool   `yaml:"tls"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type DDBConfig struct {
	Endpoint string `yaml:"endpoint"` // local testing only
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
}

type EventsConfig struct {
	TopicARN    string `yaml:"topic_arn"`
	SNSEndpoint string `yaml:"sns_endpoint"`
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		RegistryBackend: BackendVault,
		Vault: VaultConfig{
			Address:  DefaultVaultAddr,
			Prefix:   DefaultVaultPrefix,
			PKIMount: DefaultVaultPKIMount,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		DDB: DDBConfig{
			Table:  DefaultDDBTable,
			Region: "us-east-1",
		},
		CommonCacheTTLSeconds: DefaultCommonCacheTTL,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig, then overlays environment
// variables. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields with any non-empty environment variable.
func (c *Config) ApplyEnv() error {
	setString(&c.RegistryBackend, RegistryBackendEnvKey)
	setString(&c.SecretBackend, SecretBackendEnvKey)

	setString(&c.Vault.Address, VaultAddrEnvKey)
	setString(&c.Vault.Token, VaultTokenEnvKey)
	setString(&c.Vault.RoleID, VaultRoleIDEnvKey)
	setString(&c.Vault.SecretID, VaultSecretIDEnvKey)
	setString(&c.Vault.Prefix, VaultPrefixEnvKey)
	setString(&c.Vault.PKIMount, VaultPKIEnvKey)

	setString(&c.Redis.Host, RedisHostEnvKey)
	setString(&c.Redis.Port, RedisPortEnvKey)
	setString(&c.Redis.User, RedisUserEnvKey)
	setString(&c.Redis.Pass, RedisPassEnvKey)
	setString(&c.Redis.KeyPrefix, RedisPrefixEnvKey)
	if v := os.Getenv(RedisTLSEnvKey); v != "" {
		c.Redis.TLS = parseBoolean(v)
	}
	if v := os.Getenv(RedisDBNumEnvKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid Redis DB number: %w", err)
		}
		c.Redis.DB = n
	}

	setString(&c.DDB.Endpoint, DDBEndpointEnvKey)
	setString(&c.DDB.Table, DDBTableEnvKey)
	setString(&c.DDB.Region, DDBRegionEnvKey)

	setString(&c.Events.TopicARN, EventsTopicEnvKey)
	setString(&c.Events.SNSEndpoint, SNSEndpointEnvKey)

	setString(&c.AdminAPIKey, AdminAPIKeyEnvKey)
	if v := os.Getenv(CommonCacheTTLEnvKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", CommonCacheTTLEnvKey, err)
		}
		c.CommonCacheTTLSeconds = n
	}
	return nil
}

func (c Config) Validate() error {
	if !validBackend(c.RegistryBackend) {
		return Err(ErrInvalidBackend, nil, "unknown registry backend %q", c.RegistryBackend)
	}
	if c.SecretBackend != "" && !validBackend(c.SecretBackend) {
		return Err(ErrInvalidBackend, nil, "unknown secret backend %q", c.SecretBackend)
	}
	if c.usesBackend(BackendVault) {
		if c.Vault.Address == "" {
			return fmt.Errorf("vault.address is required")
		}
		if c.Vault.Token == "" && (c.Vault.RoleID == "" || c.Vault.SecretID == "") {
			return fmt.Errorf("vault requires either a token or both role_id and secret_id")
		}
	}
	if c.usesBackend(BackendDDB) && c.DDB.Table == "" {
		return fmt.Errorf("ddb.table is required")
	}
	if c.CommonCacheTTLSeconds < 0 {
		return fmt.Errorf("common_cache_ttl_seconds must be non-negative. 0 disables the cache")
	}
	return nil
}

// SecretBackendName returns the effective secret backend.
func (c Config) SecretBackendName() string {
	if c.SecretBackend == "" {
		return c.RegistryBackend
	}
	return c.SecretBackend
}

func (c Config) usesBackend(name string) bool {
	return c.RegistryBackend == name || c.SecretBackendName() == name
}

func validBackend(name string) bool {
	switch name {
	case BackendMemory, BackendRedis, BackendDDB, BackendVault:
		return true
	}
	return false
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseBoolean(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
