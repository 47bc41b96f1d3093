package backends

import (
	"clusterdir/internal/backends/ddb"
	"clusterdir/internal/backends/memory"
	"clusterdir/internal/ports"
	"clusterdir/internal/pub"
	"clusterdir/internal/types"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	redisbackend "clusterdir/internal/backends/redis"
	vaultbackend "clusterdir/internal/backends/vault"
)

const AmazonRootCA1PEM = `-----BEGIN CERTIFICATE-----
MIIDQTCCAimgAwIBAgITBmyfz5m/jAo54vB4ikPmljZbyjANBgkqhkiG9w0BAQsF
ADA5MQswCQYDVQQGEwJVUzEPMA0GA1UEChMGQW1hem9uMRkwFwYDVQQDExBBbWF6
b24gUm9vdCBDQSAxMB4XDTE1MDUyNjAwMDAwMFoXDTM4MDExNzAwMDAwMFowOTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoTBkFtYXpvbjEZMBcGA1UEAxMQQW1hem9uIFJv
b3QgQ0EgMTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEBALJ4gHHKeNXj
ca9HgFB0fW7Y14h29Jlo91ghYPl0hAEvrAIthtOgQ3pOsqTQNroBvo3bSMgHFzZM
9O6II8c+6zf1tRn4SWiw3te5djgdYZ6k/oI2peVKVuRF4fn9tBb6dNqcmzU5L/qw
IFAGbHrQgLKm+a/sRxmPUDgH3KKHOVj4utWp+UhnMJbulHheb4mjUcAwhmahRWa6
VOujw5H5SNz/0egwLX0tdHA114gk957EWW67c4cX8jJGKLhD+rcdqsq08p8kDi1L
93FcXmn/6pUCyziKrlA4b9v7LWIbxcceVOF34GfID5yHI9Y/QCB/IIDEgEw+OyQm
jgSubJrIqg0CAwEAAaNCMEAwDwYDVR0TAQH/BAUwAwEB/zAOBgNVHQ8BAf8EBAMC
AYYwHQYDVR0OBBYEFIQYzIU07LwMlJQuCFmcx7IQTgoIMA0GCSqGSIb3DQEBCwUA
A4IBAQCY8jdaQZChGsV2USggNiMOruYou6r4lK5IpDB/G/wkjUu0yKGX9rbxenDI
U5PMCCjjmCXPI6T53iHTfIUJrU6adTrCC2qJeHZERxhlbI1Bjjt/msv0tadQ1wUs
N+gDS63pYaACbvXy8MWy7Vu33PqUXHeeE6V/Uq2V8viTO96LXFvKWlJbYK8U90vv
o/ufQJVtMVT8QtPHRh8jrdkPSHCa2XV4cdFyQzR1bldZwgJcJmApzyMZFo6IQ6XU
5MsI+yMRQ+hDKXJioaldXgjUkK642M4UwtBV8ob2xJNDd2ZhwLnoQdeXeGADbkpy
rqXRfboQnoZsG4q5WTP468SQvvG5
-----END CERTIFICATE-----`

// Backends holds the opened stores. Registry keeps clusters and channels; Secrets keeps secret
// properties and service accounts and may be the very same store. Issuer is nil unless Vault is
// configured.
type Backends struct {
	Registry ports.KV
	Secrets  ports.KV
	Issuer   ports.CertificateIssuer

	closers []ports.Closer
}

// Open builds every backend named by cfg. A backend used for both roles is opened once.
// Vault authentication completes before Open returns.
func Open(ctx context.Context, cfg types.Config) (*Backends, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backends{}
	opened := make(map[string]ports.KV)
	var vaultClient *vaultapi.Client

	open := func(name string) (ports.KV, error) {
		if kv, ok := opened[name]; ok {
			return kv, nil
		}
		var kv ports.KV
		switch name {
		case types.BackendMemory:
			kv = memory.NewStore()
		case types.BackendRedis:
			cli, err := redisClientFromConfig(ctx, cfg.Redis)
			if err != nil {
				return nil, err
			}
			store := redisbackend.NewStore(cli, cfg.Redis.KeyPrefix)
			b.closers = append(b.closers, store)
			kv = store
		case types.BackendDDB:
			cli, err := ddbClientFromConfig(ctx, cfg.DDB)
			if err != nil {
				return nil, err
			}
			store, err := ddb.NewStore(ctx, cfg.DDB.Table, cli)
			if err != nil {
				return nil, err
			}
			kv = store
		case types.BackendVault:
			if vaultClient == nil {
				cli, err := vaultbackend.Login(ctx, cfg.Vault)
				if err != nil {
					return nil, err
				}
				vaultClient = cli
			}
			kv = vaultbackend.NewStore(vaultClient, cfg.Vault.Prefix)
		default:
			return nil, types.Err(types.ErrInvalidBackend, nil, "unknown backend %q", name)
		}
		log.WithField("backend", name).Debug("opened backend")
		opened[name] = kv
		return kv, nil
	}

	var err error
	if b.Registry, err = open(cfg.RegistryBackend); err != nil {
		_ = b.Close()
		return nil, err
	}
	if b.Secrets, err = open(cfg.SecretBackendName()); err != nil {
		_ = b.Close()
		return nil, err
	}
	if vaultClient != nil {
		b.Issuer = vaultbackend.NewIssuer(vaultClient, cfg.Vault.PKIMount)
	}
	return b, nil
}

// Close releases connections held by the backends.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// PublisherFromConfig returns an SNS publisher for change events, or nil when no topic is
// configured.
func PublisherFromConfig(ctx context.Context, cfg types.EventsConfig) (ports.Publisher, error) {
	if cfg.TopicARN == "" {
		return nil, nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.SNSEndpoint != "" {
			// This is used for testing only locally
			o.BaseEndpoint = aws.String(cfg.SNSEndpoint)
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	})
	return pub.NewSNS(snsClient), nil
}

// ddbClientFromConfig creates a DynamoDB client, pointing at a local endpoint when one is set.
func ddbClientFromConfig(ctx context.Context, cfg types.DDBConfig) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			// This is used for testing only locally
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider("x", "x", "")
		}
	})
	return ddbClient, nil
}

// redisClientFromConfig creates a Redis client and checks connectivity.
func redisClientFromConfig(ctx context.Context, cfg types.RedisConfig) (*redis.Client, error) {
	var tlsConfig *tls.Config
	if cfg.TLS {
		// System roots plus the Amazon root CA used by ElastiCache
		caCerts, err := x509.SystemCertPool()
		if err != nil || caCerts == nil {
			caCerts = x509.NewCertPool()
		}
		if !caCerts.AppendCertsFromPEM([]byte(AmazonRootCA1PEM)) {
			return nil, fmt.Errorf("failed to retrieve CA certificate")
		}
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    caCerts,
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:      fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Username:  cfg.User,
		Password:  cfg.Pass,
		DB:        cfg.DB,
		TLSConfig: tlsConfig,
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		_ = redisClient.Close()
		return nil, types.Upstream(err, "failed to ping Redis at %s:%s", cfg.Host, cfg.Port)
	}
	return redisClient, nil
}
