package vault

import (
	"clusterdir/internal/types"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Issuer issues certificates from a PKI secrets engine mount.
type Issuer struct {
	cli   *vault.Client
	mount string
}

func NewIssuer(cli *vault.Client, mount string) *Issuer {
	mount = strings.Trim(mount, "/")
	if mount == "" {
		mount = types.DefaultVaultPKIMount
	}
	return &Issuer{cli: cli, mount: mount}
}

func (i *Issuer) IssueCertificate(ctx context.Context, role, commonName string, ttl time.Duration) (types.Certificate, error) {
	if role == "" || commonName == "" {
		return types.Certificate{}, types.InvalidArgument("role and common name are required")
	}
	if ttl <= 0 {
		ttl = types.DefaultCertificateTTL
	}
	secret, err := i.cli.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/issue/%s", i.mount, role), map[string]interface{}{
		"common_name": commonName,
		"ttl":         ttl.String(),
	})
	if err != nil {
		return types.Certificate{}, types.Upstream(err, "vault issue certificate for role %s", role)
	}
	if secret == nil || secret.Data == nil {
		return types.Certificate{}, types.Err(types.ErrUpstream, nil, "vault issued no certificate for role %s", role)
	}
	d := secret.Data
	cert := types.Certificate{
		Certificate:    str(d["certificate"]),
		IssuingCA:      str(d["issuing_ca"]),
		PrivateKey:     str(d["private_key"]),
		PrivateKeyType: str(d["private_key_type"]),
		SerialNumber:   str(d["serial_number"]),
	}
	if chain, ok := d["ca_chain"].([]interface{}); ok {
		for _, c := range chain {
			cert.CAChain = append(cert.CAChain, str(c))
		}
	}
	if exp, err := strconv.ParseInt(str(d["expiration"]), 10, 64); err == nil {
		cert.Expiration = time.Unix(exp, 0).UTC()
	}
	return cert, nil
}

func str(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
