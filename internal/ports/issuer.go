package ports

import (
	"clusterdir/internal/types"
	"context"
	"time"
)

// CertificateIssuer issues short-lived certificates from a PKI role.
type CertificateIssuer interface {
	IssueCertificate(ctx context.Context, role, commonName string, ttl time.Duration) (types.Certificate, error)
}
