package registry

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"strings"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// ServiceAccounts stores credential documents under credentials/google/<client_email>.
type ServiceAccounts struct {
	kv      ports.KV
	secrets *SecretFacade
}

func NewServiceAccounts(kv ports.KV) *ServiceAccounts {
	return &ServiceAccounts{kv: kv, secrets: NewSecretFacade(kv)}
}

// Add stores doc keyed by its client_email. The write is skipped when an identical document
// is already stored.
func (s *ServiceAccounts) Add(ctx context.Context, doc types.ServiceAccount) error {
	email, ok := doc.Email()
	if !ok {
		return types.InvalidArgument("service account key must have a `%s` property", types.ServiceAccountEmailField)
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	written, err := s.secrets.Replace(ctx, serviceAccountPath(email), types.Props{valueField: map[string]any(doc)})
	if err != nil {
		return err
	}
	if written {
		log.WithField("email", email).Info("service account stored")
	}
	return nil
}

// Get returns the document stored for email.
func (s *ServiceAccounts) Get(ctx context.Context, email string) (types.ServiceAccount, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	rec, err := s.kv.Read(ctx, serviceAccountPath(email))
	if err != nil {
		return nil, err
	}
	var doc types.ServiceAccount
	if err := json.Unmarshal([]byte(rec[valueField]), &doc); err != nil {
		return nil, types.Upstream(err, "corrupt service account %s", email)
	}
	return doc, nil
}

func (s *ServiceAccounts) Remove(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	return s.secrets.Delete(ctx, serviceAccountPath(email))
}

// List returns the stored emails, sorted.
func (s *ServiceAccounts) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.List(ctx, serviceAccountsDir)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, "/") {
			emails = append(emails, k)
		}
	}
	return emails, nil
}

func validateEmail(email string) error {
	if email == "" || strings.Contains(email, "/") {
		return types.InvalidArgument("invalid service account email %q", email)
	}
	return nil
}
