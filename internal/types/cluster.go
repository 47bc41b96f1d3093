package types

import (
	"slices"
	"time"
)

const (
	// AllChannels is the reserved channel name. It keys the list of channels and can never be
	// created or deleted as a channel.
	AllChannels = "all"

	DefaultEnvironment = "production"
	DefaultProvider    = "GKE"

	DefaultCertificateTTL = 5 * time.Minute

	ServiceAccountEmailField = "client_email"
)

// Cluster is the merged view of a registered cluster.
// Channels is nil when the cluster belongs to no channel.
// SecretProps is nil when no secret properties are stored.
type Cluster struct {
	Slug        string   `json:"slug" yaml:"slug"`
	Environment string   `json:"environment" yaml:"environment"`
	Channels    []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	Props       Props    `json:"props,omitempty" yaml:"props,omitempty"`
	SecretProps Props    `json:"secretProps,omitempty" yaml:"secretProps,omitempty"`
}

// View returns the non-secret part of the cluster as a plain JSON-like map, suitable for
// expression evaluation.
func (c Cluster) View() map[string]any {
	channels := make([]any, 0, len(c.Channels))
	for _, ch := range c.Channels {
		channels = append(channels, ch)
	}
	props := make(map[string]any, len(c.Props))
	for k, v := range c.Props {
		props[k] = v
	}
	return map[string]any{
		"slug":        c.Slug,
		"environment": c.Environment,
		"channels":    channels,
		"props":       props,
	}
}

// ServiceAccount is an opaque credential document keyed by its client_email field.
type ServiceAccount map[string]any

// Email returns the client_email field and whether it is a non-empty string.
func (sa ServiceAccount) Email() (string, bool) {
	v, ok := sa[ServiceAccountEmailField]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Certificate is the result of a PKI issue call.
type Certificate struct {
	Certificate    string    `json:"certificate"`
	IssuingCA      string    `json:"issuing_ca"`
	CAChain        []string  `json:"ca_chain,omitempty"`
	PrivateKey     string    `json:"private_key"`
	PrivateKeyType string    `json:"private_key_type"`
	SerialNumber   string    `json:"serial_number"`
	Expiration     time.Time `json:"expiration"`
}

// SortedSet returns the sorted, de-duplicated copy of names. Empty input yields nil.
func SortedSet(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
