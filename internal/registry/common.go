package registry

import (
	"clusterdir/internal/types"
	"context"
	"maps"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Common reads provider-wide configuration from clusters/common/<provider>. Results are cached
// in-process for ttl; a zero ttl disables the cache.
type Common struct {
	secrets *SecretFacade
	cache   *gocache.Cache
	ttl     time.Duration
}

func NewCommon(secrets *SecretFacade, ttl time.Duration) *Common {
	c := &Common{secrets: secrets, ttl: ttl}
	if ttl > 0 {
		c.cache = gocache.New(ttl, time.Minute)
	}
	return c
}

// Get returns the config of provider, types.DefaultProvider when empty.
func (c *Common) Get(ctx context.Context, provider string) (types.Props, error) {
	if provider == "" {
		provider = types.DefaultProvider
	}
	if err := validateName("provider", provider); err != nil {
		return nil, err
	}
	key := strings.ToLower(provider)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return maps.Clone(v.(types.Props)), nil
		}
	}
	props, err := c.secrets.Read(ctx, commonPath(provider))
	if err != nil {
		return nil, err
	}
	if props == nil {
		return nil, types.NotFound("no common config for provider '%s'", provider)
	}
	if c.cache != nil {
		c.cache.Set(key, maps.Clone(props), gocache.DefaultExpiration)
	}
	return props, nil
}
