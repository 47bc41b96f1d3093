package vault

import (
	"clusterdir/internal/types"
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	log "github.com/sirupsen/logrus"
)

const appRoleLoginPath = "auth/approle/login"

// Login resolves an authenticated client. A static token is used as-is; otherwise the
// AppRole (role_id, secret_id) pair is exchanged for a client token. The returned client is
// ready to use and is never re-authenticated behind the caller's back.
func Login(ctx context.Context, cfg types.VaultConfig) (*vault.Client, error) {
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	if vcfg.Error != nil {
		return nil, fmt.Errorf("vault config: %w", vcfg.Error)
	}
	cli, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	if cfg.Token != "" {
		cli.SetToken(cfg.Token)
		return cli, nil
	}
	if cfg.RoleID == "" || cfg.SecretID == "" {
		return nil, types.InvalidArgument("vault requires either a token or both role_id and secret_id")
	}

	// NewClient picks up VAULT_TOKEN from the environment; the login call must go out unauthenticated.
	cli.ClearToken()
	secret, err := cli.Logical().WriteWithContext(ctx, appRoleLoginPath, map[string]interface{}{
		"role_id":   cfg.RoleID,
		"secret_id": cfg.SecretID,
	})
	if err != nil {
		return nil, types.Upstream(err, "vault approle login")
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, types.Err(types.ErrUpstream, nil, "vault approle login returned no client token")
	}
	cli.SetToken(secret.Auth.ClientToken)
	log.WithField("accessor", secret.Auth.Accessor).Debug("vault approle login succeeded")
	return cli, nil
}
