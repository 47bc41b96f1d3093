package registry

import (
	"clusterdir/internal/types"
	"fmt"
	"strings"
)

const (
	channelsDir        = "channels"
	clustersDir        = "clusters"
	secretsDir         = "secrets/clusters"
	serviceAccountsDir = "credentials/google"
	commonDir          = "clusters/common"

	// indexName keys both the channel list and the cluster index inside their directories.
	indexName  = types.AllChannels
	commonName = "common"

	valueField = "value"
)

func channelListPath() string               { return channelPath(indexName) }
func channelPath(name string) string        { return fmt.Sprintf("%s/%s", channelsDir, name) }
func clusterIndexPath() string              { return fmt.Sprintf("%s/%s", clustersDir, indexName) }
func clusterPath(env, slug string) string   { return fmt.Sprintf("%s/%s/%s", clustersDir, env, slug) }
func secretPath(env, slug string) string    { return fmt.Sprintf("%s/%s/%s", secretsDir, env, slug) }
func serviceAccountPath(email string) string { return fmt.Sprintf("%s/%s", serviceAccountsDir, email) }
func commonPath(provider string) string {
	return fmt.Sprintf("%s/%s", commonDir, strings.ToLower(provider))
}

// environmentFromPath extracts <env> from clusters/<env>/<slug>.
func environmentFromPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != clustersDir || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// validateName rejects names that cannot be a single path segment.
func validateName(kind, name string) error {
	if name == "" {
		return types.InvalidArgument("%s must not be empty", kind)
	}
	if strings.ContainsAny(name, "/*?[]\\") || strings.TrimSpace(name) != name {
		return types.InvalidArgument("%s %q contains invalid characters", kind, name)
	}
	return nil
}

func validateEnvironment(env string) error {
	if err := validateName("environment", env); err != nil {
		return err
	}
	if env == indexName || env == commonName {
		return types.InvalidArgument("environment %q is reserved", env)
	}
	return nil
}
