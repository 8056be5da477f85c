package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/target/enquiry-gateway/config"
	redisadapter "github.com/target/enquiry-gateway/internal/adapters/redis"
)

// Redis topologies the revocation store can run on.
const (
	redisModeDirect   = "direct"
	redisModeSentinel = "sentinel"
	redisModeCluster  = "cluster"
)

// readinessTokenID is looked up to prove the store answers reads under its prefix.
const readinessTokenID = "readiness-check"

// RevocationBackend is the Redis connection that enforces sign-out and operator revocations.
type RevocationBackend struct {
	Client redis.UniversalClient
	Store  *redisadapter.RevocationStore
	Mode   string
	Prefix string
}

// Ready reports whether revocation lookups currently succeed. A failing lookup makes the
// gateway deny protected requests, so this doubles as the readiness check.
func (b *RevocationBackend) Ready(ctx context.Context) error {
	if _, err := b.Store.IsRevoked(ctx, readinessTokenID); err != nil {
		return fmt.Errorf("revocation lookup: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (b *RevocationBackend) Close() error {
	return b.Client.Close()
}

// ConnectRevocationStore connects to Redis, applies the configured key prefix and checks
// that revocation lookups work before the gateway starts relying on them.
func ConnectRevocationStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RevocationBackend, error) {
	opts, mode, err := revocationClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(cfg.RevocationPrefix)
	if prefix == "" {
		prefix = redisadapter.DefaultRevocationPrefix
	}

	client := newRevocationClient(opts, mode)
	backend := &RevocationBackend{
		Client: client,
		Store:  redisadapter.NewRevocationStoreWithPrefix(client, prefix),
		Mode:   mode,
		Prefix: prefix,
	}

	checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := client.Ping(checkCtx).Err(); pingErr != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", pingErr), closeClient(client))
	}
	if readyErr := backend.Ready(checkCtx); readyErr != nil {
		return nil, errors.Join(readyErr, closeClient(client))
	}

	if logger != nil {
		logger.InfoContext(ctx, "session revocation store ready",
			"mode", mode,
			"addrs", strings.Join(opts.Addrs, ","),
			"prefix", prefix,
		)
	}
	return backend, nil
}

func closeClient(client redis.UniversalClient) error {
	if err := client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// revocationClientOptions turns the Redis settings into one option set and the topology to
// build it for. Credentials embedded in a redis:// URI win over REDIS_PASSWORD.
func revocationClientOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	switch {
	case cfg.UseCluster:
		addrs := normalizeAddrs(cfg.ClusterNodes)
		if len(addrs) == 0 {
			return nil, "", errors.New("REDIS_USE_CLUSTER requires REDIS_CLUSTER_NODES")
		}
		return &redis.UniversalOptions{Addrs: addrs, Password: cfg.Password}, redisModeCluster, nil

	case cfg.UseSentinel:
		addrs := normalizeAddrs(cfg.SentinelNodes)
		if len(addrs) == 0 {
			return nil, "", errors.New("REDIS_USE_SENTINEL requires REDIS_SENTINEL_NODES")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return nil, "", errors.New("REDIS_USE_SENTINEL requires REDIS_SENTINEL_MASTER_NAME")
		}
		return &redis.UniversalOptions{
			Addrs:            addrs,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}, redisModeSentinel, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("REDIS_URI is required")
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return &redis.UniversalOptions{Addrs: []string{uri}, Password: cfg.Password}, redisModeDirect, nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse REDIS_URI: %w", err)
	}
	password := cfg.Password
	if parsed.Password != "" {
		password = parsed.Password
	}
	return &redis.UniversalOptions{
		Addrs:     []string{parsed.Addr},
		Username:  parsed.Username,
		Password:  password,
		DB:        parsed.DB,
		TLSConfig: parsed.TLSConfig,
	}, redisModeDirect, nil
}

// newRevocationClient builds the client for mode explicitly; NewUniversalClient would pick a
// single-node client for a one-address cluster.
//
//nolint:ireturn // the topology is only known at runtime.
func newRevocationClient(opts *redis.UniversalOptions, mode string) redis.UniversalClient {
	switch mode {
	case redisModeCluster:
		return redis.NewClusterClient(opts.Cluster())
	case redisModeSentinel:
		return redis.NewFailoverClient(opts.Failover())
	default:
		return redis.NewClient(opts.Simple())
	}
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
