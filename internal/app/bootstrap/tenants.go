package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// ConfigStore reads and writes tenant sales policy.
type ConfigStore interface {
	tenant.ConfigSource
	Set(ctx context.Context, cfg *tenant.Config) error
}

// TenantSources groups the per-tenant lookups every pipeline stage needs.
type TenantSources struct {
	Channels tenant.Directory
	Configs  ConfigStore
	Catalog  catalog.Lookup
	// Cache is nil when the catalog is served from a seed file.
	Cache *catalog.CachedLookup
}

// BuildTenantSources loads tenants from the seed file when one is configured,
// otherwise from Postgres with Redis-backed config and catalog caching.
func BuildTenantSources(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (*TenantSources, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if path := strings.TrimSpace(cfg.TenantSeedFile); path != "" {
		seed, err := tenant.LoadSeed(path)
		if err != nil {
			return nil, err
		}
		dir := tenant.NewMemoryDirectory()
		configs := tenant.NewMemoryConfigStore()
		products := catalog.NewMemoryLookup()
		if err := seed.Apply(ctx, dir, configs, products); err != nil {
			return nil, err
		}
		logger.Info("tenants loaded from seed file", "path", path, "tenants", len(seed.Tenants))
		return &TenantSources{Channels: dir, Configs: configs, Catalog: products}, nil
	}

	if pool == nil {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL or TENANT_SEED_FILE required")
	}
	var configs ConfigStore
	if redisClient != nil {
		configs = tenant.NewConfigStore(redisClient)
	} else {
		logger.Warn("redis unavailable; tenant configs are process-local")
		configs = tenant.NewMemoryConfigStore()
	}
	cache := catalog.NewCachedLookup(catalog.NewRepository(pool), redisClient, cfg.CatalogCacheTTL, logger)
	return &TenantSources{
		Channels: tenant.NewPGDirectory(pool),
		Configs:  configs,
		Catalog:  cache,
		Cache:    cache,
	}, nil
}
