package tenant

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"gopkg.in/yaml.v3"
)

// Seed is the bootstrap file used for local runs without Postgres.
type Seed struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

type SeedTenant struct {
	Channel  `yaml:",inline"`
	Config   *Config       `yaml:"config"`
	Products []SeedProduct `yaml:"products"`
}

type SeedProduct struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Description    string          `yaml:"description"`
	Price          decimal.Decimal `yaml:"price"`
	TrackInventory bool            `yaml:"track_inventory"`
	Quantity       int             `yaml:"quantity"`
	Inactive       bool            `yaml:"inactive"`
}

// LoadSeed parses a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenant: read seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("tenant: parse seed: %w", err)
	}
	for i := range seed.Tenants {
		t := &seed.Tenants[i]
		if t.TenantID == "" {
			return nil, fmt.Errorf("tenant: seed entry %d missing tenant_id", i)
		}
		if t.PhoneNumberID == "" {
			return nil, fmt.Errorf("tenant: seed entry %q missing phone_number_id", t.TenantID)
		}
		if t.Config == nil {
			t.Config = DefaultConfig(t.TenantID)
		}
		t.Config.TenantID = t.TenantID
		if t.Config.BusinessName == "" {
			t.Config.BusinessName = t.BusinessName
		}
		if t.Config.NotificationEmail == "" {
			t.Config.NotificationEmail = t.NotificationEmail
		}
	}
	return &seed, nil
}

type configSetter interface {
	Set(ctx context.Context, cfg *Config) error
}

// Apply loads the seed into a directory, a config store and a catalog.
func (s *Seed) Apply(ctx context.Context, dir *MemoryDirectory, configs configSetter, products *catalog.MemoryLookup) error {
	for _, t := range s.Tenants {
		if dir != nil {
			dir.Put(t.Channel)
		}
		if configs != nil {
			cfg := *t.Config
			cfg.Version = 0
			if err := configs.Set(ctx, &cfg); err != nil {
				return fmt.Errorf("tenant: seed config %s: %w", t.TenantID, err)
			}
		}
		if products != nil {
			for _, p := range t.Products {
				products.Put(catalog.Product{
					ID:             p.ID,
					TenantID:       t.TenantID,
					Name:           p.Name,
					Description:    p.Description,
					Price:          p.Price,
					TrackInventory: p.TrackInventory,
					Quantity:       p.Quantity,
					Active:         !p.Inactive,
				})
			}
		}
	}
	return nil
}
