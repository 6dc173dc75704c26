package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
)

// ErrUnknownChannel means no tenant owns the receiving phone number.
var ErrUnknownChannel = errors.New("tenant: unknown channel")

// Channel binds a WhatsApp business phone number to a tenant.
type Channel struct {
	TenantID          string `json:"tenant_id" yaml:"tenant_id"`
	PhoneNumberID     string `json:"phone_number_id" yaml:"phone_number_id"`
	BusinessName      string `json:"business_name" yaml:"business_name"`
	AccessToken       string `json:"-" yaml:"access_token"`
	NotificationEmail string `json:"notification_email,omitempty" yaml:"notification_email"`
}

// Directory resolves channel bindings in both directions.
type Directory interface {
	ResolveChannel(ctx context.Context, phoneNumberID string) (*Channel, error)
	ChannelForTenant(ctx context.Context, tenantID string) (*Channel, error)
}

// ConfigSource reads tenant policy.
type ConfigSource interface {
	Get(ctx context.Context, tenantID string) (*Config, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGDirectory reads channel bindings from Postgres.
type PGDirectory struct {
	db querier
}

func NewPGDirectory(db querier) *PGDirectory {
	if db == nil {
		panic("tenant: db required")
	}
	return &PGDirectory{db: db}
}

const channelSelect = `
	SELECT t.id::text, c.phone_number_id, t.business_name, COALESCE(c.access_token, ''), COALESCE(t.notification_email, '')
	FROM whatsapp_channels c
	JOIN tenants t ON t.id = c.tenant_id
	WHERE c.is_active = true AND `

func (d *PGDirectory) ResolveChannel(ctx context.Context, phoneNumberID string) (*Channel, error) {
	return d.one(ctx, channelSelect+`c.phone_number_id = $1`, phoneNumberID)
}

func (d *PGDirectory) ChannelForTenant(ctx context.Context, tenantID string) (*Channel, error) {
	return d.one(ctx, channelSelect+`t.id::text = $1 ORDER BY c.created_at ASC LIMIT 1`, tenantID)
}

func (d *PGDirectory) one(ctx context.Context, query, arg string) (*Channel, error) {
	var ch Channel
	err := d.db.QueryRow(ctx, query, arg).Scan(&ch.TenantID, &ch.PhoneNumberID, &ch.BusinessName, &ch.AccessToken, &ch.NotificationEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownChannel
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: resolve channel: %w", err)
	}
	return &ch, nil
}

// MemoryDirectory is an in-process Directory for seeded local runs and tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byPhone map[string]Channel
}

var (
	_ Directory = (*PGDirectory)(nil)
	_ Directory = (*MemoryDirectory)(nil)
)

func NewMemoryDirectory(channels ...Channel) *MemoryDirectory {
	d := &MemoryDirectory{byPhone: make(map[string]Channel)}
	for _, ch := range channels {
		d.Put(ch)
	}
	return d
}

func (d *MemoryDirectory) Put(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byPhone[ch.PhoneNumberID] = ch
}

func (d *MemoryDirectory) ResolveChannel(_ context.Context, phoneNumberID string) (*Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.byPhone[phoneNumberID]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return &ch, nil
}

func (d *MemoryDirectory) ChannelForTenant(_ context.Context, tenantID string) (*Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var matches []Channel
	for _, ch := range d.byPhone {
		if ch.TenantID == tenantID {
			matches = append(matches, ch)
		}
	}
	if len(matches) == 0 {
		return nil, ErrUnknownChannel
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PhoneNumberID < matches[j].PhoneNumberID })
	return &matches[0], nil
}

// MemoryConfigStore keeps policies in process. Unknown tenants get defaults.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

var _ ConfigSource = (*MemoryConfigStore)(nil)

func NewMemoryConfigStore(configs ...Config) *MemoryConfigStore {
	s := &MemoryConfigStore{configs: make(map[string]Config)}
	for _, cfg := range configs {
		cfg.Normalize()
		s.configs[cfg.TenantID] = cfg
	}
	return s
}

func (s *MemoryConfigStore) Get(_ context.Context, tenantID string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tenantID]
	if !ok {
		return DefaultConfig(tenantID), nil
	}
	areas := append([]DeliveryArea(nil), cfg.DeliveryAreas...)
	cfg.DeliveryAreas = areas
	return &cfg, nil
}

func (s *MemoryConfigStore) Set(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("tenant: config required")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.configs[cfg.TenantID].Version
	if cfg.Version != 0 && cfg.Version != current {
		return ErrVersionConflict
	}
	cfg.Version = current + 1
	s.configs[cfg.TenantID] = *cfg
	return nil
}
