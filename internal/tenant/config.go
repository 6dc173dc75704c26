// Package tenant holds per-merchant sales policy and channel bindings.
package tenant

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultAgentName    = "Ayo"
	DefaultDispatchTime = "24-48 hours"
	DefaultMaxDiscount  = 10
)

var defaultDeliveryFee = decimal.NewFromInt(1500)

// DeliveryArea is a named zone with its own delivery fee.
type DeliveryArea struct {
	Name string          `json:"name" yaml:"name" jsonschema:"required,minLength=1"`
	Fee  decimal.Decimal `json:"fee" yaml:"fee" jsonschema:"required"`
}

// Config is the typed sales policy for one tenant. Version increases on every
// successful save.
type Config struct {
	TenantID           string          `json:"tenant_id" yaml:"tenant_id" jsonschema:"required"`
	Version            int             `json:"version" yaml:"version"`
	BusinessName       string          `json:"business_name,omitempty" yaml:"business_name"`
	AgentName          string          `json:"agent_name" yaml:"agent_name"`
	Greeting           string          `json:"greeting,omitempty" yaml:"greeting"`
	NegotiationEnabled bool            `json:"negotiation_enabled" yaml:"negotiation_enabled"`
	MaxDiscountPercent int             `json:"max_discount_percent" yaml:"max_discount_percent" jsonschema:"minimum=0,maximum=100"`
	DispatchTime       string          `json:"dispatch_time" yaml:"dispatch_time"`
	DefaultDeliveryFee decimal.Decimal `json:"default_delivery_fee" yaml:"default_delivery_fee"`
	DeliveryAreas      []DeliveryArea  `json:"delivery_areas,omitempty" yaml:"delivery_areas"`
	NotificationEmail  string          `json:"notification_email,omitempty" yaml:"notification_email"`
}

// DefaultConfig returns the policy applied to tenants that have not saved one.
func DefaultConfig(tenantID string) *Config {
	return &Config{
		TenantID:           tenantID,
		AgentName:          DefaultAgentName,
		NegotiationEnabled: true,
		MaxDiscountPercent: DefaultMaxDiscount,
		DispatchTime:       DefaultDispatchTime,
		DefaultDeliveryFee: defaultDeliveryFee,
	}
}

// Normalize fills blank fields with defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.AgentName) == "" {
		c.AgentName = DefaultAgentName
	}
	if strings.TrimSpace(c.DispatchTime) == "" {
		c.DispatchTime = DefaultDispatchTime
	}
}

// Validate rejects policies the machine could not enforce.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return errors.New("tenant: tenant_id required")
	}
	if c.MaxDiscountPercent < 0 || c.MaxDiscountPercent > 100 {
		return fmt.Errorf("tenant: max_discount_percent %d out of range", c.MaxDiscountPercent)
	}
	if c.DefaultDeliveryFee.IsNegative() {
		return errors.New("tenant: default_delivery_fee must not be negative")
	}
	seen := make(map[string]struct{}, len(c.DeliveryAreas))
	for _, area := range c.DeliveryAreas {
		key := strings.ToLower(strings.TrimSpace(area.Name))
		if key == "" {
			return errors.New("tenant: delivery area name required")
		}
		if area.Fee.IsNegative() {
			return fmt.Errorf("tenant: delivery area %q has negative fee", area.Name)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("tenant: duplicate delivery area %q", area.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// DeliveryFeeFor matches area case-insensitively against the area table and
// falls back to the default fee.
func (c *Config) DeliveryFeeFor(area string) decimal.Decimal {
	key := strings.ToLower(strings.TrimSpace(area))
	if key != "" {
		for _, a := range c.DeliveryAreas {
			if strings.ToLower(strings.TrimSpace(a.Name)) == key {
				return a.Fee
			}
		}
	}
	return c.DefaultDeliveryFee
}

// InferArea returns the longest configured area name that appears in the
// address, or "" when none does.
func (c *Config) InferArea(address string) string {
	lowered := strings.ToLower(address)
	names := make([]string, 0, len(c.DeliveryAreas))
	for _, a := range c.DeliveryAreas {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, n := range names {
		if strings.Contains(lowered, strings.ToLower(n)) {
			return n
		}
	}
	return ""
}

// DisplayName is the business name used in customer-facing copy.
func (c *Config) DisplayName() string {
	if strings.TrimSpace(c.BusinessName) != "" {
		return c.BusinessName
	}
	return "our store"
}
