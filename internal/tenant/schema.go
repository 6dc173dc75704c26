package tenant

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

// ConfigSchema renders the JSON schema for Config, used by the admin API.
func ConfigSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(decimal.Decimal{}) {
				return &jsonschema.Schema{Type: "string", Pattern: `^\d+(\.\d{1,2})?$`}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "Tenant sales configuration"
	data, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("tenant: marshal schema: %w", err)
	}
	return data, nil
}
