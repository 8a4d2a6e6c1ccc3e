package service

import (
	"embed"
	"fmt"
	"sort"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Definition describes a tenant-scoped business collection.
type Definition struct {
	Name    string
	Feature tenant.Feature
	Limit   func(tenant.Limits) tenant.Limit
}

var definitions = map[string]Definition{
	"farmers": {
		Name:    "farmers",
		Feature: tenant.FeatureFarmerManagement,
		Limit:   func(l tenant.Limits) tenant.Limit { return l.Farmers },
	},
	"dealers": {
		Name:    "dealers",
		Feature: tenant.FeatureDealerNetwork,
		Limit:   func(l tenant.Limits) tenant.Limit { return l.Dealers },
	},
	"products": {
		Name:    "products",
		Feature: tenant.FeatureProductCatalog,
		Limit:   func(l tenant.Limits) tenant.Limit { return l.Products },
	},
}

// Lookup returns the definition of name.
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// Names lists the served collections in order.
func Names() []string {
	out := make([]string, 0, len(definitions))
	for name := range definitions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Schema returns the embedded JSON Schema document of name.
func Schema(name string) ([]byte, error) {
	if _, ok := definitions[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	return raw, nil
}

// RegisterSchemas binds the embedded row schemas to their collections.
func RegisterSchemas(s *scopeddb.Schemas) error {
	for _, name := range Names() {
		raw, err := Schema(name)
		if err != nil {
			return err
		}
		if err := s.Register(name, raw); err != nil {
			return err
		}
	}
	return nil
}
