package scopeddb

// ExemptSet lists collections without a tenant_id column. They are shared by
// every tenant and can only be read through the gateway.
type ExemptSet map[string]struct{}

// DefaultExempt returns the global reference collections of the platform.
func DefaultExempt() ExemptSet {
	return NewExemptSet("subscription_plans", "feature_catalog", "app_versions")
}

// NewExemptSet builds an ExemptSet from names.
func NewExemptSet(names ...string) ExemptSet {
	set := make(ExemptSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Contains reports whether name is exempt.
func (s ExemptSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}
