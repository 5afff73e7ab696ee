package domain

// ReconciliationRule is a tenant-configurable scoring bias. When a rule's
// pattern matches a transaction's description or reference, its boost is
// added to the computed confidence. Only the highest-priority matching rule
// applies. Rule CRUD lives outside the engine; rules are read-only here.
type ReconciliationRule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Priority int    `json:"priority"`
	Boost    int    `json:"boost"`
	Enabled  bool   `json:"enabled"`
}
