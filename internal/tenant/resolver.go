package tenant

// Outcome enumerates the results of the resolution cascade.
type Outcome int

const (
	Unresolved Outcome = iota
	Resolved
)

// Via records which step of the cascade matched.
type Via string

const (
	ViaNone        Via = ""
	ViaName        Via = "name"
	ViaIDAlias     Via = "id_alias"
	ViaCanonicalID Via = "canonical_id"
	ViaICCID       Via = "iccid"
	ViaICCIDPrefix Via = "iccid_prefix"
)

// Resolution is the tagged result of resolving a tenant. TenantID is only
// meaningful when Outcome is Resolved; callers drop the record otherwise.
type Resolution struct {
	Outcome  Outcome
	TenantID string
	Via      Via
}

// OK reports whether the resolution produced a tenant.
func (r Resolution) OK() bool {
	return r.Outcome == Resolved
}

// Unknown is the resolution for records no step of the cascade could place.
var Unknown = Resolution{Outcome: Unresolved}

// ResolvedAs builds a successful resolution.
func ResolvedAs(tenantID string, via Via) Resolution {
	return Resolution{Outcome: Resolved, TenantID: tenantID, Via: via}
}

type step struct {
	via   Via
	input func(name, id *string) *string
	table func(r *Registry) map[string]string
}

// cascade is the ordered list of lookups. Adding a step is a data change.
var cascade = []step{
	{via: ViaName, input: func(name, _ *string) *string { return name }, table: func(r *Registry) map[string]string { return r.aliases }},
	{via: ViaIDAlias, input: func(_, id *string) *string { return id }, table: func(r *Registry) map[string]string { return r.aliases }},
	{via: ViaCanonicalID, input: func(_, id *string) *string { return id }, table: func(r *Registry) map[string]string { return r.canonical }},
}

// Resolve runs the tenant cascade: name through the alias table, then id
// through the alias table, then id against the canonical IDs. It is pure and
// total: it never panics and only ever returns canonical IDs.
func (r *Registry) Resolve(tenantName, tenantID *string) Resolution {
	for _, s := range cascade {
		in := s.input(tenantName, tenantID)
		if in == nil {
			continue
		}
		key := Normalize(*in)
		if key == "" {
			continue
		}
		if id, ok := s.table(r)[key]; ok {
			return ResolvedAs(id, s.via)
		}
	}
	return Unknown
}

// ResolveStrings is Resolve for callers holding plain strings; empty means absent.
func (r *Registry) ResolveStrings(tenantName, tenantID string) Resolution {
	return r.Resolve(optional(tenantName), optional(tenantID))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
