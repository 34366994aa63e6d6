package domain

// Principal is the authenticated identity a request acts on behalf of. The ID
// is an opaque identifier issued by the external identity provider; Email is
// the external identity string used for audit trails and the legacy fallback.
type Principal struct {
	ID    string
	Email string
}
