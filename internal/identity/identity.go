// Package identity models the caller of a core operation. A Caller is resolved
// once at the authentication boundary and passed by value into services.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Kind discriminates the Caller variants.
type Kind string

const (
	KindAnalyst     Kind = "analyst"
	KindCompany     Kind = "company"
	KindCompanyUser Kind = "company_user"
	KindAdmin       Kind = "admin"
)

// ErrInvalidCaller indicates a zero or malformed Caller.
var ErrInvalidCaller = errors.New("identity: invalid caller")

// RecipientType names who a notification delivery is addressed to.
type RecipientType string

const (
	RecipientCompany     RecipientType = "company"
	RecipientCompanyUser RecipientType = "company_user"
	RecipientAnalyst     RecipientType = "analyst"
)

// Valid reports whether the recipient type is known.
func (t RecipientType) Valid() bool {
	switch t {
	case RecipientCompany, RecipientCompanyUser, RecipientAnalyst:
		return true
	}
	return false
}

// Recipient is a (type, id) pair a delivery can be addressed to.
type Recipient struct {
	Type RecipientType `json:"recipient_type"`
	ID   string        `json:"recipient_id"`
}

// Caller is a tagged union: Analyst{id} | Company{id} | CompanyUser{id, companyID} | Admin{id}.
// Fields are unexported so a Caller can only be built through the constructors.
type Caller struct {
	kind      Kind
	id        string
	companyID string
}

// Analyst builds an analyst caller.
func Analyst(id string) Caller { return Caller{kind: KindAnalyst, id: id} }

// Company builds a company principal caller.
func Company(id string) Caller { return Caller{kind: KindCompany, id: id, companyID: id} }

// CompanyUser builds a company sub-user caller bound to its employer.
func CompanyUser(id, companyID string) Caller {
	return Caller{kind: KindCompanyUser, id: id, companyID: companyID}
}

// Admin builds an admin caller.
func Admin(id string) Caller { return Caller{kind: KindAdmin, id: id} }

// Parse rebuilds a Caller from its persisted parts.
func Parse(kind, id, companyID string) (Caller, error) {
	var c Caller
	switch Kind(kind) {
	case KindAnalyst:
		c = Analyst(id)
	case KindCompany:
		c = Company(id)
	case KindCompanyUser:
		c = CompanyUser(id, companyID)
	case KindAdmin:
		c = Admin(id)
	default:
		return Caller{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidCaller, kind)
	}
	if err := c.Validate(); err != nil {
		return Caller{}, err
	}
	return c, nil
}

// Validate rejects zero-value and incomplete callers.
func (c Caller) Validate() error {
	if c.kind == "" || c.id == "" {
		return ErrInvalidCaller
	}
	if c.kind == KindCompanyUser && c.companyID == "" {
		return fmt.Errorf("%w: company user without company", ErrInvalidCaller)
	}
	return nil
}

// Kind returns the variant tag.
func (c Caller) Kind() Kind { return c.kind }

// ID returns the principal id of the caller.
func (c Caller) ID() string { return c.id }

// CompanyID returns the company the caller belongs to, empty for staff.
func (c Caller) CompanyID() string { return c.companyID }

// IsStaff reports whether the caller is an analyst or admin.
func (c Caller) IsStaff() bool { return c.kind == KindAnalyst || c.kind == KindAdmin }

// Recipients lists the delivery identities the caller may act as.
func (c Caller) Recipients() []Recipient {
	switch c.kind {
	case KindCompany:
		return []Recipient{{Type: RecipientCompany, ID: c.id}}
	case KindCompanyUser:
		return []Recipient{
			{Type: RecipientCompanyUser, ID: c.id},
			{Type: RecipientCompany, ID: c.companyID},
		}
	case KindAnalyst:
		return []Recipient{{Type: RecipientAnalyst, ID: c.id}}
	default:
		return nil
	}
}

// CanActAs reports whether r is one of the caller's identities.
func (c Caller) CanActAs(r Recipient) bool {
	for _, own := range c.Recipients() {
		if own == r {
			return true
		}
	}
	return false
}

// Key is a stable string form, used for cache and singleflight keys.
func (c Caller) Key() string {
	if c.companyID != "" && c.kind == KindCompanyUser {
		return string(c.kind) + ":" + c.id + "@" + c.companyID
	}
	return string(c.kind) + ":" + c.id
}

func (c Caller) String() string { return c.Key() }

type callerContextKey struct{}

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// FromContext extracts the caller from context.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(Caller)
	if !ok || c.Validate() != nil {
		return Caller{}, false
	}
	return c, true
}
