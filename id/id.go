// Package id defines TypeID-based identifiers for trialpay entities.
//
// Every entity uses the same ID struct; the prefix names the entity type.
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix", which lets
// sweeps page through records with a simple "id > cursor" predicate.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all trialpay entity types.
const (
	PrefixGracePeriod       Prefix = "grace"
	PrefixPromoCode         Prefix = "promo"
	PrefixPromoCodeUsage    Prefix = "pcu"
	PrefixValidationAttempt Prefix = "pva"
	PrefixSubscription      Prefix = "sub"
	PrefixPlan              Prefix = "plan"
)

// ID is the primary identifier type for all trialpay entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "grace_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// ParseOptional is ParseWithPrefix that maps the empty string to Nil.
// Stores use it for nullable references such as a grace period's subscription.
func ParseOptional(s string, expected Prefix) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, expected)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// GracePeriodID identifies a grace period (prefix "grace").
type GracePeriodID = ID

// PromoCodeID identifies a promo code (prefix "promo").
type PromoCodeID = ID

// PromoCodeUsageID identifies one application of a promo code (prefix "pcu").
type PromoCodeUsageID = ID

// ValidationAttemptID identifies a promo validation attempt (prefix "pva").
type ValidationAttemptID = ID

// SubscriptionID identifies a subscription (prefix "sub").
type SubscriptionID = ID

// PlanID identifies a plan (prefix "plan").
type PlanID = ID

func NewGracePeriodID() ID       { return New(PrefixGracePeriod) }
func NewPromoCodeID() ID         { return New(PrefixPromoCode) }
func NewPromoCodeUsageID() ID    { return New(PrefixPromoCodeUsage) }
func NewValidationAttemptID() ID { return New(PrefixValidationAttempt) }
func NewSubscriptionID() ID      { return New(PrefixSubscription) }
func NewPlanID() ID              { return New(PrefixPlan) }

func ParseGracePeriodID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixGracePeriod) }
func ParsePromoCodeID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixPromoCode) }
func ParsePromoCodeUsageID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPromoCodeUsage) }
func ParseSubscriptionID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixSubscription) }
func ParsePlanID(s string) (ID, error)           { return ParseWithPrefix(s, PrefixPlan) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Equal reports whether both IDs render the same string.
func (i ID) Equal(other ID) bool {
	return i.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
