// Package promocode defines promo codes, their usage records and the
// entity-level eligibility rules.
package promocode

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/types"
)

// DiscountType selects how the discount is computed.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Valid reports whether d is a known discount type.
func (d DiscountType) Valid() bool {
	switch d {
	case DiscountPercentage, DiscountFixedAmount:
		return true
	}
	return false
}

// DeactivationReason explains why a code is inactive.
type DeactivationReason string

const (
	DeactivationNone      DeactivationReason = ""
	DeactivationExhausted DeactivationReason = "exhausted"
	DeactivationManual    DeactivationReason = "manual"
)

// ErrorCode is the machine-readable outcome of a failed validation.
type ErrorCode string

const (
	CodeNotFound            ErrorCode = "CODE_NOT_FOUND"
	CodeInactive            ErrorCode = "CODE_INACTIVE"
	CodeNotYetValid         ErrorCode = "CODE_NOT_YET_VALID"
	CodeExpired             ErrorCode = "CODE_EXPIRED"
	CodeExhausted           ErrorCode = "CODE_EXHAUSTED"
	CodeNewUsersOnly        ErrorCode = "NEW_USERS_ONLY"
	CodePlanNotEligible     ErrorCode = "PLAN_NOT_ELIGIBLE"
	CodeMinimumAmountNotMet ErrorCode = "MINIMUM_AMOUNT_NOT_MET"
	CodeCurrencyMismatch    ErrorCode = "CURRENCY_MISMATCH"
	CodeRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUserLimitExceeded   ErrorCode = "USER_LIMIT_EXCEEDED"
)

// Code format bounds.
const (
	MinCodeLength = 3
	MaxCodeLength = 50
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// Normalize trims and upper-cases a code as typed by a user.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckFormat validates a normalized code.
func CheckFormat(code string) error {
	if n := len(code); n < MinCodeLength || n > MaxCodeLength {
		return fmt.Errorf("code must be %d-%d characters", MinCodeLength, MaxCodeLength)
	}
	if !codePattern.MatchString(code) {
		return fmt.Errorf("code may only contain A-Z, 0-9, '_' and '-'")
	}
	return nil
}

// PromoCode is a reusable discount definition.
type PromoCode struct {
	types.Entity

	ID                 id.PromoCodeID     `json:"id"`
	Code               string             `json:"code"`
	Description        string             `json:"description,omitempty"`
	DiscountType       DiscountType       `json:"discount_type"`
	Percentage         float64            `json:"percentage,omitempty"` // 0.01 precision
	Amount             types.Money        `json:"amount,omitzero"`
	IsActive           bool               `json:"is_active"`
	DeactivationReason DeactivationReason `json:"deactivation_reason,omitempty"`
	ValidFrom          time.Time          `json:"valid_from"`
	ValidUntil         *time.Time         `json:"valid_until,omitempty"`
	MaxUses            int                `json:"max_uses,omitempty"` // 0 = unlimited
	CurrentUses        int                `json:"current_uses"`
	MaxUsesPerUser     int                `json:"max_uses_per_user,omitempty"` // 0 = unlimited
	ApplicablePlans    []id.PlanID        `json:"applicable_plans,omitempty"`
	MinimumAmount      types.Money        `json:"minimum_amount,omitzero"`
	NewUsersOnly       bool               `json:"new_users_only,omitempty"`
	TenantID           string             `json:"tenant_id,omitempty"` // empty = global
	CreatedBy          string             `json:"created_by,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
}

// Clone returns a deep copy.
func (p *PromoCode) Clone() *PromoCode {
	if p == nil {
		return nil
	}
	c := *p
	c.ApplicablePlans = append([]id.PlanID(nil), p.ApplicablePlans...)
	if p.ValidUntil != nil {
		v := *p.ValidUntil
		c.ValidUntil = &v
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Validate checks the definition before it is stored.
func (p *PromoCode) Validate() error {
	if err := CheckFormat(p.Code); err != nil {
		return err
	}
	switch p.DiscountType {
	case DiscountPercentage:
		if p.Percentage <= 0 || p.Percentage > 100 {
			return fmt.Errorf("percentage must be in (0, 100], got %g", p.Percentage)
		}
		if bps := p.basisPoints(); bps < 1 || math.Abs(float64(bps)-p.Percentage*100) > 1e-6 {
			return fmt.Errorf("percentage %g has more than two decimal places", p.Percentage)
		}
	case DiscountFixedAmount:
		if !p.Amount.IsPositive() {
			return fmt.Errorf("fixed discount must be positive")
		}
	default:
		return fmt.Errorf("unknown discount type %q", p.DiscountType)
	}
	if p.MaxUses < 0 || p.MaxUsesPerUser < 0 {
		return fmt.Errorf("usage limits must not be negative")
	}
	if p.ValidUntil != nil && p.ValidUntil.Before(p.ValidFrom) {
		return fmt.Errorf("valid_until is before valid_from")
	}
	return nil
}

// IsExhausted reports whether the usage cap has been reached.
func (p *PromoCode) IsExhausted() bool {
	return p.MaxUses > 0 && p.CurrentUses >= p.MaxUses
}

// WithinWindow reports whether now lies in [ValidFrom, ValidUntil].
func (p *PromoCode) WithinWindow(now time.Time) bool {
	if now.Before(p.ValidFrom) {
		return false
	}
	return p.ValidUntil == nil || !now.After(*p.ValidUntil)
}

// IsValid is the conjunction of active, within window and not exhausted.
func (p *PromoCode) IsValid(now time.Time) bool {
	return p.IsActive && p.WithinWindow(now) && !p.IsExhausted()
}

// Value is the discount value as shown to users: a percentage or an amount
// in minor units.
func (p *PromoCode) Value() float64 {
	switch p.DiscountType {
	case DiscountPercentage:
		return p.Percentage
	case DiscountFixedAmount:
		return float64(p.Amount.Amount)
	}
	return 0
}

func (p *PromoCode) basisPoints() int64 {
	return int64(math.Round(p.Percentage * 100))
}

// Discount computes the discount for amount, clamped to amount.
func (p *PromoCode) Discount(amount types.Money) types.Money {
	var d types.Money
	switch p.DiscountType {
	case DiscountPercentage:
		d = amount.BasisPoints(p.basisPoints())
	case DiscountFixedAmount:
		d = types.Money{Amount: p.Amount.Amount, Currency: amount.Currency}
	default:
		return types.Zero(amount.Currency)
	}
	return amount.Min(d)
}

// AllowsPlan reports whether planID is eligible. An empty list or an
// unspecified plan means no restriction.
func (p *PromoCode) AllowsPlan(planID id.PlanID) bool {
	if len(p.ApplicablePlans) == 0 || planID.IsNil() {
		return true
	}
	return slices.ContainsFunc(p.ApplicablePlans, planID.Equal)
}

// CanBeUsedBy runs the entity-level checks and prices the discount.
func (p *PromoCode) CanBeUsedBy(uc UsageContext, now time.Time) ValidationResult {
	switch {
	case p.IsExhausted():
		return Reject(CodeExhausted, "this promo code has reached its usage limit")
	case !p.IsActive:
		return Reject(CodeInactive, "this promo code is not active")
	case now.Before(p.ValidFrom):
		return Reject(CodeNotYetValid, "this promo code is not valid yet")
	case !p.WithinWindow(now):
		return Reject(CodeExpired, "this promo code has expired")
	case p.NewUsersOnly && !uc.IsNewUser:
		return Reject(CodeNewUsersOnly, "this promo code is only available to new users")
	case !p.AllowsPlan(uc.PlanID):
		return Reject(CodePlanNotEligible, "this promo code does not apply to the selected plan")
	}

	amount := uc.Amount
	if p.DiscountType == DiscountFixedAmount && !p.Amount.SameCurrency(amount) {
		return Reject(CodeCurrencyMismatch, "this promo code uses a different currency")
	}
	if p.MinimumAmount.IsPositive() && uc.HasAmount() {
		if !p.MinimumAmount.SameCurrency(amount) || amount.LessThan(p.MinimumAmount) {
			return Reject(CodeMinimumAmountNotMet,
				fmt.Sprintf("a minimum amount of %s is required", p.MinimumAmount))
		}
	}

	discount := p.Discount(amount)
	return ValidationResult{
		Valid:          true,
		PromoCode:      p,
		DiscountAmount: discount,
		FinalAmount:    amount.SubtractFloor(discount),
	}
}

// UsageContext describes who wants to use a code and for what.
type UsageContext struct {
	UserID    string
	TenantID  string
	PlanID    id.PlanID
	Amount    types.Money // optional before a plan is chosen
	IsNewUser bool
	IPAddress string
	UserAgent string
}

// HasAmount reports whether a subscription amount was supplied. Without one
// the minimum amount is not checked and the discount prices to zero.
func (uc UsageContext) HasAmount() bool {
	return uc.Amount != (types.Money{})
}

// ValidationResult is the outcome of a validation. Failures are results, not
// errors; errors are reserved for store failures.
type ValidationResult struct {
	Valid          bool        `json:"valid"`
	ErrorCode      ErrorCode   `json:"error_code,omitempty"`
	Message        string      `json:"message,omitempty"`
	PromoCode      *PromoCode  `json:"promo_code,omitempty"`
	DiscountAmount types.Money `json:"discount_amount"`
	FinalAmount    types.Money `json:"final_amount"`

	// RetryAfter is set on RATE_LIMIT_EXCEEDED results.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Reject builds a failed result.
func Reject(code ErrorCode, msg string) ValidationResult {
	return ValidationResult{ErrorCode: code, Message: msg}
}

// Usage is an immutable record of one application of a code.
type Usage struct {
	ID              id.PromoCodeUsageID `json:"id"`
	PromoCodeID     id.PromoCodeID      `json:"promo_code_id"`
	UserID          string              `json:"user_id"`
	TenantID        string              `json:"tenant_id"`
	SubscriptionID  id.SubscriptionID   `json:"subscription_id,omitzero"`
	DiscountApplied types.Money         `json:"discount_applied"`
	UsedAt          time.Time           `json:"used_at"`
	IPAddress       string              `json:"ip_address,omitempty"`
	UserAgent       string              `json:"user_agent,omitempty"`
}

// ValidationAttempt is one entry of the rate limiter's attempt log.
type ValidationAttempt struct {
	ID          id.ValidationAttemptID `json:"id"`
	UserID      string                 `json:"user_id"`
	Code        string                 `json:"code"`
	AttemptedAt time.Time              `json:"attempted_at"`
	IPAddress   string                 `json:"ip_address,omitempty"`
}
