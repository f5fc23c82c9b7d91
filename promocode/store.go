package promocode

import (
	"context"
	"time"

	"github.com/xraph/trialpay/id"
)

// Store persists promo codes and their usage records. CurrentUses only moves
// through the atomic increment, decrement and reconcile methods.
type Store interface {
	CreatePromoCode(ctx context.Context, p *PromoCode) error
	GetPromoCode(ctx context.Context, promoID id.PromoCodeID) (*PromoCode, error)
	GetPromoCodeByCode(ctx context.Context, code string) (*PromoCode, error)
	ListPromoCodes(ctx context.Context, opts ListOpts) ([]*PromoCode, error)

	// IncrementPromoCodeUses adds one use only while the code is below its
	// cap, deactivating it (reason exhausted) when the cap is reached. It
	// returns the updated code, or a precondition error if the cap was
	// already reached.
	IncrementPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, at time.Time) (*PromoCode, error)

	// DecrementPromoCodeUses removes one use, never going below zero.
	DecrementPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, at time.Time) (*PromoCode, error)

	// SetPromoCodeUses overwrites the counter and activation state. Only the
	// reconciliation pass calls it.
	SetPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, uses int, state Activation, at time.Time) error

	// SetPromoCodeActivation changes only the activation state.
	SetPromoCodeActivation(ctx context.Context, promoID id.PromoCodeID, state Activation, at time.Time) error

	CreatePromoCodeUsage(ctx context.Context, u *Usage) error
	GetPromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) (*Usage, error)
	DeletePromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) error
	ListPromoCodeUsages(ctx context.Context, opts UsageListOpts) ([]*Usage, error)

	// CountPromoCodeUsages counts usages of a code, for one user when userID
	// is not empty.
	CountPromoCodeUsages(ctx context.Context, promoID id.PromoCodeID, userID string) (int, error)
}

// AttemptLog is the rate limiter's timestamp-indexed log of validation
// attempts. Implementations must tolerate concurrent writers.
type AttemptLog interface {
	RecordValidationAttempt(ctx context.Context, a *ValidationAttempt) error
	CountValidationAttempts(ctx context.Context, userID string, since time.Time) (int, error)
}

// AttemptPruner is implemented by attempt logs that do not expire entries
// on their own. The engine prunes them on the reconcile cadence.
type AttemptPruner interface {
	PruneValidationAttempts(ctx context.Context, before time.Time) (int64, error)
}

// Activation is the is_active flag together with its reason.
type Activation struct {
	Active bool
	Reason DeactivationReason
}

// ActivationFor derives the activation state a code should have with uses
// recorded. Manually deactivated codes stay inactive.
func ActivationFor(p *PromoCode, uses int, now time.Time) Activation {
	if p.DeactivationReason == DeactivationManual {
		return Activation{Active: false, Reason: DeactivationManual}
	}
	if p.MaxUses > 0 && uses >= p.MaxUses {
		return Activation{Active: false, Reason: DeactivationExhausted}
	}
	if p.DeactivationReason == DeactivationExhausted {
		if p.ValidUntil != nil && now.After(*p.ValidUntil) {
			return Activation{Active: false, Reason: DeactivationExhausted}
		}
		return Activation{Active: true}
	}
	return Activation{Active: p.IsActive, Reason: p.DeactivationReason}
}

// ListOpts filters promo code listings.
type ListOpts struct {
	TenantID   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// UsageListOpts filters usage listings.
type UsageListOpts struct {
	PromoCodeID    id.PromoCodeID
	UserID         string
	SubscriptionID id.SubscriptionID
	Limit          int
	Offset         int
}
