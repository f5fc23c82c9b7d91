package trialpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/types"
)

// ──────────────────────────────────────────────────
// Promo Code Administration
// ──────────────────────────────────────────────────

// CreatePromoCode normalizes and validates p, then stores it as an active
// code with no uses.
func (e *Engine) CreatePromoCode(ctx context.Context, p *promocode.PromoCode) error {
	p.Code = promocode.Normalize(p.Code)
	p.Amount = types.NewMoney(p.Amount.Amount, p.Amount.Currency)
	p.MinimumAmount = types.NewMoney(p.MinimumAmount.Amount, p.MinimumAmount.Currency)

	now := e.now()
	if p.ValidFrom.IsZero() {
		p.ValidFrom = now
	}
	if err := p.Validate(); err != nil {
		return ErrInvalidPromoCode.with("invalid promo code %q: %v", p.Code, err)
	}

	if p.ID.IsNil() {
		p.ID = id.NewPromoCodeID()
	}
	p.Entity = types.NewEntity(now)
	p.IsActive = true
	p.DeactivationReason = promocode.DeactivationNone
	p.CurrentUses = 0

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.CreatePromoCode(ctx, p)
	}); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrDuplicatePromoCode.with("promo code %s already exists", p.Code)
		}
		return err
	}

	e.logger.Info("promo code created",
		"promo_code_id", p.ID.String(),
		"code", p.Code,
		"discount_type", string(p.DiscountType),
	)
	return nil
}

// GetPromoCode retrieves a promo code by ID.
func (e *Engine) GetPromoCode(ctx context.Context, promoID id.PromoCodeID) (*promocode.PromoCode, error) {
	p, err := query(ctx, e, func(ctx context.Context) (*promocode.PromoCode, error) {
		return e.store.GetPromoCode(ctx, promoID)
	})
	if IsNotFound(err) {
		return nil, ErrPromoCodeNotFound.with("promo code %s not found", promoID)
	}
	return p, err
}

// GetPromoCodeByCode retrieves a promo code by its (case-insensitive) code.
func (e *Engine) GetPromoCodeByCode(ctx context.Context, code string) (*promocode.PromoCode, error) {
	code = promocode.Normalize(code)
	p, err := query(ctx, e, func(ctx context.Context) (*promocode.PromoCode, error) {
		return e.store.GetPromoCodeByCode(ctx, code)
	})
	if IsNotFound(err) {
		return nil, ErrPromoCodeNotFound.with("promo code %s not found", code)
	}
	return p, err
}

// ListPromoCodes lists promo codes.
func (e *Engine) ListPromoCodes(ctx context.Context, opts promocode.ListOpts) ([]*promocode.PromoCode, error) {
	return query(ctx, e, func(ctx context.Context) ([]*promocode.PromoCode, error) {
		return e.store.ListPromoCodes(ctx, opts)
	})
}

// ListPromoCodeUsages lists usage records.
func (e *Engine) ListPromoCodeUsages(ctx context.Context, opts promocode.UsageListOpts) ([]*promocode.Usage, error) {
	return query(ctx, e, func(ctx context.Context) ([]*promocode.Usage, error) {
		return e.store.ListPromoCodeUsages(ctx, opts)
	})
}

// DeactivatePromoCode switches a code off by hand. Manually deactivated codes
// are never re-activated by revocation or reconciliation.
func (e *Engine) DeactivatePromoCode(ctx context.Context, promoID id.PromoCodeID) error {
	if _, err := e.GetPromoCode(ctx, promoID); err != nil {
		return err
	}
	state := promocode.Activation{Active: false, Reason: promocode.DeactivationManual}
	return e.exec(ctx, func(ctx context.Context) error {
		return e.store.SetPromoCodeActivation(ctx, promoID, state, e.now())
	})
}

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

// ValidatePromoCode checks whether code may be used in uc. A rejected code is
// a result with Valid false; the error is reserved for store failures.
//
// Every call is first recorded in the attempt log and then the trailing
// window is counted, so concurrent validations never undercount.
func (e *Engine) ValidatePromoCode(ctx context.Context, code string, uc promocode.UsageContext) (*promocode.ValidationResult, error) {
	return e.validatePromoCode(ctx, code, uc, true)
}

// validatePromoCode records the attempt and, when throttled, refuses it past
// the rate limit. Conversions re-validate unthrottled: the attempt still
// counts for later validations but cannot block the conversion itself.
func (e *Engine) validatePromoCode(ctx context.Context, code string, uc promocode.UsageContext, throttled bool) (*promocode.ValidationResult, error) {
	if uc.UserID == "" {
		return nil, ErrInvalidInput.with("user_id is required to validate a promo code")
	}
	code = promocode.Normalize(code)
	now := e.now()

	attempt := &promocode.ValidationAttempt{
		ID:          id.NewValidationAttemptID(),
		UserID:      uc.UserID,
		Code:        code,
		AttemptedAt: now,
		IPAddress:   uc.IPAddress,
	}
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.attempts.RecordValidationAttempt(ctx, attempt)
	}); err != nil {
		return nil, err
	}
	if throttled {
		attempts, err := query(ctx, e, func(ctx context.Context) (int, error) {
			return e.attempts.CountValidationAttempts(ctx, uc.UserID, now.Add(-e.validationWindow))
		})
		if err != nil {
			return nil, err
		}
		if attempts > e.maxValidationAttempts {
			res := promocode.Reject(promocode.CodeRateLimitExceeded,
				fmt.Sprintf("too many promo code attempts, try again in %s", e.validationWindow))
			res.RetryAfter = e.validationWindow
			return e.validated(ctx, code, res), nil
		}
	}

	p, err := e.lookupPromoCode(ctx, code, uc.TenantID)
	if err != nil {
		if IsNotFound(err) {
			return e.validated(ctx, code, promocode.Reject(promocode.CodeNotFound, "promo code not found")), nil
		}
		return nil, err
	}

	res := p.CanBeUsedBy(uc, now)
	if !res.Valid {
		return e.validated(ctx, code, res), nil
	}

	if p.MaxUsesPerUser > 0 {
		used, err := query(ctx, e, func(ctx context.Context) (int, error) {
			return e.store.CountPromoCodeUsages(ctx, p.ID, uc.UserID)
		})
		if err != nil {
			return nil, err
		}
		if used >= p.MaxUsesPerUser {
			return e.validated(ctx, code, promocode.Reject(promocode.CodeUserLimitExceeded,
				"you have already used this promo code the maximum number of times")), nil
		}
	}

	if rej := e.plugins.CheckPromoCode(ctx, p, uc); rej != nil {
		return e.validated(ctx, code, *rej), nil
	}

	return e.validated(ctx, code, res), nil
}

func (e *Engine) validated(ctx context.Context, code string, res promocode.ValidationResult) *promocode.ValidationResult {
	e.plugins.EmitPromoCodeValidated(ctx, code, &res)
	return &res
}

// lookupPromoCode loads a code visible to tenantID: global codes and the
// tenant's own. Malformed and foreign codes read as not found.
func (e *Engine) lookupPromoCode(ctx context.Context, code, tenantID string) (*promocode.PromoCode, error) {
	if promocode.CheckFormat(code) != nil {
		return nil, ErrPromoCodeNotFound.with("promo code %s not found", code)
	}
	p, err := e.GetPromoCodeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.TenantID != "" && p.TenantID != tenantID {
		return nil, ErrPromoCodeNotFound.with("promo code %s not found", code)
	}
	return p, nil
}

// rejection turns a failed validation result into an error.
func rejection(res *promocode.ValidationResult) error {
	switch res.ErrorCode {
	case promocode.CodeNotFound:
		return ErrPromoCodeNotFound.with("%s", res.Message)
	case promocode.CodeExhausted:
		return ErrPromoCodeExhausted.with("%s", res.Message)
	case promocode.CodeUserLimitExceeded:
		return ErrUserLimitExceeded.with("%s", res.Message)
	case promocode.CodeRateLimitExceeded:
		err := ErrValidationThrottled.with("%s", res.Message)
		err.RetryAfter = res.RetryAfter
		return err
	}
	return &Error{Kind: KindValidation, Code: string(res.ErrorCode), Message: res.Message}
}

// ──────────────────────────────────────────────────
// Application
// ──────────────────────────────────────────────────

// ApplyInput describes one application of a promo code.
type ApplyInput struct {
	Code           string
	UserID         string
	TenantID       string
	SubscriptionID id.SubscriptionID
	PlanID         id.PlanID
	Amount         types.Money
	IsNewUser      bool
	IPAddress      string
	UserAgent      string
}

func (in ApplyInput) usageContext() promocode.UsageContext {
	return promocode.UsageContext{
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		PlanID:    in.PlanID,
		Amount:    in.Amount,
		IsNewUser: in.IsNewUser,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}
}

// ApplyPromoCode re-validates the code, records a usage and takes one slot
// of the code's usage cap. Losing the race for the last slot removes the
// usage again and reports the code as exhausted.
func (e *Engine) ApplyPromoCode(ctx context.Context, in ApplyInput) (*promocode.Usage, error) {
	return e.applyPromoCode(ctx, in, true)
}

func (e *Engine) applyPromoCode(ctx context.Context, in ApplyInput, throttled bool) (*promocode.Usage, error) {
	res, err := e.validatePromoCode(ctx, in.Code, in.usageContext(), throttled)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, rejection(res)
	}
	p := res.PromoCode
	now := e.now()

	u := &promocode.Usage{
		ID:              id.NewPromoCodeUsageID(),
		PromoCodeID:     p.ID,
		UserID:          in.UserID,
		TenantID:        in.TenantID,
		SubscriptionID:  in.SubscriptionID,
		DiscountApplied: res.DiscountAmount,
		UsedAt:          now,
		IPAddress:       in.IPAddress,
		UserAgent:       in.UserAgent,
	}
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.CreatePromoCodeUsage(ctx, u)
	}); err != nil {
		return nil, err
	}

	updated, err := query(ctx, e, func(ctx context.Context) (*promocode.PromoCode, error) {
		return e.store.IncrementPromoCodeUses(ctx, p.ID, now)
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			e.dropUsage(ctx, u)
			return nil, ErrPromoCodeExhausted.with("promo code %s has reached its usage limit", p.Code)
		}
		// The increment may or may not have landed.
		e.dropUsage(ctx, u)
		e.markSuspect(p.ID)
		return nil, err
	}

	e.logger.Info("promo code applied",
		"promo_code_id", p.ID.String(),
		"usage_id", u.ID.String(),
		"user_id", u.UserID,
		"discount", u.DiscountApplied.String(),
		"current_uses", updated.CurrentUses,
	)
	e.plugins.EmitPromoCodeApplied(ctx, updated, u)
	if !updated.IsActive && updated.DeactivationReason == promocode.DeactivationExhausted {
		e.plugins.EmitPromoCodeExhausted(ctx, updated)
	}
	return u, nil
}

// dropUsage deletes a usage whose counter slot was not taken. A failure
// leaves the code suspect for reconciliation.
func (e *Engine) dropUsage(ctx context.Context, u *promocode.Usage) {
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.DeletePromoCodeUsage(ctx, u.ID)
	}); err != nil && !IsNotFound(err) {
		e.logger.Warn("failed to remove promo code usage",
			"usage_id", u.ID.String(),
			"promo_code_id", u.PromoCodeID.String(),
			"error", err,
		)
		e.markSuspect(u.PromoCodeID)
	}
}

// RevokePromoCode undoes one usage: the record is deleted, the counter is
// decremented and a code deactivated only by exhaustion is re-activated
// while its validity window is still open.
func (e *Engine) RevokePromoCode(ctx context.Context, usageID id.PromoCodeUsageID) error {
	u, err := query(ctx, e, func(ctx context.Context) (*promocode.Usage, error) {
		return e.store.GetPromoCodeUsage(ctx, usageID)
	})
	if err != nil {
		if IsNotFound(err) {
			return ErrPromoCodeUsageNotFound.with("promo code usage %s not found", usageID)
		}
		return err
	}

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.DeletePromoCodeUsage(ctx, usageID)
	}); err != nil {
		if IsNotFound(err) {
			return ErrPromoCodeUsageNotFound.with("promo code usage %s already revoked", usageID)
		}
		return err
	}

	now := e.now()
	p, err := query(ctx, e, func(ctx context.Context) (*promocode.PromoCode, error) {
		return e.store.DecrementPromoCodeUses(ctx, u.PromoCodeID, now)
	})
	if err != nil {
		e.markSuspect(u.PromoCodeID)
		return err
	}

	if !p.IsActive && p.DeactivationReason == promocode.DeactivationExhausted &&
		p.WithinWindow(now) && !p.IsExhausted() {
		if err := e.exec(ctx, func(ctx context.Context) error {
			return e.store.SetPromoCodeActivation(ctx, p.ID, promocode.Activation{Active: true}, now)
		}); err != nil {
			e.logger.Warn("failed to re-activate promo code",
				"promo_code_id", p.ID.String(),
				"error", err,
			)
			e.markSuspect(p.ID)
		} else {
			p.IsActive = true
			p.DeactivationReason = promocode.DeactivationNone
		}
	}

	e.logger.Info("promo code usage revoked",
		"promo_code_id", p.ID.String(),
		"usage_id", usageID.String(),
		"current_uses", p.CurrentUses,
	)
	e.plugins.EmitPromoCodeRevoked(ctx, p, u)
	return nil
}

// revokeSubscriptionUsages revokes every usage recorded against subID.
func (e *Engine) revokeSubscriptionUsages(ctx context.Context, subID id.SubscriptionID) error {
	usages, err := e.ListPromoCodeUsages(ctx, promocode.UsageListOpts{SubscriptionID: subID})
	if err != nil {
		return err
	}
	var errs MultiError
	for _, u := range usages {
		if err := e.RevokePromoCode(ctx, u.ID); err != nil && !IsNotFound(err) {
			errs.Add(err)
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// priceSubscription applies a validated code to sub in memory.
func priceSubscription(sub *subscription.Subscription, res *promocode.ValidationResult) {
	p := res.PromoCode
	sub.DiscountAmount = res.DiscountAmount
	sub.Amount = res.FinalAmount
	sub.AppliedPromoCode = &subscription.AppliedPromoCode{
		ID:    p.ID,
		Code:  p.Code,
		Type:  p.DiscountType,
		Value: p.Value(),
	}
}

// ──────────────────────────────────────────────────
// Suspect tracking
// ──────────────────────────────────────────────────

func (e *Engine) markSuspect(promoID id.PromoCodeID) {
	e.suspectMu.Lock()
	defer e.suspectMu.Unlock()
	e.suspect[promoID.String()] = promoID
}

// takeSuspects returns and clears the suspect set.
func (e *Engine) takeSuspects() []id.PromoCodeID {
	e.suspectMu.Lock()
	defer e.suspectMu.Unlock()

	out := make([]id.PromoCodeID, 0, len(e.suspect))
	for _, pid := range e.suspect {
		out = append(out, pid)
	}
	clear(e.suspect)
	return out
}

// SuspectPromoCodes reports how many codes await reconciliation.
func (e *Engine) SuspectPromoCodes() int {
	e.suspectMu.Lock()
	defer e.suspectMu.Unlock()
	return len(e.suspect)
}
