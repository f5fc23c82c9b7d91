package subscription

import (
	"time"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/types"
)

type Status string

const (
	// StatusIncomplete marks a subscription persisted by a conversion that
	// has not yet linked its grace period.
	StatusIncomplete Status = "incomplete"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusExpired    Status = "expired"
)

// AppliedPromoCode is the snapshot of the code priced into a subscription.
type AppliedPromoCode struct {
	ID    id.PromoCodeID         `json:"id"`
	Code  string                 `json:"code"`
	Type  promocode.DiscountType `json:"type"`
	Value float64                `json:"value"`
}

type Subscription struct {
	types.Entity
	ID                 id.SubscriptionID `json:"id"`
	TenantID           string            `json:"tenant_id"`
	UserID             string            `json:"user_id"`
	PlanID             id.PlanID         `json:"plan_id"`
	Status             Status            `json:"status"`
	BillingCycle       plan.Period       `json:"billing_cycle"`
	BasePrice          types.Money       `json:"base_price"`
	DiscountAmount     types.Money       `json:"discount_amount"`
	Amount             types.Money       `json:"amount"`
	GracePeriodID      id.GracePeriodID  `json:"grace_period_id,omitzero"`
	AppliedPromoCode   *AppliedPromoCode `json:"applied_promo_code,omitempty"`
	CurrentPeriodStart time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `json:"current_period_end"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	CancelReason       string            `json:"cancel_reason,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Currency is the billing currency, carried by the base price.
func (s *Subscription) Currency() string {
	return s.BasePrice.Currency
}

func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.AppliedPromoCode != nil {
		a := *s.AppliedPromoCode
		c.AppliedPromoCode = &a
	}
	if s.CanceledAt != nil {
		t := *s.CanceledAt
		c.CanceledAt = &t
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
