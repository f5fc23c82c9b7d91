package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
	"github.com/xraph/trialpay/types"
)

// ==================== Grace period models ====================

type gracePeriodModel struct {
	grove.BaseModel `grove:"table:trialpay_grace_periods"`

	ID                string            `grove:"id,pk"`
	UserID            string            `grove:"user_id"`
	TenantID          string            `grove:"tenant_id"`
	StartDate         time.Time         `grove:"start_date"`
	EndDate           time.Time         `grove:"end_date"`
	DurationDays      int               `grove:"duration_days"`
	Status            string            `grove:"status"`
	Source            string            `grove:"source"`
	SourceDetails     map[string]string `grove:"source_details,type:jsonb"`
	NotificationsSent json.RawMessage   `grove:"notifications_sent,type:jsonb"`
	OriginalEndDate   *time.Time        `grove:"original_end_date"`
	ExtensionHistory  json.RawMessage   `grove:"extension_history,type:jsonb"`
	ConvertedAt       *time.Time        `grove:"converted_at"`
	SelectedPlanID    string            `grove:"selected_plan_id"`
	SubscriptionID    string            `grove:"subscription_id"`
	ExpiredAt         *time.Time        `grove:"expired_at"`
	CancelledAt       *time.Time        `grove:"cancelled_at"`
	CancelReason      string            `grove:"cancel_reason"`
	Metadata          map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt         time.Time         `grove:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"`
}

func toGracePeriodModel(g *graceperiod.GracePeriod) *gracePeriodModel {
	return &gracePeriodModel{
		ID:                g.ID.String(),
		UserID:            g.UserID,
		TenantID:          g.TenantID,
		StartDate:         g.StartDate,
		EndDate:           g.EndDate,
		DurationDays:      g.DurationDays,
		Status:            string(g.Status),
		Source:            string(g.Source),
		SourceDetails:     g.SourceDetails,
		NotificationsSent: jsonArray(g.NotificationsSent),
		OriginalEndDate:   g.OriginalEndDate,
		ExtensionHistory:  jsonArray(g.ExtensionHistory),
		ConvertedAt:       g.ConvertedAt,
		SelectedPlanID:    g.SelectedPlanID.String(),
		SubscriptionID:    g.SubscriptionID.String(),
		ExpiredAt:         g.ExpiredAt,
		CancelledAt:       g.CancelledAt,
		CancelReason:      g.CancelReason,
		Metadata:          g.Metadata,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
	}
}

func fromGracePeriodModel(m *gracePeriodModel) (*graceperiod.GracePeriod, error) {
	graceID, err := id.ParseGracePeriodID(m.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParseOptional(m.SelectedPlanID, id.PrefixPlan)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseOptional(m.SubscriptionID, id.PrefixSubscription)
	if err != nil {
		return nil, err
	}

	g := &graceperiod.GracePeriod{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                graceID,
		UserID:            m.UserID,
		TenantID:          m.TenantID,
		StartDate:         m.StartDate.UTC(),
		EndDate:           m.EndDate.UTC(),
		DurationDays:      m.DurationDays,
		Status:            graceperiod.Status(m.Status),
		Source:            graceperiod.Source(m.Source),
		SourceDetails:     m.SourceDetails,
		NotificationsSent: []graceperiod.Notification{},
		OriginalEndDate:   utcPtr(m.OriginalEndDate),
		ExtensionHistory:  []graceperiod.Extension{},
		ConvertedAt:       utcPtr(m.ConvertedAt),
		SelectedPlanID:    planID,
		SubscriptionID:    subID,
		ExpiredAt:         utcPtr(m.ExpiredAt),
		CancelledAt:       utcPtr(m.CancelledAt),
		CancelReason:      m.CancelReason,
		Metadata:          m.Metadata,
	}
	if len(m.NotificationsSent) > 0 {
		if err := json.Unmarshal(m.NotificationsSent, &g.NotificationsSent); err != nil {
			return nil, err
		}
	}
	if len(m.ExtensionHistory) > 0 {
		if err := json.Unmarshal(m.ExtensionHistory, &g.ExtensionHistory); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ==================== Promo code models ====================

type promoCodeModel struct {
	grove.BaseModel `grove:"table:trialpay_promo_codes"`

	ID                 string            `grove:"id,pk"`
	Code               string            `grove:"code"`
	Description        string            `grove:"description"`
	DiscountType       string            `grove:"discount_type"`
	Percentage         float64           `grove:"percentage"`
	Amount             int64             `grove:"amount"`
	AmountCurrency     string            `grove:"amount_currency"`
	IsActive           bool              `grove:"is_active"`
	DeactivationReason string            `grove:"deactivation_reason"`
	ValidFrom          time.Time         `grove:"valid_from"`
	ValidUntil         *time.Time        `grove:"valid_until"`
	MaxUses            int               `grove:"max_uses"`
	CurrentUses        int               `grove:"current_uses"`
	MaxUsesPerUser     int               `grove:"max_uses_per_user"`
	ApplicablePlans    json.RawMessage   `grove:"applicable_plans,type:jsonb"`
	MinimumAmount      int64             `grove:"minimum_amount"`
	MinimumCurrency    string            `grove:"minimum_currency"`
	NewUsersOnly       bool              `grove:"new_users_only"`
	TenantID           string            `grove:"tenant_id"`
	CreatedBy          string            `grove:"created_by"`
	Metadata           map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt          time.Time         `grove:"created_at"`
	UpdatedAt          time.Time         `grove:"updated_at"`
}

func toPromoCodeModel(p *promocode.PromoCode) *promoCodeModel {
	return &promoCodeModel{
		ID:                 p.ID.String(),
		Code:               p.Code,
		Description:        p.Description,
		DiscountType:       string(p.DiscountType),
		Percentage:         p.Percentage,
		Amount:             p.Amount.Amount,
		AmountCurrency:     p.Amount.Currency,
		IsActive:           p.IsActive,
		DeactivationReason: string(p.DeactivationReason),
		ValidFrom:          p.ValidFrom,
		ValidUntil:         p.ValidUntil,
		MaxUses:            p.MaxUses,
		CurrentUses:        p.CurrentUses,
		MaxUsesPerUser:     p.MaxUsesPerUser,
		ApplicablePlans:    jsonArray(planIDStrings(p.ApplicablePlans)),
		MinimumAmount:      p.MinimumAmount.Amount,
		MinimumCurrency:    p.MinimumAmount.Currency,
		NewUsersOnly:       p.NewUsersOnly,
		TenantID:           p.TenantID,
		CreatedBy:          p.CreatedBy,
		Metadata:           p.Metadata,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func fromPromoCodeModel(m *promoCodeModel) (*promocode.PromoCode, error) {
	promoID, err := id.ParsePromoCodeID(m.ID)
	if err != nil {
		return nil, err
	}
	plans, err := parsePlanIDs(m.ApplicablePlans)
	if err != nil {
		return nil, err
	}

	return &promocode.PromoCode{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 promoID,
		Code:               m.Code,
		Description:        m.Description,
		DiscountType:       promocode.DiscountType(m.DiscountType),
		Percentage:         m.Percentage,
		Amount:             types.Money{Amount: m.Amount, Currency: m.AmountCurrency},
		IsActive:           m.IsActive,
		DeactivationReason: promocode.DeactivationReason(m.DeactivationReason),
		ValidFrom:          m.ValidFrom.UTC(),
		ValidUntil:         utcPtr(m.ValidUntil),
		MaxUses:            m.MaxUses,
		CurrentUses:        m.CurrentUses,
		MaxUsesPerUser:     m.MaxUsesPerUser,
		ApplicablePlans:    plans,
		MinimumAmount:      types.Money{Amount: m.MinimumAmount, Currency: m.MinimumCurrency},
		NewUsersOnly:       m.NewUsersOnly,
		TenantID:           m.TenantID,
		CreatedBy:          m.CreatedBy,
		Metadata:           m.Metadata,
	}, nil
}

type promoCodeUsageModel struct {
	grove.BaseModel `grove:"table:trialpay_promo_code_usages"`

	ID               string    `grove:"id,pk"`
	PromoCodeID      string    `grove:"promo_code_id"`
	UserID           string    `grove:"user_id"`
	TenantID         string    `grove:"tenant_id"`
	SubscriptionID   string    `grove:"subscription_id"`
	DiscountAmount   int64     `grove:"discount_amount"`
	DiscountCurrency string    `grove:"discount_currency"`
	UsedAt           time.Time `grove:"used_at"`
	IPAddress        string    `grove:"ip_address"`
	UserAgent        string    `grove:"user_agent"`
}

func toPromoCodeUsageModel(u *promocode.Usage) *promoCodeUsageModel {
	return &promoCodeUsageModel{
		ID:               u.ID.String(),
		PromoCodeID:      u.PromoCodeID.String(),
		UserID:           u.UserID,
		TenantID:         u.TenantID,
		SubscriptionID:   u.SubscriptionID.String(),
		DiscountAmount:   u.DiscountApplied.Amount,
		DiscountCurrency: u.DiscountApplied.Currency,
		UsedAt:           u.UsedAt,
		IPAddress:        u.IPAddress,
		UserAgent:        u.UserAgent,
	}
}

func fromPromoCodeUsageModel(m *promoCodeUsageModel) (*promocode.Usage, error) {
	usageID, err := id.ParsePromoCodeUsageID(m.ID)
	if err != nil {
		return nil, err
	}
	promoID, err := id.ParsePromoCodeID(m.PromoCodeID)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseOptional(m.SubscriptionID, id.PrefixSubscription)
	if err != nil {
		return nil, err
	}

	return &promocode.Usage{
		ID:              usageID,
		PromoCodeID:     promoID,
		UserID:          m.UserID,
		TenantID:        m.TenantID,
		SubscriptionID:  subID,
		DiscountApplied: types.Money{Amount: m.DiscountAmount, Currency: m.DiscountCurrency},
		UsedAt:          m.UsedAt.UTC(),
		IPAddress:       m.IPAddress,
		UserAgent:       m.UserAgent,
	}, nil
}

type validationAttemptModel struct {
	grove.BaseModel `grove:"table:trialpay_validation_attempts"`

	ID          string    `grove:"id,pk"`
	UserID      string    `grove:"user_id"`
	Code        string    `grove:"code"`
	AttemptedAt time.Time `grove:"attempted_at"`
	IPAddress   string    `grove:"ip_address"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:trialpay_subscriptions"`

	ID                 string            `grove:"id,pk"`
	TenantID           string            `grove:"tenant_id"`
	UserID             string            `grove:"user_id"`
	PlanID             string            `grove:"plan_id"`
	Status             string            `grove:"status"`
	BillingCycle       string            `grove:"billing_cycle"`
	Currency           string            `grove:"currency"`
	BasePrice          int64             `grove:"base_price"`
	DiscountAmount     int64             `grove:"discount_amount"`
	Amount             int64             `grove:"amount"`
	GracePeriodID      string            `grove:"grace_period_id"`
	AppliedPromoCode   json.RawMessage   `grove:"applied_promo_code,type:jsonb"`
	CurrentPeriodStart time.Time         `grove:"current_period_start"`
	CurrentPeriodEnd   time.Time         `grove:"current_period_end"`
	CanceledAt         *time.Time        `grove:"canceled_at"`
	CancelReason       string            `grove:"cancel_reason"`
	Metadata           map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt          time.Time         `grove:"created_at"`
	UpdatedAt          time.Time         `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	var applied json.RawMessage
	if s.AppliedPromoCode != nil {
		applied, _ = json.Marshal(s.AppliedPromoCode) //nolint:errcheck // plain struct
	}
	return &subscriptionModel{
		ID:                 s.ID.String(),
		TenantID:           s.TenantID,
		UserID:             s.UserID,
		PlanID:             s.PlanID.String(),
		Status:             string(s.Status),
		BillingCycle:       string(s.BillingCycle),
		Currency:           s.Currency(),
		BasePrice:          s.BasePrice.Amount,
		DiscountAmount:     s.DiscountAmount.Amount,
		Amount:             s.Amount.Amount,
		GracePeriodID:      s.GracePeriodID.String(),
		AppliedPromoCode:   applied,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CanceledAt:         s.CanceledAt,
		CancelReason:       s.CancelReason,
		Metadata:           s.Metadata,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}
	graceID, err := id.ParseOptional(m.GracePeriodID, id.PrefixGracePeriod)
	if err != nil {
		return nil, err
	}

	var applied *subscription.AppliedPromoCode
	if len(m.AppliedPromoCode) > 0 && string(m.AppliedPromoCode) != "null" {
		applied = new(subscription.AppliedPromoCode)
		if err := json.Unmarshal(m.AppliedPromoCode, applied); err != nil {
			return nil, err
		}
	}

	return &subscription.Subscription{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 subID,
		TenantID:           m.TenantID,
		UserID:             m.UserID,
		PlanID:             planID,
		Status:             subscription.Status(m.Status),
		BillingCycle:       plan.Period(m.BillingCycle),
		BasePrice:          types.Money{Amount: m.BasePrice, Currency: m.Currency},
		DiscountAmount:     types.Money{Amount: m.DiscountAmount, Currency: m.Currency},
		Amount:             types.Money{Amount: m.Amount, Currency: m.Currency},
		GracePeriodID:      graceID,
		AppliedPromoCode:   applied,
		CurrentPeriodStart: m.CurrentPeriodStart.UTC(),
		CurrentPeriodEnd:   m.CurrentPeriodEnd.UTC(),
		CanceledAt:         utcPtr(m.CanceledAt),
		CancelReason:       m.CancelReason,
		Metadata:           m.Metadata,
	}, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:trialpay_plans"`

	ID            string            `grove:"id,pk"`
	Name          string            `grove:"name"`
	Slug          string            `grove:"slug"`
	Description   string            `grove:"description"`
	Price         int64             `grove:"price"`
	Currency      string            `grove:"currency"`
	BillingPeriod string            `grove:"billing_period"`
	Status        string            `grove:"status"`
	TrialDays     int               `grove:"trial_days"`
	Features      json.RawMessage   `grove:"features,type:jsonb"`
	Metadata      map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt     time.Time         `grove:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Slug:          p.Slug,
		Description:   p.Description,
		Price:         p.Price.Amount,
		Currency:      p.Price.Currency,
		BillingPeriod: string(p.BillingPeriod),
		Status:        string(p.Status),
		TrialDays:     p.TrialDays,
		Features:      jsonArray(p.Features),
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}

	var features []plan.Feature
	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &features); err != nil {
			return nil, err
		}
	}

	return &plan.Plan{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            planID,
		Name:          m.Name,
		Slug:          m.Slug,
		Description:   m.Description,
		Price:         types.Money{Amount: m.Price, Currency: m.Currency},
		BillingPeriod: plan.Period(m.BillingPeriod),
		Status:        plan.Status(m.Status),
		TrialDays:     m.TrialDays,
		Features:      features,
		Metadata:      m.Metadata,
	}, nil
}

// ==================== Tenant models ====================

type tenantModel struct {
	grove.BaseModel `grove:"table:trialpay_tenants"`

	ID            string    `grove:"id,pk"`
	ActivePlanID  string    `grove:"active_plan_id"`
	BillingStatus string    `grove:"billing_status"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func fromTenantModel(m *tenantModel) (*tenant.Tenant, error) {
	planID, err := id.ParseOptional(m.ActivePlanID, id.PrefixPlan)
	if err != nil {
		return nil, err
	}
	return &tenant.Tenant{
		ID:            m.ID,
		ActivePlanID:  planID,
		BillingStatus: tenant.BillingStatus(m.BillingStatus),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}, nil
}

// ==================== Helpers ====================

// jsonArray marshals a slice, writing nil as [] so jsonb appends work.
func jsonArray[T any](v []T) json.RawMessage {
	if v == nil {
		v = []T{}
	}
	b, _ := json.Marshal(v) //nolint:errcheck // slices of plain structs
	return b
}

func planIDStrings(ids []id.PlanID) []string {
	out := make([]string, len(ids))
	for i, pid := range ids {
		out[i] = pid.String()
	}
	return out
}

func parsePlanIDs(raw json.RawMessage) ([]id.PlanID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, err
	}
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]id.PlanID, len(ss))
	for i, s := range ss {
		pid, err := id.ParsePlanID(s)
		if err != nil {
			return nil, err
		}
		out[i] = pid
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
