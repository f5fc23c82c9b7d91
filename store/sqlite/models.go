package sqlite

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

// Timestamps are stored as INTEGER unix milliseconds so range filters and
// the compare-and-set on end_date are numeric comparisons.

// ==================== Grace period models ====================

type gracePeriodModel struct {
	grove.BaseModel `grove:"table:trialpay_grace_periods"`

	ID                string `grove:"id,pk"`
	UserID            string `grove:"user_id"`
	TenantID          string `grove:"tenant_id"`
	StartDate         int64  `grove:"start_date"`
	EndDate           int64  `grove:"end_date"`
	DurationDays      int    `grove:"duration_days"`
	Status            string `grove:"status"`
	Source            string `grove:"source"`
	SourceDetails     string `grove:"source_details"`
	NotificationsSent string `grove:"notifications_sent"`
	OriginalEndDate   *int64 `grove:"original_end_date"`
	ExtensionHistory  string `grove:"extension_history"`
	ConvertedAt       *int64 `grove:"converted_at"`
	SelectedPlanID    string `grove:"selected_plan_id"`
	SubscriptionID    string `grove:"subscription_id"`
	ExpiredAt         *int64 `grove:"expired_at"`
	CancelledAt       *int64 `grove:"cancelled_at"`
	CancelReason      string `grove:"cancel_reason"`
	Metadata          string `grove:"metadata"`
	CreatedAt         int64  `grove:"created_at"`
	UpdatedAt         int64  `grove:"updated_at"`
}

func toGracePeriodModel(g *graceperiod.GracePeriod) *gracePeriodModel {
	return &gracePeriodModel{
		ID:                g.ID.String(),
		UserID:            g.UserID,
		TenantID:          g.TenantID,
		StartDate:         millis(g.StartDate),
		EndDate:           millis(g.EndDate),
		DurationDays:      g.DurationDays,
		Status:            string(g.Status),
		Source:            string(g.Source),
		SourceDetails:     jsonObject(g.SourceDetails),
		NotificationsSent: jsonArray(g.NotificationsSent),
		OriginalEndDate:   millisPtr(g.OriginalEndDate),
		ExtensionHistory:  jsonArray(g.ExtensionHistory),
		ConvertedAt:       millisPtr(g.ConvertedAt),
		SelectedPlanID:    g.SelectedPlanID.String(),
		SubscriptionID:    g.SubscriptionID.String(),
		ExpiredAt:         millisPtr(g.ExpiredAt),
		CancelledAt:       millisPtr(g.CancelledAt),
		CancelReason:      g.CancelReason,
		Metadata:          jsonObject(g.Metadata),
		CreatedAt:         millis(g.CreatedAt),
		UpdatedAt:         millis(g.UpdatedAt),
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
		Entity:            types.Entity{CreatedAt: fromMillis(m.CreatedAt), UpdatedAt: fromMillis(m.UpdatedAt)},
		ID:                graceID,
		UserID:            m.UserID,
		TenantID:          m.TenantID,
		StartDate:         fromMillis(m.StartDate),
		EndDate:           fromMillis(m.EndDate),
		DurationDays:      m.DurationDays,
		Status:            graceperiod.Status(m.Status),
		Source:            graceperiod.Source(m.Source),
		NotificationsSent: []graceperiod.Notification{},
		OriginalEndDate:   fromMillisPtr(m.OriginalEndDate),
		ExtensionHistory:  []graceperiod.Extension{},
		ConvertedAt:       fromMillisPtr(m.ConvertedAt),
		SelectedPlanID:    planID,
		SubscriptionID:    subID,
		ExpiredAt:         fromMillisPtr(m.ExpiredAt),
		CancelledAt:       fromMillisPtr(m.CancelledAt),
		CancelReason:      m.CancelReason,
	}
	if err := decode(m.SourceDetails, &g.SourceDetails); err != nil {
		return nil, err
	}
	if err := decode(m.Metadata, &g.Metadata); err != nil {
		return nil, err
	}
	if err := decode(m.NotificationsSent, &g.NotificationsSent); err != nil {
		return nil, err
	}
	if err := decode(m.ExtensionHistory, &g.ExtensionHistory); err != nil {
		return nil, err
	}
	return g, nil
}

// ==================== Promo code models ====================

type promoCodeModel struct {
	grove.BaseModel `grove:"table:trialpay_promo_codes"`

	ID                 string  `grove:"id,pk"`
	Code               string  `grove:"code"`
	Description        string  `grove:"description"`
	DiscountType       string  `grove:"discount_type"`
	Percentage         float64 `grove:"percentage"`
	Amount             int64   `grove:"amount"`
	AmountCurrency     string  `grove:"amount_currency"`
	IsActive           bool    `grove:"is_active"`
	DeactivationReason string  `grove:"deactivation_reason"`
	ValidFrom          int64   `grove:"valid_from"`
	ValidUntil         *int64  `grove:"valid_until"`
	MaxUses            int     `grove:"max_uses"`
	CurrentUses        int     `grove:"current_uses"`
	MaxUsesPerUser     int     `grove:"max_uses_per_user"`
	ApplicablePlans    string  `grove:"applicable_plans"`
	MinimumAmount      int64   `grove:"minimum_amount"`
	MinimumCurrency    string  `grove:"minimum_currency"`
	NewUsersOnly       bool    `grove:"new_users_only"`
	TenantID           string  `grove:"tenant_id"`
	CreatedBy          string  `grove:"created_by"`
	Metadata           string  `grove:"metadata"`
	CreatedAt          int64   `grove:"created_at"`
	UpdatedAt          int64   `grove:"updated_at"`
}

func toPromoCodeModel(p *promocode.PromoCode) *promoCodeModel {
	plans := make([]string, len(p.ApplicablePlans))
	for i, pid := range p.ApplicablePlans {
		plans[i] = pid.String()
	}
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
		ValidFrom:          millis(p.ValidFrom),
		ValidUntil:         millisPtr(p.ValidUntil),
		MaxUses:            p.MaxUses,
		CurrentUses:        p.CurrentUses,
		MaxUsesPerUser:     p.MaxUsesPerUser,
		ApplicablePlans:    jsonArray(plans),
		MinimumAmount:      p.MinimumAmount.Amount,
		MinimumCurrency:    p.MinimumAmount.Currency,
		NewUsersOnly:       p.NewUsersOnly,
		TenantID:           p.TenantID,
		CreatedBy:          p.CreatedBy,
		Metadata:           jsonObject(p.Metadata),
		CreatedAt:          millis(p.CreatedAt),
		UpdatedAt:          millis(p.UpdatedAt),
	}
}

func fromPromoCodeModel(m *promoCodeModel) (*promocode.PromoCode, error) {
	promoID, err := id.ParsePromoCodeID(m.ID)
	if err != nil {
		return nil, err
	}
	var plans []string
	if err := decode(m.ApplicablePlans, &plans); err != nil {
		return nil, err
	}
	var planIDs []id.PlanID
	for _, s := range plans {
		pid, err := id.ParsePlanID(s)
		if err != nil {
			return nil, err
		}
		planIDs = append(planIDs, pid)
	}

	p := &promocode.PromoCode{
		Entity:             types.Entity{CreatedAt: fromMillis(m.CreatedAt), UpdatedAt: fromMillis(m.UpdatedAt)},
		ID:                 promoID,
		Code:               m.Code,
		Description:        m.Description,
		DiscountType:       promocode.DiscountType(m.DiscountType),
		Percentage:         m.Percentage,
		Amount:             types.Money{Amount: m.Amount, Currency: m.AmountCurrency},
		IsActive:           m.IsActive,
		DeactivationReason: promocode.DeactivationReason(m.DeactivationReason),
		ValidFrom:          fromMillis(m.ValidFrom),
		ValidUntil:         fromMillisPtr(m.ValidUntil),
		MaxUses:            m.MaxUses,
		CurrentUses:        m.CurrentUses,
		MaxUsesPerUser:     m.MaxUsesPerUser,
		ApplicablePlans:    planIDs,
		MinimumAmount:      types.Money{Amount: m.MinimumAmount, Currency: m.MinimumCurrency},
		NewUsersOnly:       m.NewUsersOnly,
		TenantID:           m.TenantID,
		CreatedBy:          m.CreatedBy,
	}
	if err := decode(m.Metadata, &p.Metadata); err != nil {
		return nil, err
	}
	return p, nil
}

type promoCodeUsageModel struct {
	grove.BaseModel `grove:"table:trialpay_promo_code_usages"`

	ID               string `grove:"id,pk"`
	PromoCodeID      string `grove:"promo_code_id"`
	UserID           string `grove:"user_id"`
	TenantID         string `grove:"tenant_id"`
	SubscriptionID   string `grove:"subscription_id"`
	DiscountAmount   int64  `grove:"discount_amount"`
	DiscountCurrency string `grove:"discount_currency"`
	UsedAt           int64  `grove:"used_at"`
	IPAddress        string `grove:"ip_address"`
	UserAgent        string `grove:"user_agent"`
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
		UsedAt:           millis(u.UsedAt),
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
		UsedAt:          fromMillis(m.UsedAt),
		IPAddress:       m.IPAddress,
		UserAgent:       m.UserAgent,
	}, nil
}

type validationAttemptModel struct {
	grove.BaseModel `grove:"table:trialpay_validation_attempts"`

	ID          string `grove:"id,pk"`
	UserID      string `grove:"user_id"`
	Code        string `grove:"code"`
	AttemptedAt int64  `grove:"attempted_at"`
	IPAddress   string `grove:"ip_address"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:trialpay_subscriptions"`

	ID                 string `grove:"id,pk"`
	TenantID           string `grove:"tenant_id"`
	UserID             string `grove:"user_id"`
	PlanID             string `grove:"plan_id"`
	Status             string `grove:"status"`
	BillingCycle       string `grove:"billing_cycle"`
	Currency           string `grove:"currency"`
	BasePrice          int64  `grove:"base_price"`
	DiscountAmount     int64  `grove:"discount_amount"`
	Amount             int64  `grove:"amount"`
	GracePeriodID      string `grove:"grace_period_id"`
	AppliedPromoCode   string `grove:"applied_promo_code"`
	CurrentPeriodStart int64  `grove:"current_period_start"`
	CurrentPeriodEnd   int64  `grove:"current_period_end"`
	CanceledAt         *int64 `grove:"canceled_at"`
	CancelReason       string `grove:"cancel_reason"`
	Metadata           string `grove:"metadata"`
	CreatedAt          int64  `grove:"created_at"`
	UpdatedAt          int64  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	applied := ""
	if s.AppliedPromoCode != nil {
		b, _ := json.Marshal(s.AppliedPromoCode) //nolint:errcheck // plain struct
		applied = string(b)
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
		CurrentPeriodStart: millis(s.CurrentPeriodStart),
		CurrentPeriodEnd:   millis(s.CurrentPeriodEnd),
		CanceledAt:         millisPtr(s.CanceledAt),
		CancelReason:       s.CancelReason,
		Metadata:           jsonObject(s.Metadata),
		CreatedAt:          millis(s.CreatedAt),
		UpdatedAt:          millis(s.UpdatedAt),
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

	s := &subscription.Subscription{
		Entity:             types.Entity{CreatedAt: fromMillis(m.CreatedAt), UpdatedAt: fromMillis(m.UpdatedAt)},
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
		CurrentPeriodStart: fromMillis(m.CurrentPeriodStart),
		CurrentPeriodEnd:   fromMillis(m.CurrentPeriodEnd),
		CanceledAt:         fromMillisPtr(m.CanceledAt),
		CancelReason:       m.CancelReason,
	}
	if m.AppliedPromoCode != "" {
		s.AppliedPromoCode = new(subscription.AppliedPromoCode)
		if err := json.Unmarshal([]byte(m.AppliedPromoCode), s.AppliedPromoCode); err != nil {
			return nil, err
		}
	}
	if err := decode(m.Metadata, &s.Metadata); err != nil {
		return nil, err
	}
	return s, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:trialpay_plans"`

	ID            string `grove:"id,pk"`
	Name          string `grove:"name"`
	Slug          string `grove:"slug"`
	Description   string `grove:"description"`
	Price         int64  `grove:"price"`
	Currency      string `grove:"currency"`
	BillingPeriod string `grove:"billing_period"`
	Status        string `grove:"status"`
	TrialDays     int    `grove:"trial_days"`
	Features      string `grove:"features"`
	Metadata      string `grove:"metadata"`
	CreatedAt     int64  `grove:"created_at"`
	UpdatedAt     int64  `grove:"updated_at"`
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
		Metadata:      jsonObject(p.Metadata),
		CreatedAt:     millis(p.CreatedAt),
		UpdatedAt:     millis(p.UpdatedAt),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	p := &plan.Plan{
		Entity:        types.Entity{CreatedAt: fromMillis(m.CreatedAt), UpdatedAt: fromMillis(m.UpdatedAt)},
		ID:            planID,
		Name:          m.Name,
		Slug:          m.Slug,
		Description:   m.Description,
		Price:         types.Money{Amount: m.Price, Currency: m.Currency},
		BillingPeriod: plan.Period(m.BillingPeriod),
		Status:        plan.Status(m.Status),
		TrialDays:     m.TrialDays,
	}
	if err := decode(m.Features, &p.Features); err != nil {
		return nil, err
	}
	if err := decode(m.Metadata, &p.Metadata); err != nil {
		return nil, err
	}
	return p, nil
}

// ==================== Tenant models ====================

type tenantModel struct {
	grove.BaseModel `grove:"table:trialpay_tenants"`

	ID            string `grove:"id,pk"`
	ActivePlanID  string `grove:"active_plan_id"`
	BillingStatus string `grove:"billing_status"`
	UpdatedAt     int64  `grove:"updated_at"`
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
		UpdatedAt:     fromMillis(m.UpdatedAt),
	}, nil
}

// ==================== Helpers ====================

func millis(t time.Time) int64 { return t.UnixMilli() }

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

// jsonArray marshals a slice, writing nil as [] so json_insert appends work.
func jsonArray[T any](v []T) string {
	if v == nil {
		v = []T{}
	}
	b, _ := json.Marshal(v) //nolint:errcheck // slices of plain structs
	return string(b)
}

func jsonObject(m map[string]string) string {
	if m == nil {
		return "{}"
	}
	b, _ := json.Marshal(m) //nolint:errcheck // string map
	return string(b)
}

func decode(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}
