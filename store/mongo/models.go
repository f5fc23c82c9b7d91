package mongo

import (
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

	ID                string              `grove:"id,pk"              bson:"_id"`
	UserID            string              `grove:"user_id"            bson:"user_id"`
	TenantID          string              `grove:"tenant_id"          bson:"tenant_id"`
	StartDate         time.Time           `grove:"start_date"         bson:"start_date"`
	EndDate           time.Time           `grove:"end_date"           bson:"end_date"`
	DurationDays      int                 `grove:"duration_days"      bson:"duration_days"`
	Status            string              `grove:"status"             bson:"status"`
	Source            string              `grove:"source"             bson:"source"`
	SourceDetails     map[string]string   `grove:"source_details"     bson:"source_details,omitempty"`
	NotificationsSent []notificationModel `grove:"notifications_sent" bson:"notifications_sent"`
	OriginalEndDate   *time.Time          `grove:"original_end_date"  bson:"original_end_date,omitempty"`
	ExtensionHistory  []extensionModel    `grove:"extension_history"  bson:"extension_history"`
	ConvertedAt       *time.Time          `grove:"converted_at"       bson:"converted_at,omitempty"`
	SelectedPlanID    string              `grove:"selected_plan_id"   bson:"selected_plan_id"`
	SubscriptionID    string              `grove:"subscription_id"    bson:"subscription_id"`
	ExpiredAt         *time.Time          `grove:"expired_at"         bson:"expired_at,omitempty"`
	CancelledAt       *time.Time          `grove:"cancelled_at"       bson:"cancelled_at,omitempty"`
	CancelReason      string              `grove:"cancel_reason"      bson:"cancel_reason"`
	Metadata          map[string]string   `grove:"metadata"           bson:"metadata,omitempty"`
	CreatedAt         time.Time           `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time           `grove:"updated_at"         bson:"updated_at"`
}

type notificationModel struct {
	Type   string    `bson:"type"`
	SentAt time.Time `bson:"sent_at"`
	Email  bool      `bson:"email"`
	Push   bool      `bson:"push"`
	InApp  bool      `bson:"in_app"`
}

type extensionModel struct {
	ExtendedBy      string    `bson:"extended_by"`
	ExtendedAt      time.Time `bson:"extended_at"`
	AdditionalDays  int       `bson:"additional_days"`
	PreviousEndDate time.Time `bson:"previous_end_date"`
	NewEndDate      time.Time `bson:"new_end_date"`
	Reason          string    `bson:"reason,omitempty"`
}

func toNotificationModel(n graceperiod.Notification) notificationModel {
	return notificationModel{
		Type:   string(n.Type),
		SentAt: n.SentAt,
		Email:  n.Channels.Email,
		Push:   n.Channels.Push,
		InApp:  n.Channels.InApp,
	}
}

func toExtensionModel(e graceperiod.Extension) extensionModel {
	return extensionModel{
		ExtendedBy:      e.ExtendedBy,
		ExtendedAt:      e.ExtendedAt,
		AdditionalDays:  e.AdditionalDays,
		PreviousEndDate: e.PreviousEndDate,
		NewEndDate:      e.NewEndDate,
		Reason:          e.Reason,
	}
}

func toGracePeriodModel(g *graceperiod.GracePeriod) *gracePeriodModel {
	notes := make([]notificationModel, len(g.NotificationsSent))
	for i, n := range g.NotificationsSent {
		notes[i] = toNotificationModel(n)
	}
	exts := make([]extensionModel, len(g.ExtensionHistory))
	for i, e := range g.ExtensionHistory {
		exts[i] = toExtensionModel(e)
	}
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
		NotificationsSent: notes,
		OriginalEndDate:   g.OriginalEndDate,
		ExtensionHistory:  exts,
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

	notes := make([]graceperiod.Notification, len(m.NotificationsSent))
	for i, n := range m.NotificationsSent {
		notes[i] = graceperiod.Notification{
			Type:     graceperiod.NotificationType(n.Type),
			SentAt:   n.SentAt.UTC(),
			Channels: graceperiod.Channels{Email: n.Email, Push: n.Push, InApp: n.InApp},
		}
	}
	exts := make([]graceperiod.Extension, len(m.ExtensionHistory))
	for i, e := range m.ExtensionHistory {
		exts[i] = graceperiod.Extension{
			ExtendedBy:      e.ExtendedBy,
			ExtendedAt:      e.ExtendedAt.UTC(),
			AdditionalDays:  e.AdditionalDays,
			PreviousEndDate: e.PreviousEndDate.UTC(),
			NewEndDate:      e.NewEndDate.UTC(),
			Reason:          e.Reason,
		}
	}

	return &graceperiod.GracePeriod{
		Entity:            types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                graceID,
		UserID:            m.UserID,
		TenantID:          m.TenantID,
		StartDate:         m.StartDate.UTC(),
		EndDate:           m.EndDate.UTC(),
		DurationDays:      m.DurationDays,
		Status:            graceperiod.Status(m.Status),
		Source:            graceperiod.Source(m.Source),
		SourceDetails:     m.SourceDetails,
		NotificationsSent: notes,
		OriginalEndDate:   utcPtr(m.OriginalEndDate),
		ExtensionHistory:  exts,
		ConvertedAt:       utcPtr(m.ConvertedAt),
		SelectedPlanID:    planID,
		SubscriptionID:    subID,
		ExpiredAt:         utcPtr(m.ExpiredAt),
		CancelledAt:       utcPtr(m.CancelledAt),
		CancelReason:      m.CancelReason,
		Metadata:          m.Metadata,
	}, nil
}

// ==================== Promo code models ====================

type promoCodeModel struct {
	grove.BaseModel `grove:"table:trialpay_promo_codes"`

	ID                 string            `grove:"id,pk"               bson:"_id"`
	Code               string            `grove:"code"                bson:"code"`
	Description        string            `grove:"description"         bson:"description"`
	DiscountType       string            `grove:"discount_type"       bson:"discount_type"`
	Percentage         float64           `grove:"percentage"          bson:"percentage"`
	Amount             int64             `grove:"amount"              bson:"amount"`
	AmountCurrency     string            `grove:"amount_currency"     bson:"amount_currency"`
	IsActive           bool              `grove:"is_active"           bson:"is_active"`
	DeactivationReason string            `grove:"deactivation_reason" bson:"deactivation_reason"`
	ValidFrom          time.Time         `grove:"valid_from"          bson:"valid_from"`
	ValidUntil         *time.Time        `grove:"valid_until"         bson:"valid_until,omitempty"`
	MaxUses            int               `grove:"max_uses"            bson:"max_uses"`
	CurrentUses        int               `grove:"current_uses"        bson:"current_uses"`
	MaxUsesPerUser     int               `grove:"max_uses_per_user"   bson:"max_uses_per_user"`
	ApplicablePlans    []string          `grove:"applicable_plans"    bson:"applicable_plans,omitempty"`
	MinimumAmount      int64             `grove:"minimum_amount"      bson:"minimum_amount"`
	MinimumCurrency    string            `grove:"minimum_currency"    bson:"minimum_currency"`
	NewUsersOnly       bool              `grove:"new_users_only"      bson:"new_users_only"`
	TenantID           string            `grove:"tenant_id"           bson:"tenant_id"`
	CreatedBy          string            `grove:"created_by"          bson:"created_by"`
	Metadata           map[string]string `grove:"metadata"            bson:"metadata,omitempty"`
	CreatedAt          time.Time         `grove:"created_at"          bson:"created_at"`
	UpdatedAt          time.Time         `grove:"updated_at"          bson:"updated_at"`
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
		ValidFrom:          p.ValidFrom,
		ValidUntil:         p.ValidUntil,
		MaxUses:            p.MaxUses,
		CurrentUses:        p.CurrentUses,
		MaxUsesPerUser:     p.MaxUsesPerUser,
		ApplicablePlans:    plans,
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
	var plans []id.PlanID
	for _, s := range m.ApplicablePlans {
		pid, err := id.ParsePlanID(s)
		if err != nil {
			return nil, err
		}
		plans = append(plans, pid)
	}

	return &promocode.PromoCode{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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

	ID               string    `grove:"id,pk"             bson:"_id"`
	PromoCodeID      string    `grove:"promo_code_id"     bson:"promo_code_id"`
	UserID           string    `grove:"user_id"           bson:"user_id"`
	TenantID         string    `grove:"tenant_id"         bson:"tenant_id"`
	SubscriptionID   string    `grove:"subscription_id"   bson:"subscription_id"`
	DiscountAmount   int64     `grove:"discount_amount"   bson:"discount_amount"`
	DiscountCurrency string    `grove:"discount_currency" bson:"discount_currency"`
	UsedAt           time.Time `grove:"used_at"           bson:"used_at"`
	IPAddress        string    `grove:"ip_address"        bson:"ip_address,omitempty"`
	UserAgent        string    `grove:"user_agent"        bson:"user_agent,omitempty"`
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

	ID          string    `grove:"id,pk"        bson:"_id"`
	UserID      string    `grove:"user_id"      bson:"user_id"`
	Code        string    `grove:"code"         bson:"code"`
	AttemptedAt time.Time `grove:"attempted_at" bson:"attempted_at"`
	IPAddress   string    `grove:"ip_address"   bson:"ip_address,omitempty"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:trialpay_subscriptions"`

	ID                 string             `grove:"id,pk"                bson:"_id"`
	TenantID           string             `grove:"tenant_id"            bson:"tenant_id"`
	UserID             string             `grove:"user_id"              bson:"user_id"`
	PlanID             string             `grove:"plan_id"              bson:"plan_id"`
	Status             string             `grove:"status"               bson:"status"`
	BillingCycle       string             `grove:"billing_cycle"        bson:"billing_cycle"`
	Currency           string             `grove:"currency"             bson:"currency"`
	BasePrice          int64              `grove:"base_price"           bson:"base_price"`
	DiscountAmount     int64              `grove:"discount_amount"      bson:"discount_amount"`
	Amount             int64              `grove:"amount"               bson:"amount"`
	GracePeriodID      string             `grove:"grace_period_id"      bson:"grace_period_id"`
	AppliedPromoCode   *appliedPromoModel `grove:"applied_promo_code"   bson:"applied_promo_code,omitempty"`
	CurrentPeriodStart time.Time          `grove:"current_period_start" bson:"current_period_start"`
	CurrentPeriodEnd   time.Time          `grove:"current_period_end"   bson:"current_period_end"`
	CanceledAt         *time.Time         `grove:"canceled_at"          bson:"canceled_at,omitempty"`
	CancelReason       string             `grove:"cancel_reason"        bson:"cancel_reason"`
	Metadata           map[string]string  `grove:"metadata"             bson:"metadata,omitempty"`
	CreatedAt          time.Time          `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time          `grove:"updated_at"           bson:"updated_at"`
}

type appliedPromoModel struct {
	ID    string  `bson:"id"`
	Code  string  `bson:"code"`
	Type  string  `bson:"type"`
	Value float64 `bson:"value"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	var applied *appliedPromoModel
	if a := s.AppliedPromoCode; a != nil {
		applied = &appliedPromoModel{ID: a.ID.String(), Code: a.Code, Type: string(a.Type), Value: a.Value}
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
	if a := m.AppliedPromoCode; a != nil {
		promoID, err := id.ParsePromoCodeID(a.ID)
		if err != nil {
			return nil, err
		}
		applied = &subscription.AppliedPromoCode{
			ID:    promoID,
			Code:  a.Code,
			Type:  promocode.DiscountType(a.Type),
			Value: a.Value,
		}
	}

	return &subscription.Subscription{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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

	ID            string            `grove:"id,pk"          bson:"_id"`
	Name          string            `grove:"name"           bson:"name"`
	Slug          string            `grove:"slug"           bson:"slug"`
	Description   string            `grove:"description"    bson:"description"`
	Price         int64             `grove:"price"          bson:"price"`
	Currency      string            `grove:"currency"       bson:"currency"`
	BillingPeriod string            `grove:"billing_period" bson:"billing_period"`
	Status        string            `grove:"status"         bson:"status"`
	TrialDays     int               `grove:"trial_days"     bson:"trial_days"`
	Features      []featureModel    `grove:"features"       bson:"features"`
	Metadata      map[string]string `grove:"metadata"       bson:"metadata,omitempty"`
	CreatedAt     time.Time         `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"     bson:"updated_at"`
}

type featureModel struct {
	Key   string `bson:"key"`
	Name  string `bson:"name"`
	Limit int64  `bson:"limit"`
}

func toPlanModel(p *plan.Plan) *planModel {
	features := make([]featureModel, len(p.Features))
	for i, f := range p.Features {
		features[i] = featureModel{Key: f.Key, Name: f.Name, Limit: f.Limit}
	}
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
		Features:      features,
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
	for _, f := range m.Features {
		features = append(features, plan.Feature{Key: f.Key, Name: f.Name, Limit: f.Limit})
	}
	return &plan.Plan{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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

	ID            string    `grove:"id,pk"          bson:"_id"`
	ActivePlanID  string    `grove:"active_plan_id" bson:"active_plan_id"`
	BillingStatus string    `grove:"billing_status" bson:"billing_status"`
	UpdatedAt     time.Time `grove:"updated_at"     bson:"updated_at"`
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

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
