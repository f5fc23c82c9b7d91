package audithook

// Action constants for audit events.
const (
	// Grace period actions
	ActionGracePeriodCreated   = "grace_period.created"
	ActionGracePeriodExtended  = "grace_period.extended"
	ActionGracePeriodCancelled = "grace_period.cancelled"
	ActionGracePeriodExpired   = "grace_period.expired"
	ActionGracePeriodConverted = "grace_period.converted"
	ActionNotificationSent     = "grace_period.notification_sent"

	// Promo code actions
	ActionPromoCodeRejected  = "promo_code.rejected"
	ActionPromoCodeThrottled = "promo_code.throttled"
	ActionPromoCodeApplied   = "promo_code.applied"
	ActionPromoCodeRevoked   = "promo_code.revoked"
	ActionPromoCodeExhausted = "promo_code.exhausted"
	ActionPromoCodeDrift     = "promo_code.drift_repaired"

	// Subscription actions
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionCanceled = "subscription.canceled"
)

// Resource constants for audit events.
const (
	ResourceGracePeriod  = "grace_period"
	ResourcePromoCode    = "promo_code"
	ResourceSubscription = "subscription"
)

// Category constants for audit events.
const (
	CategoryTrial        = "trial"
	CategoryPromotion    = "promotion"
	CategorySubscription = "subscription"
	CategoryAbuse        = "abuse"
	CategoryIntegrity    = "integrity"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
