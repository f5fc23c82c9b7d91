package trialpay

import (
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/types"
)

// Re-export common types so callers rarely need the sub-packages.

// Money is re-exported from types package.
type Money = types.Money

// GracePeriod is re-exported from graceperiod package.
type GracePeriod = graceperiod.GracePeriod

// PromoCode is re-exported from promocode package.
type PromoCode = promocode.PromoCode

// ValidationResult is re-exported from promocode package.
type ValidationResult = promocode.ValidationResult

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	Zero = types.Zero
)

// Grace period sources.
const (
	SourceNewRegistration = graceperiod.SourceNewRegistration
	SourcePlanMigration   = graceperiod.SourcePlanMigration
	SourceAdminGranted    = graceperiod.SourceAdminGranted
	SourcePromoCode       = graceperiod.SourcePromoCode
)
