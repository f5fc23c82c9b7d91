// Package trialpay provides the trial-to-paid lifecycle of a SaaS billing
// system as a Go library.
//
// Trialpay is a library, not a service. Import it into your application and
// back it with one of the stores. It provides:
//
//   - Grace periods: one active trial window per user, extendable up to a
//     year in total, cancellable, expired by a sweep
//   - Promo codes with global and per-user caps, a per-user validation rate
//     limit and counters that reconcile against their usage records
//   - Conversion of a grace period into a paid subscription, exactly once
//     even under concurrent requests
//   - Reminder notifications seven, three and one day before expiry, and a
//     final one on expiry, each sent at most once
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/trialpay"
//	    "github.com/xraph/trialpay/store/memory"
//	)
//
//	tp := trialpay.New(memory.New(),
//	    trialpay.WithSweepInterval(5*time.Minute),
//	)
//	if err := tp.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer tp.Stop()
//
// # Core Concepts
//
// A grace period opens when a user signs up:
//
//	g, err := tp.CreateGracePeriod(ctx, trialpay.CreateGracePeriodInput{
//	    UserID:   "user_123",
//	    TenantID: "tenant_123",
//	    Source:   trialpay.SourceNewRegistration, // 14 days
//	})
//
// Before paying, the user may check a promo code:
//
//	res, err := tp.ValidatePromoCode(ctx, "spring25", promocode.UsageContext{
//	    UserID: "user_123",
//	    PlanID: proPlan.ID,
//	    Amount: proPlan.Price,
//	})
//	if res.Valid {
//	    fmt.Println("you pay", res.FinalAmount)
//	}
//
// Converting creates the subscription, records the promo usage and points
// the tenant at the new plan:
//
//	sub, err := tp.ConvertGracePeriod(ctx, g.ID, proPlan.ID, "SPRING25")
//
// Rejected codes come back as errors carrying the validation code:
//
//	if trialpay.IsExhausted(err) { ... }
//	trialpay.CodeOf(err) // "CODE_EXHAUSTED"
//
// # Sweeps
//
// RunExpirySweep and RunReminderSweep are idempotent and safe to run from
// several processes at once; every state change is a conditional write.
// ReconcilePromoCodes and ReconcileSubscriptions repair what a crash between
// two writes can leave behind. With WithSweepInterval set, Start runs all of
// them in the background.
//
// # Storage
//
// Stores live under store/: memory for tests, postgres, sqlite and mongo on
// top of grove. The promo validation attempt log can be moved to Redis with
// attemptlog/redis so several instances share one rate limit.
//
// # Integration
//
// The extension package registers the engine with a Forge application;
// audit_hook and observability adapt the lifecycle hooks to an audit
// recorder and to metrics.
package trialpay
