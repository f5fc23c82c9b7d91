package trialpay_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/store/memory"
	"github.com/xraph/trialpay/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation run as written.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for demo, use PostgreSQL in production
		tp := trialpay.New(memory.New(),
			trialpay.WithLogger(slog.Default()),
			trialpay.WithSweepInterval(5*time.Minute),
		)

		ctx := context.Background()
		if err := tp.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer tp.Stop()

		proPlan := &plan.Plan{
			Name:  "Pro Plan",
			Slug:  "pro",
			Price: types.USD(4900), // $49.00
			Features: []plan.Feature{
				{Key: "seats", Name: "Team Seats", Limit: 5},
			},
		}
		if err := tp.CreatePlan(ctx, proPlan); err != nil {
			t.Fatal(err)
		}

		spring := &promocode.PromoCode{
			Code:         "spring25",
			DiscountType: promocode.DiscountPercentage,
			Percentage:   25,
			MaxUses:      1000,
		}
		if err := tp.CreatePromoCode(ctx, spring); err != nil {
			t.Fatal(err)
		}

		// Core Concepts: a grace period opens when a user signs up
		g, err := tp.CreateGracePeriod(ctx, trialpay.CreateGracePeriodInput{
			UserID:   "user_123",
			TenantID: "tenant_123",
			Source:   trialpay.SourceNewRegistration, // 14 days
		})
		if err != nil {
			t.Fatal(err)
		}

		res, err := tp.ValidatePromoCode(ctx, "spring25", promocode.UsageContext{
			UserID: "user_123",
			PlanID: proPlan.ID,
			Amount: proPlan.Price,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Valid {
			t.Fatalf("promo code rejected: %s", res.ErrorCode)
		}
		log.Printf("you pay %s\n", res.FinalAmount)

		sub, err := tp.ConvertGracePeriod(ctx, g.ID, proPlan.ID, "SPRING25")
		if err != nil {
			t.Fatal(err)
		}
		if sub.Amount != types.USD(3675) {
			t.Fatalf("subscription amount = %s, want usd 36.75", sub.Amount)
		}

		// A second conversion of the same period is rejected
		_, err = tp.ConvertGracePeriod(ctx, g.ID, proPlan.ID, "")
		if !trialpay.IsInvalidState(err) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("ErrorExamples", func(t *testing.T) {
		tp := trialpay.New(memory.New())
		ctx := context.Background()

		once := &promocode.PromoCode{
			Code:         "ONCE",
			DiscountType: promocode.DiscountFixedAmount,
			Amount:       types.USD(500),
			MaxUses:      1,
		}
		if err := tp.CreatePromoCode(ctx, once); err != nil {
			t.Fatal(err)
		}

		in := trialpay.ApplyInput{Code: "once", UserID: "user_1", Amount: types.USD(2000)}
		if _, err := tp.ApplyPromoCode(ctx, in); err != nil {
			t.Fatal(err)
		}

		in.UserID = "user_2"
		_, err := tp.ApplyPromoCode(ctx, in)
		if !trialpay.IsExhausted(err) {
			t.Fatalf("expected exhausted, got %v", err)
		}
		if code := trialpay.CodeOf(err); code != "CODE_EXHAUSTED" {
			t.Fatalf("CodeOf = %q", code)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		_ = types.USD(4900)   // $49.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("usd") // $0.00

		m := types.USD(4900)
		if got := m.Percent(25); got != types.USD(1225) {
			t.Fatalf("Percent = %s", got)
		}
		if got := types.USD(100).SubtractFloor(types.USD(300)); !got.IsZero() {
			t.Fatalf("SubtractFloor = %s", got)
		}
		if s := m.String(); s != "usd 49.00" {
			t.Fatalf("String = %q", s)
		}
	})
}
