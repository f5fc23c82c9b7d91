package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/trialpay/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"GracePeriodID", id.NewGracePeriodID, "grace_"},
		{"PromoCodeID", id.NewPromoCodeID, "promo_"},
		{"PromoCodeUsageID", id.NewPromoCodeUsageID, "pcu_"},
		{"ValidationAttemptID", id.NewValidationAttemptID, "pva_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"PlanID", id.NewPlanID, "plan_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"GracePeriodID", id.NewGracePeriodID, id.ParseGracePeriodID},
		{"PromoCodeID", id.NewPromoCodeID, id.ParsePromoCodeID},
		{"PromoCodeUsageID", id.NewPromoCodeUsageID, id.ParsePromoCodeUsageID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
		{"PlanID", id.NewPlanID, id.ParsePlanID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !parsed.Equal(original) {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseGracePeriodID(id.NewSubscriptionID().String()); err == nil {
		t.Error("expected grace parser to reject sub_ id")
	}
	if _, err := id.ParsePromoCodeID(id.NewPromoCodeUsageID().String()); err == nil {
		t.Error("expected promo parser to reject pcu_ id")
	}
}

func TestParseOptional(t *testing.T) {
	got, err := id.ParseOptional("", id.PrefixSubscription)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsNil() {
		t.Error("expected nil ID for empty input")
	}

	sub := id.NewSubscriptionID()
	got, err = id.ParseOptional(sub.String(), id.PrefixSubscription)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(sub) {
		t.Errorf("got %q, want %q", got, sub)
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("expected NULL value, got %v (%v)", v, err)
	}
}

func TestScan(t *testing.T) {
	original := id.NewGracePeriodID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if !fromString.Equal(original) {
		t.Errorf("scan string mismatch")
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("expected nil after scanning NULL")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
