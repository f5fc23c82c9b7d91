package types

import "testing"

func TestPercent(t *testing.T) {
	tests := []struct {
		name   string
		amount Money
		pct    int
		want   int64
	}{
		{"twenty percent", USD(100), 20, 20},
		{"rounds down", USD(999), 15, 149},
		{"full", USD(4900), 100, 4900},
		{"zero amount", USD(0), 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.amount.Percent(tt.pct)
			if got.Amount != tt.want {
				t.Errorf("Percent(%d) = %d, want %d", tt.pct, got.Amount, tt.want)
			}
			if got.Currency != tt.amount.Currency {
				t.Errorf("currency changed: %s", got.Currency)
			}
		})
	}
}

func TestBasisPoints(t *testing.T) {
	tests := []struct {
		amount Money
		bps    int64
		want   int64
	}{
		{USD(1000), 1250, 125},
		{USD(999), 1250, 124},
		{USD(4900), 10000, 4900},
		{USD(1), 1, 0},
	}
	for _, tt := range tests {
		if got := tt.amount.BasisPoints(tt.bps); got.Amount != tt.want {
			t.Errorf("BasisPoints(%d) of %s = %d, want %d", tt.bps, tt.amount, got.Amount, tt.want)
		}
	}
}

func TestSubtractFloor(t *testing.T) {
	if got := USD(100).SubtractFloor(USD(30)); got.Amount != 70 {
		t.Errorf("got %d, want 70", got.Amount)
	}
	if got := USD(100).SubtractFloor(USD(300)); got.Amount != 0 {
		t.Errorf("got %d, want 0", got.Amount)
	}
}

func TestMin(t *testing.T) {
	if got := USD(500).Min(USD(200)); got.Amount != 200 {
		t.Errorf("got %d, want 200", got.Amount)
	}
	if got := USD(100).Min(USD(200)); got.Amount != 100 {
		t.Errorf("got %d, want 100", got.Amount)
	}
}

func TestSameCurrency(t *testing.T) {
	if !USD(1).SameCurrency(NewMoney(5, "USD")) {
		t.Error("expected case-insensitive match")
	}
	if USD(1).SameCurrency(EUR(1)) {
		t.Error("expected usd and eur to differ")
	}
	if !USD(1).SameCurrency(Money{}) {
		t.Error("expected empty currency to match")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		money Money
		want  string
	}{
		{USD(4900), "usd 49.00"},
		{EUR(5), "eur 0.05"},
		{NewMoney(100, "JPY"), "jpy 100"},
		{USD(-250), "usd -2.50"},
	}
	for _, tt := range tests {
		if got := tt.money.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
