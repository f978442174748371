package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))

	err := limiter.CheckLimit("m1", "weather", d(100), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))

	// Existing exposure of 950 + new 100 = 1050 > 1000.
	existing := []Exposure{{MarketID: "m1", Category: "weather", Cost: d(950)}}

	err := limiter.CheckLimit("m1", "weather", d(100), existing)
	if err != ErrMarketLimitExceeded {
		t.Errorf("expected ErrMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_PerMarketNotExceeded(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))

	existing := []Exposure{{MarketID: "m1", Category: "weather", Cost: d(500)}}

	err := limiter.CheckLimit("m1", "weather", d(100), existing)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_CategoryExceeded(t *testing.T) {
	limiter := NewLimiter(d(1000), d(2000))

	existing := []Exposure{
		{MarketID: "m1", Category: "election", Cost: d(800)},
		{MarketID: "m2", Category: "election", Cost: d(800)},
		{MarketID: "m3", Category: "election", Cost: d(300)},
	}

	// total = 200 + 800 + 800 + 300 = 2100 > 2000
	err := limiter.CheckLimit("m4", "election", d(200), existing)
	if err != ErrCategoryLimitExceeded {
		t.Errorf("expected ErrCategoryLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_OtherCategoriesIgnored(t *testing.T) {
	limiter := NewLimiter(d(1000), d(2000))

	existing := []Exposure{
		{MarketID: "m1", Category: "election", Cost: d(800)},
		{MarketID: "m2", Category: "sports", Cost: d(900)},
	}

	// Category total = 500 + 800 = 1300 < 2000 (sports excluded).
	err := limiter.CheckLimit("m3", "election", d(500), existing)
	if err != nil {
		t.Errorf("other categories should be ignored, got %v", err)
	}
}

func TestCheckLimit_UncategorizedSkipsCategoryLimit(t *testing.T) {
	limiter := NewLimiter(d(1000), d(100))

	existing := []Exposure{{MarketID: "m1", Cost: d(900)}}

	err := limiter.CheckLimit("m2", "", d(500), existing)
	if err != nil {
		t.Errorf("uncategorized markets only get the per-market check, got %v", err)
	}
}

func TestCheckLimit_SellReducesExposure(t *testing.T) {
	limiter := NewLimiter(d(1000), d(5000))

	existing := []Exposure{{MarketID: "m1", Cost: d(1100)}}

	// Already over after a limit change; reducing is still allowed.
	err := limiter.CheckLimit("m1", "", d(-200), existing)
	if err != nil {
		t.Errorf("sell should reduce exposure, got %v", err)
	}
}

func TestCheckLimit_ZeroLimitsDisabled(t *testing.T) {
	limiter := NewLimiter(decimal.Zero, decimal.Zero)
	if limiter.Enabled() {
		t.Fatal("zero limits should disable the limiter")
	}
	existing := []Exposure{{MarketID: "m1", Category: "x", Cost: d(1e9)}}
	if err := limiter.CheckLimit("m1", "x", d(1e9), existing); err != nil {
		t.Errorf("disabled limiter should allow everything, got %v", err)
	}

	var nilLimiter *Limiter
	if err := nilLimiter.CheckLimit("m1", "x", d(1), nil); err != nil {
		t.Errorf("nil limiter should allow everything, got %v", err)
	}
}

func TestCheckLimit_CategoryOnly(t *testing.T) {
	limiter := NewLimiter(decimal.Zero, d(1000))

	existing := []Exposure{
		{MarketID: "m1", Category: "storm", Cost: d(600)},
		{MarketID: "m2", Category: "storm", Cost: d(300)},
	}
	if err := limiter.CheckLimit("m1", "storm", d(50), existing); err != nil {
		t.Errorf("950 is within 1000, got %v", err)
	}
	if err := limiter.CheckLimit("m2", "storm", d(150), existing); err != ErrCategoryLimitExceeded {
		t.Errorf("expected ErrCategoryLimitExceeded, got %v", err)
	}
}
