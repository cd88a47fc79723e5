package stock_test

import (
	"testing"

	"github.com/quayside/stockledger/stock"
)

func TestAvailable(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		reserved int64
		want     int64
	}{
		{"NothingReserved", 100, 0, 100},
		{"PartiallyReserved", 100, 30, 70},
		{"FullyReserved", 100, 100, 0},
		{"Empty", 0, 0, 0},
		{"CorruptOverReserved", 10, 15, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stock.Record{TotalQuantity: tt.total, ReservedQuantity: tt.reserved}
			if got := r.Available(); got != tt.want {
				t.Errorf("Available() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		reserved int64
		warning  int64
		critical int64
		want     stock.Level
	}{
		{"WellStocked", 100, 0, 20, 5, stock.LevelNormal},
		{"JustAboveWarning", 100, 79, 20, 5, stock.LevelNormal},
		{"AtWarning", 100, 80, 20, 5, stock.LevelWarning},
		{"BetweenThresholds", 100, 90, 20, 5, stock.LevelWarning},
		{"AtCritical", 100, 95, 20, 5, stock.LevelCritical},
		{"BelowCritical", 100, 97, 20, 5, stock.LevelCritical},
		{"NoneAvailable", 100, 100, 20, 5, stock.LevelOutOfStock},
		{"EmptyRecord", 0, 0, 20, 5, stock.LevelOutOfStock},
		{"ZeroThresholds", 100, 50, 0, 0, stock.LevelNormal},
		{"ZeroThresholdsEmpty", 100, 100, 0, 0, stock.LevelOutOfStock},
		{"EqualThresholds", 100, 90, 10, 10, stock.LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stock.Record{
				TotalQuantity:     tt.total,
				ReservedQuantity:  tt.reserved,
				WarningThreshold:  tt.warning,
				CriticalThreshold: tt.critical,
			}
			if got := r.Level(); got != tt.want {
				t.Errorf("Level() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLevelAtLeast(t *testing.T) {
	ordered := []stock.Level{
		stock.LevelNormal,
		stock.LevelWarning,
		stock.LevelCritical,
		stock.LevelOutOfStock,
	}
	for i, l := range ordered {
		for j, other := range ordered {
			if got, want := l.AtLeast(other), i >= j; got != want {
				t.Errorf("%s.AtLeast(%s) = %v, want %v", l, other, got, want)
			}
		}
	}
}

func TestLevelValid(t *testing.T) {
	for _, l := range []stock.Level{
		stock.LevelNormal, stock.LevelWarning, stock.LevelCritical, stock.LevelOutOfStock,
	} {
		if !l.Valid() {
			t.Errorf("%s should be valid", l)
		}
	}
	if stock.Level("bogus").Valid() {
		t.Error("unknown level should not be valid")
	}
	if stock.Level("").Valid() {
		t.Error("empty level should not be valid")
	}
}

func TestCheckInvariant(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		reserved int64
		want     bool
	}{
		{"Zero", 0, 0, true},
		{"Held", 10, 10, true},
		{"Partial", 10, 3, true},
		{"NegativeReserved", 10, -1, false},
		{"OverReserved", 10, 11, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stock.Record{TotalQuantity: tt.total, ReservedQuantity: tt.reserved}
			if got := r.CheckInvariant(); got != tt.want {
				t.Errorf("CheckInvariant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClone(t *testing.T) {
	r := &stock.Record{SKUID: "sku-1", TotalQuantity: 10, ReservedQuantity: 2}
	c := r.Clone()
	c.TotalQuantity = 99
	c.ReservedQuantity = 99
	if r.TotalQuantity != 10 || r.ReservedQuantity != 2 {
		t.Errorf("mutating the clone changed the original: %d/%d", r.TotalQuantity, r.ReservedQuantity)
	}
}
