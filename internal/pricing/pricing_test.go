package pricing

import (
	"errors"
	"testing"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(DefaultTiers(), Reject, 0)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestPriceForQuantity(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		quantity int
		want     int
	}{
		{1, 500},
		{3, 1500},
		{9, 4500},
		{10, 4000},
		{49, 19600},
		{50, 15000},
		{99, 29700},
		{100, 25000},
		{1000, 250000},
	}
	for _, tt := range tests {
		got, err := table.PriceForQuantity(tt.quantity)
		if err != nil {
			t.Errorf("PriceForQuantity(%d): %v", tt.quantity, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PriceForQuantity(%d) = %d, want %d", tt.quantity, got, tt.want)
		}
	}
}

func TestUnitPriceNonIncreasing(t *testing.T) {
	table := defaultTable(t)

	prev := 0
	for q := 1; q <= 200; q++ {
		unit, err := table.UnitPrice(q)
		if err != nil {
			t.Fatalf("UnitPrice(%d): %v", q, err)
		}
		if q > 1 && unit > prev {
			t.Fatalf("unit price increased at quantity %d: %d > %d", q, unit, prev)
		}
		prev = unit
	}
}

func TestQuantityBelowOne(t *testing.T) {
	table := defaultTable(t)
	if _, err := table.PriceForQuantity(0); err == nil {
		t.Error("expected error for quantity 0")
	}
	if _, err := table.PriceForQuantity(-5); err == nil {
		t.Error("expected error for negative quantity")
	}
}

func TestNoMatchReject(t *testing.T) {
	// Gap between 5 and 10 leaves quantities 6-9 unmatched.
	tiers := []Tier{
		{MinQuantity: 1, MaxQuantity: 5, PricePerUnitCents: 500},
		{MinQuantity: 10, MaxQuantity: 0, PricePerUnitCents: 400},
	}
	table, err := NewTable(tiers, Reject, 0)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	_, err = table.PriceForQuantity(7)
	if !errors.Is(err, ErrNoMatchingTier) {
		t.Errorf("err = %v, want ErrNoMatchingTier", err)
	}
}

func TestNoMatchFallback(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 1, MaxQuantity: 5, PricePerUnitCents: 500},
	}
	table, err := NewTable(tiers, Fallback, 600)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	got, err := table.PriceForQuantity(8)
	if err != nil {
		t.Fatalf("PriceForQuantity: %v", err)
	}
	if got != 4800 {
		t.Errorf("PriceForQuantity(8) = %d, want 4800", got)
	}
}

func TestFirstMatchWins(t *testing.T) {
	// Overlapping tiers: declared order decides.
	tiers := []Tier{
		{MinQuantity: 1, MaxQuantity: 20, PricePerUnitCents: 500},
		{MinQuantity: 10, MaxQuantity: 0, PricePerUnitCents: 100},
	}
	table, err := NewTable(tiers, Reject, 0)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	unit, err := table.UnitPrice(15)
	if err != nil {
		t.Fatalf("UnitPrice: %v", err)
	}
	if unit != 500 {
		t.Errorf("UnitPrice(15) = %d, want 500 (first declared tier)", unit)
	}
}

func TestNewTableValidation(t *testing.T) {
	if _, err := NewTable(nil, Reject, 0); err == nil {
		t.Error("expected error for empty tier list")
	}
	if _, err := NewTable([]Tier{{MinQuantity: 0, MaxQuantity: 5, PricePerUnitCents: 100}}, Reject, 0); err == nil {
		t.Error("expected error for min quantity below 1")
	}
	if _, err := NewTable([]Tier{{MinQuantity: 10, MaxQuantity: 5, PricePerUnitCents: 100}}, Reject, 0); err == nil {
		t.Error("expected error for max below min")
	}
	if _, err := NewTable(DefaultTiers(), Fallback, 0); err == nil {
		t.Error("expected error for fallback policy without fallback price")
	}
	if _, err := NewTable(DefaultTiers(), NoMatchPolicy("maybe"), 0); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestParseTiers(t *testing.T) {
	tiers, err := ParseTiers("1-9:500, 10-49:400, 100+:250")
	if err != nil {
		t.Fatalf("ParseTiers: %v", err)
	}
	want := []Tier{
		{MinQuantity: 1, MaxQuantity: 9, PricePerUnitCents: 500},
		{MinQuantity: 10, MaxQuantity: 49, PricePerUnitCents: 400},
		{MinQuantity: 100, MaxQuantity: 0, PricePerUnitCents: 250},
	}
	if len(tiers) != len(want) {
		t.Fatalf("len = %d, want %d", len(tiers), len(want))
	}
	for i := range want {
		if tiers[i] != want[i] {
			t.Errorf("tier %d = %+v, want %+v", i, tiers[i], want[i])
		}
	}
}

func TestParseTiersEmptyUsesDefaults(t *testing.T) {
	tiers, err := ParseTiers("")
	if err != nil {
		t.Fatalf("ParseTiers: %v", err)
	}
	if len(tiers) != len(DefaultTiers()) {
		t.Errorf("len = %d, want %d", len(tiers), len(DefaultTiers()))
	}
}

func TestParseTiersInvalid(t *testing.T) {
	for _, spec := range []string{"1-9", "x-9:500", "1-y:500", "5+:abc", "3:-1"} {
		if _, err := ParseTiers(spec); err == nil {
			t.Errorf("ParseTiers(%q): expected error", spec)
		}
	}
}
