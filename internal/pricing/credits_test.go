package pricing

import "testing"

func TestCreditCost(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		rate   int
		want   int
	}{
		{"one megapixel at rate 10", 1000, 1000, 10, 10},
		{"one megapixel at rate 5", 1000, 1000, 5, 5},
		{"single pixel rounds up to one credit", 1, 1, 10, 1},
		{"landscape card image", 1024, 576, 10, 6},
		{"square card image", 1024, 1024, 10, 11},
		{"fractional at rate 5", 1024, 576, 5, 3},
		{"exact multiple does not round", 2000, 1000, 10, 20},
		{"zero width", 0, 576, 10, 0},
		{"zero rate", 1024, 576, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CreditCost(tt.width, tt.height, tt.rate); got != tt.want {
				t.Errorf("CreditCost(%d, %d, %d) = %d, want %d", tt.width, tt.height, tt.rate, got, tt.want)
			}
		})
	}
}

func TestCreditCostNeverUndercharges(t *testing.T) {
	// Any request with at least one pixel and a positive rate costs at least 1.
	for _, dims := range [][2]int{{1, 1}, {10, 10}, {100, 100}, {316, 316}} {
		if got := CreditCost(dims[0], dims[1], 1); got < 1 {
			t.Errorf("CreditCost(%d, %d, 1) = %d, want >= 1", dims[0], dims[1], got)
		}
	}
}
