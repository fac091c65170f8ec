// Package pricing implements the tiered bulk-discount price table used for
// print orders and the megapixel-based credit cost for image generation.
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNoMatchingTier = errors.New("no pricing tier matches quantity")

// Tier maps a quantity range to a per-unit price. MaxQuantity == 0 means the
// range is unbounded above.
type Tier struct {
	MinQuantity       int
	MaxQuantity       int
	PricePerUnitCents int
}

// NoMatchPolicy controls what PriceForQuantity does when no tier matches.
type NoMatchPolicy string

const (
	Reject   NoMatchPolicy = "reject"
	Fallback NoMatchPolicy = "fallback"
)

// Table is an ordered, immutable list of tiers. Tiers are checked in declared
// order and the first match wins.
type Table struct {
	tiers         []Tier
	onNoMatch     NoMatchPolicy
	fallbackCents int
}

// DefaultTiers is the built-in bulk-discount schedule.
func DefaultTiers() []Tier {
	return []Tier{
		{MinQuantity: 1, MaxQuantity: 9, PricePerUnitCents: 500},
		{MinQuantity: 10, MaxQuantity: 49, PricePerUnitCents: 400},
		{MinQuantity: 50, MaxQuantity: 99, PricePerUnitCents: 300},
		{MinQuantity: 100, MaxQuantity: 0, PricePerUnitCents: 250},
	}
}

// ParseTiers parses a tier spec like "1-9:500,10-49:400,100+:250".
// An empty spec yields the default schedule.
func ParseTiers(spec string) ([]Tier, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultTiers(), nil
	}

	var tiers []Tier
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		rangePart, pricePart, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tier %q: missing price", part)
		}
		price, err := strconv.Atoi(strings.TrimSpace(pricePart))
		if err != nil || price < 0 {
			return nil, fmt.Errorf("invalid tier %q: bad price", part)
		}

		var tier Tier
		tier.PricePerUnitCents = price
		rangePart = strings.TrimSpace(rangePart)
		switch {
		case strings.HasSuffix(rangePart, "+"):
			min, err := strconv.Atoi(strings.TrimSuffix(rangePart, "+"))
			if err != nil {
				return nil, fmt.Errorf("invalid tier %q: bad range", part)
			}
			tier.MinQuantity = min
		case strings.Contains(rangePart, "-"):
			minPart, maxPart, _ := strings.Cut(rangePart, "-")
			min, err := strconv.Atoi(minPart)
			if err != nil {
				return nil, fmt.Errorf("invalid tier %q: bad range", part)
			}
			max, err := strconv.Atoi(maxPart)
			if err != nil {
				return nil, fmt.Errorf("invalid tier %q: bad range", part)
			}
			tier.MinQuantity = min
			tier.MaxQuantity = max
		default:
			n, err := strconv.Atoi(rangePart)
			if err != nil {
				return nil, fmt.Errorf("invalid tier %q: bad range", part)
			}
			tier.MinQuantity = n
			tier.MaxQuantity = n
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// NewTable validates the tiers and builds an immutable table.
func NewTable(tiers []Tier, policy NoMatchPolicy, fallbackCents int) (*Table, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}
	for i, tier := range tiers {
		if tier.MinQuantity < 1 {
			return nil, fmt.Errorf("tier %d: min quantity must be at least 1", i)
		}
		if tier.MaxQuantity != 0 && tier.MaxQuantity < tier.MinQuantity {
			return nil, fmt.Errorf("tier %d: max quantity below min quantity", i)
		}
		if tier.PricePerUnitCents < 0 {
			return nil, fmt.Errorf("tier %d: price must not be negative", i)
		}
	}
	switch policy {
	case Reject, Fallback:
	default:
		return nil, fmt.Errorf("unknown no-match policy %q", policy)
	}
	if policy == Fallback && fallbackCents <= 0 {
		return nil, errors.New("fallback policy requires a positive fallback price")
	}

	copied := make([]Tier, len(tiers))
	copy(copied, tiers)
	return &Table{tiers: copied, onNoMatch: policy, fallbackCents: fallbackCents}, nil
}

// UnitPrice returns the per-unit price in cents for the given quantity,
// scanning tiers in declared order.
func (t *Table) UnitPrice(quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}
	for _, tier := range t.tiers {
		if quantity >= tier.MinQuantity && (tier.MaxQuantity == 0 || quantity <= tier.MaxQuantity) {
			return tier.PricePerUnitCents, nil
		}
	}
	if t.onNoMatch == Fallback {
		return t.fallbackCents, nil
	}
	return 0, fmt.Errorf("quantity %d: %w", quantity, ErrNoMatchingTier)
}

// PriceForQuantity returns the total charge in cents for the given quantity.
func (t *Table) PriceForQuantity(quantity int) (int, error) {
	unit, err := t.UnitPrice(quantity)
	if err != nil {
		return 0, err
	}
	return unit * quantity, nil
}
