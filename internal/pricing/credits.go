package pricing

const pixelsPerMegapixel = 1_000_000

// CreditCost returns the credit charge for generating an image of the given
// dimensions at the configured rate per megapixel. Rounding is always up so a
// fractional-megapixel request is never undercharged.
func CreditCost(width, height, ratePerMegapixel int) int {
	if width <= 0 || height <= 0 || ratePerMegapixel <= 0 {
		return 0
	}
	weighted := int64(width) * int64(height) * int64(ratePerMegapixel)
	return int((weighted + pixelsPerMegapixel - 1) / pixelsPerMegapixel)
}
