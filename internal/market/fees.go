package market

import "github.com/gavelhq/gavel/internal/domain"

// splitFee divides a sale amount between the seller and the platform.
// The fee is floor(amount * feeBps / 10000); the rounding remainder stays
// with the seller, so sellerAmount + feeAmount == amount always holds.
func splitFee(amount, feeBps int64) (sellerAmount, feeAmount int64) {
	feeAmount = amount * feeBps / domain.FeeDenominator
	sellerAmount = amount - feeAmount
	return sellerAmount, feeAmount
}
