package domain

import (
	"github.com/yonagi/curio"
)

const (
	// BpsDenominator is the basis-point scale for every split computation.
	BpsDenominator = 10000
	// MaxRoyaltyBps caps a collection's royalty table at 100%.
	MaxRoyaltyBps uint32 = 10000
	// MaxFeeBps caps the protocol fee at 5%.
	MaxFeeBps uint32 = 500
)

// RoyaltyPayment is one computed royalty leg of a settlement.
type RoyaltyPayment struct {
	Recipient string
	Amount    uint64
}

// Payout is the full split of a fill's price. Seller receives the
// remainder after fees and royalties, including any truncation dust.
type Payout struct {
	Price     uint64
	Fee       uint64
	UIFee     uint64
	Royalties []RoyaltyPayment
	Seller    uint64
}

// SplitPrice computes the settlement split with integer basis-point
// arithmetic truncating toward zero. It fails closed if the combined cuts
// would exceed the price, so fee + uiFee + royalties <= price always holds.
func SplitPrice(price uint64, feeBps, uiFeeBps uint32, royalties []curio.RoyaltyShare) (Payout, error) {
	p := Payout{Price: price}
	p.Fee = bpsShare(price, feeBps)
	p.UIFee = bpsShare(price, uiFeeBps)

	taken := p.Fee + p.UIFee
	for _, r := range royalties {
		amount := bpsShare(price, r.Bps)
		p.Royalties = append(p.Royalties, RoyaltyPayment{Recipient: r.Recipient, Amount: amount})
		taken += amount
	}

	if taken > price {
		return Payout{}, InvalidRoyaltiesError{TotalBps: uint64(feeBps) + uint64(uiFeeBps) + royaltyBpsSum(royalties)}
	}

	p.Seller = price - taken
	return p, nil
}

// bpsShare is floor(price * bps / BpsDenominator). Splitting the price into
// its quotient and remainder by the denominator keeps the intermediate
// products within uint64 for any price, as long as bps stays within the
// basis-point scale (fee caps and ValidateRoyalties guarantee that).
func bpsShare(price uint64, bps uint32) uint64 {
	b := uint64(bps)
	return price/BpsDenominator*b + price%BpsDenominator*b/BpsDenominator
}

// ValidateRoyalties checks a royalty table for creation or update: every
// recipient non-zero and the total within the ceiling. The sum is carried
// in uint64 so a table of near-max uint32 entries cannot wrap back under
// the ceiling.
func ValidateRoyalties(royalties []curio.RoyaltyShare) error {
	total := royaltyBpsSum(royalties)
	if total > uint64(MaxRoyaltyBps) {
		return InvalidRoyaltiesError{TotalBps: total}
	}
	for _, r := range royalties {
		if r.Recipient == curio.ZeroPrincipal {
			return InvalidRoyaltiesError{TotalBps: total}
		}
	}
	return nil
}

func royaltyBpsSum(royalties []curio.RoyaltyShare) uint64 {
	var total uint64
	for _, r := range royalties {
		total += uint64(r.Bps)
	}
	return total
}
