package domain

import (
	"errors"
	"testing"

	"github.com/yonagi/curio"
)

func TestSplitPriceBasic(t *testing.T) {
	royalties := []curio.RoyaltyShare{
		{Recipient: "artist", Bps: 250},
		{Recipient: "gallery", Bps: 100},
	}

	p, err := SplitPrice(10000, 200, 50, royalties)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if p.Fee != 200 || p.UIFee != 50 {
		t.Fatalf("unexpected fees: %d / %d", p.Fee, p.UIFee)
	}
	if p.Royalties[0].Amount != 250 || p.Royalties[1].Amount != 100 {
		t.Fatalf("unexpected royalties: %+v", p.Royalties)
	}
	if p.Seller != 10000-200-50-250-100 {
		t.Fatalf("unexpected seller amount: %d", p.Seller)
	}
}

func TestSplitPriceTruncationDustGoesToSeller(t *testing.T) {
	// 33 bps of 101 truncates to 0; the dust stays with the seller.
	p, err := SplitPrice(101, 33, 0, nil)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if p.Fee != 0 {
		t.Fatalf("expected truncated fee 0, got %d", p.Fee)
	}
	if p.Seller != 101 {
		t.Fatalf("expected full price to seller, got %d", p.Seller)
	}
}

func TestSplitPriceNeverExceedsPrice(t *testing.T) {
	prices := []uint64{1, 3, 99, 100, 101, 9999, 1 << 40}
	royalties := []curio.RoyaltyShare{
		{Recipient: "a", Bps: 3333},
		{Recipient: "b", Bps: 3333},
		{Recipient: "c", Bps: 3333},
	}
	for _, price := range prices {
		p, err := SplitPrice(price, 500, 100, royalties)
		if err != nil {
			t.Fatalf("price %d: split failed: %v", price, err)
		}
		total := p.Fee + p.UIFee + p.Seller
		for _, r := range p.Royalties {
			total += r.Amount
		}
		if total != price {
			t.Fatalf("price %d: split does not conserve value, got %d", price, total)
		}
	}
}

func TestSplitPriceFailsClosedWhenCutsExceedPrice(t *testing.T) {
	royalties := []curio.RoyaltyShare{{Recipient: "a", Bps: 10000}}
	if _, err := SplitPrice(10000, 500, 0, royalties); err == nil {
		t.Fatalf("expected failure when cuts exceed price")
	}
}

func TestSplitPriceLargePriceStaysExact(t *testing.T) {
	// price * bps would overflow a naive uint64 product here
	const price = uint64(10_000_000_000_000_000_000)
	p, err := SplitPrice(price, 200, 50, []curio.RoyaltyShare{{Recipient: "artist", Bps: 250}})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if p.Fee != 200_000_000_000_000_000 {
		t.Fatalf("unexpected fee: %d", p.Fee)
	}
	if p.UIFee != 50_000_000_000_000_000 {
		t.Fatalf("unexpected ui fee: %d", p.UIFee)
	}
	if p.Royalties[0].Amount != 250_000_000_000_000_000 {
		t.Fatalf("unexpected royalty: %d", p.Royalties[0].Amount)
	}
	if p.Fee+p.UIFee+p.Royalties[0].Amount+p.Seller != price {
		t.Fatalf("split does not conserve value")
	}
}

func TestValidateRoyaltiesRejectsWrappingSum(t *testing.T) {
	// the two entries wrap a 32-bit accumulator back to ~5000 bps
	royalties := []curio.RoyaltyShare{
		{Recipient: "a", Bps: 4294962296},
		{Recipient: "b", Bps: 10000},
	}
	err := ValidateRoyalties(royalties)
	if err == nil {
		t.Fatalf("royalty table summing far above the ceiling accepted")
	}
	var invalid InvalidRoyaltiesError
	if !errors.As(err, &invalid) {
		t.Fatalf("unexpected error: %v", err)
	}
	if invalid.TotalBps != 4294972296 {
		t.Fatalf("reported sum %d, want the true total", invalid.TotalBps)
	}
}

func TestValidateRoyalties(t *testing.T) {
	if err := ValidateRoyalties([]curio.RoyaltyShare{{Recipient: "a", Bps: 10000}}); err != nil {
		t.Fatalf("100%% royalty rejected: %v", err)
	}
	if err := ValidateRoyalties([]curio.RoyaltyShare{{Recipient: "a", Bps: 9000}, {Recipient: "b", Bps: 1001}}); err == nil {
		t.Fatalf("royalty sum over ceiling accepted")
	}
	if err := ValidateRoyalties([]curio.RoyaltyShare{{Recipient: "", Bps: 10}}); err == nil {
		t.Fatalf("zero-principal recipient accepted")
	}
}
