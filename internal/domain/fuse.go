package domain

// Fuse is a one-way-revocable capability bit on a collection. Bits are set
// once at creation and can only be burned afterwards, never re-granted.
type Fuse uint8

const (
	// FuseOwnerDescription lets the collection owner rewrite the description.
	FuseOwnerDescription Fuse = 1 << iota
	// FuseOwnerRoyalties lets the collection owner replace the royalty table.
	FuseOwnerRoyalties
	// FuseOwnerBurn lets the collection owner burn any user's item.
	FuseOwnerBurn
	// FuseOwnerMint lets the collection owner register items directly.
	FuseOwnerMint
	// FuseAllowlistMint lets principals on the collection's minter list
	// register items directly.
	FuseAllowlistMint
	// FuseOpenMint lets any principal register items directly.
	FuseOpenMint
)

// FuseMaskAll is the legal mask; creation rejects anything outside it.
const FuseMaskAll = FuseOwnerDescription | FuseOwnerRoyalties | FuseOwnerBurn |
	FuseOwnerMint | FuseAllowlistMint | FuseOpenMint

func (f Fuse) String() string {
	switch f {
	case FuseOwnerDescription:
		return "owner-description"
	case FuseOwnerRoyalties:
		return "owner-royalties"
	case FuseOwnerBurn:
		return "owner-burn"
	case FuseOwnerMint:
		return "owner-mint"
	case FuseAllowlistMint:
		return "allowlist-mint"
	case FuseOpenMint:
		return "open-mint"
	}
	return "unknown-fuse"
}

// Has reports whether every bit of want is set.
func (f Fuse) Has(want Fuse) bool {
	return f&want == want
}

// ValidFuses reports whether raw is a subset of the legal mask.
func ValidFuses(raw uint8) bool {
	return Fuse(raw)&^FuseMaskAll == 0
}

// BurnFuse clears a single currently-set bit. The result is always a
// subset of the old mask; re-granting is impossible because this is the
// only fuse mutation in the system.
func BurnFuse(old, bit Fuse) (Fuse, error) {
	if bit == 0 || bit&(bit-1) != 0 || !ValidFuses(uint8(bit)) {
		return old, InvalidFusesError{Fuses: uint8(bit)}
	}
	if !old.Has(bit) {
		return old, FuseUnsetError{Fuse: bit}
	}
	next := old &^ bit
	if next&old != next {
		// cannot happen with a clear-only mutation; kept as the invariant check
		return old, InvalidFusesError{Fuses: uint8(next)}
	}
	return next, nil
}
