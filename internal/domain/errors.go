package domain

import (
	"fmt"
	"time"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// AlreadyRegisteredError is the registry's principal idempotence guard: a
// second registration of the same (collection, hash) pair fails carrying
// the full context of the conflicting item.
type AlreadyRegisteredError struct {
	ContentHash  string
	Owner        string
	ItemID       int64
	RegisteredAt time.Time
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("hash %s already registered as item %d by %s at %s",
		e.ContentHash, e.ItemID, e.Owner, e.RegisteredAt.Format(time.RFC3339))
}

func (e AlreadyRegisteredError) Is(target error) bool {
	_, ok := target.(AlreadyRegisteredError)
	if ok {
		return true
	}
	_, ok = target.(*AlreadyRegisteredError)
	return ok
}

var ErrAlreadyRegistered = AlreadyRegisteredError{}

// NotOwnerNorApprovedError rejects a transfer by a caller who neither owns
// the item nor holds the owner's blanket approval.
type NotOwnerNorApprovedError struct{}

func (e NotOwnerNorApprovedError) Error() string { return "caller is not owner nor approved" }

// OnlyTokenOwnerCanTransferError rejects bulk transfers of items the caller
// does not directly own.
type OnlyTokenOwnerCanTransferError struct {
	ItemID int64
}

func (e OnlyTokenOwnerCanTransferError) Error() string {
	return fmt.Sprintf("only the owner of item %d can transfer it", e.ItemID)
}

func (e OnlyTokenOwnerCanTransferError) Is(target error) bool {
	_, ok := target.(OnlyTokenOwnerCanTransferError)
	if ok {
		return true
	}
	_, ok = target.(*OnlyTokenOwnerCanTransferError)
	return ok
}

// OnlyRegistryReceiverError rejects a registration attempt that came
// neither through the collection's bound inbox nor through a minting fuse.
type OnlyRegistryReceiverError struct{}

func (e OnlyRegistryReceiverError) Error() string {
	return "only the collection inbox or a granted minting fuse can register"
}

// InvalidCollectionError rejects operations against an unknown collection
// or inbox binding.
type InvalidCollectionError struct{}

func (e InvalidCollectionError) Error() string { return "invalid collection" }

type DuplicateCollectionNameError struct {
	Name string
}

func (e DuplicateCollectionNameError) Error() string {
	return fmt.Sprintf("collection name %q already in use", e.Name)
}

func (e DuplicateCollectionNameError) Is(target error) bool {
	_, ok := target.(DuplicateCollectionNameError)
	if ok {
		return true
	}
	_, ok = target.(*DuplicateCollectionNameError)
	return ok
}

type NotCollectionOwnerError struct{}

func (e NotCollectionOwnerError) Error() string { return "caller is not the collection owner" }

// FuseUnsetError rejects an action gated on a fuse bit that was never
// granted or has been burned.
type FuseUnsetError struct {
	Fuse Fuse
}

func (e FuseUnsetError) Error() string {
	return fmt.Sprintf("fuse %s is not set", e.Fuse)
}

func (e FuseUnsetError) Is(target error) bool {
	_, ok := target.(FuseUnsetError)
	if ok {
		return true
	}
	_, ok = target.(*FuseUnsetError)
	return ok
}

type InvalidFusesError struct {
	Fuses uint8
}

func (e InvalidFusesError) Error() string {
	return fmt.Sprintf("fuse bits %#x outside the legal mask %#x", e.Fuses, uint8(FuseMaskAll))
}

func (e InvalidFusesError) Is(target error) bool {
	_, ok := target.(InvalidFusesError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidFusesError)
	return ok
}

type InvalidRoyaltiesError struct {
	TotalBps uint64
}

func (e InvalidRoyaltiesError) Error() string {
	return fmt.Sprintf("royalty table sums to %d bps, max %d", e.TotalBps, MaxRoyaltyBps)
}

func (e InvalidRoyaltiesError) Is(target error) bool {
	_, ok := target.(InvalidRoyaltiesError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidRoyaltiesError)
	return ok
}

// ValueNotAcceptedError rejects inbox submissions carrying a settlement
// asset value. Inboxes accept payloads only.
type ValueNotAcceptedError struct{}

func (e ValueNotAcceptedError) Error() string { return "inbox does not accept value transfers" }

// InvalidOrderError rejects a malformed posted order (zero price, past
// expiry, zero quantity).
type InvalidOrderError struct {
	Reason string
}

func (e InvalidOrderError) Error() string { return "invalid order: " + e.Reason }

func (e InvalidOrderError) Is(target error) bool {
	_, ok := target.(InvalidOrderError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidOrderError)
	return ok
}

// OrderMismatchError fails a fill whose stored counterpart no longer
// matches: wrong maker, wrong price, expired, missing, or a subject that
// drifted out from under the order. Fills never partially match.
type OrderMismatchError struct {
	Reason string
}

func (e OrderMismatchError) Error() string { return "order mismatch: " + e.Reason }

func (e OrderMismatchError) Is(target error) bool {
	_, ok := target.(OrderMismatchError)
	if ok {
		return true
	}
	_, ok = target.(*OrderMismatchError)
	return ok
}

type InvalidFeeError struct {
	Requested uint32
	Max       uint32
}

func (e InvalidFeeError) Error() string {
	return fmt.Sprintf("fee %d bps exceeds maximum %d bps", e.Requested, e.Max)
}

func (e InvalidFeeError) Is(target error) bool {
	_, ok := target.(InvalidFeeError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidFeeError)
	return ok
}

type NotOwnerError struct{}

func (e NotOwnerError) Error() string { return "caller is not the exchange owner" }

type NotNewOwnerError struct{}

func (e NotNewOwnerError) Error() string { return "caller is not the pending exchange owner" }

// InsufficientFundsError fails a settlement whose buyer lacks balance or
// allowance, or a withdrawal exceeding the accrued fee balance.
type InsufficientFundsError struct {
	Need uint64
	Have uint64
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d, have %d", e.Need, e.Have)
}

func (e InsufficientFundsError) Is(target error) bool {
	_, ok := target.(InsufficientFundsError)
	if ok {
		return true
	}
	_, ok = target.(*InsufficientFundsError)
	return ok
}
