package usecase

import (
	"context"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
)

// RegistryStore defines persistence for items, collections, approvals and
// minter allow-lists. Methods are thin single transitions; invariant logic
// lives in the usecases, which run under the global serialization lock.
type RegistryStore interface {
	GetItem(ctx context.Context, id int64) (curio.Item, error)
	GetItemByHash(ctx context.Context, collectionID int64, hash string) (curio.Item, error)
	// CreateItem assigns the next sequential id, persists the item and
	// bumps the collection's item count in one transition. A concurrent
	// duplicate surfaces as AlreadyRegisteredError.
	CreateItem(ctx context.Context, item curio.Item) (curio.Item, error)
	SetItemOwner(ctx context.Context, id int64, owner string) error
	DeleteItem(ctx context.Context, id int64) error
	ListItems(ctx context.Context, count, offset int) ([]curio.Item, error)

	GetCollection(ctx context.Context, id int64) (curio.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (curio.Collection, error)
	GetCollectionByInbox(ctx context.Context, inboxAddress string) (curio.Collection, error)
	// CreateCollection assigns the next sequential id and persists the
	// collection; a live duplicate name surfaces as DuplicateCollectionNameError.
	CreateCollection(ctx context.Context, col curio.Collection) (curio.Collection, error)
	UpdateCollectionDescription(ctx context.Context, id int64, description string) error
	UpdateCollectionRoyalties(ctx context.Context, id int64, royalties []curio.RoyaltyShare) error
	SetCollectionFuses(ctx context.Context, id int64, fuses domain.Fuse) error
	ListCollections(ctx context.Context, count, offset int) ([]curio.Collection, error)

	GetApproval(ctx context.Context, owner, operator string) (bool, error)
	SetApproval(ctx context.Context, owner, operator string, granted bool) error

	IsMinter(ctx context.Context, collectionID int64, principal string) (bool, error)
	SetMinter(ctx context.Context, collectionID int64, principal string, allowed bool) error
}

// ExchangeStore is the order book plus the slice of registry state the
// exchange settles against. Implementations hand a transaction-bound store
// to the Atomic callback so a whole execute() batch commits or rolls back
// as one.
type ExchangeStore interface {
	GetOrder(ctx context.Context, kind curio.OrderKind, subject int64) (curio.Order, error)
	PutOrder(ctx context.Context, order curio.Order) error
	RemoveOrder(ctx context.Context, kind curio.OrderKind, subject int64) error

	GetItem(ctx context.Context, id int64) (curio.Item, error)
	SetItemOwner(ctx context.Context, id int64, owner string) error
	GetCollection(ctx context.Context, id int64) (curio.Collection, error)
	GetApproval(ctx context.Context, owner, operator string) (bool, error)

	State(ctx context.Context) (domain.ExchangeState, error)
	SetState(ctx context.Context, state domain.ExchangeState) error

	AccrueFee(ctx context.Context, asset string, amount uint64) error
	FeeBalance(ctx context.Context, asset string) (uint64, error)
	DrainFee(ctx context.Context, asset string, amount uint64) error
}

// ExchangeRepository adds batch atomicity on top of the store. The context
// passed to fn carries the transaction so the settlement asset can join it.
type ExchangeRepository interface {
	ExchangeStore
	Atomic(ctx context.Context, fn func(ctx context.Context, s ExchangeStore) error) error
}

// SettlementAsset is the consumed fungible ledger. A failed transfer is a
// hard failure of the enclosing settlement.
type SettlementAsset interface {
	BalanceOf(ctx context.Context, principal string) (uint64, error)
	TransferFrom(ctx context.Context, from, to string, amount uint64) error
	Allowance(ctx context.Context, owner, spender string) (uint64, error)
}

// EventPublisher makes successful transitions observable.
type EventPublisher interface {
	Publish(ctx context.Context, event curio.Event) error
}
