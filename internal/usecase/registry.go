package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
)

var tracer = otel.Tracer("usecase")

const maxPageSize = 1000

// RegistryUsecase owns the item/collection/approval state machine. Every
// mutating entry point takes the shared serialization lock, so each call is
// one globally-ordered transition (reads are snapshot-per-call and do not
// lock).
type RegistryUsecase struct {
	mu     *sync.Mutex
	store  RegistryStore
	events EventPublisher
}

func NewRegistryUsecase(mu *sync.Mutex, store RegistryStore, events EventPublisher) *RegistryUsecase {
	return &RegistryUsecase{mu: mu, store: store, events: events}
}

// Register creates the item for a (collection, hash) pair. viaInbox marks
// calls relayed by the collection's bound inbox; direct calls must hold a
// minting capability granted by the collection's fuses.
func (uc *RegistryUsecase) Register(ctx context.Context, caller string, collectionID int64, contentHash, onBehalfOf string, viaInbox bool) (curio.Item, error) {
	ctx, span := tracer.Start(ctx, "Registry.Register")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	col, err := uc.store.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return curio.Item{}, domain.InvalidCollectionError{}
		}
		return curio.Item{}, err
	}

	if !viaInbox {
		allowed, err := uc.mayMint(ctx, col, caller)
		if err != nil {
			return curio.Item{}, err
		}
		if !allowed {
			return curio.Item{}, domain.OnlyRegistryReceiverError{}
		}
	}

	return uc.register(ctx, col, contentHash, onBehalfOf)
}

// MintItem registers an item directly, bypassing the inbox. It is the
// fuse-gated mint path; to defaults to the caller.
func (uc *RegistryUsecase) MintItem(ctx context.Context, caller string, collectionID int64, contentHash, to string) (curio.Item, error) {
	if to == curio.ZeroPrincipal {
		to = caller
	}
	return uc.Register(ctx, caller, collectionID, contentHash, to, false)
}

func (uc *RegistryUsecase) mayMint(ctx context.Context, col curio.Collection, caller string) (bool, error) {
	fuses := domain.Fuse(col.Fuses)
	if fuses.Has(domain.FuseOpenMint) {
		return true, nil
	}
	if fuses.Has(domain.FuseOwnerMint) && caller == col.Owner && caller != curio.ZeroPrincipal {
		return true, nil
	}
	if fuses.Has(domain.FuseAllowlistMint) {
		return uc.store.IsMinter(ctx, col.ID, caller)
	}
	return false, nil
}

// register is the dedup-then-create transition. The serialization lock
// makes the existence check and the create one indivisible step; the
// store's uniqueness constraint backstops it.
func (uc *RegistryUsecase) register(ctx context.Context, col curio.Collection, contentHash, owner string) (curio.Item, error) {
	existing, err := uc.store.GetItemByHash(ctx, col.ID, contentHash)
	if err == nil {
		return curio.Item{}, domain.AlreadyRegisteredError{
			ContentHash:  existing.ContentHash,
			Owner:        existing.Owner,
			ItemID:       existing.ID,
			RegisteredAt: existing.RegisteredAt,
		}
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return curio.Item{}, err
	}

	item, err := uc.store.CreateItem(ctx, curio.Item{
		CollectionID: col.ID,
		ContentHash:  contentHash,
		Owner:        owner,
		RegisteredAt: time.Now(),
	})
	if err != nil {
		return curio.Item{}, err
	}

	uc.publish(ctx, curio.EventRegistered, curio.RegisteredEvent{
		ItemID:       item.ID,
		Owner:        item.Owner,
		CollectionID: item.CollectionID,
		ContentHash:  item.ContentHash,
		Timestamp:    item.RegisteredAt,
	})
	return item, nil
}

// Transfer rewrites an item's owner. Only the current owner or an approved
// operator may do so; the zero principal is a valid destination and means
// voluntary relinquishment.
func (uc *RegistryUsecase) Transfer(ctx context.Context, caller, to string, itemID int64) error {
	ctx, span := tracer.Start(ctx, "Registry.Transfer")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, err := uc.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	if caller != item.Owner {
		approved, err := uc.store.GetApproval(ctx, item.Owner, caller)
		if err != nil {
			return err
		}
		if !approved {
			return domain.NotOwnerNorApprovedError{}
		}
	}

	if err := uc.store.SetItemOwner(ctx, itemID, to); err != nil {
		return err
	}

	uc.publish(ctx, curio.EventTransfer, curio.TransferEvent{ItemID: itemID, From: item.Owner, To: to})
	return nil
}

// SetApprovalForAll toggles the blanket operator approval for (caller,
// operator). Idempotent.
func (uc *RegistryUsecase) SetApprovalForAll(ctx context.Context, caller, operator string, granted bool) error {
	ctx, span := tracer.Start(ctx, "Registry.SetApprovalForAll")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.store.SetApproval(ctx, caller, operator, granted); err != nil {
		return err
	}

	uc.publish(ctx, curio.EventApprovalSet, curio.ApprovalSetEvent{Owner: caller, Operator: operator, Granted: granted})
	return nil
}

// NewCollection creates a collection owned by the caller. Fuses are fixed
// here for the collection's lifetime; afterwards they can only be burned.
func (uc *RegistryUsecase) NewCollection(ctx context.Context, caller, name, description string, fuses uint8, royalties []curio.RoyaltyShare) (curio.Collection, error) {
	ctx, span := tracer.Start(ctx, "Registry.NewCollection")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if name == "" {
		return curio.Collection{}, domain.InvalidCollectionError{}
	}
	if !domain.ValidFuses(fuses) {
		return curio.Collection{}, domain.InvalidFusesError{Fuses: fuses}
	}
	if err := domain.ValidateRoyalties(royalties); err != nil {
		return curio.Collection{}, err
	}

	if _, err := uc.store.GetCollectionByName(ctx, name); err == nil {
		return curio.Collection{}, domain.DuplicateCollectionNameError{Name: name}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return curio.Collection{}, err
	}

	col, err := uc.store.CreateCollection(ctx, curio.Collection{
		Name:        name,
		Description: description,
		Owner:       caller,
		Fuses:       fuses,
		Royalties:   royalties,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return curio.Collection{}, err
	}

	uc.publish(ctx, curio.EventCollectionCreated, curio.CollectionCreatedEvent{
		CollectionID: col.ID,
		Name:         col.Name,
		Owner:        col.Owner,
		InboxAddress: col.InboxAddress,
	})
	return col, nil
}

// UpdateDescription is gated on the owner-description fuse.
func (uc *RegistryUsecase) UpdateDescription(ctx context.Context, caller string, collectionID int64, description string) error {
	ctx, span := tracer.Start(ctx, "Registry.UpdateDescription")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, err := uc.ownedCollectionWithFuse(ctx, caller, collectionID, domain.FuseOwnerDescription); err != nil {
		return err
	}
	return uc.store.UpdateCollectionDescription(ctx, collectionID, description)
}

// UpdateRoyalties is gated on the owner-royalties fuse.
func (uc *RegistryUsecase) UpdateRoyalties(ctx context.Context, caller string, collectionID int64, royalties []curio.RoyaltyShare) error {
	ctx, span := tracer.Start(ctx, "Registry.UpdateRoyalties")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, err := uc.ownedCollectionWithFuse(ctx, caller, collectionID, domain.FuseOwnerRoyalties); err != nil {
		return err
	}
	if err := domain.ValidateRoyalties(royalties); err != nil {
		return err
	}
	return uc.store.UpdateCollectionRoyalties(ctx, collectionID, royalties)
}

// BurnUserItem removes a user's item from the collection. Gated on the
// owner-burn fuse. The hash becomes registrable again.
func (uc *RegistryUsecase) BurnUserItem(ctx context.Context, caller string, itemID int64) error {
	ctx, span := tracer.Start(ctx, "Registry.BurnUserItem")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	item, err := uc.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := uc.ownedCollectionWithFuse(ctx, caller, item.CollectionID, domain.FuseOwnerBurn); err != nil {
		return err
	}
	if err := uc.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}

	uc.publish(ctx, curio.EventTransfer, curio.TransferEvent{ItemID: itemID, From: item.Owner, To: curio.ZeroPrincipal})
	return nil
}

// BurnFuse clears a currently-set fuse bit. This is the only permitted
// fuse mutation; there is no set path.
func (uc *RegistryUsecase) BurnFuse(ctx context.Context, caller string, collectionID int64, bit uint8) error {
	ctx, span := tracer.Start(ctx, "Registry.BurnFuse")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	col, err := uc.store.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	if col.Owner == curio.ZeroPrincipal || col.Owner != caller {
		return domain.NotCollectionOwnerError{}
	}

	next, err := domain.BurnFuse(domain.Fuse(col.Fuses), domain.Fuse(bit))
	if err != nil {
		return err
	}
	return uc.store.SetCollectionFuses(ctx, collectionID, next)
}

// SetMinter manages the allow-list behind the allowlist-mint fuse.
func (uc *RegistryUsecase) SetMinter(ctx context.Context, caller string, collectionID int64, principal string, allowed bool) error {
	ctx, span := tracer.Start(ctx, "Registry.SetMinter")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, err := uc.ownedCollectionWithFuse(ctx, caller, collectionID, domain.FuseAllowlistMint); err != nil {
		return err
	}
	return uc.store.SetMinter(ctx, collectionID, principal, allowed)
}

func (uc *RegistryUsecase) ownedCollectionWithFuse(ctx context.Context, caller string, collectionID int64, fuse domain.Fuse) (curio.Collection, error) {
	col, err := uc.store.GetCollection(ctx, collectionID)
	if err != nil {
		return curio.Collection{}, err
	}
	if col.Owner == curio.ZeroPrincipal || col.Owner != caller {
		return curio.Collection{}, domain.NotCollectionOwnerError{}
	}
	if !domain.Fuse(col.Fuses).Has(fuse) {
		return curio.Collection{}, domain.FuseUnsetError{Fuse: fuse}
	}
	return col, nil
}

func (uc *RegistryUsecase) GetItem(ctx context.Context, id int64) (curio.Item, error) {
	return uc.store.GetItem(ctx, id)
}

func (uc *RegistryUsecase) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	return uc.store.GetCollection(ctx, id)
}

// GetItems pages items in ascending id order, returning fewer than count
// entries when the table runs out.
func (uc *RegistryUsecase) GetItems(ctx context.Context, count, offset int) ([]curio.Item, error) {
	return uc.store.ListItems(ctx, clampPage(count), max(offset, 0))
}

func (uc *RegistryUsecase) GetCollections(ctx context.Context, count, offset int) ([]curio.Collection, error) {
	return uc.store.ListCollections(ctx, clampPage(count), max(offset, 0))
}

func clampPage(count int) int {
	if count < 0 {
		return 0
	}
	if count > maxPageSize {
		return maxPageSize
	}
	return count
}

func (uc *RegistryUsecase) publish(ctx context.Context, typ string, body any) {
	publish(ctx, uc.events, curio.Event{Type: typ, Timestamp: time.Now(), Body: body})
}

// publish delivers an observability event. Delivery is best-effort: the
// transition already committed, so a publish failure is logged, not
// surfaced.
func publish(ctx context.Context, events EventPublisher, event curio.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}
