package usecase

import (
	"context"
	"errors"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
)

// InboxUsecase is the passive registration endpoint: resolve the inbox
// binding, hash the payload, hand off to the registry. It adds no business
// logic of its own and propagates the registry's outcome verbatim.
type InboxUsecase struct {
	store    RegistryStore
	registry *RegistryUsecase
}

func NewInboxUsecase(store RegistryStore, registry *RegistryUsecase) *InboxUsecase {
	return &InboxUsecase{store: store, registry: registry}
}

// Submit registers an arbitrary payload to the caller through the inbox at
// inboxAddress. The payload may be empty; a nonzero value is rejected
// outright.
func (uc *InboxUsecase) Submit(ctx context.Context, inboxAddress, caller string, payload []byte, value uint64) (curio.Item, error) {
	ctx, span := tracer.Start(ctx, "Inbox.Submit")
	defer span.End()

	if value != 0 {
		return curio.Item{}, domain.ValueNotAcceptedError{}
	}

	col, err := uc.store.GetCollectionByInbox(ctx, inboxAddress)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return curio.Item{}, domain.InvalidCollectionError{}
		}
		return curio.Item{}, err
	}

	var hash string
	if col.ID == curio.DefaultCollectionID {
		hash = curio.DefaultContentHash(payload)
	} else {
		hash = curio.CollectionContentHash(col.Name, payload)
	}

	return uc.registry.Register(ctx, caller, col.ID, hash, caller, true)
}
