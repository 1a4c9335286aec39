package usecase

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
)

// ExchangeUsecase owns the order book and accrued fee balances, and
// settles fills against registry ownership and the settlement asset.
//
// Within a settlement all internal state mutation completes before any
// settlement-asset call is made; together with the store transaction this
// keeps a misbehaving asset implementation from observing or reentering a
// half-applied trade.
type ExchangeUsecase struct {
	mu     *sync.Mutex
	repo   ExchangeRepository
	asset  SettlementAsset
	events EventPublisher

	// account is the exchange's own principal: the operator sellers
	// approve, the spender buyers grant allowance to, and the custodian
	// of accrued fees.
	account  string
	assetID  string
	uiFeeBps uint32
}

func NewExchangeUsecase(mu *sync.Mutex, repo ExchangeRepository, asset SettlementAsset, events EventPublisher, account, assetID string, uiFeeBps uint32) *ExchangeUsecase {
	return &ExchangeUsecase{
		mu:       mu,
		repo:     repo,
		asset:    asset,
		events:   events,
		account:  account,
		assetID:  assetID,
		uiFeeBps: uiFeeBps,
	}
}

// Execute processes a batch of order requests strictly in order inside one
// store transaction. Any single failure aborts the whole batch; events are
// published only after the batch commits.
func (uc *ExchangeUsecase) Execute(ctx context.Context, caller string, requests []curio.OrderRequest, uiFeeAccount string) error {
	ctx, span := tracer.Start(ctx, "Exchange.Execute")
	defer span.End()

	if caller == curio.ZeroPrincipal {
		return domain.NotOwnerNorApprovedError{}
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	var events []curio.Event
	err := uc.repo.Atomic(ctx, func(ctx context.Context, s ExchangeStore) error {
		for i, req := range requests {
			if err := uc.apply(ctx, s, caller, uiFeeAccount, req, &events); err != nil {
				return errors.Wrapf(err, "request %d (%s)", i, req.Action)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ev := range events {
		publish(ctx, uc.events, ev)
	}
	return nil
}

func (uc *ExchangeUsecase) apply(ctx context.Context, s ExchangeStore, caller, uiFeeAccount string, req curio.OrderRequest, events *[]curio.Event) error {
	switch req.Action {
	case curio.ActionOffer:
		return uc.post(ctx, s, caller, curio.OrderOffer, req.ItemID, req, 1, events)
	case curio.ActionBid:
		return uc.post(ctx, s, caller, curio.OrderBid, req.ItemID, req, 1, events)
	case curio.ActionCollectionOffer:
		return uc.post(ctx, s, caller, curio.OrderCollectionOffer, req.CollectionID, req, req.Quantity, events)
	case curio.ActionCollectionBid:
		return uc.post(ctx, s, caller, curio.OrderCollectionBid, req.CollectionID, req, req.Quantity, events)
	case curio.ActionBuy:
		return uc.fill(ctx, s, caller, uiFeeAccount, curio.OrderOffer, req.ItemID, req.ItemID, req, true, events)
	case curio.ActionSell:
		return uc.fill(ctx, s, caller, uiFeeAccount, curio.OrderBid, req.ItemID, req.ItemID, req, false, events)
	case curio.ActionCollectionBuy:
		return uc.fill(ctx, s, caller, uiFeeAccount, curio.OrderCollectionOffer, req.CollectionID, req.ItemID, req, true, events)
	case curio.ActionCollectionSell:
		return uc.fill(ctx, s, caller, uiFeeAccount, curio.OrderCollectionBid, req.CollectionID, req.ItemID, req, false, events)
	}
	return domain.InvalidOrderError{Reason: "unknown action " + req.Action}
}

// post records a standing order, replacing any prior order of the same
// kind for the same subject outright.
func (uc *ExchangeUsecase) post(ctx context.Context, s ExchangeStore, caller string, kind curio.OrderKind, subject int64, req curio.OrderRequest, quantity uint64, events *[]curio.Event) error {
	if req.Price == 0 {
		return domain.InvalidOrderError{Reason: "zero price"}
	}
	if !req.Expiry.After(time.Now()) {
		return domain.InvalidOrderError{Reason: "expiry not in the future"}
	}
	if quantity == 0 {
		return domain.InvalidOrderError{Reason: "zero quantity"}
	}

	switch kind {
	case curio.OrderOffer, curio.OrderBid:
		item, err := s.GetItem(ctx, subject)
		if err != nil {
			return err
		}
		if kind == curio.OrderOffer && item.Owner != caller {
			return domain.OnlyTokenOwnerCanTransferError{ItemID: subject}
		}
	case curio.OrderCollectionOffer, curio.OrderCollectionBid:
		if _, err := s.GetCollection(ctx, subject); err != nil {
			return err
		}
	}

	err := s.PutOrder(ctx, curio.Order{
		Kind:      kind,
		Subject:   subject,
		Maker:     caller,
		Price:     req.Price,
		Remaining: quantity,
		Expiry:    req.Expiry,
	})
	if err != nil {
		return err
	}

	*events = append(*events, curio.Event{
		Type:      curio.EventOrderPosted,
		Timestamp: time.Now(),
		Body:      curio.OrderPostedEvent{Kind: kind, Subject: subject, Maker: caller, Price: req.Price},
	})
	return nil
}

// fill settles a one-shot request against the standing order of the given
// kind. It fails closed on any deviation from the stored (maker, price)
// and never partially fills at a different price.
func (uc *ExchangeUsecase) fill(ctx context.Context, s ExchangeStore, caller, uiFeeAccount string, kind curio.OrderKind, subject, itemID int64, req curio.OrderRequest, makerIsSeller bool, events *[]curio.Event) error {
	ord, err := s.GetOrder(ctx, kind, subject)
	if err != nil {
		if stderrors.Is(err, domain.ErrNotFound) {
			return domain.OrderMismatchError{Reason: "no standing order"}
		}
		return err
	}
	if ord.Maker != req.Maker {
		return domain.OrderMismatchError{Reason: "maker mismatch"}
	}
	if ord.Price != req.Price {
		return domain.OrderMismatchError{Reason: "price mismatch"}
	}
	if !ord.Expiry.After(time.Now()) {
		return domain.OrderMismatchError{Reason: "order expired"}
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		if stderrors.Is(err, domain.ErrNotFound) {
			return domain.OrderMismatchError{Reason: "item not found"}
		}
		return err
	}
	if (kind == curio.OrderCollectionOffer || kind == curio.OrderCollectionBid) && item.CollectionID != subject {
		return domain.OrderMismatchError{Reason: "item not in collection"}
	}

	var buyer, seller string
	if makerIsSeller {
		buyer, seller = caller, ord.Maker
	} else {
		buyer, seller = ord.Maker, caller
	}
	if item.Owner != seller {
		return domain.OrderMismatchError{Reason: "seller no longer owns item"}
	}

	approved, err := s.GetApproval(ctx, seller, uc.account)
	if err != nil {
		return err
	}
	if !approved {
		return domain.NotOwnerNorApprovedError{}
	}

	col, err := s.GetCollection(ctx, item.CollectionID)
	if err != nil {
		return err
	}
	state, err := s.State(ctx)
	if err != nil {
		return err
	}

	uiBps := uc.uiFeeBps
	if uiFeeAccount == curio.ZeroPrincipal {
		uiBps = 0
	}
	payout, err := domain.SplitPrice(ord.Price, state.FeeBps, uiBps, col.Royalties)
	if err != nil {
		return err
	}

	// fail fast before mutating: the buyer must have granted the exchange
	// enough allowance and hold the full price
	allowance, err := uc.asset.Allowance(ctx, buyer, uc.account)
	if err != nil {
		return err
	}
	if allowance < ord.Price {
		return domain.InsufficientFundsError{Need: ord.Price, Have: allowance}
	}
	balance, err := uc.asset.BalanceOf(ctx, buyer)
	if err != nil {
		return err
	}
	if balance < ord.Price {
		return domain.InsufficientFundsError{Need: ord.Price, Have: balance}
	}

	// effects: clear or draw down the order, move the item, accrue the fee
	if ord.Remaining <= 1 {
		if err := s.RemoveOrder(ctx, kind, subject); err != nil {
			return err
		}
	} else {
		ord.Remaining--
		if err := s.PutOrder(ctx, ord); err != nil {
			return err
		}
	}
	if err := s.SetItemOwner(ctx, itemID, buyer); err != nil {
		return err
	}
	if payout.Fee > 0 {
		if err := s.AccrueFee(ctx, uc.assetID, payout.Fee); err != nil {
			return err
		}
	}

	// interactions: settlement asset moves, seller leg last
	if payout.Fee > 0 {
		if err := uc.asset.TransferFrom(ctx, buyer, uc.account, payout.Fee); err != nil {
			return errors.Wrap(err, "fee transfer failed")
		}
	}
	if payout.UIFee > 0 {
		if err := uc.asset.TransferFrom(ctx, buyer, uiFeeAccount, payout.UIFee); err != nil {
			return errors.Wrap(err, "ui fee transfer failed")
		}
	}
	for _, r := range payout.Royalties {
		if r.Amount == 0 {
			continue
		}
		if err := uc.asset.TransferFrom(ctx, buyer, r.Recipient, r.Amount); err != nil {
			return errors.Wrap(err, "royalty transfer failed")
		}
	}
	if payout.Seller > 0 {
		if err := uc.asset.TransferFrom(ctx, buyer, seller, payout.Seller); err != nil {
			return errors.Wrap(err, "seller transfer failed")
		}
	}

	now := time.Now()
	*events = append(*events,
		curio.Event{Type: curio.EventOrderFilled, Timestamp: now, Body: curio.OrderFilledEvent{
			Kind: kind, Subject: subject, Maker: ord.Maker, Taker: caller, Price: ord.Price,
		}},
		curio.Event{Type: curio.EventTransfer, Timestamp: now, Body: curio.TransferEvent{
			ItemID: itemID, From: seller, To: buyer,
		}},
	)
	return nil
}

// BulkTransfer moves a set of items the caller directly owns, all or
// nothing. Operator approval alone is not enough here; each transfer still
// requires the caller's blanket approval of the exchange account.
func (uc *ExchangeUsecase) BulkTransfer(ctx context.Context, caller, to string, itemIDs []int64) error {
	ctx, span := tracer.Start(ctx, "Exchange.BulkTransfer")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	var events []curio.Event
	err := uc.repo.Atomic(ctx, func(ctx context.Context, s ExchangeStore) error {
		for _, id := range itemIDs {
			item, err := s.GetItem(ctx, id)
			if err != nil {
				return err
			}
			if item.Owner != caller {
				return domain.OnlyTokenOwnerCanTransferError{ItemID: id}
			}
			approved, err := s.GetApproval(ctx, caller, uc.account)
			if err != nil {
				return err
			}
			if !approved {
				return domain.NotOwnerNorApprovedError{}
			}
			if err := s.SetItemOwner(ctx, id, to); err != nil {
				return err
			}
			events = append(events, curio.Event{
				Type:      curio.EventTransfer,
				Timestamp: time.Now(),
				Body:      curio.TransferEvent{ItemID: id, From: caller, To: to},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ev := range events {
		publish(ctx, uc.events, ev)
	}
	return nil
}

// UpdateFee sets the protocol fee, owner-only and capped.
func (uc *ExchangeUsecase) UpdateFee(ctx context.Context, caller string, feeBps uint32) error {
	ctx, span := tracer.Start(ctx, "Exchange.UpdateFee")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	state, err := uc.repo.State(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return domain.NotOwnerError{}
	}
	if feeBps > domain.MaxFeeBps {
		return domain.InvalidFeeError{Requested: feeBps, Max: domain.MaxFeeBps}
	}

	old := state.FeeBps
	state.FeeBps = feeBps
	if err := uc.repo.SetState(ctx, state); err != nil {
		return err
	}

	publish(ctx, uc.events, curio.Event{
		Type:      curio.EventFeeUpdated,
		Timestamp: time.Now(),
		Body:      curio.FeeUpdatedEvent{Old: old, New: feeBps, Timestamp: time.Now()},
	})
	return nil
}

// Withdraw pays out accrued protocol fees to the exchange owner. A zero
// asset means the default settlement asset; a zero amount means the entire
// available balance.
func (uc *ExchangeUsecase) Withdraw(ctx context.Context, caller, asset string, amount uint64) error {
	ctx, span := tracer.Start(ctx, "Exchange.Withdraw")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	state, err := uc.repo.State(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return domain.NotOwnerError{}
	}
	if asset == "" {
		asset = uc.assetID
	}

	return uc.repo.Atomic(ctx, func(ctx context.Context, s ExchangeStore) error {
		balance, err := s.FeeBalance(ctx, asset)
		if err != nil {
			return err
		}
		if amount == 0 {
			amount = balance
		}
		if amount > balance {
			return domain.InsufficientFundsError{Need: amount, Have: balance}
		}
		if amount == 0 {
			return nil
		}
		if err := s.DrainFee(ctx, asset, amount); err != nil {
			return err
		}
		return errors.Wrap(uc.asset.TransferFrom(ctx, uc.account, state.Owner, amount), "withdraw transfer failed")
	})
}

// TransferOwnership records a candidate; only that candidate can finalize
// the handover through AcceptOwnership.
func (uc *ExchangeUsecase) TransferOwnership(ctx context.Context, caller, candidate string) error {
	ctx, span := tracer.Start(ctx, "Exchange.TransferOwnership")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	state, err := uc.repo.State(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return domain.NotOwnerError{}
	}
	state.PendingOwner = candidate
	return uc.repo.SetState(ctx, state)
}

func (uc *ExchangeUsecase) AcceptOwnership(ctx context.Context, caller string) error {
	ctx, span := tracer.Start(ctx, "Exchange.AcceptOwnership")
	defer span.End()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	state, err := uc.repo.State(ctx)
	if err != nil {
		return err
	}
	if state.PendingOwner == curio.ZeroPrincipal || caller != state.PendingOwner {
		return domain.NotNewOwnerError{}
	}
	state.Owner = caller
	state.PendingOwner = curio.ZeroPrincipal
	return uc.repo.SetState(ctx, state)
}

func (uc *ExchangeUsecase) GetOrder(ctx context.Context, kind curio.OrderKind, subject int64) (curio.Order, error) {
	return uc.repo.GetOrder(ctx, kind, subject)
}

func (uc *ExchangeUsecase) View(ctx context.Context) (curio.ExchangeView, error) {
	state, err := uc.repo.State(ctx)
	if err != nil {
		return curio.ExchangeView{}, err
	}
	return curio.ExchangeView{
		Owner:        state.Owner,
		PendingOwner: state.PendingOwner,
		FeeBps:       state.FeeBps,
		UIFeeBps:     uc.uiFeeBps,
		Account:      uc.account,
	}, nil
}
