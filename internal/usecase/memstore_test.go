package usecase

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
)

// map-backed stores standing in for the gorm repositories

type memRegistryStore struct {
	items       map[int64]curio.Item
	collections map[int64]curio.Collection
	approvals   map[string]bool
	minters     map[string]bool
	nextItem    int64
	nextCol     int64
}

func newMemRegistryStore() *memRegistryStore {
	s := &memRegistryStore{
		items:       map[int64]curio.Item{},
		collections: map[int64]curio.Collection{},
		approvals:   map[string]bool{},
		minters:     map[string]bool{},
		nextCol:     1,
	}
	s.collections[curio.DefaultCollectionID] = curio.Collection{
		ID:           curio.DefaultCollectionID,
		Name:         "default",
		InboxAddress: curio.DeriveInboxAddress(curio.DefaultCollectionID),
	}
	return s
}

func approvalKey(owner, operator string) string { return owner + "|" + operator }

func minterKey(collectionID int64, principal string) string {
	return fmt.Sprintf("%d|%s", collectionID, principal)
}

func (s *memRegistryStore) GetItem(ctx context.Context, id int64) (curio.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return curio.Item{}, domain.NotFoundError{Resource: "item"}
	}
	return item, nil
}

func (s *memRegistryStore) GetItemByHash(ctx context.Context, collectionID int64, hash string) (curio.Item, error) {
	for _, item := range s.items {
		if item.CollectionID == collectionID && item.ContentHash == hash {
			return item, nil
		}
	}
	return curio.Item{}, domain.NotFoundError{Resource: "item"}
}

func (s *memRegistryStore) CreateItem(ctx context.Context, item curio.Item) (curio.Item, error) {
	if existing, err := s.GetItemByHash(ctx, item.CollectionID, item.ContentHash); err == nil {
		return curio.Item{}, domain.AlreadyRegisteredError{
			ContentHash:  existing.ContentHash,
			Owner:        existing.Owner,
			ItemID:       existing.ID,
			RegisteredAt: existing.RegisteredAt,
		}
	}
	item.ID = s.nextItem
	s.nextItem++
	s.items[item.ID] = item

	col := s.collections[item.CollectionID]
	col.ItemCount++
	s.collections[item.CollectionID] = col
	return item, nil
}

func (s *memRegistryStore) SetItemOwner(ctx context.Context, id int64, owner string) error {
	item, ok := s.items[id]
	if !ok {
		return domain.NotFoundError{Resource: "item"}
	}
	item.Owner = owner
	s.items[id] = item
	return nil
}

func (s *memRegistryStore) DeleteItem(ctx context.Context, id int64) error {
	item, ok := s.items[id]
	if !ok {
		return domain.NotFoundError{Resource: "item"}
	}
	delete(s.items, id)
	col := s.collections[item.CollectionID]
	col.ItemCount--
	s.collections[item.CollectionID] = col
	return nil
}

func (s *memRegistryStore) ListItems(ctx context.Context, count, offset int) ([]curio.Item, error) {
	ids := slices.Sorted(maps.Keys(s.items))
	var out []curio.Item
	for i := offset; i < len(ids) && len(out) < count; i++ {
		out = append(out, s.items[ids[i]])
	}
	return out, nil
}

func (s *memRegistryStore) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	col, ok := s.collections[id]
	if !ok {
		return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
	}
	return col, nil
}

func (s *memRegistryStore) GetCollectionByName(ctx context.Context, name string) (curio.Collection, error) {
	for _, col := range s.collections {
		if col.Name == name {
			return col, nil
		}
	}
	return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
}

func (s *memRegistryStore) GetCollectionByInbox(ctx context.Context, inboxAddress string) (curio.Collection, error) {
	for _, col := range s.collections {
		if col.InboxAddress == inboxAddress {
			return col, nil
		}
	}
	return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
}

func (s *memRegistryStore) CreateCollection(ctx context.Context, col curio.Collection) (curio.Collection, error) {
	col.ID = s.nextCol
	s.nextCol++
	col.InboxAddress = curio.DeriveInboxAddress(col.ID)
	s.collections[col.ID] = col
	return col, nil
}

func (s *memRegistryStore) UpdateCollectionDescription(ctx context.Context, id int64, description string) error {
	col, ok := s.collections[id]
	if !ok {
		return domain.NotFoundError{Resource: "collection"}
	}
	col.Description = description
	s.collections[id] = col
	return nil
}

func (s *memRegistryStore) UpdateCollectionRoyalties(ctx context.Context, id int64, royalties []curio.RoyaltyShare) error {
	col, ok := s.collections[id]
	if !ok {
		return domain.NotFoundError{Resource: "collection"}
	}
	col.Royalties = royalties
	s.collections[id] = col
	return nil
}

func (s *memRegistryStore) SetCollectionFuses(ctx context.Context, id int64, fuses domain.Fuse) error {
	col, ok := s.collections[id]
	if !ok {
		return domain.NotFoundError{Resource: "collection"}
	}
	col.Fuses = uint8(fuses)
	s.collections[id] = col
	return nil
}

func (s *memRegistryStore) ListCollections(ctx context.Context, count, offset int) ([]curio.Collection, error) {
	ids := slices.Sorted(maps.Keys(s.collections))
	var out []curio.Collection
	for i := offset; i < len(ids) && len(out) < count; i++ {
		out = append(out, s.collections[ids[i]])
	}
	return out, nil
}

func (s *memRegistryStore) GetApproval(ctx context.Context, owner, operator string) (bool, error) {
	return s.approvals[approvalKey(owner, operator)], nil
}

func (s *memRegistryStore) SetApproval(ctx context.Context, owner, operator string, granted bool) error {
	s.approvals[approvalKey(owner, operator)] = granted
	return nil
}

func (s *memRegistryStore) IsMinter(ctx context.Context, collectionID int64, principal string) (bool, error) {
	return s.minters[minterKey(collectionID, principal)], nil
}

func (s *memRegistryStore) SetMinter(ctx context.Context, collectionID int64, principal string, allowed bool) error {
	s.minters[minterKey(collectionID, principal)] = allowed
	return nil
}

type memExchangeRepo struct {
	reg    *memRegistryStore
	orders map[string]curio.Order
	state  domain.ExchangeState
	fees   map[string]uint64
}

func newMemExchangeRepo(reg *memRegistryStore, owner string) *memExchangeRepo {
	return &memExchangeRepo{
		reg:    reg,
		orders: map[string]curio.Order{},
		state:  domain.ExchangeState{Owner: owner, FeeBps: 200},
		fees:   map[string]uint64{},
	}
}

func orderKey(kind curio.OrderKind, subject int64) string {
	return fmt.Sprintf("%s|%d", kind, subject)
}

func (r *memExchangeRepo) Atomic(ctx context.Context, fn func(ctx context.Context, s ExchangeStore) error) error {
	items := maps.Clone(r.reg.items)
	collections := maps.Clone(r.reg.collections)
	orders := maps.Clone(r.orders)
	fees := maps.Clone(r.fees)
	state := r.state

	if err := fn(ctx, r); err != nil {
		r.reg.items = items
		r.reg.collections = collections
		r.orders = orders
		r.fees = fees
		r.state = state
		return err
	}
	return nil
}

func (r *memExchangeRepo) GetOrder(ctx context.Context, kind curio.OrderKind, subject int64) (curio.Order, error) {
	ord, ok := r.orders[orderKey(kind, subject)]
	if !ok {
		return curio.Order{}, domain.NotFoundError{Resource: "order"}
	}
	return ord, nil
}

func (r *memExchangeRepo) PutOrder(ctx context.Context, order curio.Order) error {
	r.orders[orderKey(order.Kind, order.Subject)] = order
	return nil
}

func (r *memExchangeRepo) RemoveOrder(ctx context.Context, kind curio.OrderKind, subject int64) error {
	delete(r.orders, orderKey(kind, subject))
	return nil
}

func (r *memExchangeRepo) GetItem(ctx context.Context, id int64) (curio.Item, error) {
	return r.reg.GetItem(ctx, id)
}

func (r *memExchangeRepo) SetItemOwner(ctx context.Context, id int64, owner string) error {
	return r.reg.SetItemOwner(ctx, id, owner)
}

func (r *memExchangeRepo) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	return r.reg.GetCollection(ctx, id)
}

func (r *memExchangeRepo) GetApproval(ctx context.Context, owner, operator string) (bool, error) {
	return r.reg.GetApproval(ctx, owner, operator)
}

func (r *memExchangeRepo) State(ctx context.Context) (domain.ExchangeState, error) {
	return r.state, nil
}

func (r *memExchangeRepo) SetState(ctx context.Context, state domain.ExchangeState) error {
	r.state = state
	return nil
}

func (r *memExchangeRepo) AccrueFee(ctx context.Context, asset string, amount uint64) error {
	r.fees[asset] += amount
	return nil
}

func (r *memExchangeRepo) FeeBalance(ctx context.Context, asset string) (uint64, error) {
	return r.fees[asset], nil
}

func (r *memExchangeRepo) DrainFee(ctx context.Context, asset string, amount uint64) error {
	if r.fees[asset] < amount {
		return domain.InsufficientFundsError{Need: amount, Have: r.fees[asset]}
	}
	r.fees[asset] -= amount
	return nil
}

type assetTransfer struct {
	From   string
	To     string
	Amount uint64
}

type memAsset struct {
	balances   map[string]uint64
	allowances map[string]uint64
	transfers  []assetTransfer
	failAll    bool
}

func newMemAsset() *memAsset {
	return &memAsset{balances: map[string]uint64{}, allowances: map[string]uint64{}}
}

func (a *memAsset) BalanceOf(ctx context.Context, principal string) (uint64, error) {
	return a.balances[principal], nil
}

func (a *memAsset) TransferFrom(ctx context.Context, from, to string, amount uint64) error {
	if a.failAll {
		return fmt.Errorf("asset transfer refused")
	}
	if a.balances[from] < amount {
		return domain.InsufficientFundsError{Need: amount, Have: a.balances[from]}
	}
	a.balances[from] -= amount
	a.balances[to] += amount
	a.transfers = append(a.transfers, assetTransfer{From: from, To: to, Amount: amount})
	return nil
}

func (a *memAsset) Allowance(ctx context.Context, owner, spender string) (uint64, error) {
	return a.allowances[approvalKey(owner, spender)], nil
}

func (a *memAsset) approve(owner, spender string, amount uint64) {
	a.allowances[approvalKey(owner, spender)] = amount
}

type memEvents struct {
	published []curio.Event
}

func (m *memEvents) Publish(ctx context.Context, event curio.Event) error {
	m.published = append(m.published, event)
	return nil
}

func (m *memEvents) ofType(typ string) []curio.Event {
	var out []curio.Event
	for _, ev := range m.published {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
