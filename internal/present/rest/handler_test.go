package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
	"github.com/yonagi/curio/internal/infra/database"
	"github.com/yonagi/curio/internal/present/rest/middleware"
	"github.com/yonagi/curio/internal/service"
	"github.com/yonagi/curio/internal/usecase"
)

// --- mocks ---

// memStore backs both the registry and the exchange for handler tests.
// Atomicity is exercised at the usecase level; here Atomic just runs fn.
type memStore struct {
	items       map[int64]curio.Item
	collections map[int64]curio.Collection
	approvals   map[string]bool
	minters     map[string]bool
	orders      map[string]curio.Order
	state       domain.ExchangeState
	fees        map[string]uint64
	nextItem    int64
	nextCol     int64
}

func newMemStore(owner string) *memStore {
	s := &memStore{
		items:       map[int64]curio.Item{},
		collections: map[int64]curio.Collection{},
		approvals:   map[string]bool{},
		minters:     map[string]bool{},
		orders:      map[string]curio.Order{},
		state:       domain.ExchangeState{Owner: owner, FeeBps: 200},
		fees:        map[string]uint64{},
		nextCol:     1,
	}
	s.collections[curio.DefaultCollectionID] = curio.Collection{
		ID:           curio.DefaultCollectionID,
		Name:         "default",
		InboxAddress: curio.DeriveInboxAddress(curio.DefaultCollectionID),
	}
	return s
}

func (s *memStore) GetItem(ctx context.Context, id int64) (curio.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return curio.Item{}, domain.NotFoundError{Resource: "item"}
	}
	return item, nil
}

func (s *memStore) GetItemByHash(ctx context.Context, collectionID int64, hash string) (curio.Item, error) {
	for _, item := range s.items {
		if item.CollectionID == collectionID && item.ContentHash == hash {
			return item, nil
		}
	}
	return curio.Item{}, domain.NotFoundError{Resource: "item"}
}

func (s *memStore) CreateItem(ctx context.Context, item curio.Item) (curio.Item, error) {
	item.ID = s.nextItem
	s.nextItem++
	s.items[item.ID] = item
	col := s.collections[item.CollectionID]
	col.ItemCount++
	s.collections[item.CollectionID] = col
	return item, nil
}

func (s *memStore) SetItemOwner(ctx context.Context, id int64, owner string) error {
	item, ok := s.items[id]
	if !ok {
		return domain.NotFoundError{Resource: "item"}
	}
	item.Owner = owner
	s.items[id] = item
	return nil
}

func (s *memStore) DeleteItem(ctx context.Context, id int64) error {
	delete(s.items, id)
	return nil
}

func (s *memStore) ListItems(ctx context.Context, count, offset int) ([]curio.Item, error) {
	var out []curio.Item
	for id := int64(offset); id < s.nextItem && len(out) < count; id++ {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStore) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	col, ok := s.collections[id]
	if !ok {
		return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
	}
	return col, nil
}

func (s *memStore) GetCollectionByName(ctx context.Context, name string) (curio.Collection, error) {
	for _, col := range s.collections {
		if col.Name == name {
			return col, nil
		}
	}
	return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
}

func (s *memStore) GetCollectionByInbox(ctx context.Context, inboxAddress string) (curio.Collection, error) {
	for _, col := range s.collections {
		if col.InboxAddress == inboxAddress {
			return col, nil
		}
	}
	return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
}

func (s *memStore) CreateCollection(ctx context.Context, col curio.Collection) (curio.Collection, error) {
	col.ID = s.nextCol
	s.nextCol++
	col.InboxAddress = curio.DeriveInboxAddress(col.ID)
	s.collections[col.ID] = col
	return col, nil
}

func (s *memStore) UpdateCollectionDescription(ctx context.Context, id int64, description string) error {
	col := s.collections[id]
	col.Description = description
	s.collections[id] = col
	return nil
}

func (s *memStore) UpdateCollectionRoyalties(ctx context.Context, id int64, royalties []curio.RoyaltyShare) error {
	col := s.collections[id]
	col.Royalties = royalties
	s.collections[id] = col
	return nil
}

func (s *memStore) SetCollectionFuses(ctx context.Context, id int64, fuses domain.Fuse) error {
	col := s.collections[id]
	col.Fuses = uint8(fuses)
	s.collections[id] = col
	return nil
}

func (s *memStore) ListCollections(ctx context.Context, count, offset int) ([]curio.Collection, error) {
	var out []curio.Collection
	for id := int64(offset); id < s.nextCol && len(out) < count; id++ {
		if col, ok := s.collections[id]; ok {
			out = append(out, col)
		}
	}
	return out, nil
}

func (s *memStore) GetApproval(ctx context.Context, owner, operator string) (bool, error) {
	return s.approvals[owner+"|"+operator], nil
}

func (s *memStore) SetApproval(ctx context.Context, owner, operator string, granted bool) error {
	s.approvals[owner+"|"+operator] = granted
	return nil
}

func (s *memStore) IsMinter(ctx context.Context, collectionID int64, principal string) (bool, error) {
	return s.minters[fmt.Sprintf("%d|%s", collectionID, principal)], nil
}

func (s *memStore) SetMinter(ctx context.Context, collectionID int64, principal string, allowed bool) error {
	s.minters[fmt.Sprintf("%d|%s", collectionID, principal)] = allowed
	return nil
}

func (s *memStore) GetOrder(ctx context.Context, kind curio.OrderKind, subject int64) (curio.Order, error) {
	ord, ok := s.orders[fmt.Sprintf("%s|%d", kind, subject)]
	if !ok {
		return curio.Order{}, domain.NotFoundError{Resource: "order"}
	}
	return ord, nil
}

func (s *memStore) PutOrder(ctx context.Context, order curio.Order) error {
	s.orders[fmt.Sprintf("%s|%d", order.Kind, order.Subject)] = order
	return nil
}

func (s *memStore) RemoveOrder(ctx context.Context, kind curio.OrderKind, subject int64) error {
	delete(s.orders, fmt.Sprintf("%s|%d", kind, subject))
	return nil
}

func (s *memStore) State(ctx context.Context) (domain.ExchangeState, error) { return s.state, nil }

func (s *memStore) SetState(ctx context.Context, state domain.ExchangeState) error {
	s.state = state
	return nil
}

func (s *memStore) AccrueFee(ctx context.Context, asset string, amount uint64) error {
	s.fees[asset] += amount
	return nil
}

func (s *memStore) FeeBalance(ctx context.Context, asset string) (uint64, error) {
	return s.fees[asset], nil
}

func (s *memStore) DrainFee(ctx context.Context, asset string, amount uint64) error {
	s.fees[asset] -= amount
	return nil
}

func (s *memStore) Atomic(ctx context.Context, fn func(ctx context.Context, st usecase.ExchangeStore) error) error {
	return fn(ctx, s)
}

type nopAsset struct{}

func (nopAsset) BalanceOf(ctx context.Context, principal string) (uint64, error) {
	return 1 << 40, nil
}
func (nopAsset) TransferFrom(ctx context.Context, from, to string, amount uint64) error { return nil }
func (nopAsset) Allowance(ctx context.Context, owner, spender string) (uint64, error) {
	return 1 << 40, nil
}

// --- tests ---

func newTestServer(store *memStore) *echo.Echo {
	mu := &sync.Mutex{}
	registryUC := usecase.NewRegistryUsecase(mu, store, nil)
	inboxUC := usecase.NewInboxUsecase(store, registryUC)
	exchangeUC := usecase.NewExchangeUsecase(mu, store, nopAsset{}, nil, "exchange", "credits", 0)

	h := NewHandler(registryUC, inboxUC, exchangeUC, nil, nil)

	e := echo.New()
	e.Use(middleware.NewPrincipalMiddleware().IdentifyPrincipal)
	h.RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, principal string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		serialized, _ := json.Marshal(body)
		reader = bytes.NewReader(serialized)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if principal != "" {
		req.Header.Set(middleware.PrincipalHeader, principal)
	}
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

func TestInboxSubmitRoute(t *testing.T) {
	store := newMemStore("admin")
	e := newTestServer(store)
	addr := curio.DeriveInboxAddress(curio.DefaultCollectionID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inbox/"+addr, strings.NewReader("abcdef"))
	req.Header.Set(middleware.PrincipalHeader, "alice")
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	var item curio.Item
	if err := json.Unmarshal(res.Body.Bytes(), &item); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if item.ID != 0 || item.Owner != "alice" {
		t.Fatalf("unexpected item: %+v", item)
	}

	// same payload again: conflict carrying the original registration
	req = httptest.NewRequest(http.MethodPost, "/api/v1/inbox/"+addr, strings.NewReader("abcdef"))
	req.Header.Set(middleware.PrincipalHeader, "bob")
	res = httptest.NewRecorder()
	e.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", res.Code)
	}
	var conflict struct {
		ItemID int64  `json:"itemID"`
		Owner  string `json:"owner"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("bad conflict body: %v", err)
	}
	if conflict.ItemID != 0 || conflict.Owner != "alice" {
		t.Fatalf("conflict body missing context: %s", res.Body.String())
	}
}

func TestInboxSubmitRequiresPrincipal(t *testing.T) {
	e := newTestServer(newMemStore("admin"))
	addr := curio.DeriveInboxAddress(curio.DefaultCollectionID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inbox/"+addr, strings.NewReader("x"))
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func TestGetItemNotFound(t *testing.T) {
	e := newTestServer(newMemStore("admin"))

	res := doJSON(e, http.MethodGet, "/api/v1/items/42", "", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", res.Code)
	}
}

func TestCollectionRoutes(t *testing.T) {
	e := newTestServer(newMemStore("admin"))

	res := doJSON(e, http.MethodPost, "/api/v1/collections", "carol", curio.NewCollectionRequest{
		Name:  "gallery",
		Fuses: uint8(domain.FuseOwnerDescription),
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	var col curio.Collection
	if err := json.Unmarshal(res.Body.Bytes(), &col); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if col.ID != 1 || col.InboxAddress != curio.DeriveInboxAddress(1) {
		t.Fatalf("unexpected collection: %+v", col)
	}

	res = doJSON(e, http.MethodPost, "/api/v1/collections", "dave", curio.NewCollectionRequest{Name: "gallery"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on duplicate name, got %d", res.Code)
	}

	// description update by a non-owner is forbidden
	res = doJSON(e, http.MethodPost, "/api/v1/collections/1/description", "dave",
		curio.DescriptionRequest{Description: "mine now"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}

	res = doJSON(e, http.MethodPost, "/api/v1/collections/1/description", "carol",
		curio.DescriptionRequest{Description: "ok"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
}

func TestRealtimeShutsDownWithClient(t *testing.T) {
	store := newMemStore("admin")
	mu := &sync.Mutex{}
	registryUC := usecase.NewRegistryUsecase(mu, store, nil)
	inboxUC := usecase.NewInboxUsecase(store, registryUC)
	exchangeUC := usecase.NewExchangeUsecase(mu, store, nopAsset{}, nil, "exchange", "credits", 0)
	events := service.NewEventService(database.NewRedis("127.0.0.1:0", "", 0))
	h := NewHandler(registryUC, inboxUC, exchangeUC, events, nil)

	e := echo.New()
	h.RegisterRoutes(e)
	ts := httptest.NewServer(e)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/realtime", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := ws.WriteJSON(map[string]any{"type": "listen", "events": []string{curio.EventTransfer}}); err != nil {
		t.Fatalf("listen frame failed: %v", err)
	}
	if err := ws.WriteJSON(map[string]any{"type": "h"}); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	// the handler must finish once the client is gone; a stuck reader or a
	// send on a closed channel would hang the server shutdown
	finished := make(chan struct{})
	go func() {
		ts.Close()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("realtime handler did not finish after the client left")
	}
}

func TestExchangeRoutes(t *testing.T) {
	store := newMemStore("admin")
	e := newTestServer(store)

	// seed an item and the operator approval directly
	store.items[0] = curio.Item{ID: 0, Owner: "alice", RegisteredAt: time.Now()}
	store.nextItem = 1
	store.approvals["alice|exchange"] = true

	res := doJSON(e, http.MethodPost, "/api/v1/exchange/execute", "alice", curio.ExecuteRequest{
		Requests: []curio.OrderRequest{
			{Action: curio.ActionOffer, ItemID: 0, Price: 100, Expiry: time.Now().Add(time.Hour)},
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}

	res = doJSON(e, http.MethodGet, "/api/v1/exchange/orders/offer/0", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	var order curio.Order
	if err := json.Unmarshal(res.Body.Bytes(), &order); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if order.Price != 100 || order.Maker != "alice" {
		t.Fatalf("unexpected order: %+v", order)
	}

	res = doJSON(e, http.MethodPost, "/api/v1/exchange/execute", "bob", curio.ExecuteRequest{
		Requests: []curio.OrderRequest{
			{Action: curio.ActionBuy, Maker: "alice", ItemID: 0, Price: 100},
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("buy failed: %d %s", res.Code, res.Body.String())
	}
	if store.items[0].Owner != "bob" {
		t.Fatalf("item not transferred")
	}

	// fee routes: stranger forbidden, owner capped
	res = doJSON(e, http.MethodPost, "/api/v1/exchange/fee", "mallory", curio.FeeRequest{FeeBps: 100})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
	res = doJSON(e, http.MethodPost, "/api/v1/exchange/fee", "admin", curio.FeeRequest{FeeBps: 9999})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.Code)
	}
	res = doJSON(e, http.MethodPost, "/api/v1/exchange/fee", "admin", curio.FeeRequest{FeeBps: 300})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}

	res = doJSON(e, http.MethodGet, "/api/v1/exchange", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	var view curio.ExchangeView
	if err := json.Unmarshal(res.Body.Bytes(), &view); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if view.FeeBps != 300 || view.Owner != "admin" {
		t.Fatalf("unexpected view: %+v", view)
	}
}
