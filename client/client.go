package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"

	"github.com/yonagi/curio"
)

const (
	defaultTimeout = 3 * time.Second
)

// Client is the HTTP SDK for a curio node. Reads of items and collections
// are cached briefly; writes carry the configured principal header.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	host      string
	principal string
}

func New(host string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		cache: cache.New(10*time.Second, time.Minute),
		host:  host,
	}
}

// WithPrincipal returns a copy of the client acting as the given
// principal.
func (c *Client) WithPrincipal(principal string) *Client {
	clone := *c
	clone.principal = principal
	return &clone
}

func (c *Client) request(ctx context.Context, method, path string, body, response any) error {
	var reader io.Reader
	if body != nil {
		serialized, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(serialized)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.principal != "" {
		req.Header.Set("X-Curio-Principal", c.principal)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var remote struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&remote); err == nil && remote.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, remote.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status code %d", method, path, resp.StatusCode)
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

func (c *Client) GetItem(ctx context.Context, id int64) (curio.Item, error) {
	key := "item:" + strconv.FormatInt(id, 10)
	if cached, found := c.cache.Get(key); found {
		return cached.(curio.Item), nil
	}

	var item curio.Item
	err := c.request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/items/%d", id), nil, &item)
	if err != nil {
		return curio.Item{}, err
	}

	c.cache.Set(key, item, cache.DefaultExpiration)
	return item, nil
}

func (c *Client) GetItems(ctx context.Context, count, offset int) ([]curio.Item, error) {
	var items []curio.Item
	path := fmt.Sprintf("/api/v1/items?count=%d&offset=%d", count, offset)
	err := c.request(ctx, http.MethodGet, path, nil, &items)
	return items, err
}

func (c *Client) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	key := "collection:" + strconv.FormatInt(id, 10)
	if cached, found := c.cache.Get(key); found {
		return cached.(curio.Collection), nil
	}

	var col curio.Collection
	err := c.request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/collections/%d", id), nil, &col)
	if err != nil {
		return curio.Collection{}, err
	}

	c.cache.Set(key, col, cache.DefaultExpiration)
	return col, nil
}

func (c *Client) GetCollections(ctx context.Context, count, offset int) ([]curio.Collection, error) {
	var cols []curio.Collection
	path := fmt.Sprintf("/api/v1/collections?count=%d&offset=%d", count, offset)
	err := c.request(ctx, http.MethodGet, path, nil, &cols)
	return cols, err
}

// Submit registers a payload through a collection's inbox and returns the
// created item.
func (c *Client) Submit(ctx context.Context, inboxAddress string, payload []byte) (curio.Item, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.host+"/api/v1/inbox/"+url.PathEscape(inboxAddress),
		bytes.NewReader(payload),
	)
	if err != nil {
		return curio.Item{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.principal != "" {
		req.Header.Set("X-Curio-Principal", c.principal)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return curio.Item{}, fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return curio.Item{}, fmt.Errorf("inbox submit: unexpected status code %d", resp.StatusCode)
	}

	var item curio.Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return curio.Item{}, fmt.Errorf("failed to decode response: %v", err)
	}
	return item, nil
}

func (c *Client) Mint(ctx context.Context, collectionID int64, contentHash, to string) (curio.Item, error) {
	var item curio.Item
	path := fmt.Sprintf("/api/v1/collections/%d/mint", collectionID)
	err := c.request(ctx, http.MethodPost, path, curio.MintRequest{ContentHash: contentHash, To: to}, &item)
	return item, err
}

func (c *Client) Transfer(ctx context.Context, itemID int64, to string) error {
	path := fmt.Sprintf("/api/v1/items/%d/transfer", itemID)
	return c.request(ctx, http.MethodPost, path, curio.TransferRequest{To: to}, nil)
}

func (c *Client) SetApproval(ctx context.Context, operator string, granted bool) error {
	return c.request(ctx, http.MethodPost, "/api/v1/approvals",
		curio.ApprovalRequest{Operator: operator, Granted: granted}, nil)
}

func (c *Client) NewCollection(ctx context.Context, req curio.NewCollectionRequest) (curio.Collection, error) {
	var col curio.Collection
	err := c.request(ctx, http.MethodPost, "/api/v1/collections", req, &col)
	return col, err
}

func (c *Client) Execute(ctx context.Context, req curio.ExecuteRequest) error {
	return c.request(ctx, http.MethodPost, "/api/v1/exchange/execute", req, nil)
}

func (c *Client) BulkTransfer(ctx context.Context, to string, itemIDs []int64) error {
	return c.request(ctx, http.MethodPost, "/api/v1/exchange/bulk-transfer",
		curio.BulkTransferRequest{To: to, ItemIDs: itemIDs}, nil)
}

func (c *Client) ExchangeView(ctx context.Context) (curio.ExchangeView, error) {
	var view curio.ExchangeView
	err := c.request(ctx, http.MethodGet, "/api/v1/exchange", nil, &view)
	return view, err
}

func (c *Client) GetOrder(ctx context.Context, kind curio.OrderKind, subject int64) (curio.Order, error) {
	var order curio.Order
	path := fmt.Sprintf("/api/v1/exchange/orders/%s/%d", kind, subject)
	err := c.request(ctx, http.MethodGet, path, nil, &order)
	return order, err
}

// Realtime opens the event stream, optionally filtered by event types, and
// delivers events until ctx is done. The returned channel closes when the
// stream ends.
func (c *Client) Realtime(ctx context.Context, types []string) (<-chan curio.Event, error) {
	endpoint, err := url.Parse(c.host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %v", err)
	}
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	endpoint.Path = "/realtime"

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime endpoint: %v", err)
	}

	if len(types) > 0 {
		err = ws.WriteJSON(map[string]any{"type": "listen", "events": types})
		if err != nil {
			ws.Close()
			return nil, fmt.Errorf("failed to subscribe: %v", err)
		}
	}

	events := make(chan curio.Event)
	go func() {
		defer close(events)
		defer ws.Close()
		for {
			var event curio.Event
			if err := ws.ReadJSON(&event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
