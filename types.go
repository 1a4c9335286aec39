package curio

import (
	"time"
)

// DefaultCollectionID is the implicit collection every deployment starts
// with. It has no owner, no royalties, and no fuses.
const DefaultCollectionID int64 = 0

// ZeroPrincipal is the null identity. Transferring an item to it
// relinquishes ownership while keeping the item enumerable.
const ZeroPrincipal = ""

// Item is a uniquely owned record bound to a content hash.
type Item struct {
	ID           int64     `json:"id"`
	CollectionID int64     `json:"collectionID"`
	ContentHash  string    `json:"contentHash"`
	Owner        string    `json:"owner"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// RoyaltyShare is one entry of a collection's ordered royalty table.
type RoyaltyShare struct {
	Recipient string `json:"recipient"`
	Bps       uint32 `json:"bps"`
}

type Collection struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Owner        string         `json:"owner"`
	InboxAddress string         `json:"inboxAddress"`
	Fuses        uint8          `json:"fuses"`
	Royalties    []RoyaltyShare `json:"royalties,omitempty"`
	ItemCount    int64          `json:"itemCount"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type OrderKind string

const (
	OrderOffer           OrderKind = "offer"
	OrderBid             OrderKind = "bid"
	OrderCollectionOffer OrderKind = "collection-offer"
	OrderCollectionBid   OrderKind = "collection-bid"
)

// Order is a standing, replaceable trade intent. Subject is an item id for
// item-level kinds and a collection id for collection-level kinds.
type Order struct {
	Kind      OrderKind `json:"kind"`
	Subject   int64     `json:"subject"`
	Maker     string    `json:"maker"`
	Price     uint64    `json:"price"`
	Remaining uint64    `json:"remaining"`
	Expiry    time.Time `json:"expiry"`
}

// Actions accepted by Exchange.Execute. Offer/Bid and their collection
// variants post standing orders; the rest are one-shot fills.
const (
	ActionOffer           = "offer"
	ActionBid             = "bid"
	ActionBuy             = "buy"
	ActionSell            = "sell"
	ActionCollectionOffer = "collection-offer"
	ActionCollectionBid   = "collection-bid"
	ActionCollectionBuy   = "collection-buy"
	ActionCollectionSell  = "collection-sell"
)

// OrderRequest is one element of an Execute batch. Fields are interpreted
// per Action; unused fields are ignored.
type OrderRequest struct {
	Action       string    `json:"action"`
	Maker        string    `json:"maker,omitempty"`
	ItemID       int64     `json:"itemID,omitempty"`
	CollectionID int64     `json:"collectionID,omitempty"`
	Price        uint64    `json:"price"`
	Quantity     uint64    `json:"quantity,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

type ExecuteRequest struct {
	Requests     []OrderRequest `json:"requests"`
	UIFeeAccount string         `json:"uiFeeAccount,omitempty"`
}

type NewCollectionRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Fuses       uint8          `json:"fuses"`
	Royalties   []RoyaltyShare `json:"royalties,omitempty"`
}

type TransferRequest struct {
	To string `json:"to"`
}

type ApprovalRequest struct {
	Operator string `json:"operator"`
	Granted  bool   `json:"granted"`
}

type BulkTransferRequest struct {
	To      string  `json:"to"`
	ItemIDs []int64 `json:"itemIDs"`
}

type FeeRequest struct {
	FeeBps uint32 `json:"feeBps"`
}

type WithdrawRequest struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type OwnershipRequest struct {
	Candidate string `json:"candidate"`
}

type MinterRequest struct {
	Principal string `json:"principal"`
	Allowed   bool   `json:"allowed"`
}

type MintRequest struct {
	ContentHash string `json:"contentHash"`
	To          string `json:"to,omitempty"`
}

type DescriptionRequest struct {
	Description string `json:"description"`
}

type RoyaltiesRequest struct {
	Royalties []RoyaltyShare `json:"royalties"`
}

type FuseBurnRequest struct {
	Bit uint8 `json:"bit"`
}

// ApproveAssetRequest and MintAssetRequest drive the bundled settlement
// ledger. Deployments consuming an external asset do not mount these.
type ApproveAssetRequest struct {
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

type MintAssetRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BalanceResponse struct {
	Principal string `json:"principal"`
	Amount    uint64 `json:"amount"`
}

type ExchangeView struct {
	Owner        string `json:"owner"`
	PendingOwner string `json:"pendingOwner,omitempty"`
	FeeBps       uint32 `json:"feeBps"`
	UIFeeBps     uint32 `json:"uiFeeBps"`
	Account      string `json:"account"`
}

// Event types published on every successful state transition.
const (
	EventRegistered        = "registered"
	EventTransfer          = "transfer"
	EventCollectionCreated = "collection-created"
	EventApprovalSet       = "approval-set"
	EventOrderPosted       = "order-posted"
	EventOrderFilled       = "order-filled"
	EventFeeUpdated        = "fee-updated"
)

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Body      any       `json:"body"`
}

type RegisteredEvent struct {
	ItemID       int64     `json:"itemID"`
	Owner        string    `json:"owner"`
	CollectionID int64     `json:"collectionID"`
	ContentHash  string    `json:"contentHash"`
	Timestamp    time.Time `json:"timestamp"`
}

type TransferEvent struct {
	ItemID int64  `json:"itemID"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type CollectionCreatedEvent struct {
	CollectionID int64  `json:"collectionID"`
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	InboxAddress string `json:"inboxAddress"`
}

type ApprovalSetEvent struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Granted  bool   `json:"granted"`
}

type OrderPostedEvent struct {
	Kind    OrderKind `json:"kind"`
	Subject int64     `json:"subject"`
	Maker   string    `json:"maker"`
	Price   uint64    `json:"price"`
}

type OrderFilledEvent struct {
	Kind    OrderKind `json:"kind"`
	Subject int64     `json:"subject"`
	Maker   string    `json:"maker"`
	Taker   string    `json:"taker"`
	Price   uint64    `json:"price"`
}

type FeeUpdatedEvent struct {
	Old       uint32    `json:"old"`
	New       uint32    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}
