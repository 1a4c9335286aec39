package rest

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
	"github.com/yonagi/curio/internal/infra/asset"
	"github.com/yonagi/curio/internal/present/rest/presenter"
	"github.com/yonagi/curio/internal/service"
	"github.com/yonagi/curio/internal/usecase"
)

type Handler struct {
	registry *usecase.RegistryUsecase
	inbox    *usecase.InboxUsecase
	exchange *usecase.ExchangeUsecase
	events   *service.EventService

	// ledger is the bundled settlement asset; nil when the deployment
	// consumes an external one, which unmounts the asset routes.
	ledger *asset.Ledger
}

func NewHandler(
	registry *usecase.RegistryUsecase,
	inbox *usecase.InboxUsecase,
	exchange *usecase.ExchangeUsecase,
	events *service.EventService,
	ledger *asset.Ledger,
) *Handler {
	return &Handler{
		registry: registry,
		inbox:    inbox,
		exchange: exchange,
		events:   events,
		ledger:   ledger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/inbox/:address", h.handleInboxSubmit)

	e.GET("/api/v1/items", h.handleListItems)
	e.GET("/api/v1/items/:id", h.handleGetItem)
	e.POST("/api/v1/items/:id/transfer", h.handleTransfer)
	e.POST("/api/v1/items/:id/burn", h.handleBurnItem)
	e.POST("/api/v1/approvals", h.handleSetApproval)

	e.GET("/api/v1/collections", h.handleListCollections)
	e.GET("/api/v1/collections/:id", h.handleGetCollection)
	e.POST("/api/v1/collections", h.handleNewCollection)
	e.POST("/api/v1/collections/:id/description", h.handleUpdateDescription)
	e.POST("/api/v1/collections/:id/royalties", h.handleUpdateRoyalties)
	e.POST("/api/v1/collections/:id/fuse-burn", h.handleBurnFuse)
	e.POST("/api/v1/collections/:id/minters", h.handleSetMinter)
	e.POST("/api/v1/collections/:id/mint", h.handleMint)

	e.GET("/api/v1/exchange", h.handleExchangeView)
	e.GET("/api/v1/exchange/orders/:kind/:subject", h.handleGetOrder)
	e.POST("/api/v1/exchange/execute", h.handleExecute)
	e.POST("/api/v1/exchange/bulk-transfer", h.handleBulkTransfer)
	e.POST("/api/v1/exchange/fee", h.handleUpdateFee)
	e.POST("/api/v1/exchange/withdraw", h.handleWithdraw)
	e.POST("/api/v1/exchange/transfer-ownership", h.handleTransferOwnership)
	e.POST("/api/v1/exchange/accept-ownership", h.handleAcceptOwnership)

	if h.ledger != nil {
		e.GET("/api/v1/asset/balance/:principal", h.handleAssetBalance)
		e.POST("/api/v1/asset/approve", h.handleAssetApprove)
		e.POST("/api/v1/asset/mint", h.handleAssetMint)
	}

	e.GET("/realtime", h.handleRealtime)
}

func principal(c echo.Context) (string, bool) {
	p := domain.PrincipalFrom(c.Request().Context())
	return p, p != ""
}

func paramInt64(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) handleInboxSubmit(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	var value uint64
	if raw := c.QueryParam("value"); raw != "" {
		value, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid value parameter")
		}
	}

	item, err := h.inbox.Submit(ctx, c.Param("address"), caller, payload, value)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, item)
}

func (h *Handler) handleListItems(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := queryInt(c, "count", 16)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid count parameter")
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid offset parameter")
	}

	items, err := h.registry.GetItems(ctx, count, offset)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, items)
}

func (h *Handler) handleGetItem(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid item id")
	}

	item, err := h.registry.GetItem(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, item)
}

func (h *Handler) handleTransfer(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid item id")
	}

	var req curio.TransferRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.registry.Transfer(ctx, caller, req.To, id); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleBurnItem(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid item id")
	}

	if err := h.registry.BurnUserItem(ctx, caller, id); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleSetApproval(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Operator == "" {
		return presenter.BadRequestMessage(c, "operator is required")
	}

	if err := h.registry.SetApprovalForAll(ctx, caller, req.Operator, req.Granted); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleListCollections(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := queryInt(c, "count", 16)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid count parameter")
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid offset parameter")
	}

	cols, err := h.registry.GetCollections(ctx, count, offset)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, cols)
}

func (h *Handler) handleGetCollection(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid collection id")
	}

	col, err := h.registry.GetCollection(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, col)
}

func (h *Handler) handleNewCollection(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.NewCollectionRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	col, err := h.registry.NewCollection(ctx, caller, req.Name, req.Description, req.Fuses, req.Royalties)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, col)
}

func (h *Handler) handleUpdateDescription(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid collection id")
	}

	var req curio.DescriptionRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.registry.UpdateDescription(ctx, caller, id, req.Description); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleUpdateRoyalties(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid collection id")
	}

	var req curio.RoyaltiesRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.registry.UpdateRoyalties(ctx, caller, id, req.Royalties); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleBurnFuse(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid collection id")
	}

	var req curio.FuseBurnRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.registry.BurnFuse(ctx, caller, id, req.Bit); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleSetMinter(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid collection id")
	}

	var req curio.MinterRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Principal == "" {
		return presenter.BadRequestMessage(c, "principal is required")
	}

	if err := h.registry.SetMinter(ctx, caller, id, req.Principal, req.Allowed); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleMint(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	id, err := paramInt64(c, "id")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid collection id")
	}

	var req curio.MintRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.ContentHash == "" {
		return presenter.BadRequestMessage(c, "contentHash is required")
	}

	item, err := h.registry.MintItem(ctx, caller, id, req.ContentHash, req.To)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, item)
}

func (h *Handler) handleExchangeView(c echo.Context) error {
	ctx := c.Request().Context()

	view, err := h.exchange.View(ctx)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, view)
}

func (h *Handler) handleGetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	subject, err := paramInt64(c, "subject")
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid subject")
	}

	order, err := h.exchange.GetOrder(ctx, curio.OrderKind(c.Param("kind")), subject)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, order)
}

func (h *Handler) handleExecute(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if len(req.Requests) == 0 {
		return presenter.BadRequestMessage(c, "empty request batch")
	}

	if err := h.exchange.Execute(ctx, caller, req.Requests, req.UIFeeAccount); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleBulkTransfer(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.BulkTransferRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if len(req.ItemIDs) == 0 {
		return presenter.BadRequestMessage(c, "itemIDs is required")
	}

	if err := h.exchange.BulkTransfer(ctx, caller, req.To, req.ItemIDs); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleUpdateFee(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.FeeRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.exchange.UpdateFee(ctx, caller, req.FeeBps); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleWithdraw(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.exchange.Withdraw(ctx, caller, req.Asset, req.Amount); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleTransferOwnership(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.OwnershipRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.exchange.TransferOwnership(ctx, caller, req.Candidate); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAcceptOwnership(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	if err := h.exchange.AcceptOwnership(ctx, caller); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAssetBalance(c echo.Context) error {
	ctx := c.Request().Context()

	target := c.Param("principal")
	amount, err := h.ledger.BalanceOf(ctx, target)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, curio.BalanceResponse{Principal: target, Amount: amount})
}

func (h *Handler) handleAssetApprove(c echo.Context) error {
	ctx := c.Request().Context()

	caller, ok := principal(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req curio.ApproveAssetRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Spender == "" {
		return presenter.BadRequestMessage(c, "spender is required")
	}

	if err := h.ledger.Approve(ctx, caller, req.Spender, req.Amount); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleAssetMint(c echo.Context) error {
	ctx := c.Request().Context()

	var req curio.MintAssetRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.To == "" {
		return presenter.BadRequestMessage(c, "to is required")
	}

	if err := h.ledger.Mint(ctx, req.To, req.Amount); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	input := make(chan []string)
	output := make(chan curio.Event)

	// the pump exits through ctx when the request finishes; input is never
	// closed so the reader can't race a close with its own sends
	go h.events.Realtime(ctx, input, output)

	quit := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(quit)
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Events:
				case <-done:
					return
				}
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
