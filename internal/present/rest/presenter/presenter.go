package presenter

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/yonagi/curio/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type conflictResponse struct {
	Error        string    `json:"error"`
	ContentHash  string    `json:"contentHash"`
	Owner        string    `json:"owner"`
	ItemID       int64     `json:"itemID"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "principal required"})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func InternalError(c echo.Context, err error) error {
	slog.Error("internal error", slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// Error maps a domain failure onto its HTTP status. Anything unrecognized
// is a 500.
func Error(c echo.Context, err error) error {
	var dup domain.AlreadyRegisteredError
	if errors.As(err, &dup) {
		return c.JSON(http.StatusConflict, conflictResponse{
			Error:        dup.Error(),
			ContentHash:  dup.ContentHash,
			Owner:        dup.Owner,
			ItemID:       dup.ItemID,
			RegisteredAt: dup.RegisteredAt,
		})
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.InvalidCollectionError{}),
		errors.Is(err, domain.DuplicateCollectionNameError{}),
		errors.Is(err, domain.InvalidFusesError{}),
		errors.Is(err, domain.InvalidRoyaltiesError{}),
		errors.Is(err, domain.InvalidOrderError{}),
		errors.Is(err, domain.InvalidFeeError{}),
		errors.Is(err, domain.ValueNotAcceptedError{}):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.NotOwnerNorApprovedError{}),
		errors.Is(err, domain.OnlyTokenOwnerCanTransferError{}),
		errors.Is(err, domain.OnlyRegistryReceiverError{}),
		errors.Is(err, domain.NotCollectionOwnerError{}),
		errors.Is(err, domain.FuseUnsetError{}),
		errors.Is(err, domain.NotOwnerError{}),
		errors.Is(err, domain.NotNewOwnerError{}):
		return c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.OrderMismatchError{}):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.InsufficientFundsError{}):
		return c.JSON(http.StatusPaymentRequired, errorResponse{Error: err.Error()})
	}

	return InternalError(c, err)
}
