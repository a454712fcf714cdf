package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ink3-shop/api/internal/platform/httpx"
	"github.com/ink3-shop/api/internal/services"
)

const maxRequestBodySize = 64 * 1024

var notFoundErrors = []error{
	services.ErrOrderNotFound,
	services.ErrOrderBookNotFound,
	services.ErrPaymentNotFound,
	services.ErrCouponNotFound,
	services.ErrPointNotFound,
	services.ErrRefundNotFound,
	services.ErrShipmentNotFound,
}

var conflictErrors = []error{
	services.ErrOrderConflict,
	services.ErrOrderBookConflict,
	services.ErrPaymentConflict,
	services.ErrCouponDuplicate,
	services.ErrCouponConflict,
	services.ErrPointConflict,
	services.ErrRefundConflict,
	services.ErrRefundAlreadyApproved,
	services.ErrShipmentConflict,
}

var invalidStateErrors = []error{
	services.ErrOrderInvalidState,
	services.ErrPaymentCancelNotAllowed,
	services.ErrPointPaymentForGuest,
	services.ErrRefundNotAllowed,
	services.ErrBookOutOfStock,
	services.ErrCouponNotUsable,
	services.ErrCouponInvalidPeriod,
	services.ErrPointInsufficientBalance,
	services.ErrPointAlreadyCancelled,
}

var invalidInputErrors = []error{
	services.ErrOrderInvalidInput,
	services.ErrOrderBookInvalidInput,
	services.ErrPaymentInvalidInput,
	services.ErrCouponInvalidInput,
	services.ErrPointInvalidInput,
	services.ErrRefundInvalidInput,
	services.ErrShipmentInvalidInput,
}

var gatewayErrors = []error{
	services.ErrPaymentProcessorFailed,
	services.ErrPaymentParserFailed,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError translates workflow sentinels into the error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case matchesAny(err, notFoundErrors):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case matchesAny(err, conflictErrors):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case matchesAny(err, invalidStateErrors):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusUnprocessableEntity))
	case matchesAny(err, invalidInputErrors):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case matchesAny(err, gatewayErrors):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", err.Error(), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

// decodeJSON reads a bounded request body into dst and reports a client error
// when the payload is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}
