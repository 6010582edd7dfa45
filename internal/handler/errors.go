package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/auth"
	"github.com/xenking/rimae-ledger/internal/domain/coupon"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
)

// errorStatus classifies err into an HTTP status code.
func errorStatus(err error) int {
	var (
		validation  *domain.ValidationError
		orderMove   *order.TransitionError
		parcelMove  *shipment.TransitionError
		couponError *coupon.InvalidCouponError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &couponError),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.As(err, &orderMove),
		errors.As(err, &parcelMove),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrNotPayable),
		errors.Is(err, inventory.ErrNegativeStock),
		errors.Is(err, inventory.ErrPurchaseOrderClosed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {code, message[, field]}. Server errors are
// logged and recorded on the request span; their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	message := err.Error()

	var (
		validation *domain.ValidationError
		field      string
	)
	switch {
	case errors.As(err, &validation):
		message = validation.Error()
		field = validation.Field
	case status == http.StatusUnauthorized:
		message = "authentication required"
	case status == http.StatusForbidden:
		message = "admin role required"
	case status == http.StatusInternalServerError:
		message = "internal error"
		span := trace.SpanFromContext(r.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler error")
		zctx.From(r.Context()).Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}

	_ = writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		fieldInt(e, "code", status)
		fieldStr(e, "message", message)
		if field != "" {
			fieldStr(e, "field", field)
		}
		e.ObjEnd()
	})
}
