package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain/order"
	"github.com/xenking/rimae-ledger/internal/domain/payment"
)

// createOrder converts the caller's cart into an order.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	req := order.CreateRequest{UserID: p.UserID, PaymentMethod: payment.MethodCOD}
	addr := &req.ShippingAddress
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "shipping_name":
			addr.Name, err = readString(d, key)
		case "shipping_phone":
			addr.Phone, err = readString(d, key)
		case "shipping_address_line1":
			addr.Line1, err = readString(d, key)
		case "shipping_address_line2":
			addr.Line2, err = readString(d, key)
		case "shipping_city":
			addr.City, err = readString(d, key)
		case "shipping_state":
			addr.State, err = readString(d, key)
		case "shipping_pincode":
			addr.Pincode, err = readString(d, key)
		case "payment_method":
			var s string
			s, err = readString(d, key)
			req.PaymentMethod = payment.Method(s)
		case "coupon_code":
			req.CouponCode, err = readString(d, key)
		case "customer_notes":
			req.CustomerNotes, err = readString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}

	o, err := h.svc.Orders.CreateOrder(r.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o, false) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	page, err := h.page(r)
	if err != nil {
		return err
	}
	orders, total, err := h.svc.Orders.ListForUser(r.Context(), p.UserID, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, orders, orderEncoder(false))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Orders.GetForUser(r.Context(), p.UserID, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, false) })
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	o, pay, err := h.svc.Orders.Pay(r.Context(), p.UserID, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, o, false)
		e.FieldStart("payment")
		encodePayment(e, pay)
		e.ObjEnd()
	})
}

// applyCoupon previews a discount. Without an explicit subtotal the caller's
// cart subtotal is used.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	var (
		code     string
		subtotal *decimal.Decimal
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "code":
			code, err = readString(d, key)
		case "subtotal":
			subtotal, err = readOptMoney(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if subtotal == nil {
		v, err := h.svc.Cart.Get(r.Context(), p.UserID)
		if err != nil {
			return errors.Wrap(err, "load cart")
		}
		subtotal = &v.Subtotal
	}

	d, err := h.svc.Coupons.Preview(r.Context(), code, *subtotal)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		fieldUUID(e, "coupon_id", d.CouponID)
		fieldStr(e, "code", d.Code)
		fieldMoney(e, "subtotal", *subtotal)
		fieldMoney(e, "discount_amount", d.Amount)
		fieldMoney(e, "discounted_subtotal", subtotal.Sub(d.Amount))
		e.ObjEnd()
	})
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	f := order.Filter{
		Status:        order.Status(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("payment_status")),
		Search:        strings.TrimSpace(q.Get("search")),
	}
	orders, total, err := h.svc.Orders.List(r.Context(), f, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, orders, orderEncoder(true))
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Orders.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

// adminUpdateOrder applies status, cost and note edits in one call.
func (h *Handler) adminUpdateOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var upd order.AdminUpdate
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "status":
			var s string
			s, err = readString(d, key)
			st := order.Status(s)
			upd.Status = &st
		case "shipping_cost":
			upd.Costs.ShippingCost, err = readOptMoney(d, key)
		case "packaging_cost":
			upd.Costs.PackagingCost, err = readOptMoney(d, key)
		case "payment_gateway_fee":
			upd.Costs.PaymentGatewayFee, err = readOptMoney(d, key)
		case "customer_acquisition_cost":
			upd.Costs.CAC, err = readOptMoney(d, key)
		case "admin_notes":
			upd.AdminNotes, err = readOptString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	o, err := h.svc.Orders.AdminUpdate(r.Context(), id, upd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

func orderEncoder(admin bool) func(e *jx.Encoder, o *order.Order) {
	return func(e *jx.Encoder, o *order.Order) { encodeOrder(e, o, admin) }
}

// encodeOrder renders an order. The cost side and profit figures are only
// included for admins.
func encodeOrder(e *jx.Encoder, o *order.Order, admin bool) {
	e.ObjStart()
	fieldUUID(e, "id", o.ID)
	fieldStr(e, "order_number", o.OrderNumber)
	fieldUUID(e, "user_id", o.UserID)
	fieldStr(e, "status", string(o.Status))
	fieldStr(e, "payment_status", string(o.PaymentStatus))
	fieldStr(e, "payment_method", string(o.PaymentMethod))
	fieldStr(e, "payment_id", o.PaymentID)

	fieldMoney(e, "subtotal", o.Subtotal)
	fieldMoney(e, "discount_amount", o.DiscountAmount)
	fieldMoney(e, "shipping_amount", o.ShippingAmount)
	fieldMoney(e, "tax_amount", o.TaxAmount)
	fieldMoney(e, "total_amount", o.TotalAmount)
	fieldOptUUID(e, "coupon_id", o.CouponID)
	fieldStr(e, "coupon_code", o.CouponCode)

	if admin {
		fieldMoney(e, "cogs", o.COGS)
		fieldMoney(e, "shipping_cost", o.ShippingCost)
		fieldMoney(e, "packaging_cost", o.PackagingCost)
		fieldMoney(e, "payment_gateway_fee", o.PaymentGatewayFee)
		fieldMoney(e, "customer_acquisition_cost", o.CAC)
		fieldMoney(e, "total_costs", o.TotalCosts())
		fieldMoney(e, "gross_profit", o.GrossProfit())
		fieldMoney(e, "net_profit", o.NetProfit())
		fieldMoney(e, "profit_margin", o.ProfitMargin())
		fieldStr(e, "admin_notes", o.AdminNotes)
	}

	a := o.ShippingAddress
	fieldStr(e, "shipping_name", a.Name)
	fieldStr(e, "shipping_phone", a.Phone)
	fieldStr(e, "shipping_address_line1", a.Line1)
	fieldStr(e, "shipping_address_line2", a.Line2)
	fieldStr(e, "shipping_city", a.City)
	fieldStr(e, "shipping_state", a.State)
	fieldStr(e, "shipping_pincode", a.Pincode)
	fieldStr(e, "customer_notes", o.CustomerNotes)

	e.FieldStart("items")
	encodeList(e, o.Items, func(e *jx.Encoder, it *order.Item) {
		e.ObjStart()
		fieldUUID(e, "id", it.ID)
		fieldUUID(e, "product_id", it.ProductID)
		fieldOptUUID(e, "variant_id", it.VariantID)
		fieldStr(e, "product_name", it.ProductName)
		fieldStr(e, "variant_name", it.VariantName)
		fieldStr(e, "sku", it.SKU)
		fieldInt(e, "quantity", it.Quantity)
		fieldMoney(e, "unit_price", it.UnitPrice)
		if admin {
			fieldMoney(e, "unit_cost", it.UnitCost)
		}
		fieldMoney(e, "total_price", it.TotalPrice)
		e.ObjEnd()
	})

	fieldOptTime(e, "delivered_at", o.DeliveredAt)
	fieldTime(e, "created_at", o.CreatedAt)
	fieldTime(e, "updated_at", o.UpdatedAt)
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.ObjStart()
	fieldUUID(e, "id", p.ID)
	fieldStr(e, "transaction_id", p.TransactionID)
	fieldUUID(e, "order_id", p.OrderID)
	fieldMoney(e, "amount", p.Amount)
	fieldStr(e, "payment_method", string(p.Method))
	fieldStr(e, "status", string(p.Status))
	fieldStr(e, "gateway_transaction_id", p.GatewayTxnID)
	fieldTime(e, "created_at", p.CreatedAt)
	e.ObjEnd()
}
