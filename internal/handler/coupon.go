package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/rimae-ledger/internal/domain/coupon"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	coupons, total, err := h.svc.Coupons.List(r.Context(), page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, coupons, encodeCoupon)
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	c, err := h.svc.Coupons.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) error {
	c := coupon.Coupon{IsActive: true}
	if err := decodeObject(r, couponDecoder(&c)); err != nil {
		return err
	}
	if err := h.svc.Coupons.Create(r.Context(), &c); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, &c) })
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	c := coupon.Coupon{ID: id, IsActive: true}
	if err := decodeObject(r, couponDecoder(&c)); err != nil {
		return err
	}
	if err := h.svc.Coupons.Update(r.Context(), &c); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, &c) })
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Coupons.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// couponDecoder reads the admin-editable fields; used_count is ignored.
func couponDecoder(c *coupon.Coupon) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "code":
			c.Code, err = readString(d, key)
		case "description":
			c.Description, err = readString(d, key)
		case "discount_type":
			var s string
			s, err = readString(d, key)
			c.DiscountType = coupon.DiscountType(s)
		case "discount_value":
			c.Value, err = readMoney(d, key)
		case "min_order_amount":
			c.MinOrderAmount, err = readMoney(d, key)
		case "max_discount":
			c.MaxDiscount, err = readOptMoney(d, key)
		case "usage_limit":
			c.UsageLimit, err = readOptInt(d, key)
		case "valid_from":
			c.ValidFrom, err = readTime(d, key)
		case "valid_until":
			c.ValidUntil, err = readTime(d, key)
		case "is_active":
			c.IsActive, err = readBool(d, key)
		default:
			err = d.Skip()
		}
		return err
	}
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	fieldUUID(e, "id", c.ID)
	fieldStr(e, "code", c.Code)
	fieldStr(e, "description", c.Description)
	fieldStr(e, "discount_type", string(c.DiscountType))
	fieldMoney(e, "discount_value", c.Value)
	fieldMoney(e, "min_order_amount", c.MinOrderAmount)
	fieldOptMoney(e, "max_discount", c.MaxDiscount)
	fieldOptInt(e, "usage_limit", c.UsageLimit)
	fieldInt(e, "used_count", c.UsedCount)
	fieldTime(e, "valid_from", c.ValidFrom)
	fieldTime(e, "valid_until", c.ValidUntil)
	fieldBool(e, "is_active", c.IsActive)
	fieldTime(e, "created_at", c.CreatedAt)
	e.ObjEnd()
}
