package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	v, err := h.svc.Cart.Get(r.Context(), p.UserID)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, v)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	var (
		productID uuid.UUID
		variantID *uuid.UUID
		quantity  = 1
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "product_id":
			productID, err = readUUID(d, key)
		case "variant_id":
			variantID, err = readOptUUID(d, key)
		case "quantity":
			quantity, err = readInt(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if productID == uuid.Nil {
		return domain.Invalid("product_id", "required")
	}
	v, err := h.svc.Cart.AddItem(r.Context(), p.UserID, productID, variantID, quantity)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusCreated, v)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var quantity *int
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		if key != "quantity" {
			return d.Skip()
		}
		quantity, err = readOptInt(d, key)
		return err
	}); err != nil {
		return err
	}
	if quantity == nil {
		return domain.Invalid("quantity", "required")
	}
	v, err := h.svc.Cart.UpdateItem(r.Context(), p.UserID, itemID, *quantity)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, v)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.Cart.RemoveItem(r.Context(), p.UserID, itemID)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, v)
}

func writeCart(w http.ResponseWriter, status int, v *cart.View) error {
	return writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		fieldUUID(e, "id", v.ID)
		fieldInt(e, "item_count", v.Count)
		fieldMoney(e, "subtotal", v.Subtotal)
		e.FieldStart("items")
		encodeList(e, v.Lines, func(e *jx.Encoder, l *cart.Line) {
			e.ObjStart()
			fieldUUID(e, "id", l.ID)
			fieldUUID(e, "product_id", l.ProductID)
			fieldOptUUID(e, "variant_id", l.VariantID)
			fieldStr(e, "product_name", l.ProductName)
			fieldStr(e, "variant_name", l.VariantName)
			fieldStr(e, "sku", l.SKU)
			fieldInt(e, "quantity", l.Quantity)
			fieldMoney(e, "unit_price", l.UnitPrice)
			fieldMoney(e, "total_price", l.Total)
			fieldBool(e, "is_available", l.Available)
			fieldTime(e, "added_at", l.AddedAt)
			e.ObjEnd()
		})
		fieldTime(e, "updated_at", v.UpdatedAt)
		e.ObjEnd()
	})
}

func (h *Handler) getWishlist(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	wishes, err := h.svc.Cart.Wishlist(r.Context(), p.UserID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		encodeList(e, wishes, encodeWish)
		e.ObjEnd()
	})
}

// addWish answers 201 for a new entry and 200 when the product was
// already saved.
func (h *Handler) addWish(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	var productID uuid.UUID
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		if key != "product_id" {
			return d.Skip()
		}
		productID, err = readUUID(d, key)
		return err
	}); err != nil {
		return err
	}
	if productID == uuid.Nil {
		return domain.Invalid("product_id", "required")
	}
	wish, created, err := h.svc.Cart.AddWish(r.Context(), p.UserID, productID)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return writeJSON(w, status, func(e *jx.Encoder) { encodeWish(e, wish) })
}

func (h *Handler) removeWish(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	productID, err := pathID(r, "product_id")
	if err != nil {
		return err
	}
	if err := h.svc.Cart.RemoveWish(r.Context(), p.UserID, productID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func encodeWish(e *jx.Encoder, wish *cart.Wish) {
	e.ObjStart()
	fieldUUID(e, "product_id", wish.ProductID)
	fieldTime(e, "added_at", wish.AddedAt)
	if wish.Product != nil {
		e.FieldStart("product")
		encodeProduct(e, wish.Product, false)
	}
	e.ObjEnd()
}
