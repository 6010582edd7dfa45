package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/review"
)

func (h *Handler) listProductReviews(w http.ResponseWriter, r *http.Request) error {
	productID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	page, err := h.page(r)
	if err != nil {
		return err
	}
	reviews, total, err := h.svc.Reviews.Approved(r.Context(), productID, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, reviews, reviewEncoder(false))
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) error {
	p, err := caller(r)
	if err != nil {
		return err
	}
	productID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var rv review.Review
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "rating":
			rv.Rating, err = readInt(d, key)
		case "title":
			rv.Title, err = readString(d, key)
		case "comment":
			rv.Comment, err = readString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if err := h.svc.Reviews.Submit(r.Context(), p.UserID, productID, &rv); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReview(e, &rv, false) })
}

func (h *Handler) adminListReviews(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	f := review.Filter{Status: review.Status(q.Get("status"))}
	if raw := q.Get("rating"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Invalid("rating", "must be an integer")
		}
		f.Rating = &n
	}
	if f.ProductID, err = queryUUID(r, "product_id"); err != nil {
		return err
	}
	reviews, total, err := h.svc.Reviews.List(r.Context(), f, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, reviews, reviewEncoder(true))
}

// moderateReview takes {"action": "approve"|"reject"|"reply", "reply": "..."}.
func (h *Handler) moderateReview(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var action, reply string
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "action":
			action, err = readString(d, key)
		case "reply":
			reply, err = readString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if action == "" {
		return domain.Invalid("action", "required")
	}
	rv, err := h.svc.Reviews.Moderate(r.Context(), id, review.Action(action), reply)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReview(e, rv, true) })
}

func reviewEncoder(admin bool) func(e *jx.Encoder, rv *review.Review) {
	return func(e *jx.Encoder, rv *review.Review) { encodeReview(e, rv, admin) }
}

// encodeReview hides the reviewer id from shoppers.
func encodeReview(e *jx.Encoder, rv *review.Review, admin bool) {
	e.ObjStart()
	fieldUUID(e, "id", rv.ID)
	fieldUUID(e, "product_id", rv.ProductID)
	fieldStr(e, "product_name", rv.ProductName)
	if admin {
		fieldUUID(e, "user_id", rv.UserID)
	}
	fieldInt(e, "rating", rv.Rating)
	fieldStr(e, "title", rv.Title)
	fieldStr(e, "comment", rv.Comment)
	fieldStr(e, "status", string(rv.Status))
	fieldStr(e, "admin_reply", rv.AdminReply)
	fieldBool(e, "is_verified_purchase", rv.IsVerifiedPurchase)
	fieldTime(e, "created_at", rv.CreatedAt)
	fieldTime(e, "updated_at", rv.UpdatedAt)
	e.ObjEnd()
}
