package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/rimae-ledger/internal/domain/catalog"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	products, total, err := h.svc.Catalog.List(r.Context(), page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, products, productEncoder(false))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Catalog.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { productEncoder(false)(e, p) })
}

func (h *Handler) getVariant(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.Catalog.GetVariant(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { variantEncoder(false)(e, v) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) error {
	p := catalog.Product{IsActive: true}
	if err := decodeObject(r, productDecoder(&p)); err != nil {
		return err
	}
	if err := h.svc.Catalog.Create(r.Context(), &p); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { productEncoder(true)(e, &p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	p := catalog.Product{ID: id, IsActive: true}
	if err := decodeObject(r, productDecoder(&p)); err != nil {
		return err
	}
	if err := h.svc.Catalog.Update(r.Context(), &p); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { productEncoder(true)(e, &p) })
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) error {
	categories, err := h.svc.Catalog.Categories(r.Context(), false)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, categories, encodeCategory) })
}

func (h *Handler) adminListCategories(w http.ResponseWriter, r *http.Request) error {
	categories, err := h.svc.Catalog.Categories(r.Context(), true)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, categories, encodeCategory) })
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) error {
	c := catalog.Category{IsActive: true}
	err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			c.Name, err = readString(d, key)
		case "slug":
			c.Slug, err = readString(d, key)
		case "description":
			c.Description, err = readString(d, key)
		case "parent_id":
			c.ParentID, err = readOptUUID(d, key)
		case "is_active":
			c.IsActive, err = readBool(d, key)
		case "sort_order":
			c.SortOrder, err = readInt(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := h.svc.Catalog.CreateCategory(r.Context(), &c); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCategory(e, &c) })
}

func encodeCategory(e *jx.Encoder, c *catalog.Category) {
	e.ObjStart()
	fieldUUID(e, "id", c.ID)
	fieldStr(e, "name", c.Name)
	fieldStr(e, "slug", c.Slug)
	fieldStr(e, "description", c.Description)
	fieldOptUUID(e, "parent_id", c.ParentID)
	fieldBool(e, "is_active", c.IsActive)
	fieldInt(e, "sort_order", c.SortOrder)
	fieldTime(e, "created_at", c.CreatedAt)
	e.ObjEnd()
}

func productDecoder(p *catalog.Product) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "sku":
			p.SKU, err = readString(d, key)
		case "name":
			p.Name, err = readString(d, key)
		case "slug":
			p.Slug, err = readString(d, key)
		case "description":
			p.Description, err = readString(d, key)
		case "product_type":
			var s string
			s, err = readString(d, key)
			p.Type = catalog.ProductType(s)
		case "category_id":
			p.CategoryID, err = readOptUUID(d, key)
		case "gender":
			p.Gender, err = readString(d, key)
		case "price":
			p.Price, err = readMoney(d, key)
		case "compare_at_price":
			p.CompareAtPrice, err = readOptMoney(d, key)
		case "cost_price":
			p.CostPrice, err = readMoney(d, key)
		case "concentration":
			p.Concentration, err = readString(d, key)
		case "is_active":
			p.IsActive, err = readBool(d, key)
		case "notes":
			p.Notes = p.Notes[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				var n catalog.Note
				if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
					switch key {
					case "type":
						var s string
						s, err = readString(d, "notes.type")
						n.Type = catalog.NoteType(s)
					case "value":
						n.Value, err = readString(d, "notes.value")
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Notes = append(p.Notes, n)
				return nil
			})
		case "images":
			p.Images = p.Images[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				var img catalog.Image
				if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
					switch key {
					case "url":
						img.URL, err = readString(d, "images.url")
					case "alt_text":
						img.AltText, err = readString(d, "images.alt_text")
					case "is_primary":
						img.IsPrimary, err = readBool(d, "images.is_primary")
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Images = append(p.Images, img)
				return nil
			})
		case "variants":
			p.Variants = p.Variants[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				v := catalog.Variant{IsActive: true}
				if err := d.Obj(variantDecoder(&v)); err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}
}

func variantDecoder(v *catalog.Variant) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			v.ID, err = readUUID(d, "variants.id")
		case "sku":
			v.SKU, err = readString(d, "variants.sku")
		case "name":
			v.Name, err = readString(d, "variants.name")
		case "size":
			v.Size, err = readString(d, "variants.size")
		case "price":
			v.Price, err = readMoney(d, "variants.price")
		case "cost_price":
			v.CostPrice, err = readMoney(d, "variants.cost_price")
		case "is_active":
			v.IsActive, err = readBool(d, "variants.is_active")
		default:
			err = d.Skip()
		}
		return err
	}
}

// productEncoder renders a product; unit costs are only shown to admins.
func productEncoder(withCost bool) func(e *jx.Encoder, p *catalog.Product) {
	return func(e *jx.Encoder, p *catalog.Product) { encodeProduct(e, p, withCost) }
}

func encodeProduct(e *jx.Encoder, p *catalog.Product, withCost bool) {
	e.ObjStart()
	fieldUUID(e, "id", p.ID)
	fieldStr(e, "sku", p.SKU)
	fieldStr(e, "name", p.Name)
	fieldStr(e, "slug", p.Slug)
	fieldStr(e, "description", p.Description)
	fieldStr(e, "product_type", string(p.Type))
	fieldOptUUID(e, "category_id", p.CategoryID)
	fieldStr(e, "gender", p.Gender)
	fieldMoney(e, "price", p.Price)
	fieldOptMoney(e, "compare_at_price", p.CompareAtPrice)
	if withCost {
		fieldMoney(e, "cost_price", p.CostPrice)
	}
	fieldStr(e, "concentration", p.Concentration)
	fieldBool(e, "is_active", p.IsActive)

	e.FieldStart("notes")
	encodeList(e, p.Notes, func(e *jx.Encoder, n *catalog.Note) {
		e.ObjStart()
		fieldStr(e, "type", string(n.Type))
		fieldStr(e, "value", n.Value)
		e.ObjEnd()
	})
	e.FieldStart("images")
	encodeList(e, p.Images, func(e *jx.Encoder, img *catalog.Image) {
		e.ObjStart()
		fieldStr(e, "url", img.URL)
		fieldStr(e, "alt_text", img.AltText)
		fieldBool(e, "is_primary", img.IsPrimary)
		e.ObjEnd()
	})
	e.FieldStart("variants")
	encodeList(e, p.Variants, variantEncoder(withCost))

	fieldTime(e, "created_at", p.CreatedAt)
	fieldTime(e, "updated_at", p.UpdatedAt)
	e.ObjEnd()
}

func variantEncoder(withCost bool) func(e *jx.Encoder, v *catalog.Variant) {
	return func(e *jx.Encoder, v *catalog.Variant) { encodeVariant(e, v, withCost) }
}

func encodeVariant(e *jx.Encoder, v *catalog.Variant, withCost bool) {
	e.ObjStart()
	fieldUUID(e, "id", v.ID)
	fieldUUID(e, "product_id", v.ProductID)
	fieldStr(e, "sku", v.SKU)
	fieldStr(e, "name", v.Name)
	fieldStr(e, "size", v.Size)
	fieldMoney(e, "price", v.Price)
	if withCost {
		fieldMoney(e, "cost_price", v.CostPrice)
	}
	fieldBool(e, "is_active", v.IsActive)
	e.ObjEnd()
}
