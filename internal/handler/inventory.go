package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
)

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	rows, total, err := h.svc.Inventory.List(r.Context(), page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, rows, encodeInventory)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) error {
	rows, err := h.svc.Inventory.LowStock(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, rows, encodeInventory) })
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.Inventory.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInventory(e, inv) })
}

func (h *Handler) createInventory(w http.ResponseWriter, r *http.Request) error {
	var inv inventory.Inventory
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "product_id":
			inv.ProductID, err = readUUID(d, key)
		case "variant_id":
			inv.VariantID, err = readOptUUID(d, key)
		case "reorder_level":
			inv.ReorderLevel, err = readInt(d, key)
		case "reorder_quantity":
			inv.ReorderQuantity, err = readInt(d, key)
		case "warehouse_location":
			inv.WarehouseLocation, err = readString(d, key)
		case "batch_number":
			inv.BatchNumber, err = readString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if err := h.svc.Inventory.Create(r.Context(), &inv); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeInventory(e, &inv) })
}

// updateInventory edits reorder and storage settings; quantities are only
// changed through adjust.
func (h *Handler) updateInventory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var st inventory.Settings
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "reorder_level":
			st.ReorderLevel, err = readOptInt(d, key)
		case "reorder_quantity":
			st.ReorderQuantity, err = readOptInt(d, key)
		case "warehouse_location":
			st.WarehouseLocation, err = readOptString(d, key)
		case "batch_number":
			st.BatchNumber, err = readOptString(d, key)
		case "quantity", "reserved_quantity":
			err = domain.Invalid(key, "use the adjust endpoint to change stock")
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	inv, err := h.svc.Inventory.UpdateSettings(r.Context(), id, st)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInventory(e, inv) })
}

// adjustInventory books a manual stock change: {quantity, movement_type, notes}.
func (h *Handler) adjustInventory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var (
		delta *int
		typ   = inventory.MovementAdjustment
		note  string
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "quantity":
			delta, err = readOptInt(d, key)
		case "movement_type":
			var s string
			s, err = readString(d, key)
			typ = inventory.MovementType(s)
		case "notes":
			note, err = readString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if delta == nil {
		return domain.Invalid("quantity", "required")
	}

	inv, mv, err := h.svc.Inventory.Adjust(r.Context(), id, *delta, typ, note, actorID(r))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("inventory")
		encodeInventory(e, inv)
		e.FieldStart("movement")
		encodeMovement(e, mv)
		e.ObjEnd()
	})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	page, err := h.page(r)
	if err != nil {
		return err
	}
	movements, total, err := h.svc.Inventory.Movements(r.Context(), id, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, movements, encodeMovement)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	suppliers, total, err := h.svc.Inventory.ListSuppliers(r.Context(), page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, suppliers, encodeSupplier)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) error {
	var s inventory.Supplier
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			s.Name, err = readString(d, key)
		case "contact_person":
			s.ContactPerson, err = readString(d, key)
		case "email":
			s.Email, err = readString(d, key)
		case "phone":
			s.Phone, err = readString(d, key)
		case "address":
			s.Address, err = readString(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if err := h.svc.Inventory.CreateSupplier(r.Context(), &s); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSupplier(e, &s) })
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	s, err := h.svc.Inventory.GetSupplier(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSupplier(e, s) })
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var upd inventory.SupplierUpdate
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			upd.Name, err = readOptString(d, key)
		case "contact_person":
			upd.ContactPerson, err = readOptString(d, key)
		case "email":
			upd.Email, err = readOptString(d, key)
		case "phone":
			upd.Phone, err = readOptString(d, key)
		case "address":
			upd.Address, err = readOptString(d, key)
		case "is_active":
			var b bool
			b, err = readBool(d, key)
			upd.IsActive = &b
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	s, err := h.svc.Inventory.UpdateSupplier(r.Context(), id, upd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSupplier(e, s) })
}

// deleteSupplier deactivates the supplier; purchase orders keep their reference.
func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Inventory.DeactivateSupplier(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	status := inventory.POStatus(r.URL.Query().Get("status"))
	pos, total, err := h.svc.Inventory.ListPurchaseOrders(r.Context(), status, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, pos, encodePurchaseOrder)
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) error {
	var po inventory.PurchaseOrder
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "supplier_id":
			po.SupplierID, err = readUUID(d, key)
		case "status":
			var s string
			s, err = readString(d, key)
			po.Status = inventory.POStatus(s)
		case "notes":
			po.Notes, err = readString(d, key)
		case "expected_at":
			po.ExpectedAt, err = readOptTime(d, key)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var l inventory.Line
				if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
					switch key {
					case "product_id":
						l.ProductID, err = readUUID(d, "items.product_id")
					case "variant_id":
						l.VariantID, err = readOptUUID(d, "items.variant_id")
					case "quantity_ordered":
						l.QuantityOrdered, err = readInt(d, "items.quantity_ordered")
					case "unit_cost":
						l.UnitCost, err = readMoney(d, "items.unit_cost")
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				po.Lines = append(po.Lines, l)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if err := h.svc.Inventory.CreatePurchaseOrder(r.Context(), &po); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePurchaseOrder(e, &po) })
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	po, err := h.svc.Inventory.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePurchaseOrder(e, po) })
}

func (h *Handler) setPurchaseOrderStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var status inventory.POStatus
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := readString(d, key)
		status = inventory.POStatus(s)
		return err
	}); err != nil {
		return err
	}
	if status == "" {
		return domain.Invalid("status", "required")
	}
	po, err := h.svc.Inventory.SetPurchaseOrderStatus(r.Context(), id, status)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePurchaseOrder(e, po) })
}

// receivePurchaseOrder books {items: [{line_id, quantity}]} against a PO.
func (h *Handler) receivePurchaseOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var receipts []inventory.Receipt
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var rc inventory.Receipt
			if err := d.Obj(func(d *jx.Decoder, key string) (err error) {
				switch key {
				case "line_id":
					rc.LineID, err = readUUID(d, "items.line_id")
				case "quantity":
					rc.Quantity, err = readInt(d, "items.quantity")
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			receipts = append(receipts, rc)
			return nil
		})
	}); err != nil {
		return err
	}
	po, movements, err := h.svc.Inventory.Receive(r.Context(), id, receipts, actorID(r))
	if err != nil {
		return err
	}
	return writeReceipt(w, po, movements)
}

func (h *Handler) receivePurchaseOrderLine(w http.ResponseWriter, r *http.Request) error {
	lineID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var qty *int
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		if key != "quantity" {
			return d.Skip()
		}
		qty, err = readOptInt(d, key)
		return err
	}); err != nil {
		return err
	}
	if qty == nil {
		return domain.Invalid("quantity", "required")
	}
	po, movements, err := h.svc.Inventory.ReceiveLine(r.Context(), lineID, *qty, actorID(r))
	if err != nil {
		return err
	}
	return writeReceipt(w, po, movements)
}

func writeReceipt(w http.ResponseWriter, po *inventory.PurchaseOrder, movements []inventory.Movement) error {
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("purchase_order")
		encodePurchaseOrder(e, po)
		e.FieldStart("movements")
		encodeList(e, movements, encodeMovement)
		e.ObjEnd()
	})
}

func encodeInventory(e *jx.Encoder, inv *inventory.Inventory) {
	e.ObjStart()
	fieldUUID(e, "id", inv.ID)
	fieldUUID(e, "product_id", inv.ProductID)
	fieldOptUUID(e, "variant_id", inv.VariantID)
	fieldStr(e, "product_name", inv.ProductName)
	fieldStr(e, "sku", inv.SKU)
	fieldInt(e, "quantity", inv.Quantity)
	fieldInt(e, "reserved_quantity", inv.ReservedQuantity)
	fieldInt(e, "available_quantity", inv.Available())
	fieldInt(e, "reorder_level", inv.ReorderLevel)
	fieldInt(e, "reorder_quantity", inv.ReorderQuantity)
	fieldBool(e, "needs_reorder", inv.NeedsReorder())
	fieldStr(e, "warehouse_location", inv.WarehouseLocation)
	fieldStr(e, "batch_number", inv.BatchNumber)
	fieldOptTime(e, "last_restocked", inv.LastRestocked)
	fieldTime(e, "updated_at", inv.UpdatedAt)
	e.ObjEnd()
}

func encodeMovement(e *jx.Encoder, m *inventory.Movement) {
	e.ObjStart()
	fieldUUID(e, "id", m.ID)
	fieldUUID(e, "inventory_id", m.InventoryID)
	fieldStr(e, "movement_type", string(m.Type))
	fieldInt(e, "quantity", m.Quantity)
	fieldInt(e, "previous_quantity", m.PreviousQuantity)
	fieldInt(e, "new_quantity", m.NewQuantity)
	fieldStr(e, "reference_type", m.ReferenceType)
	fieldOptUUID(e, "reference_id", m.ReferenceID)
	fieldStr(e, "notes", m.Notes)
	fieldOptUUID(e, "created_by", m.CreatedBy)
	fieldTime(e, "created_at", m.CreatedAt)
	e.ObjEnd()
}

func encodeSupplier(e *jx.Encoder, s *inventory.Supplier) {
	e.ObjStart()
	fieldUUID(e, "id", s.ID)
	fieldStr(e, "name", s.Name)
	fieldStr(e, "contact_person", s.ContactPerson)
	fieldStr(e, "email", s.Email)
	fieldStr(e, "phone", s.Phone)
	fieldStr(e, "address", s.Address)
	fieldBool(e, "is_active", s.IsActive)
	fieldTime(e, "created_at", s.CreatedAt)
	e.ObjEnd()
}

func encodePurchaseOrder(e *jx.Encoder, po *inventory.PurchaseOrder) {
	e.ObjStart()
	fieldUUID(e, "id", po.ID)
	fieldStr(e, "po_number", po.PONumber)
	fieldUUID(e, "supplier_id", po.SupplierID)
	fieldStr(e, "status", string(po.Status))
	fieldMoney(e, "total_amount", po.TotalAmount)
	fieldStr(e, "notes", po.Notes)
	fieldOptTime(e, "ordered_at", po.OrderedAt)
	fieldOptTime(e, "expected_at", po.ExpectedAt)
	fieldOptTime(e, "received_at", po.ReceivedAt)
	fieldTime(e, "created_at", po.CreatedAt)
	e.FieldStart("items")
	encodeList(e, po.Lines, func(e *jx.Encoder, l *inventory.Line) {
		e.ObjStart()
		fieldUUID(e, "id", l.ID)
		fieldUUID(e, "product_id", l.ProductID)
		fieldOptUUID(e, "variant_id", l.VariantID)
		fieldInt(e, "quantity_ordered", l.QuantityOrdered)
		fieldInt(e, "quantity_received", l.QuantityReceived)
		fieldMoney(e, "unit_cost", l.UnitCost)
		fieldMoney(e, "total_cost", l.TotalCost)
		e.ObjEnd()
	})
	e.ObjEnd()
}
