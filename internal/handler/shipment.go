package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/rimae-ledger/internal/domain"
	"github.com/xenking/rimae-ledger/internal/domain/shipment"
)

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) error {
	page, err := h.page(r)
	if err != nil {
		return err
	}
	carrierID, err := queryUUID(r, "carrier_id")
	if err != nil {
		return err
	}
	f := shipment.Filter{
		Status:    shipment.Status(r.URL.Query().Get("status")),
		CarrierID: carrierID,
	}
	shipments, total, err := h.svc.Shipments.List(r.Context(), f, page)
	if err != nil {
		return err
	}
	return writePage(w, total, page, shipments, encodeShipment)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) error {
	var req shipment.CreateRequest
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "order_id":
			req.OrderID, err = readUUID(d, key)
		case "carrier_id":
			req.CarrierID, err = readOptUUID(d, key)
		case "tracking_number":
			req.TrackingNumber, err = readString(d, key)
		case "shipping_cost":
			req.ShippingCost, err = readMoney(d, key)
		case "packaging_cost":
			req.PackagingCost, err = readMoney(d, key)
		case "weight":
			req.WeightGrams, err = readOptInt(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	s, err := h.svc.Shipments.Create(r.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeShipment(e, s) })
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	s, err := h.svc.Shipments.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, s) })
}

func (h *Handler) updateShipmentStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var status shipment.Status
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := readString(d, key)
		status = shipment.Status(s)
		return err
	}); err != nil {
		return err
	}
	if status == "" {
		return domain.Invalid("status", "required")
	}
	s, err := h.svc.Shipments.UpdateStatus(r.Context(), id, status)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipment(e, s) })
}

func (h *Handler) listCarriers(w http.ResponseWriter, r *http.Request) error {
	carriers, err := h.svc.Shipments.ListCarriers(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, carriers, encodeCarrier) })
}

func (h *Handler) createCarrier(w http.ResponseWriter, r *http.Request) error {
	c := shipment.Carrier{IsActive: true}
	if err := decodeObject(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			c.Name, err = readString(d, key)
		case "code":
			c.Code, err = readString(d, key)
		case "tracking_url_template":
			c.TrackingURLTemplate, err = readString(d, key)
		case "is_active":
			c.IsActive, err = readBool(d, key)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if err := h.svc.Shipments.CreateCarrier(r.Context(), &c); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCarrier(e, &c) })
}

func (h *Handler) carrierPerformance(w http.ResponseWriter, r *http.Request) error {
	perf, err := h.svc.Shipments.Performance(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, perf, encodeCarrierPerformance) })
}

func encodeShipment(e *jx.Encoder, s *shipment.Shipment) {
	e.ObjStart()
	fieldUUID(e, "id", s.ID)
	fieldUUID(e, "order_id", s.OrderID)
	fieldStr(e, "order_number", s.OrderNumber)
	fieldOptUUID(e, "carrier_id", s.CarrierID)
	fieldStr(e, "carrier_name", s.CarrierName)
	fieldStr(e, "tracking_number", s.TrackingNumber)
	fieldStr(e, "tracking_url", s.TrackingURL)
	fieldStr(e, "status", string(s.Status))
	fieldMoney(e, "shipping_charged", s.ShippingCharged)
	fieldMoney(e, "shipping_cost", s.ShippingCost)
	fieldMoney(e, "packaging_cost", s.PackagingCost)
	fieldMoney(e, "profit_loss", s.ProfitLoss())
	fieldOptInt(e, "weight", s.WeightGrams)
	fieldOptTime(e, "shipped_at", s.ShippedAt)
	fieldOptTime(e, "delivered_at", s.DeliveredAt)
	fieldTime(e, "created_at", s.CreatedAt)
	fieldTime(e, "updated_at", s.UpdatedAt)
	e.ObjEnd()
}

func encodeCarrier(e *jx.Encoder, c *shipment.Carrier) {
	e.ObjStart()
	fieldUUID(e, "id", c.ID)
	fieldStr(e, "name", c.Name)
	fieldStr(e, "code", c.Code)
	fieldStr(e, "tracking_url_template", c.TrackingURLTemplate)
	fieldBool(e, "is_active", c.IsActive)
	e.ObjEnd()
}

func encodeCarrierPerformance(e *jx.Encoder, p *shipment.CarrierPerformance) {
	e.ObjStart()
	fieldUUID(e, "carrier_id", p.CarrierID)
	fieldStr(e, "name", p.Name)
	fieldStr(e, "code", p.Code)
	fieldInt(e, "delivered", p.Delivered)
	fieldMoney(e, "revenue", p.Revenue)
	fieldMoney(e, "cost", p.Cost)
	fieldMoney(e, "profit", p.Profit)
	fieldMoney(e, "avg_delivery_days", p.AvgDeliveryDays)
	e.ObjEnd()
}
