package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain"
)

const maxBodyBytes = 1 << 20

// writeJSON encodes the body produced by enc with the given status.
func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	enc(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(e.Bytes())
	return err
}

// writePage writes the {count, page, results} listing envelope.
func writePage[T any](w http.ResponseWriter, total int, page domain.Page, items []T, enc func(e *jx.Encoder, v *T)) error {
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("count")
		e.Int(total)
		e.FieldStart("page")
		e.Int(page.Number)
		e.FieldStart("results")
		encodeList(e, items, enc)
		e.ObjEnd()
	})
}

func encodeList[T any](e *jx.Encoder, items []T, enc func(e *jx.Encoder, v *T)) {
	e.ArrStart()
	for i := range items {
		enc(e, &items[i])
	}
	e.ArrEnd()
}

// page parses ?page=N, defaulting to the first page.
func (h *Handler) page(r *http.Request) (domain.Page, error) {
	p := domain.Page{Number: 1, Size: h.pageSize}
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, domain.Invalid("page", "must be a positive integer")
		}
		p.Number = n
	}
	return p, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.Invalid(name, "must be a UUID")
	}
	return id, nil
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.Invalid(name, "must be a UUID")
	}
	return &id, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, domain.Invalid(name, "must be RFC 3339 or YYYY-MM-DD")
}

// decodeObject reads the request body as a JSON object, calling fn per key.
// Syntax errors become a body ValidationError; field errors pass through.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return domain.Invalid("body", "unreadable or too large")
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return domain.Invalid("body", "malformed JSON object")
	}
	return nil
}

func readString(d *jx.Decoder, field string) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return "", domain.Invalid(field, "must be a string")
	}
	return s, nil
}

func readOptString(d *jx.Decoder, field string) (*string, error) {
	s, err := readString(d, field)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func readInt(d *jx.Decoder, field string) (int, error) {
	n, err := d.Int()
	if err != nil {
		return 0, domain.Invalid(field, "must be an integer")
	}
	return n, nil
}

func readOptInt(d *jx.Decoder, field string) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	n, err := readInt(d, field)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func readBool(d *jx.Decoder, field string) (bool, error) {
	b, err := d.Bool()
	if err != nil {
		return false, domain.Invalid(field, "must be a boolean")
	}
	return b, nil
}

// readMoney accepts a decimal string or a JSON number.
func readMoney(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, domain.Invalid(field, "must be a decimal")
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, domain.Invalid(field, "must be a decimal")
		}
		raw = n.String()
	default:
		return decimal.Zero, domain.Invalid(field, "must be a decimal")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.Invalid(field, "must be a decimal")
	}
	return v, nil
}

func readOptMoney(d *jx.Decoder, field string) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := readMoney(d, field)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readUUID(d *jx.Decoder, field string) (uuid.UUID, error) {
	s, err := d.Str()
	if err != nil {
		return uuid.Nil, domain.Invalid(field, "must be a UUID")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.Invalid(field, "must be a UUID")
	}
	return id, nil
}

func readOptUUID(d *jx.Decoder, field string) (*uuid.UUID, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	id, err := readUUID(d, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func readTime(d *jx.Decoder, field string) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, domain.Invalid(field, "must be an RFC 3339 timestamp")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Invalid(field, "must be an RFC 3339 timestamp")
	}
	return t, nil
}

func readOptTime(d *jx.Decoder, field string) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	t, err := readTime(d, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Encoding helpers. Money is always a string with two decimals.

func fieldStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func fieldInt(e *jx.Encoder, name string, v int) {
	e.FieldStart(name)
	e.Int(v)
}

func fieldBool(e *jx.Encoder, name string, v bool) {
	e.FieldStart(name)
	e.Bool(v)
}

func fieldMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Str(v.StringFixed(2))
}

func fieldOptMoney(e *jx.Encoder, name string, v *decimal.Decimal) {
	if v == nil {
		e.FieldStart(name)
		e.Null()
		return
	}
	fieldMoney(e, name, *v)
}

func fieldUUID(e *jx.Encoder, name string, v uuid.UUID) {
	e.FieldStart(name)
	e.Str(v.String())
}

func fieldOptUUID(e *jx.Encoder, name string, v *uuid.UUID) {
	e.FieldStart(name)
	if v == nil {
		e.Null()
		return
	}
	e.Str(v.String())
}

func fieldTime(e *jx.Encoder, name string, v time.Time) {
	e.FieldStart(name)
	e.Str(v.UTC().Format(time.RFC3339))
}

func fieldOptTime(e *jx.Encoder, name string, v *time.Time) {
	if v == nil {
		e.FieldStart(name)
		e.Null()
		return
	}
	fieldTime(e, name, *v)
}

func fieldOptInt(e *jx.Encoder, name string, v *int) {
	e.FieldStart(name)
	if v == nil {
		e.Null()
		return
	}
	e.Int(*v)
}
