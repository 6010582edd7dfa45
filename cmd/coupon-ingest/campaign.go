package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain/coupon"
)

// Campaign files are gzip-compressed CSV, one coupon per line:
//
//	code,discount_type,value[,min_order_amount[,max_discount[,usage_limit[,valid_from[,valid_until]]]]]
//
// Blank lines and lines starting with '#' are ignored. Empty optional fields
// take the defaults below.
const (
	colCode = iota
	colType
	colValue
	colMinOrder
	colMaxDiscount
	colUsageLimit
	colValidFrom
	colValidUntil
	numColumns
)

const (
	minCodeLen = 4
	maxCodeLen = 32
)

// defaults fill optional columns.
type defaults struct {
	ValidFrom   time.Time
	ValidUntil  time.Time
	Description string
}

// normalizeCode upper-cases and trims a code. Codes are matched
// case-insensitively at checkout.
func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// skipLine reports whether line carries no coupon.
func skipLine(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

// lineCode extracts the normalized code without parsing the rest of the line.
func lineCode(line string) string {
	code, _, _ := strings.Cut(line, ",")
	return normalizeCode(code)
}

// parseLine decodes one campaign line into an active coupon.
func parseLine(line string, def defaults) (coupon.Coupon, error) {
	cols := strings.Split(strings.TrimSpace(line), ",")
	if len(cols) < colValue+1 || len(cols) > numColumns {
		return coupon.Coupon{}, errors.Errorf("expected %d to %d columns, got %d", colValue+1, numColumns, len(cols))
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	col := func(i int) string {
		if i < len(cols) {
			return cols[i]
		}
		return ""
	}

	c := coupon.Coupon{
		Code:         normalizeCode(cols[colCode]),
		DiscountType: coupon.DiscountType(strings.ToLower(cols[colType])),
		Description:  def.Description,
		ValidFrom:    def.ValidFrom,
		ValidUntil:   def.ValidUntil,
		IsActive:     true,
	}
	if n := len(c.Code); n < minCodeLen || n > maxCodeLen {
		return coupon.Coupon{}, errors.Errorf("code length %d outside [%d, %d]", n, minCodeLen, maxCodeLen)
	}

	var err error
	if c.Value, err = decimal.NewFromString(cols[colValue]); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "value")
	}
	if raw := col(colMinOrder); raw != "" {
		if c.MinOrderAmount, err = decimal.NewFromString(raw); err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "min_order_amount")
		}
	}
	if raw := col(colMaxDiscount); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "max_discount")
		}
		c.MaxDiscount = &v
	}
	if raw := col(colUsageLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "usage_limit")
		}
		c.UsageLimit = &n
	}
	if raw := col(colValidFrom); raw != "" {
		if c.ValidFrom, err = parseDate(raw); err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "valid_from")
		}
	}
	if raw := col(colValidUntil); raw != "" {
		if c.ValidUntil, err = parseDate(raw); err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "valid_until")
		}
	}

	if err := c.Validate(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
