package inventory

import (
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rimae-ledger/internal/domain"
)

func newPO(ordered ...int) *PurchaseOrder {
	po := &PurchaseOrder{ID: uuid.New(), PONumber: "PO-TEST", Status: POOrdered}
	for _, q := range ordered {
		po.Lines = append(po.Lines, Line{ID: uuid.New(), ProductID: uuid.New(), QuantityOrdered: q})
	}
	return po
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  POStatus
		received [][2]int // ordered, received
		want     POStatus
	}{
		{name: "nothing received", current: POOrdered, received: [][2]int{{5, 0}, {3, 0}}, want: POOrdered},
		{name: "one partial", current: POOrdered, received: [][2]int{{5, 2}, {3, 0}}, want: POPartial},
		{name: "one full one partial", current: POOrdered, received: [][2]int{{5, 5}, {3, 1}}, want: POPartial},
		{name: "all full", current: POPartial, received: [][2]int{{5, 5}, {3, 3}}, want: POReceived},
		{name: "no lines", current: PODraft, want: PODraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lines []Line
			for _, r := range tt.received {
				lines = append(lines, Line{QuantityOrdered: r[0], QuantityReceived: r[1]})
			}
			assert.Equal(t, tt.want, DeriveStatus(tt.current, lines))
		})
	}
}

func TestReceiveLines(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	t.Run("partial then complete", func(t *testing.T) {
		po := newPO(5, 3)

		touched, err := ReceiveLines(po, []Receipt{
			{LineID: po.Lines[0].ID, Quantity: 5},
			{LineID: po.Lines[1].ID, Quantity: 1},
		}, now)
		require.NoError(t, err)
		require.Len(t, touched, 2)
		assert.Equal(t, POPartial, po.Status)
		assert.Nil(t, po.ReceivedAt)

		_, err = ReceiveLines(po, []Receipt{{LineID: po.Lines[1].ID, Quantity: 2}}, now)
		require.NoError(t, err)
		assert.Equal(t, POReceived, po.Status)
		require.NotNil(t, po.ReceivedAt)
		assert.Equal(t, now, *po.ReceivedAt)
	})

	t.Run("over receipt leaves order untouched", func(t *testing.T) {
		po := newPO(5, 3)

		_, err := ReceiveLines(po, []Receipt{
			{LineID: po.Lines[0].ID, Quantity: 2},
			{LineID: po.Lines[1].ID, Quantity: 4},
		}, now)
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, 0, po.Lines[0].QuantityReceived)
		assert.Equal(t, POOrdered, po.Status)
	})

	t.Run("split receipts summed against outstanding", func(t *testing.T) {
		po := newPO(3)
		_, err := ReceiveLines(po, []Receipt{
			{LineID: po.Lines[0].ID, Quantity: 2},
			{LineID: po.Lines[0].ID, Quantity: 2},
		}, now)
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.True(t, strings.Contains(verr.Reason, "exceeds outstanding"))
	})

	t.Run("closed order", func(t *testing.T) {
		for _, st := range []POStatus{POReceived, POCancelled} {
			po := newPO(1)
			po.Status = st
			_, err := ReceiveLines(po, []Receipt{{LineID: po.Lines[0].ID, Quantity: 1}}, now)
			require.ErrorIs(t, err, ErrPurchaseOrderClosed)
		}
	})

	t.Run("unknown line", func(t *testing.T) {
		po := newPO(1)
		_, err := ReceiveLines(po, []Receipt{{LineID: uuid.New(), Quantity: 1}}, now)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		po := newPO(1)
		_, err := ReceiveLines(po, []Receipt{{LineID: po.Lines[0].ID, Quantity: 0}}, now)
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
	})
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, "37.50", LineTotal(3, decimal.RequireFromString("12.5")).StringFixed(2))
}

func TestNewPONumber(t *testing.T) {
	n := NewPONumber(time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(n, "PO20260402093000"))
	assert.Len(t, n, 2+14+4)
}
