package model_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramosoft/tabula-sync/internal/model"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "001-002-0000045", model.FormatNumber("001", "002", 45))
	assert.Equal(t, "001-002-0000045", model.FormatNumber("1", "2", 45))
	assert.Equal(t, "003-001-1234567", model.FormatNumber("003", "001", 1234567))
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"1.005", 2, "1.01"},
		{"1.004", 2, "1"},
		{"219.995", 2, "220"},
		{"100.5", 0, "101"},
		{"100.4", 0, "100"},
	}

	for _, tt := range tests {
		in, err := decimal.NewFromString(tt.in)
		require.NoError(t, err)
		want, err := decimal.NewFromString(tt.want)
		require.NoError(t, err)
		got := model.RoundHalfUp(in, tt.places)
		assert.True(t, got.Equal(want), "round(%s, %d) = %s, want %s", tt.in, tt.places, got, tt.want)
	}
}

func TestTaxOn(t *testing.T) {
	net := decimal.NewFromInt(200)
	assert.True(t, model.TaxOn(net, 10, 2).Equal(decimal.NewFromInt(20)))
	assert.True(t, model.TaxOn(net, 5, 2).Equal(decimal.NewFromInt(10)))
	assert.True(t, model.TaxOn(net, 0, 2).IsZero())
}

func TestWithinMinorUnit(t *testing.T) {
	a := decimal.RequireFromString("30.00")
	assert.True(t, model.WithinMinorUnit(a, decimal.RequireFromString("30.01"), 2))
	assert.True(t, model.WithinMinorUnit(a, decimal.RequireFromString("29.99"), 2))
	assert.False(t, model.WithinMinorUnit(a, decimal.RequireFromString("30.02"), 2))
}

func TestWireDocument_Validate(t *testing.T) {
	valid := func() *model.WireDocument {
		return &model.WireDocument{
			Kind:      model.KindInvoice,
			Reference: "ref",
			Contact:   7,
			Lines:     []model.WireLine{{Order: 1, Item: 9}},
		}
	}

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("unknown kind", func(t *testing.T) {
		doc := valid()
		doc.Kind = "receipt"
		assert.Error(t, doc.Validate())
	})

	t.Run("no lines", func(t *testing.T) {
		doc := valid()
		doc.Lines = nil
		assert.Error(t, doc.Validate())
	})

	t.Run("unresolved item", func(t *testing.T) {
		doc := valid()
		doc.Lines[0].Item = 0
		assert.Error(t, doc.Validate())
	})

	t.Run("note needs associated document", func(t *testing.T) {
		doc := valid()
		doc.Kind = model.KindCreditNote
		assert.Error(t, doc.Validate())

		doc.Associated = []model.WireAssociatedDocument{{CDC: "0144444444444"}}
		assert.NoError(t, doc.Validate())
	})

	t.Run("invoice must not carry associated documents", func(t *testing.T) {
		doc := valid()
		doc.Associated = []model.WireAssociatedDocument{{CDC: "0144444444444"}}
		assert.Error(t, doc.Validate())
	})

	t.Run("associated without any reference", func(t *testing.T) {
		doc := valid()
		doc.Kind = model.KindDebitNote
		doc.Associated = []model.WireAssociatedDocument{{}}
		assert.Error(t, doc.Validate())
	})
}

func TestAPIError_MessageKeepsDetail(t *testing.T) {
	withStatus := &model.APIError{Kind: model.FailureValidation, StatusCode: 422, Detail: "tax_rate: invalid"}
	assert.Contains(t, withStatus.Error(), "tax_rate: invalid")

	// Transport failures carry no status code; the detail must still
	// survive alongside the cause so it reaches the persisted status.
	withCause := &model.APIError{Kind: model.FailureConnection, Detail: "dial refused", Cause: assert.AnError}
	assert.Contains(t, withCause.Error(), "dial refused")
	assert.Contains(t, withCause.Error(), assert.AnError.Error())

	bare := &model.APIError{Kind: model.FailureTimeout, Cause: assert.AnError}
	assert.Contains(t, bare.Error(), "timeout")
}

func TestAPIError_Transient(t *testing.T) {
	transient := []model.FailureKind{
		model.FailureConnection,
		model.FailureTimeout,
		model.FailureRateLimited,
		model.FailureServiceUnavailable,
	}
	for _, kind := range transient {
		assert.True(t, (&model.APIError{Kind: kind}).Transient(), string(kind))
	}

	permanent := []model.FailureKind{
		model.FailureAuthentication,
		model.FailureAuthorization,
		model.FailureValidation,
		model.FailureNotFound,
	}
	for _, kind := range permanent {
		assert.False(t, (&model.APIError{Kind: kind}).Transient(), string(kind))
	}
}
