package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WireDocument is the payload submitted to the cloud for one document.
// It is built field by field by the assembler; totals are always
// recomputed from the lines, never copied from storage.
type WireDocument struct {
	Kind            DocumentKind    `json:"kind"`
	Reference       string          `json:"reference"`
	Timbrado        int64           `json:"timbrado"`
	Establishment   string          `json:"establishment"`
	ExpeditionPoint string          `json:"expedition_point"`
	Number          string          `json:"number"`
	IssuedAt        string          `json:"issued_at"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Contact         int64           `json:"contact"`

	Lines      []WireLine               `json:"lines"`
	Associated []WireAssociatedDocument `json:"associated_documents,omitempty"`
	Totals     WireTotals               `json:"totals"`
}

// WireLine is one line of a wire document with its resolved remote
// item and computed amounts.
type WireLine struct {
	Order           int             `json:"order"`
	Item            int64           `json:"item"`
	GTIN            string          `json:"gtin,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         int             `json:"tax_rate"`
	TaxTreatment    string          `json:"tax_treatment"`
	Net             decimal.Decimal `json:"net"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
}

// WireAssociatedDocument references the document a note amends, either
// by its CDC or by legacy issuing data.
type WireAssociatedDocument struct {
	CDC      string `json:"cdc,omitempty"`
	Timbrado int64  `json:"timbrado,omitempty"`
	Number   string `json:"number,omitempty"`
	Kind     string `json:"kind,omitempty"`
	IssuedAt string `json:"issued_at,omitempty"`
}

// WireTotals is the computed totals block of a wire document.
type WireTotals struct {
	Exempt      decimal.Decimal `json:"exempt"`
	Exonerated  decimal.Decimal `json:"exonerated"`
	TaxedBase5  decimal.Decimal `json:"taxed_base_5"`
	TaxedBase10 decimal.Decimal `json:"taxed_base_10"`
	Tax5        decimal.Decimal `json:"tax_5"`
	Tax10       decimal.Decimal `json:"tax_10"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// WireContact is the payload the reconciler sends for a contact. The
// check digit and person type are computed locally on every send.
type WireContact struct {
	TaxID      string     `json:"tax_id"`
	CheckDigit int        `json:"check_digit"`
	PersonType PersonType `json:"person_type"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	Address    string     `json:"address,omitempty"`
	Active     bool       `json:"active"`
}

// WireItem is the payload the reconciler sends for a catalog item.
// GTIN is omitted entirely when the stored code fails validation.
type WireItem struct {
	Sequence int64           `json:"sequence"`
	Code     string          `json:"code"`
	GTIN     string          `json:"gtin,omitempty"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Price    decimal.Decimal `json:"price"`
	Active   bool            `json:"active"`
}

// Validate checks the per-kind structural rules before serialization.
func (w *WireDocument) Validate() error {
	switch w.Kind {
	case KindInvoice, KindCreditNote, KindDebitNote, KindSelfBilledInvoice, KindShipmentNote:
	default:
		return fmt.Errorf("unknown document kind %q", w.Kind)
	}
	if len(w.Lines) == 0 {
		return fmt.Errorf("document %s has no lines", w.Reference)
	}
	if w.Contact == 0 {
		return fmt.Errorf("document %s has no resolved contact", w.Reference)
	}
	for _, line := range w.Lines {
		if line.Item == 0 {
			return fmt.Errorf("line %d has no resolved item", line.Order)
		}
	}
	if w.Kind.IsNote() {
		if len(w.Associated) == 0 {
			return fmt.Errorf("%s %s has no associated document", w.Kind, w.Reference)
		}
		for i, assoc := range w.Associated {
			if assoc.CDC == "" && assoc.Number == "" {
				return fmt.Errorf("associated document %d carries neither CDC nor legacy data", i)
			}
		}
	} else if len(w.Associated) > 0 {
		return fmt.Errorf("%s %s must not carry associated documents", w.Kind, w.Reference)
	}
	return nil
}
