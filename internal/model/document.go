package model

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentKind identifies the fiscal instrument a row represents.
type DocumentKind string

const (
	KindInvoice           DocumentKind = "invoice"
	KindCreditNote        DocumentKind = "credit_note"
	KindDebitNote         DocumentKind = "debit_note"
	KindSelfBilledInvoice DocumentKind = "self_billed_invoice"
	KindShipmentNote      DocumentKind = "shipment_note"
)

// SubmissionOrder lists every kind in the order the pending phase must
// process them: invoices and their kin before the note kinds that may
// reference them.
var SubmissionOrder = []DocumentKind{
	KindInvoice,
	KindSelfBilledInvoice,
	KindShipmentNote,
	KindCreditNote,
	KindDebitNote,
}

// IsNote reports whether the kind amends another document and therefore
// carries associated-document references.
func (k DocumentKind) IsNote() bool {
	return k == KindCreditNote || k == KindDebitNote
}

// DocumentStatus is the local lifecycle state of a document.
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusSent     DocumentStatus = "sent"
	StatusAccepted DocumentStatus = "accepted"
	StatusRejected DocumentStatus = "rejected"
	StatusError    DocumentStatus = "error"
)

// Document is one fiscal instrument as stored locally. The synchronizer
// reads every field but only ever writes the status-tracking columns.
type Document struct {
	ID              int64          `db:"id"`
	Kind            DocumentKind   `db:"kind"`
	Reference       uuid.UUID      `db:"reference"`
	Status          DocumentStatus `db:"status"`
	StatusDetail    sql.NullString `db:"status_detail"`
	CDC             sql.NullString `db:"cdc"`
	Branch          string         `db:"branch"`
	Timbrado        int64          `db:"timbrado"`
	Establishment   string         `db:"establishment"`
	ExpeditionPoint string         `db:"expedition_point"`
	Number          int64          `db:"document_number"`
	IssuedAt        time.Time      `db:"issued_at"`

	Currency         string          `db:"currency"`
	CurrencyDecimals int32           `db:"currency_decimals"`
	ExchangeRate     decimal.Decimal `db:"exchange_rate"`

	ContactID int64 `db:"contact_id"`

	Retryable    bool `db:"retryable"`
	SyncAttempts int  `db:"sync_attempts"`

	Lines      []DocumentLine
	Associated []AssociatedDocumentReference
}

// FullNumber renders the numbering triplet in the fixed-width form the
// authority expects: EEE-PPP-NNNNNNN.
func (d Document) FullNumber() string {
	return FormatNumber(d.Establishment, d.ExpeditionPoint, d.Number)
}

// FormatNumber zero-pads a numbering triplet. Establishment and
// expedition point are three digits, the sequence number seven.
func FormatNumber(establishment, point string, number int64) string {
	return fmt.Sprintf("%s-%s-%07d", padLeft(establishment, 3), padLeft(point, 3), number)
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// DiscountBasis says which of the two stored discount fields is
// authoritative for a line; the other is derived from it.
type DiscountBasis string

const (
	DiscountByAmount  DiscountBasis = "amount"
	DiscountByPercent DiscountBasis = "percent"
)

// DocumentLine is one line item on a document.
type DocumentLine struct {
	ID         int64 `db:"id"`
	DocumentID int64 `db:"document_id"`
	OrderIndex int   `db:"order_index"`

	ItemID       int64          `db:"item_id"`
	ItemSequence int64          `db:"item_sequence"`
	GTIN         sql.NullString `db:"gtin"`

	Quantity        decimal.Decimal `db:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price"`
	DiscountBasis   DiscountBasis   `db:"discount_basis"`
	DiscountAmount  decimal.Decimal `db:"discount_amount"`
	DiscountPercent decimal.Decimal `db:"discount_percent"`

	TaxRate      int    `db:"tax_rate"`
	TaxTreatment string `db:"tax_treatment"`
}

// Tax treatment codes as the authority classifies line amounts.
const (
	TaxTreatmentTaxed      = "taxed"
	TaxTreatmentExempt     = "exempt"
	TaxTreatmentExonerated = "exonerated"
)

// AssociatedDocumentReference links a credit or debit note to the
// document it amends. Exactly one of the two forms is populated: a
// local link to a synchronized document (TargetCDC resolved by the
// store from the target row) or manually entered legacy data.
type AssociatedDocumentReference struct {
	ID         int64 `db:"id"`
	DocumentID int64 `db:"document_id"`

	TargetDocumentID sql.NullInt64  `db:"target_document_id"`
	TargetCDC        sql.NullString `db:"target_cdc"`

	LegacyTimbrado sql.NullInt64  `db:"legacy_timbrado"`
	LegacyNumber   sql.NullString `db:"legacy_number"`
	LegacyKind     sql.NullString `db:"legacy_kind"`
	LegacyIssuedAt sql.NullTime   `db:"legacy_issued_at"`
}

// Permit is the state of one numbering authorization (timbrado) scoped
// to an establishment and expedition point.
type Permit struct {
	Timbrado        int64        `db:"timbrado"`
	Kind            DocumentKind `db:"kind"`
	Establishment   string       `db:"establishment"`
	ExpeditionPoint string       `db:"expedition_point"`
	Enabled         bool         `db:"enabled"`
	ValidFrom       sql.NullTime `db:"valid_from"`
	ValidUntil      sql.NullTime `db:"valid_until"`
}

// Key identifies the permit scope a document submits under.
func (p Permit) Key() string {
	return fmt.Sprintf("%d/%s/%s/%s", p.Timbrado, p.Kind, p.Establishment, p.ExpeditionPoint)
}

// PermitKeyFor builds the matching key for a document.
func PermitKeyFor(d Document) string {
	return fmt.Sprintf("%d/%s/%s/%s", d.Timbrado, d.Kind, d.Establishment, d.ExpeditionPoint)
}
