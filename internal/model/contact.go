package model

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// PersonType classifies a contact for the tax authority.
type PersonType string

const (
	PersonJuridical PersonType = "juridical"
	PersonNatural   PersonType = "natural"
)

// Contact is a customer or supplier identity keyed by tax id. The
// synchronizer reconciles contacts against the cloud but never owns
// them; the check digit and person type are computed locally before
// every transmission.
type Contact struct {
	ID      int64          `db:"id"`
	TaxID   string         `db:"tax_id"`
	Name    string         `db:"name"`
	Email   sql.NullString `db:"email"`
	Phone   sql.NullString `db:"phone"`
	Address sql.NullString `db:"address"`
	Active  bool           `db:"active"`
}

// Item is a product or service catalog entry keyed by a local sequence
// number and mapped to a remote identifier during reconciliation.
type Item struct {
	ID       int64           `db:"id"`
	Sequence int64           `db:"sequence"`
	Code     string          `db:"code"`
	GTIN     sql.NullString  `db:"gtin"`
	Name     string          `db:"name"`
	Unit     string          `db:"unit"`
	Price    decimal.Decimal `db:"price"`
	Active   bool            `db:"active"`
}
