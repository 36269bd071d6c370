// Package assemble builds the wire representation of a document from
// its local rows and the reconciled remote ids, recomputing every
// derived amount on the way.
package assemble

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dramosoft/tabula-sync/internal/model"
)

// Assemble turns a local document into its wire payload. It fails
// instead of submitting when a line has no resolved remote item, when
// a stored discount pair does not reconcile, or when a note carries no
// usable associated reference.
func Assemble(doc model.Document, contactRemoteID int64, itemIDs map[int64]int64) (*model.WireDocument, error) {
	wire := &model.WireDocument{
		Kind:            doc.Kind,
		Reference:       doc.Reference.String(),
		Timbrado:        doc.Timbrado,
		Establishment:   doc.Establishment,
		ExpeditionPoint: doc.ExpeditionPoint,
		Number:          doc.FullNumber(),
		IssuedAt:        doc.IssuedAt.Format(time.RFC3339),
		Currency:        doc.Currency,
		ExchangeRate:    doc.ExchangeRate,
		Contact:         contactRemoteID,
	}

	places := doc.CurrencyDecimals
	totals := model.WireTotals{
		Exempt:      model.Zero,
		Exonerated:  model.Zero,
		TaxedBase5:  model.Zero,
		TaxedBase10: model.Zero,
		Tax5:        model.Zero,
		Tax10:       model.Zero,
		Discount:    model.Zero,
		Total:       model.Zero,
	}

	for _, line := range doc.Lines {
		remoteItem, ok := itemIDs[line.ItemID]
		if !ok || remoteItem == 0 {
			return nil, model.NewAssemblyError(doc.ID, "line "+strconv.Itoa(line.OrderIndex)+" has no resolved remote item")
		}

		amount, percent, err := ReconcileDiscount(line, places)
		if err != nil {
			return nil, err
		}

		gross := line.Quantity.Mul(line.UnitPrice)
		net := model.RoundHalfUp(gross.Sub(amount), places)
		tax := model.TaxOn(net, line.TaxRate, places)
		total := net.Add(tax)

		wireLine := model.WireLine{
			Order:           line.OrderIndex,
			Item:            remoteItem,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountAmount:  amount,
			DiscountPercent: percent,
			TaxRate:         line.TaxRate,
			TaxTreatment:    line.TaxTreatment,
			Net:             net,
			Tax:             tax,
			Total:           total,
		}
		if line.GTIN.Valid {
			wireLine.GTIN = line.GTIN.String
		}
		wire.Lines = append(wire.Lines, wireLine)

		totals.Discount = totals.Discount.Add(amount)
		totals.Total = totals.Total.Add(total)
		switch line.TaxTreatment {
		case model.TaxTreatmentExempt:
			totals.Exempt = totals.Exempt.Add(net)
		case model.TaxTreatmentExonerated:
			totals.Exonerated = totals.Exonerated.Add(net)
		default:
			switch line.TaxRate {
			case 5:
				totals.TaxedBase5 = totals.TaxedBase5.Add(net)
				totals.Tax5 = totals.Tax5.Add(tax)
			case 10:
				totals.TaxedBase10 = totals.TaxedBase10.Add(net)
				totals.Tax10 = totals.Tax10.Add(tax)
			}
		}
	}

	totals.Discount = model.RoundHalfUp(totals.Discount, places)
	totals.Total = model.RoundHalfUp(totals.Total, places)
	wire.Totals = totals

	if doc.Kind.IsNote() {
		assoc, err := associatedRefs(doc)
		if err != nil {
			return nil, err
		}
		wire.Associated = assoc
	}

	if err := wire.Validate(); err != nil {
		return nil, model.NewAssemblyError(doc.ID, err.Error())
	}
	return wire, nil
}

// ReconcileDiscount derives the line's effective discount from the
// authoritative field and checks the stored counterpart against it.
// The pair must agree within one minor unit of the currency.
func ReconcileDiscount(line model.DocumentLine, places int32) (amount, percent decimal.Decimal, err error) {
	gross := line.Quantity.Mul(line.UnitPrice)

	switch line.DiscountBasis {
	case model.DiscountByPercent:
		percent = line.DiscountPercent
		amount = model.RoundHalfUp(model.Percentage(gross, percent), places)
		if !line.DiscountAmount.IsZero() && !model.WithinMinorUnit(line.DiscountAmount, amount, places) {
			return decimal.Zero, decimal.Zero, model.NewAssemblyError(line.DocumentID,
				"line "+strconv.Itoa(line.OrderIndex)+" discount amount disagrees with percentage")
		}
	default:
		amount = line.DiscountAmount
		if gross.IsZero() {
			percent = decimal.Zero
		} else {
			percent = amount.Mul(decimal.NewFromInt(100)).Div(gross).Round(4)
		}
		if !line.DiscountPercent.IsZero() {
			derived := model.RoundHalfUp(model.Percentage(gross, line.DiscountPercent), places)
			if !model.WithinMinorUnit(derived, amount, places) {
				return decimal.Zero, decimal.Zero, model.NewAssemblyError(line.DocumentID,
					"line "+strconv.Itoa(line.OrderIndex)+" discount percentage disagrees with amount")
			}
		}
	}

	if amount.IsNegative() || amount.GreaterThan(gross) {
		return decimal.Zero, decimal.Zero, model.NewAssemblyError(line.DocumentID,
			"line "+strconv.Itoa(line.OrderIndex)+" discount out of range")
	}
	return amount, percent, nil
}

// associatedRefs resolves the references of a credit or debit note,
// preferring the target's CDC and falling back to legacy data.
func associatedRefs(doc model.Document) ([]model.WireAssociatedDocument, error) {
	if len(doc.Associated) == 0 {
		return nil, model.NewAssemblyError(doc.ID, string(doc.Kind)+" has no associated document")
	}

	refs := make([]model.WireAssociatedDocument, 0, len(doc.Associated))
	for _, assoc := range doc.Associated {
		switch {
		case assoc.TargetCDC.Valid && assoc.TargetCDC.String != "":
			refs = append(refs, model.WireAssociatedDocument{CDC: assoc.TargetCDC.String})
		case assoc.LegacyNumber.Valid && assoc.LegacyNumber.String != "":
			ref := model.WireAssociatedDocument{
				Timbrado: assoc.LegacyTimbrado.Int64,
				Number:   assoc.LegacyNumber.String,
				Kind:     assoc.LegacyKind.String,
			}
			if assoc.LegacyIssuedAt.Valid {
				ref.IssuedAt = assoc.LegacyIssuedAt.Time.Format("2006-01-02")
			}
			refs = append(refs, ref)
		case assoc.TargetDocumentID.Valid:
			// A local target without a CDC has not been accepted yet;
			// the note must wait for the next cycle.
			return nil, model.NewAssemblyError(doc.ID, "associated document not yet accepted remotely")
		default:
			return nil, model.NewAssemblyError(doc.ID, "associated document carries no reference data")
		}
	}
	return refs, nil
}
