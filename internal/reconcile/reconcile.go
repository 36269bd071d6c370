// Package reconcile makes sure the contacts and catalog items a
// document references exist in the cloud before the document is
// submitted, mapping local ids to remote ids as it goes.
package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dramosoft/tabula-sync/internal/api"
	"github.com/dramosoft/tabula-sync/internal/check"
	"github.com/dramosoft/tabula-sync/internal/model"
)

// EntityStore is the slice of the local store the reconciler reads.
type EntityStore interface {
	Contact(ctx context.Context, id int64) (*model.Contact, error)
	Item(ctx context.Context, id int64) (*model.Item, error)
}

// CloudAPI is the slice of the remote client the reconciler drives.
type CloudAPI interface {
	FindContact(ctx context.Context, taxID string) (api.LookupState, *api.RemoteContact, error)
	CreateContact(ctx context.Context, payload *model.WireContact) (*api.RemoteContact, error)
	UpdateContact(ctx context.Context, remoteID int64, payload *model.WireContact) (*api.RemoteContact, error)
	FindItem(ctx context.Context, sequence int64) (api.LookupState, *api.RemoteItem, error)
	CreateItem(ctx context.Context, payload *model.WireItem) (*api.RemoteItem, error)
	UpdateItem(ctx context.Context, remoteID int64, payload *model.WireItem) (*api.RemoteItem, error)
}

// Reconciler resolves local entities to remote ids. The id caches live
// for one sync cycle only; each cycle re-resolves from scratch.
type Reconciler struct {
	store EntityStore
	cloud CloudAPI
	log   zerolog.Logger

	contacts map[int64]int64
	items    map[int64]int64
}

// New creates a reconciler with empty caches for one cycle.
func New(store EntityStore, cloud CloudAPI, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		cloud:    cloud,
		log:      log,
		contacts: make(map[int64]int64),
		items:    make(map[int64]int64),
	}
}

// EnsureContact guarantees the contact exists remotely with fresh
// local data and returns its remote id. GET by tax id, then PUT when
// found or POST when missing; any other outcome is a reconciliation
// failure that only aborts the dependent document.
func (r *Reconciler) EnsureContact(ctx context.Context, localID int64) (int64, error) {
	if remoteID, ok := r.contacts[localID]; ok {
		return remoteID, nil
	}

	contact, err := r.store.Contact(ctx, localID)
	if err != nil {
		return 0, model.NewReconcileError("contact", localID, "load local row", err)
	}

	payload := contactPayload(contact)

	state, remote, err := r.cloud.FindContact(ctx, contact.TaxID)
	if err != nil {
		return 0, model.NewReconcileError("contact", localID, "remote lookup", err)
	}

	switch state {
	case api.Found:
		remote, err = r.cloud.UpdateContact(ctx, remote.ID, payload)
	case api.NotFound:
		remote, err = r.cloud.CreateContact(ctx, payload)
	}
	if err != nil {
		return 0, model.NewReconcileError("contact", localID, "remote write", err)
	}

	r.contacts[localID] = remote.ID
	return remote.ID, nil
}

// EnsureItems resolves every given local item id to a remote id,
// creating or updating catalog entries as needed.
func (r *Reconciler) EnsureItems(ctx context.Context, localIDs []int64) (map[int64]int64, error) {
	resolved := make(map[int64]int64, len(localIDs))
	for _, localID := range localIDs {
		remoteID, err := r.ensureItem(ctx, localID)
		if err != nil {
			return nil, err
		}
		resolved[localID] = remoteID
	}
	return resolved, nil
}

func (r *Reconciler) ensureItem(ctx context.Context, localID int64) (int64, error) {
	if remoteID, ok := r.items[localID]; ok {
		return remoteID, nil
	}

	item, err := r.store.Item(ctx, localID)
	if err != nil {
		return 0, model.NewReconcileError("item", localID, "load local row", err)
	}

	payload := r.itemPayload(item)

	state, remote, err := r.cloud.FindItem(ctx, item.Sequence)
	if err != nil {
		return 0, model.NewReconcileError("item", localID, "remote lookup", err)
	}

	switch state {
	case api.Found:
		remote, err = r.cloud.UpdateItem(ctx, remote.ID, payload)
	case api.NotFound:
		remote, err = r.cloud.CreateItem(ctx, payload)
	}
	if err != nil {
		return 0, model.NewReconcileError("item", localID, "remote write", err)
	}

	r.items[localID] = remote.ID
	return remote.ID, nil
}

// contactPayload computes the check digit and person type the cloud
// expects on every transmission.
func contactPayload(contact *model.Contact) *model.WireContact {
	return &model.WireContact{
		TaxID:      contact.TaxID,
		CheckDigit: check.TaxIDCheckDigit(contact.TaxID),
		PersonType: classifyPerson(contact.TaxID),
		Name:       contact.Name,
		Email:      contact.Email.String,
		Phone:      contact.Phone.String,
		Address:    contact.Address.String,
		Active:     contact.Active,
	}
}

// itemPayload omits a GTIN that fails check-digit validation rather
// than transmitting it malformed; the code is never silently fixed.
func (r *Reconciler) itemPayload(item *model.Item) *model.WireItem {
	payload := &model.WireItem{
		Sequence: item.Sequence,
		Code:     item.Code,
		Name:     item.Name,
		Unit:     item.Unit,
		Price:    item.Price,
		Active:   item.Active,
	}
	if item.GTIN.Valid && item.GTIN.String != "" {
		if check.ValidGTIN(item.GTIN.String) {
			payload.GTIN = item.GTIN.String
		} else {
			r.log.Warn().
				Int64("item", item.ID).
				Str("gtin", item.GTIN.String).
				Msg("invalid GTIN omitted from payload")
		}
	}
	return payload
}

// classifyPerson follows the national tax-id ranges: juridical ids are
// issued in the 80xxxxxxx block, everything else is a natural person.
func classifyPerson(taxID string) model.PersonType {
	if len(taxID) >= 8 && taxID[:2] == "80" {
		return model.PersonJuridical
	}
	return model.PersonNatural
}
