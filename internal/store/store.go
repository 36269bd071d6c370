// Package store reads documents and their dependent rows from the
// local PostgreSQL database and persists status transitions. It is the
// only writer of the status-tracking columns and never deletes rows.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/dramosoft/tabula-sync/internal/model"
)

// Store wraps one database connection. The orchestrator opens a fresh
// store at the start of each cycle and closes it on every exit path.
type Store struct {
	db *sqlx.DB
}

// ErrNotFound is returned when a single-row fetch matches nothing.
var ErrNotFound = errors.New("store: row not found")

// Open connects to the local store and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, model.NewStoreError("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, model.NewStoreError("ping", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const documentColumns = `id, kind, reference, status, status_detail, cdc,
	branch, timbrado, establishment, expedition_point, document_number,
	issued_at, currency, currency_decimals, exchange_rate, contact_id,
	retryable, sync_attempts`

// DocumentsByStatus fetches every document of one kind in one status,
// oldest first so numbering order is preserved.
func (s *Store) DocumentsByStatus(ctx context.Context, kind model.DocumentKind, status model.DocumentStatus) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE kind = $1 AND status = $2
		ORDER BY document_number`
	var docs []model.Document
	if err := s.db.SelectContext(ctx, &docs, query, kind, status); err != nil {
		return nil, model.NewStoreError("documents_by_status", err)
	}
	return docs, nil
}

// RetryableErrors fetches error documents of one kind that are still
// flagged auto-retryable and below the attempt bound.
func (s *Store) RetryableErrors(ctx context.Context, kind model.DocumentKind, maxAttempts int) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE kind = $1 AND status = $2 AND retryable AND sync_attempts < $3
		ORDER BY document_number`
	var docs []model.Document
	if err := s.db.SelectContext(ctx, &docs, query, kind, model.StatusError, maxAttempts); err != nil {
		return nil, model.NewStoreError("retryable_errors", err)
	}
	return docs, nil
}

// Lines fetches the line items of a document in order.
func (s *Store) Lines(ctx context.Context, documentID int64) ([]model.DocumentLine, error) {
	query := `SELECT id, document_id, order_index, item_id, item_sequence, gtin,
			quantity, unit_price, discount_basis, discount_amount, discount_percent,
			tax_rate, tax_treatment
		FROM document_lines
		WHERE document_id = $1
		ORDER BY order_index`
	var lines []model.DocumentLine
	if err := s.db.SelectContext(ctx, &lines, query, documentID); err != nil {
		return nil, model.NewStoreError("lines", err)
	}
	return lines, nil
}

// AssociatedRefs fetches the associated-document rows of a note, with
// the target document's CDC resolved when the reference is local.
func (s *Store) AssociatedRefs(ctx context.Context, documentID int64) ([]model.AssociatedDocumentReference, error) {
	query := `SELECT a.id, a.document_id, a.target_document_id, d.cdc AS target_cdc,
			a.legacy_timbrado, a.legacy_number, a.legacy_kind, a.legacy_issued_at
		FROM associated_documents a
		LEFT JOIN documents d ON d.id = a.target_document_id
		WHERE a.document_id = $1
		ORDER BY a.id`
	var refs []model.AssociatedDocumentReference
	if err := s.db.SelectContext(ctx, &refs, query, documentID); err != nil {
		return nil, model.NewStoreError("associated_refs", err)
	}
	return refs, nil
}

// Contact fetches one contact row.
func (s *Store) Contact(ctx context.Context, id int64) (*model.Contact, error) {
	query := `SELECT id, tax_id, name, email, phone, address, active
		FROM contacts WHERE id = $1`
	var contact model.Contact
	if err := s.db.GetContext(ctx, &contact, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, model.NewStoreError("contact", err)
	}
	return &contact, nil
}

// Item fetches one catalog item row.
func (s *Store) Item(ctx context.Context, id int64) (*model.Item, error) {
	query := `SELECT id, sequence, code, gtin, name, unit, price, active
		FROM items WHERE id = $1`
	var item model.Item
	if err := s.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, model.NewStoreError("item", err)
	}
	return &item, nil
}

// Permits fetches the state of every numbering authorization.
func (s *Store) Permits(ctx context.Context) ([]model.Permit, error) {
	query := `SELECT timbrado, kind, establishment, expedition_point, enabled,
			valid_from, valid_until
		FROM permits`
	var permits []model.Permit
	if err := s.db.SelectContext(ctx, &permits, query); err != nil {
		return nil, model.NewStoreError("permits", err)
	}
	return permits, nil
}

// MarkSent records a successful submission: status sent, the assigned
// CDC, detail cleared.
func (s *Store) MarkSent(ctx context.Context, id int64, cdc string) error {
	query := `UPDATE documents
		SET status = $2, cdc = NULLIF($3, ''), status_detail = NULL, retryable = FALSE
		WHERE id = $1`
	return s.exec(ctx, "mark_sent", query, id, model.StatusSent, cdc)
}

// SetStatus persists a verified disposition for a sent document.
func (s *Store) SetStatus(ctx context.Context, id int64, status model.DocumentStatus, detail string) error {
	query := `UPDATE documents
		SET status = $2, status_detail = NULLIF($3, '')
		WHERE id = $1`
	return s.exec(ctx, "set_status", query, id, status, detail)
}

// MarkError records a failed submission with the server detail and the
// retry policy's verdict, incrementing the persisted attempt counter.
func (s *Store) MarkError(ctx context.Context, id int64, detail string, retryable bool) error {
	query := `UPDATE documents
		SET status = $2, status_detail = $3, retryable = $4,
			sync_attempts = sync_attempts + 1
		WHERE id = $1`
	return s.exec(ctx, "mark_error", query, id, model.StatusError, detail, retryable)
}

// ClearRetry drops the auto-retry flag once the bound is exhausted,
// leaving manual intervention as the backstop.
func (s *Store) ClearRetry(ctx context.Context, id int64) error {
	query := `UPDATE documents SET retryable = FALSE WHERE id = $1`
	return s.exec(ctx, "clear_retry", query, id)
}

// RecordCDC stores a remote-assigned identifier reported by a status
// check, without touching the status.
func (s *Store) RecordCDC(ctx context.Context, id int64, cdc string) error {
	query := `UPDATE documents SET cdc = $2 WHERE id = $1`
	return s.exec(ctx, "record_cdc", query, id, cdc)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return model.NewStoreError(op, err)
	}
	return nil
}
