// Package syncer runs the synchronization cycle: permit check, status
// reconciliation, pending submission and error resubmission, repeated
// on a fixed interval until the process is asked to stop.
package syncer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dramosoft/tabula-sync/internal/api"
	"github.com/dramosoft/tabula-sync/internal/assemble"
	"github.com/dramosoft/tabula-sync/internal/model"
	"github.com/dramosoft/tabula-sync/internal/reconcile"
)

// Store is the slice of the local store one cycle needs. A fresh store
// is opened per cycle and closed on every exit path.
type Store interface {
	reconcile.EntityStore

	DocumentsByStatus(ctx context.Context, kind model.DocumentKind, status model.DocumentStatus) ([]model.Document, error)
	RetryableErrors(ctx context.Context, kind model.DocumentKind, maxAttempts int) ([]model.Document, error)
	Lines(ctx context.Context, documentID int64) ([]model.DocumentLine, error)
	AssociatedRefs(ctx context.Context, documentID int64) ([]model.AssociatedDocumentReference, error)
	Permits(ctx context.Context) ([]model.Permit, error)

	MarkSent(ctx context.Context, id int64, cdc string) error
	SetStatus(ctx context.Context, id int64, status model.DocumentStatus, detail string) error
	MarkError(ctx context.Context, id int64, detail string, retryable bool) error
	ClearRetry(ctx context.Context, id int64) error
	RecordCDC(ctx context.Context, id int64, cdc string) error

	Close() error
}

// CloudAPI is the full remote surface the cycle drives.
type CloudAPI interface {
	reconcile.CloudAPI

	SubmitDocument(ctx context.Context, doc *model.WireDocument) (*api.SubmitResult, error)
	VerifyStatus(ctx context.Context, reference string) (*api.StatusResult, error)
	Regenerate(ctx context.Context, reference string) error
	GenerateLot(ctx context.Context) error
}

// StoreOpener acquires the per-cycle store connection.
type StoreOpener func(ctx context.Context) (Store, error)

// Config carries the orchestrator's tunables.
type Config struct {
	Interval   time.Duration
	MaxRetries int
}

// DefaultMaxRetries bounds automatic resubmission of error documents;
// past it the retryable flag is cleared and an operator must step in.
const DefaultMaxRetries = 5

// Orchestrator sequences the four phases of each cycle and owns the
// polling cadence. Documents are processed one at a time; a failure on
// one is logged and never halts the rest.
type Orchestrator struct {
	openStore StoreOpener
	cloud     CloudAPI
	cfg       Config
	log       zerolog.Logger
	status    *Status
}

// New creates an orchestrator. All collaborators are explicit; nothing
// is read from package-level state.
func New(openStore StoreOpener, cloud CloudAPI, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Orchestrator{
		openStore: openStore,
		cloud:     cloud,
		cfg:       cfg,
		log:       log,
		status:    &Status{},
	}
}

// Status exposes the daemon state for the HTTP status endpoint.
func (o *Orchestrator) Status() *Status {
	return o.status
}

// Run repeats RunCycle on the configured interval until ctx is
// canceled. Cancellation interrupts the inter-cycle sleep only; an
// in-flight cycle always finishes before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.status.setRunning(true)
	defer o.status.setRunning(false)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info().Msg("shutdown requested, sync loop stopping")
			return ctx.Err()
		case <-timer.C:
		}

		report, err := o.RunCycle(context.WithoutCancel(ctx))
		o.status.record(report, err)
		if err != nil {
			o.log.Error().Err(err).Msg("sync cycle aborted")
		}

		timer.Reset(o.cfg.Interval)
	}
}

// RunCycle performs one synchronization cycle. Only a local-store
// connection failure aborts the cycle; every other failure is scoped
// to the document it occurred on.
func (o *Orchestrator) RunCycle(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now()}

	st, err := o.openStore(ctx)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}
	defer st.Close()

	rec := reconcile.New(st, o.cloud, o.log)

	permits, err := o.loadPermits(ctx, st)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	// Snapshot the retryable set before submissions run, so a document
	// that fails in this cycle's pending phase waits for the next cycle
	// instead of being regenerated moments after it was marked error.
	retryable := o.loadRetryableErrors(ctx, st)

	o.checkSentDocuments(ctx, st, &report)
	o.submitPending(ctx, st, rec, permits, &report)
	o.resubmitErrors(ctx, st, rec, permits, retryable, &report)

	if err := o.cloud.GenerateLot(ctx); err != nil {
		o.log.Warn().Err(err).Msg("lot generation failed")
	}

	report.FinishedAt = time.Now()
	o.log.Info().
		Int("status_checked", report.StatusChecked).
		Int("submitted", report.Submitted).
		Int("resubmitted", report.Resubmitted).
		Int("skipped_permit", report.SkippedPermit).
		Msg("sync cycle finished")
	return report, nil
}

// loadPermits builds the enabled-permit set. A document whose permit
// scope is absent or disabled must not be submitted this cycle.
func (o *Orchestrator) loadPermits(ctx context.Context, st Store) (map[string]bool, error) {
	permits, err := st.Permits(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make(map[string]bool, len(permits))
	now := time.Now()
	for _, p := range permits {
		ok := p.Enabled
		if ok && p.ValidFrom.Valid && now.Before(p.ValidFrom.Time) {
			ok = false
		}
		if ok && p.ValidUntil.Valid && now.After(p.ValidUntil.Time) {
			ok = false
		}
		enabled[p.Key()] = ok
	}
	return enabled, nil
}

// checkSentDocuments verifies the remote disposition of every sent
// document and persists the result. Runs regardless of permit state.
func (o *Orchestrator) checkSentDocuments(ctx context.Context, st Store, report *Report) {
	for _, kind := range model.SubmissionOrder {
		docs, err := st.DocumentsByStatus(ctx, kind, model.StatusSent)
		if err != nil {
			o.log.Error().Err(err).Str("kind", string(kind)).Msg("fetch sent documents")
			continue
		}
		for _, doc := range docs {
			if err := o.checkOne(ctx, st, doc); err != nil {
				o.log.Error().Err(err).
					Str("kind", string(doc.Kind)).
					Str("number", doc.FullNumber()).
					Msg("status check failed")
				continue
			}
			report.StatusChecked++
		}
	}
}

func (o *Orchestrator) checkOne(ctx context.Context, st Store, doc model.Document) error {
	result, err := o.cloud.VerifyStatus(ctx, doc.Reference.String())
	if err != nil {
		return err
	}

	switch result.Status {
	case api.RemoteStatusApproved:
		if result.CDC != "" && result.CDC != doc.CDC.String {
			if err := st.RecordCDC(ctx, doc.ID, result.CDC); err != nil {
				return err
			}
		}
		return st.SetStatus(ctx, doc.ID, model.StatusAccepted, "")
	case api.RemoteStatusRejected:
		detail := result.Detail
		if detail == "" {
			detail = "rejected by the tax authority"
		}
		return st.SetStatus(ctx, doc.ID, model.StatusRejected, detail)
	default:
		// Still in flight remotely; check again next cycle.
		return nil
	}
}

// submitPending reconciles, assembles and submits every pending
// document, invoices before the notes that may reference them.
func (o *Orchestrator) submitPending(ctx context.Context, st Store, rec *reconcile.Reconciler, permits map[string]bool, report *Report) {
	for _, kind := range model.SubmissionOrder {
		docs, err := st.DocumentsByStatus(ctx, kind, model.StatusPending)
		if err != nil {
			o.log.Error().Err(err).Str("kind", string(kind)).Msg("fetch pending documents")
			continue
		}
		for _, doc := range docs {
			if !permits[model.PermitKeyFor(doc)] {
				report.SkippedPermit++
				o.log.Warn().
					Str("kind", string(doc.Kind)).
					Str("number", doc.FullNumber()).
					Int64("timbrado", doc.Timbrado).
					Msg("permit disabled, submission skipped")
				continue
			}
			o.submitOne(ctx, st, rec, doc, report)
		}
	}
}

func (o *Orchestrator) submitOne(ctx context.Context, st Store, rec *reconcile.Reconciler, doc model.Document, report *Report) {
	logger := o.log.With().
		Str("kind", string(doc.Kind)).
		Str("number", doc.FullNumber()).
		Logger()

	result, err := o.prepareAndSubmit(ctx, st, rec, doc)
	if err == nil {
		if err := st.MarkSent(ctx, doc.ID, result.CDC); err != nil {
			logger.Error().Err(err).Msg("persist sent status")
			return
		}
		report.Submitted++
		logger.Info().Str("cdc", result.CDC).Msg("document submitted")
		return
	}

	outcome := Classify(err)
	switch outcome.Status {
	case model.StatusPending:
		// Local precondition unmet; nothing reached the server.
		report.LeftPending++
		logger.Warn().Err(err).Msg("document left pending")
	default:
		if persistErr := st.MarkError(ctx, doc.ID, outcome.Detail, outcome.Retryable); persistErr != nil {
			logger.Error().Err(persistErr).Msg("persist error status")
			return
		}
		report.SubmitFailed++
		logger.Error().Err(err).Bool("retryable", outcome.Retryable).Msg("submission failed")
	}
}

func (o *Orchestrator) prepareAndSubmit(ctx context.Context, st Store, rec *reconcile.Reconciler, doc model.Document) (*api.SubmitResult, error) {
	contactRemoteID, err := rec.EnsureContact(ctx, doc.ContactID)
	if err != nil {
		return nil, err
	}

	lines, err := st.Lines(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines

	if doc.Kind.IsNote() {
		assoc, err := st.AssociatedRefs(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		doc.Associated = assoc
	}

	itemIDs, err := rec.EnsureItems(ctx, localItemIDs(lines))
	if err != nil {
		return nil, err
	}

	wire, err := assemble.Assemble(doc, contactRemoteID, itemIDs)
	if err != nil {
		return nil, err
	}

	return o.cloud.SubmitDocument(ctx, wire)
}

// loadRetryableErrors fetches the error documents still eligible for
// automatic resubmission, in submission order. A fetch failure on one
// kind is logged and skips that kind only.
func (o *Orchestrator) loadRetryableErrors(ctx context.Context, st Store) []model.Document {
	var docs []model.Document
	for _, kind := range model.SubmissionOrder {
		kindDocs, err := st.RetryableErrors(ctx, kind, o.cfg.MaxRetries)
		if err != nil {
			o.log.Error().Err(err).Str("kind", string(kind)).Msg("fetch retryable documents")
			continue
		}
		docs = append(docs, kindDocs...)
	}
	return docs
}

// resubmitErrors re-reconciles the contact of each retryable error
// document and asks the cloud to regenerate it under the same
// numbering triplet, so a repeat after a transient failure cannot
// create a duplicate. The set was snapshotted at cycle start: errors
// produced by this cycle's pending phase are not in it.
func (o *Orchestrator) resubmitErrors(ctx context.Context, st Store, rec *reconcile.Reconciler, permits map[string]bool, docs []model.Document, report *Report) {
	for _, doc := range docs {
		if !permits[model.PermitKeyFor(doc)] {
			report.SkippedPermit++
			continue
		}
		o.resubmitOne(ctx, st, rec, doc, report)
	}
}

func (o *Orchestrator) resubmitOne(ctx context.Context, st Store, rec *reconcile.Reconciler, doc model.Document, report *Report) {
	logger := o.log.With().
		Str("kind", string(doc.Kind)).
		Str("number", doc.FullNumber()).
		Int("attempts", doc.SyncAttempts).
		Logger()

	err := func() error {
		if _, err := rec.EnsureContact(ctx, doc.ContactID); err != nil {
			return err
		}
		return o.cloud.Regenerate(ctx, doc.Reference.String())
	}()

	if err == nil {
		if err := st.SetStatus(ctx, doc.ID, model.StatusSent, ""); err != nil {
			logger.Error().Err(err).Msg("persist resubmitted status")
			return
		}
		report.Resubmitted++
		logger.Info().Msg("document resubmitted")
		return
	}

	report.ResubmitFailed++
	logger.Error().Err(err).Msg("resubmission failed")

	outcome := Classify(err)
	if outcome.Status == model.StatusPending {
		// Contact reconciliation failed locally; the document keeps
		// its error state and attempt count for the next cycle.
		return
	}
	if persistErr := st.MarkError(ctx, doc.ID, outcome.Detail, outcome.Retryable); persistErr != nil {
		logger.Error().Err(persistErr).Msg("persist resubmission failure")
		return
	}
	if doc.SyncAttempts+1 >= o.cfg.MaxRetries {
		if err := st.ClearRetry(ctx, doc.ID); err != nil {
			logger.Error().Err(err).Msg("clear retry flag")
			return
		}
		logger.Warn().Msg("retry budget exhausted, manual intervention required")
	}
}

func localItemIDs(lines []model.DocumentLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		ids = append(ids, line.ItemID)
	}
	return ids
}
