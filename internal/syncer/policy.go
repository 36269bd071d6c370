package syncer

import (
	"errors"

	"github.com/dramosoft/tabula-sync/internal/model"
)

// Outcome is the status transition the retry policy decides for one
// failed submission.
type Outcome struct {
	Status    model.DocumentStatus
	Detail    string
	Retryable bool
}

// Classify maps a submission failure to a document transition.
// Server-side validation rejections become error without auto-retry,
// transport-level and 5xx failures become error with auto-retry on the
// next cycle, and local failures (store reads, reconciliation,
// assembly) leave the document pending because nothing was ever
// submitted.
func Classify(err error) Outcome {
	if model.IsReconcileError(err) {
		return Outcome{Status: model.StatusPending, Detail: err.Error()}
	}

	var asmErr *model.AssemblyError
	if errors.As(err, &asmErr) {
		return Outcome{Status: model.StatusPending, Detail: asmErr.Error()}
	}

	var storeErr *model.StoreError
	if errors.As(err, &storeErr) {
		return Outcome{Status: model.StatusPending, Detail: storeErr.Error()}
	}

	if apiErr, ok := model.AsAPIError(err); ok {
		return Outcome{
			Status:    model.StatusError,
			Detail:    apiErr.Error(),
			Retryable: apiErr.Transient(),
		}
	}

	// Unclassified failures are assumed transient so a passing outage
	// does not strand documents in a terminal state.
	return Outcome{Status: model.StatusError, Detail: err.Error(), Retryable: true}
}
