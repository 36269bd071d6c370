package syncer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dramosoft/tabula-sync/internal/model"
	"github.com/dramosoft/tabula-sync/internal/syncer"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    model.DocumentStatus
		retryable bool
	}{
		{
			name:   "reconcile failure leaves document pending",
			err:    model.NewReconcileError("contact", 3, "lookup failed", assert.AnError),
			status: model.StatusPending,
		},
		{
			name:   "assembly failure leaves document pending",
			err:    model.NewAssemblyError(41, "line 2 has no resolved item"),
			status: model.StatusPending,
		},
		{
			name:   "store failure leaves document pending",
			err:    model.NewStoreError("lines", assert.AnError),
			status: model.StatusPending,
		},
		{
			name:      "validation rejection is terminal",
			err:       &model.APIError{Kind: model.FailureValidation, StatusCode: 422, Detail: "bad payload"},
			status:    model.StatusError,
			retryable: false,
		},
		{
			name:      "authentication failure is terminal",
			err:       &model.APIError{Kind: model.FailureAuthentication, StatusCode: 401},
			status:    model.StatusError,
			retryable: false,
		},
		{
			name:      "server failure retries",
			err:       &model.APIError{Kind: model.FailureServiceUnavailable, StatusCode: 503},
			status:    model.StatusError,
			retryable: true,
		},
		{
			name:      "connection failure retries",
			err:       &model.APIError{Kind: model.FailureConnection},
			status:    model.StatusError,
			retryable: true,
		},
		{
			name:      "timeout retries",
			err:       &model.APIError{Kind: model.FailureTimeout},
			status:    model.StatusError,
			retryable: true,
		},
		{
			name:      "rate limit retries",
			err:       &model.APIError{Kind: model.FailureRateLimited, StatusCode: 429},
			status:    model.StatusError,
			retryable: true,
		},
		{
			name:      "unclassified failure assumed transient",
			err:       errors.New("something odd"),
			status:    model.StatusError,
			retryable: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := syncer.Classify(tc.err)
			assert.Equal(t, tc.status, outcome.Status)
			assert.Equal(t, tc.retryable, outcome.Retryable)
			assert.NotEmpty(t, outcome.Detail)
		})
	}
}

func TestClassify_WrappedAPIError(t *testing.T) {
	wrapped := &model.APIError{
		Kind:   model.FailureConnection,
		Detail: "dial tcp: connection refused",
		Cause:  assert.AnError,
	}
	outcome := syncer.Classify(wrapped)
	assert.Equal(t, model.StatusError, outcome.Status)
	assert.True(t, outcome.Retryable)
	assert.Contains(t, outcome.Detail, "connection refused")
}
