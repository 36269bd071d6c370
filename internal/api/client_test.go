package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramosoft/tabula-sync/internal/api"
	"github.com/dramosoft/tabula-sync/internal/model"
)

func TestClient_AuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(api.RemoteContact{ID: 1})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "secret-token")
	state, _, err := client.FindContact(context.Background(), "80012345")
	require.NoError(t, err)
	assert.Equal(t, api.Found, state)
	assert.Equal(t, "Token secret-token", gotAuth)
}

func TestClient_Lookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such contact", http.StatusNotFound)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "t")
	state, contact, err := client.FindContact(context.Background(), "80012345")
	require.NoError(t, err, "404 on a lookup is a result, not a failure")
	assert.Equal(t, api.NotFound, state)
	assert.Nil(t, contact)
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  model.FailureKind
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, model.FailureAuthentication, false},
		{"forbidden", http.StatusForbidden, model.FailureAuthorization, false},
		{"unprocessable", http.StatusUnprocessableEntity, model.FailureValidation, false},
		{"bad request", http.StatusBadRequest, model.FailureValidation, false},
		{"rate limited", http.StatusTooManyRequests, model.FailureRateLimited, true},
		{"server error", http.StatusInternalServerError, model.FailureServiceUnavailable, true},
		{"bad gateway", http.StatusBadGateway, model.FailureServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "30")
				}
				http.Error(w, `{"detail":"field x is invalid"}`, tt.status)
			}))
			defer srv.Close()

			client := api.NewClient(srv.URL, "t")
			_, err := client.SubmitDocument(context.Background(), &model.WireDocument{})
			require.Error(t, err)

			apiErr, ok := model.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.transient, apiErr.Transient())
			assert.Contains(t, apiErr.Detail, "field x is invalid",
				"server-provided detail must be preserved")
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, 30*time.Second, apiErr.RetryAfter)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "t", api.WithTimeout(20*time.Millisecond))
	err := client.GenerateLot(context.Background())
	require.Error(t, err)

	apiErr, ok := model.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, model.FailureTimeout, apiErr.Kind)
	assert.True(t, apiErr.Transient())
}

func TestClient_ConnectionRefused(t *testing.T) {
	// Reserve a port and close it so nothing is listening.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := api.NewClient(url, "t")
	err := client.GenerateLot(context.Background())
	require.Error(t, err)

	apiErr, ok := model.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, model.FailureConnection, apiErr.Kind)
}

func TestClient_SubmitDocument(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody model.WireDocument
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.SubmitResult{ID: 10, CDC: "CDC-1", Status: "received"})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "t")
	doc := &model.WireDocument{
		Kind:         model.KindInvoice,
		Number:       "001-002-0000045",
		Contact:      5,
		ExchangeRate: decimal.NewFromInt(1),
		Lines:        []model.WireLine{{Order: 1, Item: 9}},
	}
	result, err := client.SubmitDocument(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/documents/v1/documentos/", gotPath)
	assert.Equal(t, "001-002-0000045", gotBody.Number)
	assert.Equal(t, "CDC-1", result.CDC)
}

func TestClient_VerifyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/v1/documentos/ref-1/verificar-estado-de/", r.URL.Path)
		json.NewEncoder(w).Encode(api.StatusResult{Status: api.RemoteStatusApproved, CDC: "CDC-9"})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "t")
	result, err := client.VerifyStatus(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, api.RemoteStatusApproved, result.Status)
	assert.Equal(t, "CDC-9", result.CDC)
}

func TestClient_FindItemBySequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/items/v1/items/secuencia/120/", r.URL.Path)
		json.NewEncoder(w).Encode(api.RemoteItem{ID: 900, Sequence: 120})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "t")
	state, item, err := client.FindItem(context.Background(), 120)
	require.NoError(t, err)
	assert.Equal(t, api.Found, state)
	assert.Equal(t, int64(900), item.ID)
}
