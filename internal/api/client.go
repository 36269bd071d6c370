// Package api is a thin typed client for the Tabula cloud endpoints.
// Every call returns either a parsed payload or a classified
// *model.APIError; the client never retries on its own, retry policy
// is the orchestrator's job.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dramosoft/tabula-sync/internal/model"
)

const (
	// DefaultTimeout bounds every remote call; exceeding it is a
	// transport failure for the retry policy.
	DefaultTimeout = 20 * time.Second

	userAgent = "tabula-sync/1.0"
)

// Endpoint paths relative to the base URL.
const (
	pathItems          = "api/items/v1/items/"
	pathItemBySeq      = "api/items/v1/items/secuencia/%d/"
	pathItemByID       = "api/items/v1/items/%d/"
	pathContacts       = "api/contacts/v1/contacts/"
	pathContactByID    = "api/contacts/v1/contacts/%d/"
	pathContactByTaxID = "api/contacts/v1/buscar/%s/"
	pathDocuments      = "api/documents/v1/documentos/"
	pathVerifyStatus   = "api/documents/v1/documentos/%s/verificar-estado-de/"
	pathRegenerate     = "api/documents/v1/documentos/%s/regenerar-xml/"
	pathGenerateLot    = "api/sifen/generar-lote/"
)

// LookupState is the explicit outcome of a remote entity lookup. A
// failed lookup is carried in the error return instead; callers switch
// on the state only when the error is nil.
type LookupState int

const (
	Found LookupState = iota
	NotFound
)

// Client issues authenticated requests against the cloud endpoint set.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a client with the bearer token set for every call.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RemoteItem is a catalog item as the cloud reports it.
type RemoteItem struct {
	ID       int64  `json:"id"`
	Sequence int64  `json:"sequence"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// RemoteContact is a contact as the cloud reports it.
type RemoteContact struct {
	ID    int64  `json:"id"`
	TaxID string `json:"tax_id"`
	Name  string `json:"name"`
}

// SubmitResult is the cloud's answer to a document submission.
type SubmitResult struct {
	ID     int64  `json:"id"`
	CDC    string `json:"cdc"`
	Status string `json:"status"`
}

// StatusResult is the cloud's answer to a status verification.
type StatusResult struct {
	Status string `json:"status"`
	CDC    string `json:"cdc"`
	Detail string `json:"detail"`
}

// Dispositions the verification endpoint reports.
const (
	RemoteStatusApproved = "approved"
	RemoteStatusRejected = "rejected"
	RemoteStatusPending  = "pending"
)

// FindItem looks an item up by its local sequence number.
func (c *Client) FindItem(ctx context.Context, sequence int64) (LookupState, *RemoteItem, error) {
	var item RemoteItem
	state, err := c.lookup(ctx, fmt.Sprintf(pathItemBySeq, sequence), &item)
	if err != nil {
		return NotFound, nil, err
	}
	if state == NotFound {
		return NotFound, nil, nil
	}
	return Found, &item, nil
}

// CreateItem creates a catalog item remotely.
func (c *Client) CreateItem(ctx context.Context, payload *model.WireItem) (*RemoteItem, error) {
	var item RemoteItem
	if err := c.do(ctx, http.MethodPost, pathItems, payload, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem idempotently updates a catalog item by its remote id.
func (c *Client) UpdateItem(ctx context.Context, remoteID int64, payload *model.WireItem) (*RemoteItem, error) {
	var item RemoteItem
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf(pathItemByID, remoteID), payload, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindContact looks a contact up by tax id.
func (c *Client) FindContact(ctx context.Context, taxID string) (LookupState, *RemoteContact, error) {
	var contact RemoteContact
	state, err := c.lookup(ctx, fmt.Sprintf(pathContactByTaxID, taxID), &contact)
	if err != nil {
		return NotFound, nil, err
	}
	if state == NotFound {
		return NotFound, nil, nil
	}
	return Found, &contact, nil
}

// CreateContact creates a contact remotely.
func (c *Client) CreateContact(ctx context.Context, payload *model.WireContact) (*RemoteContact, error) {
	var contact RemoteContact
	if err := c.do(ctx, http.MethodPost, pathContacts, payload, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// UpdateContact idempotently updates a contact by its remote id.
func (c *Client) UpdateContact(ctx context.Context, remoteID int64, payload *model.WireContact) (*RemoteContact, error) {
	var contact RemoteContact
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf(pathContactByID, remoteID), payload, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// SubmitDocument posts a fully assembled document.
func (c *Client) SubmitDocument(ctx context.Context, doc *model.WireDocument) (*SubmitResult, error) {
	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, pathDocuments, doc, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyStatus queries the current disposition of a sent document.
func (c *Client) VerifyStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var result StatusResult
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathVerifyStatus, reference), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Regenerate asks the cloud to rebuild and resubmit a failed document.
// Keyed on the stored reference, it reuses the same numbering triplet.
func (c *Client) Regenerate(ctx context.Context, reference string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf(pathRegenerate, reference), nil, nil)
}

// GenerateLot asks the cloud to package accepted documents into a lot
// for transmission to the authority. Called once per sync cycle.
func (c *Client) GenerateLot(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, pathGenerateLot, nil, nil)
}

// lookup GETs a single entity and maps 404 to NotFound instead of an
// error, giving reconcilers the three-way result they switch on.
func (c *Client) lookup(ctx context.Context, path string, out any) (LookupState, error) {
	err := c.do(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		if apiErr, ok := model.AsAPIError(err); ok && apiErr.Kind == model.FailureNotFound {
			return NotFound, nil
		}
		return NotFound, err
	}
	return Found, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &model.APIError{Kind: model.FailureValidation, Detail: "encode request", Cause: err}
		}
		reader = bytes.NewReader(encoded)
	}

	url := c.baseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &model.APIError{Kind: model.FailureConnection, Cause: err}
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &model.APIError{Kind: model.FailureValidation, StatusCode: resp.StatusCode, Detail: "decode response", Cause: err}
		}
		return nil
	}

	return classifyStatus(resp)
}

// classifyTransport maps client-side failures into the taxonomy.
func classifyTransport(err error) *model.APIError {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &model.APIError{Kind: model.FailureTimeout, Cause: err}
	}
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &model.APIError{Kind: model.FailureTimeout, Cause: err}
	}
	return &model.APIError{Kind: model.FailureConnection, Cause: err}
}

// classifyStatus maps a non-2xx response into the taxonomy, keeping
// the server-provided detail for validation failures.
func classifyStatus(resp *http.Response) *model.APIError {
	detail := readDetail(resp.Body)

	apiErr := &model.APIError{StatusCode: resp.StatusCode, Detail: detail}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = model.FailureAuthentication
	case resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = model.FailureAuthorization
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Kind = model.FailureNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = model.FailureRateLimited
		apiErr.RetryAfter = retryAfter(resp)
	case resp.StatusCode == http.StatusRequestTimeout:
		apiErr.Kind = model.FailureTimeout
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		apiErr.Kind = model.FailureValidation
	default:
		apiErr.Kind = model.FailureServiceUnavailable
	}
	return apiErr
}

// readDetail keeps the response body as the failure detail, bounded so
// a misbehaving server cannot bloat log entries.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func retryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
