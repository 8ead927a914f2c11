// Package clients provides typed HTTP clients for the record custody
// API and the KMS admin API.
package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medledger/record-custody-backend/httpserver"
	"github.com/medledger/record-custody-backend/interfaces"
)

// RecordsClient is a typed client for the record custody API. All calls
// act as the identity the client was constructed with.
type RecordsClient struct {
	baseURL    string
	identity   interfaces.Identity
	httpClient *http.Client
}

// NewRecordsClient creates a client acting as the given identity.
func NewRecordsClient(baseURL string, identity interfaces.Identity, timeout ...time.Duration) *RecordsClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RecordsClient{
		baseURL:  baseURL,
		identity: identity,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// CreatedRecord is the result of a successful record creation.
type CreatedRecord struct {
	RecordID  interfaces.RecordID
	ContentID string
	TxHash    string
}

// FetchedRecord is a decrypted record returned by Get.
type FetchedRecord struct {
	RecordID   interfaces.RecordID
	RecordType string
	ContentID  string
	Owner      string
	CreatedAt  time.Time
	Data       []byte
}

// Create seals and anchors a new record owned by the client identity.
func (c *RecordsClient) Create(ctx context.Context, data []byte, recordType string) (CreatedRecord, error) {
	var resp struct {
		RecordID  string `json:"recordId"`
		ContentID string `json:"contentId"`
		TxHash    string `json:"txHash"`
	}
	err := c.do(ctx, http.MethodPost, "/api/records", map[string]string{
		"recordData": base64.StdEncoding.EncodeToString(data),
		"recordType": recordType,
		"encoding":   "base64",
	}, &resp)
	if err != nil {
		return CreatedRecord{}, err
	}

	return CreatedRecord{
		RecordID:  interfaces.RecordID(resp.RecordID),
		ContentID: resp.ContentID,
		TxHash:    resp.TxHash,
	}, nil
}

// Get fetches and decodes a record the client identity may read.
func (c *RecordsClient) Get(ctx context.Context, recordID interfaces.RecordID) (FetchedRecord, error) {
	var resp struct {
		Record struct {
			RecordID   string    `json:"recordId"`
			RecordType string    `json:"recordType"`
			ContentID  string    `json:"contentId"`
			Owner      string    `json:"owner"`
			CreatedAt  time.Time `json:"timestamp"`
			Data       string    `json:"data"`
		} `json:"record"`
	}
	err := c.do(ctx, http.MethodGet, "/api/records/"+recordID.String(), nil, &resp)
	if err != nil {
		return FetchedRecord{}, err
	}

	data, err := base64.StdEncoding.DecodeString(resp.Record.Data)
	if err != nil {
		return FetchedRecord{}, fmt.Errorf("decoding record data: %w", err)
	}

	return FetchedRecord{
		RecordID:   interfaces.RecordID(resp.Record.RecordID),
		RecordType: resp.Record.RecordType,
		ContentID:  resp.Record.ContentID,
		Owner:      resp.Record.Owner,
		CreatedAt:  resp.Record.CreatedAt,
		Data:       data,
	}, nil
}

// List returns metadata summaries for the client identity's active
// records.
func (c *RecordsClient) List(ctx context.Context) ([]interfaces.RecordSummary, error) {
	var resp struct {
		Records []interfaces.RecordSummary `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/patient/records", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// RequestAccess files an access request for a record.
func (c *RecordsClient) RequestAccess(ctx context.Context, recordID interfaces.RecordID, purpose string) (interfaces.RequestID, error) {
	var resp struct {
		RequestID string `json:"requestId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/access/request", map[string]string{
		"recordId": recordID.String(),
		"purpose":  purpose,
	}, &resp)
	if err != nil {
		return "", err
	}
	return interfaces.RequestID(resp.RequestID), nil
}

// GrantAccess grants grantee read access until expiry. The client
// identity must own the record.
func (c *RecordsClient) GrantAccess(ctx context.Context, recordID interfaces.RecordID, grantee interfaces.Identity, expiry time.Time) error {
	return c.do(ctx, http.MethodPost, "/api/access/grant", map[string]any{
		"recordId":       recordID.String(),
		"granteeAddress": grantee.String(),
		"expiry":         expiry,
	}, nil)
}

// Revoke marks a record inactive. The client identity must own it.
func (c *RecordsClient) Revoke(ctx context.Context, recordID interfaces.RecordID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/records/%s/revoke", recordID), nil, nil)
}

func (c *RecordsClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(httpserver.IdentityHeader, c.identity.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s failed with status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
