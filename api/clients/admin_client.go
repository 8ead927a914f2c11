package clients

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// AdminClient submits master seed shares to the KMS admin API. Requests
// are signed with the administrator's ECDSA key over path plus body.
type AdminClient struct {
	baseURL    string
	adminID    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewAdminClient creates an admin client for the given admin identity.
func NewAdminClient(baseURL, adminID string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *AdminClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AdminClient{
		baseURL:    baseURL,
		adminID:    adminID,
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// GetStatus queries whether the KMS has been unlocked.
func (c *AdminClient) GetStatus() (string, error) {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/status", c.baseURL))
	if err != nil {
		return "", fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status request failed with code %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse status response: %w", err)
	}
	return result.State, nil
}

// SubmitShare submits one master seed share. Returns the server's
// acknowledgement message.
func (c *AdminClient) SubmitShare(share []byte) (string, error) {
	body, err := json.Marshal(map[string]string{
		"share": base64.StdEncoding.EncodeToString(share),
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/share", c.baseURL)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.signRequest(req, endpoint, body); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("share submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("share submission failed with code %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse share response: %w", err)
	}
	return result.Message, nil
}

// signRequest attaches the admin identity and signature headers. The
// signature covers the request path concatenated with the body, matching
// the server's verification.
func (c *AdminClient) signRequest(req *http.Request, endpoint string, body []byte) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return err
	}

	message := parsed.Path
	if len(body) > 0 {
		message += string(body)
	}
	hash := sha256.Sum256([]byte(message))

	sig, err := ecdsa.SignASN1(rand.Reader, c.privateKey, hash[:])
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set("X-Admin-ID", c.adminID)
	req.Header.Set("X-Admin-Signature", base64.StdEncoding.EncodeToString(sig))
	return nil
}
