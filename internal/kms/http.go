package kms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the external key service over HTTP/JSON. Request bodies
// carry key material base64 encoded by encoding/json.
type Client struct {
	base string
	hc   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

type wrapRequest struct {
	Plaintext []byte `json:"plaintext"`
}

type wrapResponse struct {
	Wrapped []byte `json:"wrapped"`
	KeyID   string `json:"key_id"`
}

type unwrapRequest struct {
	Wrapped []byte `json:"wrapped"`
}

type unwrapResponse struct {
	Plaintext []byte `json:"plaintext"`
}

func (c *Client) Wrap(ctx context.Context, keyID string, dek []byte) ([]byte, string, error) {
	var resp wrapResponse
	url := fmt.Sprintf("%s/v1/keys/%s:wrap", c.base, keyID)
	if err := c.post(ctx, url, wrapRequest{Plaintext: dek}, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Wrapped) == 0 || resp.KeyID == "" {
		return nil, "", fmt.Errorf("key service returned incomplete wrap response")
	}
	return resp.Wrapped, resp.KeyID, nil
}

func (c *Client) Unwrap(ctx context.Context, keyID string, wrapped []byte) ([]byte, error) {
	var resp unwrapResponse
	url := fmt.Sprintf("%s/v1/keys/%s:unwrap", c.base, keyID)
	if err := c.post(ctx, url, unwrapRequest{Wrapped: wrapped}, &resp); err != nil {
		return nil, err
	}
	return resp.Plaintext, nil
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("key service rejected request: status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
