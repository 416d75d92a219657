package keyservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"microcredit-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

const (
	publicKeyPath   = "/bank/pubkey"
	maxResponseBody = 64 << 10
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PublicKeySource against the external key service.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a key service client. A nil httpClient gets a plain
// http.Client with the given timeout.
func NewClient(baseURL string, httpClient HTTPClient, timeout time.Duration, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// FetchPublicKey calls GET {baseURL}/bank/pubkey.
func (c *Client) FetchPublicKey(ctx context.Context) (*ports.PublicKeyDocument, error) {
	url := c.baseURL + publicKeyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building key service request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling key service: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("key service responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("key service returned status %d", resp.StatusCode)
	}

	// Gateway instances serve the document inside the {data: ...} envelope;
	// the standalone key service serves it bare.
	var body struct {
		ports.PublicKeyDocument
		Data *ports.PublicKeyDocument `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding key service response: %w", err)
	}
	if body.Data != nil {
		return body.Data, nil
	}
	return &body.PublicKeyDocument, nil
}
