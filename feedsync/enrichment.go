package feedsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
)

// enrichmentClient asks the broker's detail API to push an expanded extract for
// an entry the feed just touched. The call is fire and forget: the detail feed
// arrives later as its own delivery, so a failed request only logs.
type enrichmentClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

// newEnrichmentClient returns nil when no base URL is configured; the engine
// treats a nil client as enrichment disabled.
func newEnrichmentClient() *enrichmentClient {
	baseURL := strings.TrimSpace(os.Getenv("ENRICHMENT_API_BASE_URL"))
	if baseURL == "" {
		return nil
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("ENRICHMENT_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &enrichmentClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(os.Getenv("ENRICHMENT_API_KEY")),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *enrichmentClient) requestDetail(sourceSystem, brokerReference string, extractedAt time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.doRequest(ctx, sourceSystem, brokerReference, extractedAt); err != nil {
			config.LogError(config.GetLogger(), "feedsync", "requestDetail", "enrichment request", map[string]string{
				"source_system":    sourceSystem,
				"broker_reference": brokerReference,
			}, err)
		}
	}()
}

func (c *enrichmentClient) doRequest(ctx context.Context, sourceSystem, brokerReference string, extractedAt time.Time) error {
	params := url.Values{}
	params.Set("source_system", sourceSystem)
	params.Set("broker_reference", brokerReference)
	params.Set("as_of", extractedAt.UTC().Format(time.RFC3339))

	endpoint := c.baseURL + "/v1/entries/detail-extract?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("enrichment api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
