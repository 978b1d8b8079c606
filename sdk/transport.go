package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/mohit-nagaraj/xray-logger/pkg/httpclient"
	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// ingestPath is the server endpoint that accepts event batches.
const ingestPath = "/v1/ingest"

// transport ships one event batch as one outbound call. Single attempt,
// bounded timeout, no retries: any failure is reported to the flusher,
// which drops the batch and counts it. A client-side rate limiter keeps a
// runaway producer from hammering the endpoint.
type transport struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

func newTransport(cfg Config, client *http.Client) (*transport, error) {
	if client == nil {
		hcfg := httpclient.DefaultConfig()
		hcfg.Timeout = cfg.HTTPTimeout
		hcfg.UserAgent = "xray-sdk/1.0"

		var err error
		client, err = httpclient.New(hcfg)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
	}

	return &transport{
		client:  client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		// 10 batches/s with burst headroom; flush batching makes this
		// generous for any sane producer.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}, nil
}

// Send posts the batch to the ingest endpoint. A non-2xx status is a
// failure like any network error; the caller decides what to do (drop).
func (t *transport) Send(ctx context.Context, events []trace.Event) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+ingestPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}

	return nil
}
