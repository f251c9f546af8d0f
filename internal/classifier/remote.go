package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"sanjeevani-backend/internal/resilience"
)

// RemoteClassifier asks a model-serving endpoint for the spray status.
// The endpoint receives Features as JSON and answers {"status": ...} where
// status is a string or a number.
type RemoteClassifier struct {
	url     string
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewRemoteClassifier creates a classifier backed by the model at url
func NewRemoteClassifier(url string, timeout time.Duration) *RemoteClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &RemoteClassifier{
		url: url,
		httpCfg: resilience.HTTPClientConfig{
			Client: &http.Client{Timeout: timeout},
			Backoff: resilience.BackoffConfig{
				MaxRetries:      1,
				InitialInterval: 200 * time.Millisecond,
				MaxInterval:     time.Second,
			},
		},
		circuit: resilience.NewCircuitBreaker("spray-model"),
	}
}

// Name identifies the classifier in logs and metrics
func (c *RemoteClassifier) Name() string {
	return "remote"
}

type remotePrediction struct {
	Status json.RawMessage `json:"status"`
}

// Classify posts the features to the model endpoint
func (c *RemoteClassifier) Classify(ctx context.Context, f Features) (string, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to encode features: %w", err)
	}

	resp, err := resilience.DoRequest(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("spray model request failed: %w", err)
	}
	defer resp.Body.Close()

	var prediction remotePrediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return "", fmt.Errorf("failed to decode spray model response: %w", err)
	}

	return statusLabel(prediction.Status)
}

// statusLabel normalizes "1", 1 and 1.0 style answers into a label string
func statusLabel(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("spray model response has no status")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, err := n.Float64()
		if err != nil {
			return "", fmt.Errorf("invalid spray model status %s: %w", raw, err)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "1", nil
		}
		return "0", nil
	}

	return "", fmt.Errorf("unsupported spray model status %s", raw)
}
