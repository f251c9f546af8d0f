package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"sanjeevani-backend/internal/resilience"
)

// ImagePrediction is the top class an image model assigned to a photo
type ImagePrediction struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	Model         string    `json:"model_file"`
}

// ImageClassifier identifies the crop in a plant photo and diagnoses its disease
type ImageClassifier interface {
	IdentifyCrop(ctx context.Context, imagePath string) (ImagePrediction, error)
	DiagnoseDisease(ctx context.Context, imagePath, crop string) (ImagePrediction, error)
}

// RemoteImageClassifier sends plant photos to a model-serving endpoint.
// The image is posted as the multipart field "image" to {baseURL}/crop for
// crop identification and to {baseURL}/disease/{crop} for diagnosis.
type RemoteImageClassifier struct {
	baseURL string
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewRemoteImageClassifier creates a classifier backed by the models at baseURL
func NewRemoteImageClassifier(baseURL string, timeout time.Duration) *RemoteImageClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteImageClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: resilience.HTTPClientConfig{
			Client: &http.Client{Timeout: timeout},
			Backoff: resilience.BackoffConfig{
				MaxRetries:      1,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		circuit: resilience.NewCircuitBreaker("disease-model"),
	}
}

// IdentifyCrop asks the crop model which crop the photo shows
func (c *RemoteImageClassifier) IdentifyCrop(ctx context.Context, imagePath string) (ImagePrediction, error) {
	return c.predict(ctx, c.baseURL+"/crop", imagePath)
}

// DiagnoseDisease asks the model trained for crop which disease the photo shows
func (c *RemoteImageClassifier) DiagnoseDisease(ctx context.Context, imagePath, crop string) (ImagePrediction, error) {
	crop = NormalizeCropName(crop)
	if !IsKnownCrop(crop) {
		return ImagePrediction{}, fmt.Errorf("unknown crop %q", crop)
	}
	return c.predict(ctx, c.baseURL+"/disease/"+url.PathEscape(crop), imagePath)
}

func (c *RemoteImageClassifier) predict(ctx context.Context, endpoint, imagePath string) (ImagePrediction, error) {
	body, contentType, err := imageForm(imagePath)
	if err != nil {
		return ImagePrediction{}, err
	}

	resp, err := resilience.DoRequest(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return ImagePrediction{}, fmt.Errorf("image model request failed: %w", err)
	}
	defer resp.Body.Close()

	var p ImagePrediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return ImagePrediction{}, fmt.Errorf("failed to decode image model response: %w", err)
	}
	if p.Label == "" {
		return ImagePrediction{}, fmt.Errorf("image model response has no label")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return ImagePrediction{}, fmt.Errorf("image model confidence %v out of range", p.Confidence)
	}

	return p, nil
}

// imageForm encodes the file at path as a multipart body so it can be replayed on retry
func imageForm(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
