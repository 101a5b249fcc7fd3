package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mudler/faqrecall/rag/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultHuggingFaceURL is the feature-extraction endpoint of all-MiniLM-L6-v2.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2"

// maxErrorBody bounds how much of an error response is kept in the error message.
const maxErrorBody = 512

// HuggingFaceEmbedder calls a feature-extraction inference endpoint (backend B).
type HuggingFaceEmbedder struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHuggingFaceEmbedder creates a backend B embedder. An empty url selects DefaultHuggingFaceURL.
func NewHuggingFaceEmbedder(token, url string) (*HuggingFaceEmbedder, error) {
	if token == "" {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace, "HUGGING_FACE_API is not set", types.ErrMissingCredentials)
	}
	if url == "" {
		url = DefaultHuggingFaceURL
	}

	return &HuggingFaceEmbedder{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type featureExtractionRequest struct {
	Inputs string `json:"inputs"`
}

type featureExtractionError struct {
	Error string `json:"error"`
}

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(featureExtractionRequest{Inputs: text})
	if err != nil {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace, "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace,
			fmt.Sprintf("feature extraction returned status %d: %s", resp.StatusCode, errorDetail(body)), nil)
	}

	vector, err := parseFeatureExtraction(body)
	if err != nil {
		return nil, types.EmbeddingRequestError(types.ProviderHuggingFace, "malformed response", err)
	}

	return vector, nil
}

// parseFeatureExtraction accepts a sentence vector, a batch holding one sentence vector,
// or a token-level matrix which is mean-pooled into a sentence vector.
func parseFeatureExtraction(body []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil {
		if len(flat) == 0 {
			return nil, fmt.Errorf("empty vector")
		}
		return flat, nil
	}

	var matrix [][]float32
	if err := json.Unmarshal(body, &matrix); err == nil {
		return meanPool(matrix)
	}

	var batch [][][]float32
	if err := json.Unmarshal(body, &batch); err == nil && len(batch) == 1 {
		return meanPool(batch[0])
	}

	return nil, fmt.Errorf("unexpected payload: %s", errorDetail(body))
}

func meanPool(rows [][]float32) ([]float32, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	if len(rows) == 1 {
		return rows[0], nil
	}

	dims := len(rows[0])
	pooled := make([]float32, dims)
	for _, row := range rows {
		if len(row) != dims {
			return nil, fmt.Errorf("inconsistent token vector sizes %d and %d", dims, len(row))
		}
		for i, v := range row {
			pooled[i] += v
		}
	}
	n := float32(len(rows))
	for i := range pooled {
		pooled[i] /= n
	}
	return pooled, nil
}

func errorDetail(body []byte) string {
	var e featureExtractionError
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
