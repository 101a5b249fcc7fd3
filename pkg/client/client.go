package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mudler/faqrecall/rag/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client is a client for the faqrecall API
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// GenerateResponse is the /generate payload.
type GenerateResponse struct {
	Answer     string                 `json:"answer"`
	References []string               `json:"references"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Evaluation *types.EvaluationScore `json:"evaluation,omitempty"`
}

// Health is the / payload.
type Health struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Endpoints map[string]string `json:"endpoints"`
}

// EvaluateRequest is the /evaluate payload.
type EvaluateRequest struct {
	Question        string   `json:"question"`
	Response        string   `json:"response"`
	Context         []string `json:"context"`
	ReferenceAnswer string   `json:"reference_answer,omitempty"`
}

// IngestStats is returned by the ingestion endpoints.
type IngestStats struct {
	Pages   int `json:"pages"`
	Skipped int `json:"skipped"`
	Records int `json:"records"`
	Failed  int `json:"failed"`
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate asks a question. A no-context answer is returned with Success false and no error.
func (c *Client) Generate(ctx context.Context, question string) (*GenerateResponse, error) {
	var out GenerateResponse
	err := c.do(ctx, http.MethodPost, "/generate", map[string]string{"question": question}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Retrieve returns the records most similar to query. Empty provider and zero limit use the server defaults.
func (c *Client) Retrieve(ctx context.Context, query string, provider types.Provider, limit int) ([]types.Result, error) {
	type request struct {
		Query    string `json:"query"`
		Provider string `json:"provider,omitempty"`
		Limit    int    `json:"limit,omitempty"`
	}

	var results []types.Result
	err := c.do(ctx, http.MethodPost, "/retrieve", request{Query: query, Provider: string(provider), Limit: limit}, &results)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Evaluate scores an answer.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*types.EvaluationScore, error) {
	var out types.EvaluationScore
	if err := c.do(ctx, http.MethodPost, "/evaluate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest asks the server to fetch and ingest a source.
func (c *Client) Ingest(ctx context.Context, source string) (*IngestStats, error) {
	var out IngestStats
	if err := c.do(ctx, http.MethodPost, "/ingest", map[string]string{"source": source}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Store uploads a document for ingestion
func (c *Client) Store(ctx context.Context, filePath string) (*IngestStats, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(file.Name()))
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ingest/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out IngestStats
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = string(data)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
