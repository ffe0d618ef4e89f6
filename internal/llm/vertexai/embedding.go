package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"
)

// EmbeddingClient calls the Vertex AI text embedding REST API and
// implements retriever.EmbeddingProvider. It collapses the API's
// RETRIEVAL_DOCUMENT/RETRIEVAL_QUERY split into the single
// Embed/EmbedBatch contract the retriever expects, always using the
// query task type since the engine only ever embeds the incoming
// search query.
type EmbeddingClient struct {
	project    string
	location   string
	model      string
	dimensions int
	maxBatch   int
	client     *http.Client
}

// NewEmbeddingClient creates an EmbeddingClient using application
// default credentials.
func NewEmbeddingClient(ctx context.Context, project, location, model string, dimensions int) (*EmbeddingClient, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("vertexai.NewEmbeddingClient: %w", err)
	}
	return &EmbeddingClient{
		project:    project,
		location:   location,
		model:      model,
		dimensions: dimensions,
		maxBatch:   250, // Vertex AI's text-embedding-004 batch ceiling
		client:     client,
	}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Embed returns the embedding for a single query string.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("vertexai.Embed: no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one request, retrying on rate limiting
// with the package backoff schedule. It does not split the input by
// MaxBatchSize.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return withRetry(ctx, "EmbedBatch", func() ([][]float32, error) {
		return c.doEmbed(ctx, texts)
	})
}

func (c *EmbeddingClient) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: "RETRIEVAL_QUERY"}
	}

	reqBody, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("vertexai.EmbedBatch marshal: %w", err)
	}

	url := c.endpointURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("vertexai.EmbedBatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vertexai.EmbedBatch call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vertexai.EmbedBatch: status %d: %s", resp.StatusCode, body)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vertexai.EmbedBatch decode: %w", err)
	}

	results := make([][]float32, len(out.Predictions))
	for i, p := range out.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

func (c *EmbeddingClient) endpointURL() string {
	if c.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			c.project, c.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.location, c.project, c.location, c.model,
	)
}

// Dimensions returns the configured embedding vector length.
func (c *EmbeddingClient) Dimensions() int { return c.dimensions }

// MaxBatchSize returns the configured per-request batch ceiling.
// EmbedBatch neither enforces it nor rejects larger batches.
func (c *EmbeddingClient) MaxBatchSize() int { return c.maxBatch }

// IsAvailable pings the embedding endpoint with a minimal request to
// confirm credentials and connectivity are live.
func (c *EmbeddingClient) IsAvailable(ctx context.Context) bool {
	_, err := c.Embed(ctx, "healthcheck")
	return err == nil
}
