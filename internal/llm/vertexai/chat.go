// Package vertexai implements the LLMProvider and EmbeddingProvider
// adapters against Google Cloud Vertex AI: a regional-SDK/global-REST
// split with 429 backoff, exposed behind the enhancer/reranker/verifier
// shared LLMChatClient contract instead of a single
// service-specific client interface.
package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"
)

// ChatClient wraps the Vertex AI Gemini client. Implements every
// LLMChatClient interface in the pipeline (enhancer, reranker and
// verifier all declare the same Chat shape).
type ChatClient struct {
	client     *genai.Client
	httpClient *http.Client
	project    string
	location   string
	model      string
	useREST    bool
}

// NewChatClient creates a ChatClient. location "global" uses the REST
// API directly since the vertexai/genai SDK does not support the
// global endpoint.
func NewChatClient(ctx context.Context, project, location, model string) (*ChatClient, error) {
	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("vertexai.NewChatClient: default credentials: %w", err)
		}
		return &ChatClient{httpClient: httpClient, project: project, location: location, model: model, useREST: true}, nil
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("vertexai.NewChatClient: %w", err)
	}
	return &ChatClient{client: client, project: project, location: location, model: model}, nil
}

// Chat sends a system+user prompt pair to Gemini and returns the text
// response. Retries on 429/RESOURCE_EXHAUSTED with the package backoff
// schedule.
func (c *ChatClient) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return withRetry(ctx, "Chat", func() (string, error) {
		if c.useREST {
			return c.chatREST(ctx, systemPrompt, userPrompt)
		}
		return c.chatSDK(ctx, systemPrompt, userPrompt)
	})
}

func (c *ChatClient) chatSDK(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("vertexai.Chat: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("vertexai.Chat: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type restContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []restPart   `json:"parts"`
}

type restPart struct {
	Text string `json:"text"`
}

type restGenerateRequest struct {
	Contents          []restContent `json:"contents"`
	SystemInstruction *restContent  `json:"systemInstruction,omitempty"`
}

type restGenerateResponse struct {
	Candidates []struct {
		Content restContent `json:"content"`
	} `json:"candidates"`
}

func (c *ChatClient) chatREST(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		c.project, c.model,
	)

	reqBody, err := json.Marshal(restGenerateRequest{
		Contents:          []restContent{{Role: "user", Parts: []restPart{{Text: userPrompt}}}},
		SystemInstruction: &restContent{Parts: []restPart{{Text: systemPrompt}}},
	})
	if err != nil {
		return "", fmt.Errorf("vertexai.chatREST marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("vertexai.chatREST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vertexai.chatREST call: %w", err)
	}
	defer resp.Body.Close()

	if isRetryableStatus(resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vertexai.chatREST: status %d (429/503): %s", resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vertexai.chatREST: status %d: %s", resp.StatusCode, body)
	}

	var out restGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("vertexai.chatREST decode: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("vertexai.chatREST: empty response from model")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
