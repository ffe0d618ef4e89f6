package vertexai

import (
	"context"
	"net/http"
	"testing"
)

func TestChatClient_ChatREST_ParsesCandidateText(t *testing.T) {
	var captured *http.Request
	client := &ChatClient{
		project: "proj", location: "global", model: "gemini-2.0-flash", useREST: true,
		httpClient: newFakeHTTPClient(func(req *http.Request) (*http.Response, error) {
			captured = req
			return jsonResponse(http.StatusOK, restGenerateResponse{
				Candidates: []struct {
					Content restContent `json:"content"`
				}{
					{Content: restContent{Parts: []restPart{{Text: "hello"}, {Text: " there"}}}},
				},
			}), nil
		}),
	}

	out, err := client.Chat(context.Background(), "you are terse", "say hi")
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if out != "hello there" {
		t.Errorf("Chat() = %q, want %q", out, "hello there")
	}
	if captured.URL.String() != "https://aiplatform.googleapis.com/v1/projects/proj/locations/global/publishers/google/models/gemini-2.0-flash:generateContent" {
		t.Errorf("unexpected endpoint URL: %s", captured.URL.String())
	}
}

func TestChatClient_ChatREST_EmptyCandidatesErrors(t *testing.T) {
	client := &ChatClient{
		project: "proj", location: "global", model: "gemini-2.0-flash", useREST: true,
		httpClient: newFakeHTTPClient(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, restGenerateResponse{}), nil
		}),
	}
	_, err := client.Chat(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error for a response with no candidates")
	}
}

func TestChatClient_ChatREST_NonOKStatusErrors(t *testing.T) {
	client := &ChatClient{
		project: "proj", location: "global", model: "m", useREST: true,
		httpClient: newFakeHTTPClient(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": "bad request"}), nil
		}),
	}
	_, err := client.Chat(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error for a non-200 response")
	}
}
