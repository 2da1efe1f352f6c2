package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

func TestOllamaComplete(t *testing.T) {
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "Paris is the capital.", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model")
	answer, err := client.Complete(context.Background(), "You are helpful.", "What is the capital of France?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if answer != "Paris is the capital." {
		t.Errorf("answer = %q", answer)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if gotReq.System != "You are helpful." {
		t.Errorf("system prompt not forwarded: %q", gotReq.System)
	}
	if gotReq.Stream {
		t.Error("Complete must request non-streaming mode")
	}
}

func TestOllamaCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, frag := range []string{"The ", "answer ", "is 42."} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", frag)
			flusher.Flush()
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model")
	tokens, err := client.CompleteStream(context.Background(), "", "question")
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	var sb strings.Builder
	sawDone := false
	for tok := range tokens {
		if tok.Error != nil {
			t.Fatalf("stream error: %v", tok.Error)
		}
		sb.WriteString(tok.Content)
		if tok.Done {
			sawDone = true
		}
	}
	if sb.String() != "The answer is 42." {
		t.Errorf("streamed answer = %q", sb.String())
	}
	if !sawDone {
		t.Error("stream never delivered a done token")
	}
}

func TestOllamaCompleteStreamSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"ok ","done":false}`)
		fmt.Fprintln(w, `not json at all`)
		fmt.Fprintln(w, `{"response":"still ok","done":true}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model")
	tokens, err := client.CompleteStream(context.Background(), "", "q")
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	var sb strings.Builder
	for tok := range tokens {
		sb.WriteString(tok.Content)
	}
	if sb.String() != "ok still ok" {
		t.Errorf("streamed answer = %q", sb.String())
	}
}

func TestOllamaServerErrorIsGenerationUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model")

	if _, err := client.Complete(context.Background(), "", "q"); !errors.Is(err, entities.ErrGenerationUnavailable) {
		t.Errorf("Complete error = %v, want ErrGenerationUnavailable", err)
	}
	if _, err := client.CompleteStream(context.Background(), "", "q"); !errors.Is(err, entities.ErrGenerationUnavailable) {
		t.Errorf("CompleteStream error = %v, want ErrGenerationUnavailable", err)
	}
}

func TestOllamaCompleteStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"response":"first","done":false}`)
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewOllamaClient(server.URL, "test-model")
	tokens, err := client.CompleteStream(ctx, "", "q")
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	<-tokens // first fragment
	cancel()

	// The channel must close promptly once the context is cancelled.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-tokens:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel not closed after cancellation")
		}
	}
}

func TestNewOllamaClientDefaults(t *testing.T) {
	client := NewOllamaClient("", "")
	if client.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
	if client.model != "llama3.2" {
		t.Errorf("model = %q", client.model)
	}
}
