// Package llm wraps the Gemini API for the agent loop and the embedder.
//
// The Client interface is the narrow surface the rest of the system consumes;
// tests substitute scripted implementations, production wires GeminiClient.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Client is the language-model surface consumed by the agent engine and the
// knowledge-base embedder.
type Client interface {
	// GenerateContent performs one model round trip with the given transcript
	// and configuration (system instruction, tool declarations).
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	// Embed returns the embedding vector for the given text, or nil with an
	// error when the model produces no usable vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
}

// Option configures a GeminiClient.
type Option func(*GeminiClient)

// WithChatModel overrides the generative model identifier.
func WithChatModel(model string) Option {
	return func(g *GeminiClient) { g.chatModel = model }
}

// WithEmbeddingModel overrides the embedding model identifier.
func WithEmbeddingModel(model string) Option {
	return func(g *GeminiClient) { g.embeddingModel = model }
}

// NewGemini creates a Gemini-backed client using API-key authentication.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g := &GeminiClient{
		client:         client,
		chatModel:      "gemini-2.0-flash",
		embeddingModel: "text-embedding-004",
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// GenerateContent implements Client.
func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	return resp, nil
}

// Embed implements Client.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel,
		genai.Text(text), &genai.EmbedContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}
