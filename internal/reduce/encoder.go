package reduce

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Encoder produces fixed-length sentence embeddings, deterministic per model
// version. Any encoder works as long as all vectors in one pipeline run come
// from the same model.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEncoder encodes sentences through the OpenAI embeddings API.
type OpenAIEncoder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEncoder(apiKey string, model openai.EmbeddingModel) *OpenAIEncoder {
	if model == "" {
		model = openai.SmallEmbedding3
	}
	return &OpenAIEncoder{client: openai.NewClient(apiKey), model: model}
}

func NewOpenAIEncoderFromEnv() (*OpenAIEncoder, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not configured")
	}
	return NewOpenAIEncoder(apiKey, openai.EmbeddingModel(os.Getenv("OPENAI_EMBEDDING_MODEL"))), nil
}

func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
