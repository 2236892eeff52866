package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teiServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if texts, ok := req.Inputs.([]interface{}); ok {
			count = len(texts)
		}
		vectors := make([][]float32, count)
		for i := range vectors {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			vectors[i] = vec
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestServiceEmbedDocuments(t *testing.T) {
	srv := teiServer(t, 4)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
	assert.Equal(t, float32(2), vectors[1][0])
}

func TestServiceEmbedQuery(t *testing.T) {
	srv := teiServer(t, 4)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestServiceRejectsEmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:1", Model: "m"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewServiceRequiresBaseURL(t *testing.T) {
	_, err := NewService(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "mystery"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTEIProviderDimension(t *testing.T) {
	srv := teiServer(t, 4)
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: srv.URL, Model: "BAAI/bge-base-en-v1.5"})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 768, p.Dimension())
}

func TestDetectDimensionFromModel(t *testing.T) {
	assert.Equal(t, 384, detectDimensionFromModel("BAAI/bge-small-en-v1.5"))
	assert.Equal(t, 768, detectDimensionFromModel("some-base-model"))
	assert.Equal(t, 1024, detectDimensionFromModel("some-large-model"))
	assert.Equal(t, 384, detectDimensionFromModel("unheard-of"))
}
