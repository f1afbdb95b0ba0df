package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"courses":        "Courses",
		"attacker-index": "Attacker_index",
		"2024 notes":     "Index_2024_notes",
		"":               "",
	}
	for in, want := range tests {
		t.Run("should map "+in, func(t *testing.T) {
			assert.Equal(t, want, ClassName(in))
		})
	}
}

func TestWeaviateConfig(t *testing.T) {
	t.Run("should split scheme and host", func(t *testing.T) {
		cfg, err := weaviateConfig("https://weaviate.internal:8443")
		require.NoError(t, err)
		assert.Equal(t, "https", cfg.Scheme)
		assert.Equal(t, "weaviate.internal:8443", cfg.Host)
	})

	t.Run("should default to http", func(t *testing.T) {
		cfg, err := weaviateConfig("localhost:8080")
		require.NoError(t, err)
		assert.Equal(t, "http", cfg.Scheme)
		assert.Equal(t, "localhost:8080", cfg.Host)
	})

	t.Run("should reject empty url", func(t *testing.T) {
		_, err := weaviateConfig("")
		assert.Error(t, err)
	})
}

func TestParseWeaviateDocuments(t *testing.T) {
	t.Run("should parse objects and scores", func(t *testing.T) {
		result := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]interface{}{
					"Courses": []interface{}{
						map[string]interface{}{
							"docId":       "d1",
							"content":     "Go basics",
							"source":      "go.md",
							"chatId":      sharedChatID,
							"_additional": map[string]interface{}{"distance": 0.25},
						},
						"malformed",
					},
				},
			},
		}

		docs := parseWeaviateDocuments(result, "Courses")
		require.Len(t, docs, 1)
		assert.Equal(t, "d1", docs[0].ID)
		assert.Equal(t, "", docs[0].ChatID)
		assert.InDelta(t, 0.75, docs[0].Score, 1e-9)
	})

	t.Run("should tolerate missing data", func(t *testing.T) {
		assert.Empty(t, parseWeaviateDocuments(nil, "Courses"))
		assert.Empty(t, parseWeaviateDocuments(&models.GraphQLResponse{}, "Courses"))
	})

	t.Run("should store shared documents under the sentinel", func(t *testing.T) {
		assert.Equal(t, sharedChatID, storedChatID(""))
		assert.Equal(t, "chat-1", storedChatID("chat-1"))
	})
}
