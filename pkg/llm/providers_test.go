package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	anthropicReply = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022",
"content":[{"type":"text","text":"Go 101 starts on Monday."}],"stop_reason":"end_turn","stop_sequence":null,
"usage":{"input_tokens":12,"output_tokens":7}}`

	openAIReply = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
"choices":[{"index":0,"message":{"role":"assistant","content":"Go 101 starts on Monday."},"finish_reason":"stop"}],
"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`
)

// newCapturingServer answers every request with reply and hands the decoded
// request body to the returned channel.
func newCapturingServer(t *testing.T, reply string) (*httptest.Server, <-chan map[string]interface{}) {
	t.Helper()
	bodies := make(chan map[string]interface{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var body map[string]interface{}
		if err := json.Unmarshal(data, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bodies <- body

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server, bodies
}

func TestProviderTemperature(t *testing.T) {
	providers := []struct {
		id    string
		reply string
	}{
		{"anthropic", anthropicReply},
		{"openai", openAIReply},
	}

	for _, p := range providers {
		t.Run(p.id, func(t *testing.T) {
			invoke := func(t *testing.T, args Args) map[string]interface{} {
				server, bodies := newCapturingServer(t, p.reply)
				args["api_key"] = "test-key"
				args["base_url"] = server.URL + "/"

				provider, err := DefaultRegistry().New(p.id, args)
				require.NoError(t, err)

				resp, err := provider.Invoke(context.Background(), Request{
					SystemPrompt: "You answer questions about the course catalog.",
					Messages:     []Message{{Role: RoleHuman, Content: "When does Go 101 start?"}},
				})
				require.NoError(t, err)
				assert.Equal(t, "Go 101 starts on Monday.", resp.Content)

				return <-bodies
			}

			t.Run("should send an explicit zero temperature", func(t *testing.T) {
				body := invoke(t, Args{"temperature": 0.0})

				temperature, ok := body["temperature"]
				require.True(t, ok, "temperature missing from request body")
				assert.Equal(t, 0.0, temperature)
			})

			t.Run("should send a configured temperature", func(t *testing.T) {
				body := invoke(t, Args{"temperature": 0.7})
				assert.Equal(t, 0.7, body["temperature"])
			})

			t.Run("should omit temperature when not configured", func(t *testing.T) {
				body := invoke(t, Args{})

				_, ok := body["temperature"]
				assert.False(t, ok)
			})
		})
	}
}
