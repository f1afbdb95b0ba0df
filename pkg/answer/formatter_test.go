package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/oracle/pkg/agenterr"
)

func TestRegistry_Format(t *testing.T) {
	registry := NewRegistry()
	payload := Payload{
		"answer":             "42",
		"thoughts":           "I computed it",
		"reasoning":          "because",
		"intermediate_steps": []interface{}{"a"},
		"scratchpad":         "notes",
		"sources":            []interface{}{"doc-1"},
	}

	t.Run("should keep every field with default", func(t *testing.T) {
		rendered, err := registry.Format(payload, Default)
		require.NoError(t, err)
		assert.Equal(t, Rendered(payload), rendered)
	})

	t.Run("should strip reasoning with thoughtless", func(t *testing.T) {
		rendered, err := registry.Format(payload, Thoughtless)
		require.NoError(t, err)
		assert.Equal(t, Rendered{"answer": "42", "sources": []interface{}{"doc-1"}}, rendered)
	})

	t.Run("should not mutate the payload", func(t *testing.T) {
		_, err := registry.Format(payload, Thoughtless)
		require.NoError(t, err)
		assert.Contains(t, payload, "thoughts")
	})

	t.Run("should use default for empty name", func(t *testing.T) {
		rendered, err := registry.Format(Payload{"answer": "x", "thoughts": "y"}, "")
		require.NoError(t, err)
		assert.Contains(t, rendered, "thoughts")
	})

	t.Run("should name unknown formatter", func(t *testing.T) {
		_, err := registry.Format(payload, "fancy")
		require.Error(t, err)
		assert.Equal(t, "Answer formatter not found: fancy", err.Error())
		assert.True(t, agenterr.HasCode(err, agenterr.CodeUnknownFormatter))
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should add custom formatter", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register("upper", func(p Payload) Rendered {
			return Rendered{"answer": "UP"}
		}))

		assert.True(t, registry.Has("upper"))
		assert.Equal(t, []string{"default", "thoughtless", "upper"}, registry.Names())

		rendered, err := registry.Format(Payload{}, "upper")
		require.NoError(t, err)
		assert.Equal(t, "UP", rendered.Text())
	})

	t.Run("should reject incomplete registration", func(t *testing.T) {
		assert.Error(t, NewRegistry().Register("", nil))
	})
}

func TestRendered_Text(t *testing.T) {
	assert.Equal(t, "hi", Rendered{"answer": "hi"}.Text())
	assert.Equal(t, `{"answer":3}`, Rendered{"answer": 3}.Text())
}
