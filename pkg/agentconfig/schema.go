package agentconfig

// rawSchema checks the shape of a raw agent configuration before decoding.
const rawSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["system_prompt", "llms", "max_intermediate_steps"],
  "properties": {
    "system_prompt": {"type": "string"},
    "llms": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["provider"],
        "properties": {
          "provider": {"type": "string"},
          "args": {"type": "object"}
        }
      }
    },
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "config": {"type": "object"}
        }
      }
    },
    "initial_tools": {"type": "array", "items": {"type": "string"}},
    "max_intermediate_steps": {"type": "integer"},
    "answer_formatters": {"type": "array", "items": {"type": "string"}},
    "default_error_message": {"type": "string"},
    "embedding_model_name": {"type": "string"},
    "vector_results_top_k": {"type": "integer"},
    "index_name": {"type": "string"},
    "tool_choice": {"type": "string"}
  }
}`
