package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock_JSONFence(t *testing.T) {
	input := "```json\n{\"key\": \"value\"}\n```"
	assert.Equal(t, `{"key": "value"}`, CleanJSONBlock(input))
}

func TestCleanJSONBlock_GenericFence(t *testing.T) {
	input := "```\n{\"key\": \"value\"}\n```"
	assert.Equal(t, `{"key": "value"}`, CleanJSONBlock(input))
}

func TestCleanJSONBlock_LanguageIdentifier(t *testing.T) {
	input := "```javascript\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, CleanJSONBlock(input))
}

func TestCleanJSONBlock_BareJSON(t *testing.T) {
	input := `{"key": "value"}`
	assert.Equal(t, input, CleanJSONBlock(input))
}

func TestExtractJSONObject_SurroundingProse(t *testing.T) {
	input := "Here is the result:\n{\"a\": 1}\nHope that helps!"
	assert.Equal(t, `{"a": 1}`, ExtractJSONObject(input))
}

func TestExtractJSONObject_FencedWithProse(t *testing.T) {
	input := "```json\n{\"a\": {\"b\": 2}}\n```"
	assert.Equal(t, `{"a": {"b": 2}}`, ExtractJSONObject(input))
}
