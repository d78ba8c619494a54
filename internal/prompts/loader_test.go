package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_KnownPrompt(t *testing.T) {
	prompt, err := Get("qa.json", "score-article")
	require.NoError(t, err)
	assert.Contains(t, prompt, "accuracy")
	assert.Contains(t, prompt, "{{.Body}}")
}

func TestGet_UnknownKey(t *testing.T) {
	_, err := Get("qa.json", "does-not-exist")
	assert.Error(t, err)
}

func TestGet_UnknownFile(t *testing.T) {
	_, err := Get("nope.json", "anything")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	out := Format("Hello {{.Name}}, target {{.Target}}", map[string]string{
		"Name":   "world",
		"Target": "3",
	})
	assert.Equal(t, "Hello world, target 3", out)
}

func TestAllStageFilesLoad(t *testing.T) {
	for _, f := range []string{"research.json", "planning.json", "writing.json", "qa.json", "publishing.json"} {
		_, err := Get(f, "system")
		require.NoError(t, err, "every stage prompt file needs a system prompt")
	}
}

func TestMustGet_Panics(t *testing.T) {
	assert.Panics(t, func() { MustGet("qa.json", "missing-key") })
}

func TestWritingPromptHasRewriteHook(t *testing.T) {
	prompt := MustGet("writing.json", "write-article")
	assert.True(t, strings.Contains(prompt, "{{.RewriteSection}}"))
}
