package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	var nilResp *MessageResponse
	assert.Empty(t, nilResp.Text())

	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())
}

func TestExtractJSONArray(t *testing.T) {
	got, err := ExtractJSONArray("Sure! Here you go:\n```json\n[\"a\", \"b\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, `["a", "b"]`, got)

	_, err = ExtractJSONArray("no list here")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ExtractJSONArray("] backwards [")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestExtractJSONObject(t *testing.T) {
	got, err := ExtractJSONObject(`verdict: {"accept": true, "tag": "micro", "reason": "fits"} done`)
	require.NoError(t, err)
	assert.Equal(t, `{"accept": true, "tag": "micro", "reason": "fits"}`, got)

	_, err = ExtractJSONObject("")
	assert.ErrorIs(t, err, ErrNoJSON)
}
