package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_SubstitutesPlaceholders(t *testing.T) {
	tmpl := json.RawMessage(`{"image":"{{image_url}}","prompt":"{{prompt}}"}`)
	out, err := renderTemplate(tmpl, "http://host/a.jpg", "warm tones")
	require.NoError(t, err)
	assert.JSONEq(t, `{"image":"http://host/a.jpg","prompt":"warm tones"}`, string(out))
}

func TestRenderTemplate_EscapesValues(t *testing.T) {
	tmpl := json.RawMessage(`{"prompt":"{{prompt}}"}`)
	out, err := renderTemplate(tmpl, "", `say "hi"`+"\n")
	require.NoError(t, err)
	assert.True(t, json.Valid(out))

	var decoded struct {
		Prompt string `json:"prompt"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, `say "hi"`+"\n", decoded.Prompt)
}

func TestRenderTemplate_EmptyTemplate(t *testing.T) {
	out, err := renderTemplate(nil, "x", "y")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRenderTemplate_InvalidResultRejected(t *testing.T) {
	tmpl := json.RawMessage(`{"broken": {{image_url}}`)
	_, err := renderTemplate(tmpl, "x", "y")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}
