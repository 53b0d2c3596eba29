package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	prompt, err := Get("matching.json", "score-job")
	require.NoError(t, err)
	assert.Contains(t, prompt, "expert job matcher")

	_, err = Get("nonexistent.json", "score-job")
	assert.ErrorContains(t, err, "failed to read prompt file")

	_, err = Get("matching.json", "nonexistent-key")
	assert.ErrorContains(t, err, "not found")
}

func TestFormat(t *testing.T) {
	out := Format("Hello {{.Name}}, meet {{.Name}} at {{.Place}}", map[string]string{"Name": "Ada", "Place": "home"})
	assert.Equal(t, "Hello Ada, meet Ada at home", out)
}

func TestRender_RequiresAllPlaceholders(t *testing.T) {
	_, err := Render("tailoring.json", "tailor-resume", map[string]string{"Title": "Engineer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{.Resume}}")

	out, err := Render("tailoring.json", "tailor-resume", map[string]string{
		"Title":       "Engineer",
		"Company":     "Acme",
		"Description": "Build things",
		"Resume":      "Jane Doe",
		"Emphasis":    "go",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Jane Doe")
	assert.NotContains(t, out, "{{.")
}
