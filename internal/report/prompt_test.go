package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"sitescore/internal/external"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]byte(`{"latitude":1}`))

	assert.Contains(t, prompt, "Sustainability Assessment Report")
	assert.True(t, strings.HasSuffix(prompt, external.PromptDataMarker+"\n\n"+`{"latitude":1}`))
	assert.Equal(t, 1, strings.Count(prompt, external.PromptDataMarker))
}
