package clmarkdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertMarkdownToHTML(t *testing.T) {
	out := string(ConvertMarkdownToHTML("# Titre\n\nUn [lien](https://example.com) :smile:"))

	assert.Contains(t, out, `<h1 id="titre">Titre</h1>`)
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, `rel="noopener noreferrer"`)
	assert.NotContains(t, out, ":smile:")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestConvertMarkdownTable(t *testing.T) {
	out := string(ConvertMarkdownToHTML("| a | b |\n|---|---|\n| 1 | 2 |"))
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>1</td>")
}
