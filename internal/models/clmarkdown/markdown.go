package clmarkdown

import (
	"bytes"
	"html/template"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

type externalLinkTransformer struct{}

var (
	md       goldmark.Markdown
	minifier *minify.M
	initOnce sync.Once
)

// InitMarkdown prépare le convertisseur. Appelé implicitement au premier rendu.
func InitMarkdown() {
	initOnce.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Table,
				extension.Strikethrough,
				extension.TaskList,
				emoji.Emoji,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
				parser.WithASTTransformers(
					util.Prioritized(&externalLinkTransformer{}, 100),
				),
			),
			goldmark.WithRendererOptions(
				ghtml.WithHardWraps(),
				ghtml.WithXHTML(),
				ghtml.WithUnsafe(),
			),
		)

		minifier = minify.New()
		minifier.Add("text/html", &html.Minifier{
			KeepEndTags:      true,
			KeepDocumentTags: true,
			KeepQuotes:       true,
		})
	})
}

// ConvertMarkdownToHTML rend le Markdown en HTML minifié
func ConvertMarkdownToHTML(markdown string) template.HTML {
	InitMarkdown()

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		log.Error().Err(err).Msg("Erreur conversion Markdown")
		return template.HTML("<pre>" + template.HTMLEscapeString(markdown) + "</pre>")
	}

	out, err := minifier.Bytes("text/html", buf.Bytes())
	if err != nil {
		log.Warn().Err(err).Msg("minification HTML ignorée")
		return template.HTML(buf.String())
	}
	return template.HTML(out)
}

func (t *externalLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if link, ok := n.(*ast.Link); ok {
			link.SetAttributeString("target", []byte("_blank"))
			link.SetAttributeString("rel", []byte("noopener noreferrer"))
		}

		return ast.WalkContinue, nil
	})
}
