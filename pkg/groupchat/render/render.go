//go:generate go run go.uber.org/mock/mockgen -source=render.go -destination=../mocks/mock_renderer.go -package=mocks

// Package render turns submitted message text into display markup.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts raw message content into rendered content.
// Implementations must be deterministic.
type Renderer interface {
	Render(raw string) (string, error)
}

// Markdown renders GitHub-flavoured markdown and sanitizes the result, so
// plain text comes back wrapped in a single paragraph: "hi" -> "<p>hi</p>".
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdown creates a markdown renderer
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render implements Renderer
func (m *Markdown) Render(raw string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(raw), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimSpace(string(m.policy.SanitizeBytes(buf.Bytes()))), nil
}
