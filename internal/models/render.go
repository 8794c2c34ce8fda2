package models

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// ErrInvalidURL is returned by NormalizeURL for anything that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid external url")

// LeavePath is the confirmation page every rendered link points at.
const LeavePath = "/leave"

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithRendererOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(externalLinkRenderer{}, 100),
		),
	),
)

// RenderMarkdown converts message text to HTML. Raw HTML in the text stays escaped, and links are
// rewritten to pass through the external link confirmation page.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// NormalizeURL applies the single policy used for external links everywhere: surrounding spaces and one
// trailing slash are trimmed, and only absolute http and https URLs are accepted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// LeaveURL returns the confirmation page URL for an already normalized external URL.
func LeaveURL(normalized string) string {
	return LeavePath + "?url=" + url.QueryEscape(normalized)
}

type externalLinkRenderer struct{}

func (r externalLinkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
}

func (r externalLinkRenderer) renderLink(
	w util.BufWriter,
	_ []byte,
	node ast.Node,
	entering bool,
) (ast.WalkStatus, error) {
	n := node.(*ast.Link)

	// Links we cannot send through the confirmation page keep their text only.
	target, err := NormalizeURL(string(n.Destination))
	if err != nil {
		return ast.WalkContinue, nil
	}

	if entering {
		writeLinkOpen(w, target, string(n.Title))
	} else {
		_, _ = w.WriteString("</a>")
	}
	return ast.WalkContinue, nil
}

func (r externalLinkRenderer) renderAutoLink(
	w util.BufWriter,
	source []byte,
	node ast.Node,
	entering bool,
) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.AutoLink)
	label := n.Label(source)

	raw := string(n.URL(source))
	if n.AutoLinkType == ast.AutoLinkURL && !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	target, err := NormalizeURL(raw)
	if err != nil {
		_, _ = w.Write(util.EscapeHTML(label))
		return ast.WalkContinue, nil
	}

	writeLinkOpen(w, target, "")
	_, _ = w.Write(util.EscapeHTML(label))
	_, _ = w.WriteString("</a>")
	return ast.WalkContinue, nil
}

func writeLinkOpen(w util.BufWriter, target, title string) {
	_, _ = w.WriteString(`<a class="external-link" href="`)
	_, _ = w.Write(util.EscapeHTML([]byte(LeaveURL(target))))
	_, _ = w.WriteString(`" data-url="`)
	_, _ = w.Write(util.EscapeHTML([]byte(target)))
	_, _ = w.WriteString(`"`)
	if title != "" {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML([]byte(title)))
		_, _ = w.WriteString(`"`)
	}
	_, _ = w.WriteString(`>`)
}
