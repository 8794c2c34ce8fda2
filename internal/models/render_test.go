package models_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/agentscan/andy-web/internal/models"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "https://olas.network/", want: "https://olas.network"},
		{raw: "  https://olas.network/agents/  ", want: "https://olas.network/agents"},
		{raw: "http://example.com/a?b=c", want: "http://example.com/a?b=c"},
		{raw: "javascript:alert(1)", wantErr: true},
		{raw: "/relative/path", wantErr: true},
		{raw: "mailto:andy@example.com", wantErr: true},
		{raw: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := models.NormalizeURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidURL) {
					t.Errorf("NormalizeURL() error = %v, want ErrInvalidURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		contains []string
		excludes []string
	}{
		{
			name:     "inline link goes through leave page",
			text:     "See [the docs](https://olas.network/docs/).",
			contains: []string{`href="/leave?url=https%3A%2F%2Folas.network%2Fdocs"`, `data-url="https://olas.network/docs"`, ">the docs</a>"},
		},
		{
			name:     "bare url is linkified",
			text:     "Visit https://olas.network today",
			contains: []string{`class="external-link"`, ">https://olas.network</a>"},
		},
		{
			name:     "unsafe link keeps text only",
			text:     "[click](javascript:alert(1))",
			contains: []string{"click"},
			excludes: []string{"<a", "javascript"},
		},
		{
			name:     "raw html is not passed through",
			text:     "<script>alert(1)</script>",
			excludes: []string{"<script>"},
		},
		{
			name:     "emphasis and code",
			text:     "**bold** and `code`",
			contains: []string{"<strong>bold</strong>", "<code>code</code>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.RenderMarkdown(tt.text)
			if err != nil {
				t.Fatalf("RenderMarkdown() error = %v", err)
			}
			for _, c := range tt.contains {
				if !strings.Contains(got, c) {
					t.Errorf("RenderMarkdown() = %q, want to contain %q", got, c)
				}
			}
			for _, e := range tt.excludes {
				if strings.Contains(got, e) {
					t.Errorf("RenderMarkdown() = %q, want not to contain %q", got, e)
				}
			}
		})
	}
}

func TestTitleFromQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{question: "  What is an OLAS Agent?  ", want: "What is an OLAS Agent?"},
		{question: "First line\nsecond line", want: "First line"},
		{
			question: "Can you tell me how to stake OLAS in the easiest way possible?",
			want:     "Can you tell me how to stake OLAS in the easies…",
		},
	}

	for _, tt := range tests {
		if got := models.TitleFromQuestion(tt.question); got != tt.want {
			t.Errorf("TitleFromQuestion(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}
