package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestFormatPublishDetail(t *testing.T) {
	if got := formatPublishDetail(""); got != "-" {
		t.Fatalf("expected '-', got %q", got)
	}
	if got := formatPublishDetail("push rejected\nhint: fetch first"); got != "push rejected" {
		t.Fatalf("expected first line only, got %q", got)
	}
}

func TestRenderPublishSummary(t *testing.T) {
	out := RenderPublishSummary([]PublishRow{
		{Project: "project_kan-1", Outcome: PublishPublished},
		{Project: "project_kan-2", Outcome: PublishUnchanged},
		{Project: "project_kan-3", Outcome: PublishFailed, Detail: "non-fast-forward update"},
	}, PlainStyles())
	for _, want := range []string{"Branch", "✓ pushed", "- unchanged", "✗ failed", "non-fast-forward update"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
	if got := RenderPublishSummary(nil, PlainStyles()); !strings.Contains(got, "Nothing published.") {
		t.Fatalf("expected empty marker, got %q", got)
	}
}

func TestPadOrTrim(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{in: "abc", width: 5, want: "abc  "},
		{in: "abcdef", width: 4, want: "abc…"},
		{in: "two\nlines", width: 9, want: "two lines"},
		{in: "日本語", width: 4, want: "日… "},
		{in: "x", width: 0, want: ""},
	}
	for _, tc := range tests {
		if got := PadOrTrim(tc.in, tc.width); got != tc.want {
			t.Fatalf("PadOrTrim(%q, %d): expected %q, got %q", tc.in, tc.width, tc.want, got)
		}
	}
}

func TestStylesForNonTerminalIsPlain(t *testing.T) {
	styles := StylesFor(&bytes.Buffer{})
	if got := styles.Header("x"); got != "x" {
		t.Fatalf("expected plain header, got %q", got)
	}
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatalf("buffer is not a terminal")
	}
}
