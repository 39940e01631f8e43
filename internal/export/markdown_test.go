package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kuoruan/feed-session/internal"
)

func TestMarkdownExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(testSnapshot(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Feed HEAD",
		"**Sessions:** 2",
		"- **Top stories** `root`",
		"  - **[Rust \\*\\*fast\\*\\*](https://example.com/1)** `card-1`",
		"  - `tok` _more content: page-2_",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Export() output missing %q\n%s", want, out)
		}
	}
}

func TestMarkdownExporter_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(&internal.Snapshot{}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), "_HEAD is empty._") {
		t.Errorf("Export() output = %q, want empty marker", buf.String())
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"**bold**", "\\*\\*bold\\*\\*"},
		{"__init__", "\\_\\_init\\_\\_"},
	}
	for _, tt := range tests {
		if got := escapeMarkdown(tt.in); got != tt.want {
			t.Errorf("escapeMarkdown(%q) got = %v, want %v", tt.in, got, tt.want)
		}
	}
}
