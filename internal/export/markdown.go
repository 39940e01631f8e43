package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kuoruan/feed-session/internal"
)

// MarkdownExporter renders the snapshot as a nested list
type MarkdownExporter struct{}

// Export writes snapshot as Markdown, one list item per entry indented by depth
func (e *MarkdownExporter) Export(snapshot *internal.Snapshot, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Feed HEAD\n\n")
	_, _ = fmt.Fprintf(w, "**Generated:** %s  \n", snapshot.GeneratedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "**Sessions:** %d  \n", snapshot.Sessions)
	_, _ = fmt.Fprintf(w, "**Entries:** %d\n\n", len(snapshot.Entries))

	if len(snapshot.Entries) == 0 {
		_, _ = fmt.Fprintf(w, "_HEAD is empty._\n")
		return nil
	}

	_, _ = fmt.Fprintf(w, "---\n\n")
	for _, entry := range snapshot.Entries {
		indent := strings.Repeat("  ", entry.Depth)
		if _, err := fmt.Fprintf(w, "%s- %s\n", indent, describe(entry)); err != nil {
			return err
		}
	}

	return nil
}

func describe(entry internal.ContentEntry) string {
	id := "`" + entry.ContentID + "`"
	switch {
	case entry.Kind == internal.PayloadToken:
		return fmt.Sprintf("%s _more content: %s_", id, entry.NextPageToken)
	case entry.Feature != nil && entry.Feature.Title != "":
		title := escapeMarkdown(entry.Feature.Title)
		if entry.Feature.URL != "" {
			title = fmt.Sprintf("[%s](%s)", title, entry.Feature.URL)
		}
		return fmt.Sprintf("**%s** %s", title, id)
	}
	return id
}

// escapeMarkdown escapes emphasis markers in titles
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "\\*\\*")
	text = strings.ReplaceAll(text, "__", "\\_\\_")
	return text
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
