package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kuoruan/feed-session/internal"
)

// JSONLExporter exports one content entry per line
type JSONLExporter struct{}

// Export writes every entry of snapshot in pre-order
func (e *JSONLExporter) Export(snapshot *internal.Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, entry := range snapshot.Entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", entry.ContentID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
