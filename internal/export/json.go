package export

import (
	"encoding/json"
	"io"

	"github.com/kuoruan/feed-session/internal"
)

// JSONExporter exports the whole snapshot as indented JSON
type JSONExporter struct{}

// Export writes snapshot as one JSON document
func (e *JSONExporter) Export(snapshot *internal.Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(snapshot)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
