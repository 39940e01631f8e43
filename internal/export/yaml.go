package export

import (
	"io"

	"github.com/kuoruan/feed-session/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports the whole snapshot as YAML
type YAMLExporter struct{}

// Export writes snapshot as one YAML document
func (e *YAMLExporter) Export(snapshot *internal.Snapshot, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(snapshot)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
